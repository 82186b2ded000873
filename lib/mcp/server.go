package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("marketsuite.lib.mcp")

// Handler runs a tool call with already-validated arguments and
// returns a JSON-serializable payload. A returned error becomes a
// `{"status":"error","message":...}` payload, never a dead server.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
}

type registeredTool struct {
	Tool
	schema *gojsonschema.Schema
}

type Server struct {
	name    string
	version string

	tools map[string]*registeredTool
	order []string

	writeMu sync.Mutex
}

func NewServer(name, version string) *Server {
	return &Server{
		name:    name,
		version: version,
		tools:   map[string]*registeredTool{},
	}
}

// Register adds a tool, compiling its input schema. Registering two
// tools under one name is a programming error.
func (s *Server) Register(tool Tool) error {
	if _, exists := s.tools[tool.Name]; exists {
		return fmt.Errorf("mcp: tool %q registered twice", tool.Name)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.InputSchema))
	if err != nil {
		return fmt.Errorf("mcp: compile schema for %q: %w", tool.Name, err)
	}
	s.tools[tool.Name] = &registeredTool{Tool: tool, schema: schema}
	s.order = append(s.order, tool.Name)
	return nil
}

func (s *Server) listTools() []ToolInfo {
	infos := make([]ToolInfo, len(s.order))
	for i, name := range s.order {
		tool := s.tools[name]
		infos[i] = ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}
	}
	return infos
}

func (s *Server) write(w io.Writer, response Response) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// Run serves requests until the reader closes or the context is
// canceled. A malformed line or an unknown method answers with a
// JSON-RPC error; only a transport failure stops the loop.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		err := json.Unmarshal(line, &req)
		if err != nil {
			writeErr := s.write(w, Response{
				JSONRPC: "2.0",
				Error:   &ResponseError{Code: CodeParseError, Message: "parse error: " + err.Error()},
			})
			if writeErr != nil {
				return writeErr
			}
			continue
		}

		response, respond := s.handle(ctx, req)
		if !respond {
			continue
		}
		err = s.write(w, response)
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcp: read transport: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req Request) (Response, bool) {
	response := Response{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		response.Result = map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo": map[string]any{
				"name":    s.name,
				"version": s.version,
			},
		}
	case "notifications/initialized":
		return Response{}, false
	case "ping":
		response.Result = map[string]any{}
	case "tools/list":
		response.Result = map[string]any{"tools": s.listTools()}
	case "tools/call":
		response.Result = s.callTool(ctx, req)
	default:
		if req.Notification() {
			return Response{}, false
		}
		response.Error = &ResponseError{
			Code:    CodeMethodNotFound,
			Message: "method not found: " + req.Method,
		}
	}
	return response, !req.Notification()
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// errorPayload is the uniform failure shape handed back to the host.
type errorPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) callTool(ctx context.Context, req Request) CallResult {
	ctx, span := tracer.Start(ctx, "server:callTool")
	defer span.End()

	var params callParams
	err := json.Unmarshal(req.Params, &params)
	if err != nil {
		return s.errorResult(ctx, "", fmt.Errorf("malformed tools/call params: %w", err))
	}
	span.SetAttributes(attribute.String("tool", params.Name))

	tool, ok := s.tools[params.Name]
	if !ok {
		return s.errorResult(ctx, params.Name, fmt.Errorf("unknown tool: %s", params.Name))
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result, err := tool.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return s.errorResult(ctx, params.Name, &ArgumentError{Tool: params.Name, Details: err.Error()})
	}
	if !result.Valid() {
		details := ""
		for _, issue := range result.Errors() {
			if details != "" {
				details += "; "
			}
			details += issue.String()
		}
		return s.errorResult(ctx, params.Name, &ArgumentError{Tool: params.Name, Details: details})
	}

	payload, err := tool.Handler(ctx, args)
	if err != nil {
		return s.errorResult(ctx, params.Name, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return s.errorResult(ctx, params.Name, fmt.Errorf("serialize result: %w", err))
	}
	return textResult(string(data), false)
}

func (s *Server) errorResult(ctx context.Context, tool string, err error) CallResult {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "tool call failed")
	slog.WarnContext(ctx, "tool call failed", "tool", tool, "err", err)

	data, marshalErr := json.Marshal(errorPayload{Status: "error", Message: err.Error()})
	if marshalErr != nil {
		data = []byte(`{"status":"error","message":"internal error"}`)
	}
	return textResult(string(data), true)
}
