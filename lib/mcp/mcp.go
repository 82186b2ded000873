// Package mcp is a minimal JSON-RPC 2.0 tool server speaking the MCP
// wire protocol over line-delimited JSON on a reader/writer pair
// (stdin/stdout in production). Tool arguments are validated against
// each tool's JSON schema before the handler runs.
package mcp

import (
	"encoding/json"
	"fmt"
)

// Request is an incoming JSON-RPC 2.0 message.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification reports whether the message expects no response.
func (r Request) Notification() bool { return r.ID == nil }

// Response is an outgoing JSON-RPC 2.0 message.
type Response struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ArgumentError is a schema validation failure on tool input.
type ArgumentError struct {
	Tool    string
	Details string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Details)
}

// ToolInfo is the tools/list wire form of a registered tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// TextContent is the single content block every tool result carries.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the tools/call result envelope.
type CallResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

func textResult(text string, isError bool) CallResult {
	return CallResult{
		Content: []TextContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}
