package research

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"marketsuite-backend/lib/telemetry"
)

// Notifier posts analysis results to a local endpoint, fire and
// forget: delivery failures are logged and never reach the caller.
type Notifier struct {
	client *resty.Client
	url    string

	// wg lets tests wait for in-flight sends; production never joins.
	wg sync.WaitGroup
}

type notifyEnvelope struct {
	Action    string `json:"action"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func NewNotifier(url string) *Notifier {
	client := resty.New()
	client.SetTimeout(time.Second * 10)
	telemetry.InstrumentResty(client, "services/research/notify")
	return &Notifier{client: client, url: url}
}

// Notify sends the envelope on a background goroutine and returns
// immediately. A notifier with no URL is a no-op.
func (n *Notifier) Notify(ctx context.Context, action string, data any) {
	if n.url == "" {
		return
	}
	envelope := notifyEnvelope{
		Action:    action,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		// detach from the request context so an already-finished tool
		// call doesn't cancel the delivery
		res, err := n.client.R().
			SetContext(context.WithoutCancel(ctx)).
			SetHeader("content-type", "application/json").
			SetBody(envelope).
			Post(n.url)
		if err != nil {
			slog.Warn("notification delivery failed", "action", action, "err", err)
			return
		}
		if res.IsError() {
			slog.Warn("notification rejected", "action", action, "status", res.StatusCode())
		}
	}()
}

// Flush waits for pending notifications, for tests and shutdown.
func (n *Notifier) Flush() {
	n.wg.Wait()
}
