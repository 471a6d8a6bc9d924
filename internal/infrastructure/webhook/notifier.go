// Package webhook delivers transition payloads to the external automation endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/useCases"
	"log/slog"
	"net/http"
	"time"
)

// Notifier posts each payload once. Delivery is best effort and never retried.
type Notifier struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

var _ useCases.Notifier = (*Notifier)(nil)

func NewNotifier(url string, timeout time.Duration, log *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With(slog.String("component", "webhook")),
	}
}

func (n *Notifier) Notify(ctx context.Context, payload model.SideChannelPayload) error {
	if n.url == "" {
		n.log.Debug("side channel not configured", slog.String("action", payload.Action), slog.String("isin", payload.ISIN))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrSideChannel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrSideChannel, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", model.ErrSideChannel, resp.StatusCode)
	}
	n.log.Debug("side channel delivered", slog.String("action", payload.Action), slog.String("isin", payload.ISIN))
	return nil
}
