package gateway

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/robz323/alcancia-digital/pkg/logger"
)

// outboundResponse is the payload pushed to the configured webhook.
type outboundResponse struct {
	EntityID string `json:"entity_id"`
	RoomID   string `json:"room_id"`
	Text     string `json:"text"`
}

// Emitter pushes responses to an external webhook, best effort. A nil
// Emitter is valid and does nothing.
type Emitter struct {
	client *resty.Client
	url    string
}

// NewEmitter returns nil when no webhook is configured.
func NewEmitter(webhookURL string) *Emitter {
	if webhookURL == "" {
		return nil
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)
	return &Emitter{client: client, url: webhookURL}
}

// Emit posts one response. Failures are logged, never propagated: outbound
// delivery must not break message handling.
func (e *Emitter) Emit(ctx context.Context, entityID, roomID, text string) {
	if e == nil || text == "" {
		return
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(outboundResponse{EntityID: entityID, RoomID: roomID, Text: text}).
		Post(e.url)
	if err != nil {
		logger.Warnf("[gateway] webhook emit failed: %v", err)
		return
	}
	if resp.IsError() {
		err := errors.Errorf("webhook returned %s", resp.Status())
		logger.Warnf("[gateway] webhook emit failed: %v", err)
	}
}
