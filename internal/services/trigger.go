package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Lllllllleong/bolledger/internal/models"
)

// DecodeRunRequest reads a Pub/Sub CloudEvent payload. A plain-text or empty
// message body asks for a full run and is kept as the trigger label.
func DecodeRunRequest(eventData []byte) (models.RunRequest, error) {
	var msg models.PubSubMessage
	if err := json.Unmarshal(eventData, &msg); err != nil {
		return models.RunRequest{}, fmt.Errorf("json.Unmarshal pubsub message: %w", err)
	}
	body := bytes.TrimSpace(msg.Message.Data)
	if len(body) == 0 {
		return models.RunRequest{Trigger: "pubsub"}, nil
	}
	var req models.RunRequest
	if body[0] != '{' || json.Unmarshal(body, &req) != nil {
		return models.RunRequest{Trigger: string(body)}, nil
	}
	if req.Trigger == "" {
		req.Trigger = "pubsub"
	}
	return req, nil
}

// Job returns the unit of work a trigger asks for.
func (p *Pipeline) Job(req models.RunRequest) func(context.Context) error {
	return func(ctx context.Context) error {
		if req.ReconcileOnly {
			_, err := p.Orchestrator.ReconcileOnly(ctx)
			return err
		}
		_, err := p.Orchestrator.Run(ctx)
		return err
	}
}
