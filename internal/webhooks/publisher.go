package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wavebatch/internal/model"
	"wavebatch/internal/store"
)

// EventRunFinished is the event type of terminal run callbacks.
const EventRunFinished = "run.finished"

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// RunFinished queues a callback carrying the terminal state of run.
// Runs without a callback URL are skipped.
func (p *Publisher) RunFinished(ctx context.Context, run model.Run) (string, error) {
	if run.CallbackURL == "" {
		return "", nil
	}
	payload := map[string]any{
		"id":    fmt.Sprintf("evt_%s_%s", run.ID, run.Status),
		"type":  EventRunFinished,
		"runId": run.ID,
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"data":  run,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode callback: %w", err)
	}
	return p.Store.EnqueueWebhook(ctx, run.ID, EventRunFinished, run.CallbackURL, run.CallbackSecret, body)
}
