package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

const (
	// InspectMarksheetTask is scheduled each time a marksheet PDF is uploaded.
	InspectMarksheetTask = "marksheet:inspect"
)

// InspectPayload tells the worker which object to download. ObjectKey pins
// the upload, so a result for a replaced file is discarded.
type InspectPayload struct {
	ApplicationID string     `json:"application_id"`
	Role          model.Role `json:"role"`
	ObjectKey     string     `json:"object_key"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewInspectTask builds the task for payload.
func NewInspectTask(payload InspectPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(InspectMarksheetTask, data), nil
}

// EnqueueInspect enqueues a marksheet inspection job.
func EnqueueInspect(ctx context.Context, client Enqueuer, payload InspectPayload) error {
	task, err := NewInspectTask(payload)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue inspect task: %w", err)
	}
	return nil
}
