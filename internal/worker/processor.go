package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	pdfutil "github.com/dharsanguruparan/AdmitFlow/internal/pdf"
	"github.com/dharsanguruparan/AdmitFlow/internal/queue"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
	"github.com/dharsanguruparan/AdmitFlow/internal/s3storage"
)

// InspectionStore records inspection results.
type InspectionStore interface {
	MarkInspected(ctx context.Context, applicationID string, role model.Role, objectKey string, result repository.Inspection, note string) error
}

// ObjectStore reads uploads and keeps extracted text.
type ObjectStore interface {
	Download(ctx context.Context, objectKey string) ([]byte, error)
	PutText(ctx context.Context, objectKey, text string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	repo  InspectionStore
	store ObjectStore
	log   logrus.FieldLogger
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo InspectionStore, store ObjectStore, logger logrus.FieldLogger) *Processor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Processor{repo: repo, store: store, log: logger}
}

// Handler registers the inspection job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.InspectMarksheetTask, p.handleInspect)
	return mux
}

// handleInspect never touches the upload status; the result is advisory.
func (p *Processor) handleInspect(ctx context.Context, task *asynq.Task) error {
	var payload queue.InspectPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := p.log.WithFields(logrus.Fields{"application_id": payload.ApplicationID, "role": payload.Role, "object_key": payload.ObjectKey})

	data, err := p.store.Download(ctx, payload.ObjectKey)
	if err != nil {
		logger.WithError(err).Warn("download for inspection failed")
		return err
	}
	res := pdfutil.Inspect(data)
	result := repository.InspectionUnreadable
	if res.Readable {
		result = repository.InspectionReadable
		if err := p.store.PutText(ctx, s3storage.TextKey(payload.ObjectKey), res.Text); err != nil {
			return err
		}
	}
	err = p.repo.MarkInspected(ctx, payload.ApplicationID, payload.Role, payload.ObjectKey, result, res.Note)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Info("marksheet replaced before inspection finished")
		return nil
	}
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"inspection": result, "note": res.Note}).Info("marksheet inspected")
	return nil
}
