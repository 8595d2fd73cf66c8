package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/queue"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
)

type fakeObjects struct {
	data    map[string][]byte
	texts   map[string]string
	downErr error
}

func (f *fakeObjects) Download(_ context.Context, key string) ([]byte, error) {
	if f.downErr != nil {
		return nil, f.downErr
	}
	d, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return d, nil
}

func (f *fakeObjects) PutText(_ context.Context, key, text string) error {
	f.texts[key] = text
	return nil
}

type inspection struct {
	result repository.Inspection
	note   string
}

type fakeRepo struct {
	marked map[string]inspection
	err    error
}

func (f *fakeRepo) MarkInspected(_ context.Context, appID string, role model.Role, key string, result repository.Inspection, note string) error {
	if f.err != nil {
		return f.err
	}
	f.marked[appID+"/"+string(role)+"@"+key] = inspection{result, note}
	return nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func inspectTask(t *testing.T, key string) *asynq.Task {
	t.Helper()
	task, err := queue.NewInspectTask(queue.InspectPayload{ApplicationID: "app", Role: model.RoleMarksheetHSC, ObjectKey: key})
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	return task
}

func TestInspectRecordsUnreadable(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{"k.pdf": []byte("%PDF-1.4 scanned garbage")}, texts: map[string]string{}}
	repo := &fakeRepo{marked: map[string]inspection{}}
	p := NewProcessor(repo, objects, quiet())
	if err := p.Handler().ProcessTask(context.Background(), inspectTask(t, "k.pdf")); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, ok := repo.marked["app/hsc_marksheet@k.pdf"]
	if !ok || got.result != repository.InspectionUnreadable || got.note == "" {
		t.Fatalf("marked = %+v", repo.marked)
	}
	if len(objects.texts) != 0 {
		t.Fatalf("text stored for an unreadable marksheet")
	}
}

func TestInspectReplacedUploadIsNotRetried(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{"k.pdf": []byte("x")}, texts: map[string]string{}}
	repo := &fakeRepo{err: fmt.Errorf("document: %w", repository.ErrNotFound)}
	p := NewProcessor(repo, objects, quiet())
	if err := p.Handler().ProcessTask(context.Background(), inspectTask(t, "k.pdf")); err != nil {
		t.Fatalf("expected replaced upload to be dropped, got %v", err)
	}
}

func TestInspectErrors(t *testing.T) {
	objects := &fakeObjects{downErr: errors.New("minio down"), texts: map[string]string{}}
	p := NewProcessor(&fakeRepo{marked: map[string]inspection{}}, objects, quiet())
	if err := p.Handler().ProcessTask(context.Background(), inspectTask(t, "k.pdf")); err == nil {
		t.Fatalf("expected download error to be retried")
	}
	bad := asynq.NewTask(queue.InspectMarksheetTask, []byte("{"))
	if err := p.Handler().ProcessTask(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for a bad payload, got %v", err)
	}
}
