// Package documents tracks the per-role upload slots of one application.
// Files are checked against the role's constraint table when selected, so an
// invalid file never reaches the network.
package documents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// Uploader sends one accepted file to the document upload service and
// returns its remote URL. Errors wrapping ErrRejected are permanent; all
// others are treated as transient.
type Uploader interface {
	Upload(ctx context.Context, role model.Role, fileName, mime string, data []byte) (string, error)
}

const (
	defaultRetries = 3
	defaultBackoff = 250 * time.Millisecond
)

type slot struct {
	asset model.DocumentAsset
	data  []byte
	// gen changes on every select, remove and restore. An upload only
	// commits its result if the generation it started with is still current.
	gen uint64
}

// Manager owns every DocumentAsset of one session.
type Manager struct {
	mu       sync.Mutex
	slots    map[model.Role]*slot
	uploader Uploader
	retries  uint64
	backoff  time.Duration
	log      logrus.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetries bounds the number of retries after a transient failure.
func WithRetries(n uint64) Option { return func(m *Manager) { m.retries = n } }

// WithBackoff sets the base delay of the exponential retry backoff.
func WithBackoff(d time.Duration) Option { return func(m *Manager) { m.backoff = d } }

// WithLogger replaces the standard logrus logger.
func WithLogger(l logrus.FieldLogger) Option { return func(m *Manager) { m.log = l } }

// NewManager constructs a Manager with every role empty.
func NewManager(uploader Uploader, opts ...Option) *Manager {
	m := &Manager{
		slots:    make(map[model.Role]*slot),
		uploader: uploader,
		retries:  defaultRetries,
		backoff:  defaultBackoff,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, role := range model.AllRoles() {
		m.slots[role] = &slot{asset: emptyAsset(role)}
	}
	return m
}

func emptyAsset(role model.Role) model.DocumentAsset {
	return model.DocumentAsset{Role: role, Status: model.AssetEmpty}
}

// Select checks a chosen file against the role's constraints. A rejected
// file leaves the slot empty and returns a *ConstraintError.
func (m *Manager) Select(role model.Role, fileName string, data []byte) (model.DocumentAsset, error) {
	mime, err := Check(role, data)
	if errors.Is(err, ErrUnknownRole) {
		return model.DocumentAsset{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slots[role]
	s.gen++
	if err != nil {
		s.asset = emptyAsset(role)
		s.data = nil
		m.log.WithFields(logrus.Fields{"role": role, "mime": mime, "size": len(data)}).Info("document rejected at selection")
		return s.asset, err
	}

	s.data = append([]byte(nil), data...)
	s.asset = model.DocumentAsset{
		Role:      role,
		FileName:  fileName,
		Mime:      mime,
		SizeBytes: int64(len(data)),
		Status:    model.AssetSelected,
	}
	if mime == MimeJPEG {
		preview, perr := thumbnail(data)
		if perr != nil {
			m.log.WithField("role", role).WithError(perr).Warn("preview unavailable")
		}
		s.asset.Preview = preview
	}
	return s.asset, nil
}

// Upload sends the selected file, retrying transient failures with bounded
// exponential backoff. A Remove or re-Select while the upload runs turns its
// result into ErrSuperseded.
func (m *Manager) Upload(ctx context.Context, role model.Role) (model.DocumentAsset, error) {
	m.mu.Lock()
	s, ok := m.slots[role]
	if !ok {
		m.mu.Unlock()
		return model.DocumentAsset{}, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if s.data == nil || (s.asset.Status != model.AssetSelected && s.asset.Status != model.AssetError) {
		status := s.asset.Status
		m.mu.Unlock()
		return model.DocumentAsset{}, fmt.Errorf("%w: %s is %s", ErrNotSelected, role, status)
	}
	s.asset.Status = model.AssetUploading
	s.asset.Message = ""
	gen := s.gen
	data, name, mime := s.data, s.asset.FileName, s.asset.Mime
	m.mu.Unlock()

	logger := m.log.WithField("role", role)
	var (
		attempts  int
		remoteURL string
	)
	backoff := retry.WithMaxRetries(m.retries, retry.NewExponential(m.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		url, err := m.uploader.Upload(ctx, role, name, mime, data)
		if err == nil {
			remoteURL = url
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		logger.WithError(err).WithField("attempt", attempts).Warn("upload attempt failed")
		return retry.RetryableError(err)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.gen != gen {
		logger.Info("discarding superseded upload result")
		return s.asset, ErrSuperseded
	}
	if err != nil {
		s.asset.Status = model.AssetError
		s.asset.Message = err.Error()
		return s.asset, &UploadError{Role: role, Attempts: attempts, Permanent: errors.Is(err, ErrRejected), Err: err}
	}
	s.asset.Status = model.AssetUploaded
	s.asset.RemoteURL = remoteURL
	s.data = nil
	logger.WithField("attempts", attempts).Info("document uploaded")
	return s.asset, nil
}

// Remove resets the slot to empty, dropping the preview and remote URL.
func (m *Manager) Remove(role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[role]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	s.gen++
	s.asset = emptyAsset(role)
	s.data = nil
	return nil
}

// Restore marks server-confirmed uploads as uploaded after a resume.
func (m *Manager) Restore(remote map[model.Role]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for role, url := range remote {
		s, ok := m.slots[role]
		if !ok || url == "" {
			continue
		}
		s.gen++
		s.data = nil
		s.asset = model.DocumentAsset{Role: role, Status: model.AssetUploaded, RemoteURL: url}
	}
}

// Asset returns a copy of the slot for role.
func (m *Manager) Asset(role model.Role) (model.DocumentAsset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[role]
	if !ok {
		return model.DocumentAsset{}, false
	}
	return s.asset, true
}

// Statuses reports the status of every slot.
func (m *Manager) Statuses() map[model.Role]model.AssetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.Role]model.AssetStatus, len(m.slots))
	for role, s := range m.slots {
		out[role] = s.asset.Status
	}
	return out
}

// Uploaded returns the remote URL of every uploaded slot.
func (m *Manager) Uploaded() map[model.Role]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.Role]string)
	for role, s := range m.slots {
		if s.asset.Status == model.AssetUploaded {
			out[role] = s.asset.RemoteURL
		}
	}
	return out
}

// AllUploaded reports whether every listed role is uploaded. With no roles it
// checks the five Documents stage roles.
func (m *Manager) AllUploaded(roles ...model.Role) bool {
	if len(roles) == 0 {
		roles = model.DocumentRoles
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range roles {
		s, ok := m.slots[role]
		if !ok || s.asset.Status != model.AssetUploaded {
			return false
		}
	}
	return true
}
