// Package stage drives an application through its linear stages. The
// Controller is the only owner of the application's fields: it resumes them
// from the persistence service, validates local edits, and advances only
// after the service confirmed the save.
package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/validation"
)

// Persistence is the application persistence service.
type Persistence interface {
	// Resume returns the application for id, or the caller's current
	// application when id is empty. A nil application with a nil error means
	// nothing has been saved yet.
	Resume(ctx context.Context, applicationID string) (*model.Application, error)
	SaveStage(ctx context.Context, applicationID string, s model.Stage, fields model.Fields) (SaveResult, error)
}

// SaveResult is the service's answer to a save. A non-empty Errors means the
// service refused the fields.
type SaveResult struct {
	ApplicationID string            `json:"application_id"`
	Errors        validation.Errors `json:"errors,omitempty"`
}

// Assets is the part of the document manager the controller reads.
type Assets interface {
	Statuses() map[model.Role]model.AssetStatus
	Uploaded() map[model.Role]string
	Restore(remote map[model.Role]string)
}

// Controller owns the current stage and the editable field snapshot.
type Controller struct {
	store  Persistence
	tokens auth.TokenSource
	assets Assets
	log    logrus.FieldLogger

	mu        sync.Mutex
	app       model.Application
	furthest  model.Stage
	current   model.Stage
	edits     map[model.Stage]model.Fields
	saving    bool
	listeners []func(model.Application)
}

// New constructs a Controller positioned at BasicInfo.
func New(store Persistence, tokens auth.TokenSource, assets Assets, logger logrus.FieldLogger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		store:    store,
		tokens:   tokens,
		assets:   assets,
		log:      logger,
		app:      model.Application{Stage: model.StageBasicInfo, Status: model.StatusInProgress, Fields: map[model.Stage]model.Fields{}},
		furthest: model.StageBasicInfo,
		current:  model.StageBasicInfo,
		edits:    map[model.Stage]model.Fields{},
	}
}

// Referral returns the learner support centre the application was started
// through, or nil.
func (c *Controller) Referral() *model.Referral {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app.Referral == nil {
		return nil
	}
	r := *c.app.Referral
	return &r
}

// OnSubmitted registers fn to run once the application reaches Submitted.
func (c *Controller) OnSubmitted(fn func(model.Application)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Resume restores the session from the persistence service. The persisted
// fields of the furthest stage replace local edits of that stage; edits of
// other stages are left alone.
func (c *Controller) Resume(ctx context.Context, applicationID string) error {
	if _, err := c.tokens.Token(); err != nil {
		return &ResumeError{Err: err}
	}
	app, err := c.store.Resume(ctx, applicationID)
	if err != nil {
		return &ResumeError{Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if app == nil {
		c.log.Info("no saved application, starting at basic info")
		return nil
	}
	if !app.Stage.Valid() {
		return &ResumeError{Err: fmt.Errorf("unknown stage %q", app.Stage)}
	}

	persisted := make(map[model.Stage]model.Fields, len(app.Fields))
	for s, f := range app.Fields {
		persisted[s] = f.Clone()
	}
	c.app = *app
	c.app.Fields = persisted
	c.furthest = app.Stage
	c.current = app.Stage
	if app.Status == model.StatusSubmitted {
		c.furthest, c.current = model.StageSubmitted, model.StageSubmitted
	}

	merged := c.edits[c.current].Clone()
	for k, v := range persisted[c.current] {
		merged[k] = v
	}
	c.edits[c.current] = merged

	if c.assets != nil {
		c.assets.Restore(app.Documents)
	}
	c.log.WithFields(logrus.Fields{"application_id": app.ID, "stage": c.current}).Info("application resumed")
	return nil
}

// Edit changes one field of the current stage's editable snapshot and
// re-derives dependent fields.
func (c *Controller) Edit(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == model.StageSubmitted {
		return ErrSubmitted
	}
	if !c.current.Editable() {
		return fmt.Errorf("%w: %s", ErrNotEditable, c.current)
	}
	return applyEdit(c.editable(c.current), name, value)
}

// ValidateAndAdvance validates local for stage s, persists it, and moves to
// the next stage. On any failure the persisted fields and the stage are left
// as they were. When GoBack ran while the save was in flight the stage it
// chose is kept and returned.
func (c *Controller) ValidateAndAdvance(ctx context.Context, s model.Stage, local model.Fields) (model.Stage, error) {
	c.mu.Lock()
	switch {
	case c.current == model.StageSubmitted:
		c.mu.Unlock()
		return s, ErrSubmitted
	case s != c.current:
		cur := c.current
		c.mu.Unlock()
		return cur, fmt.Errorf("%w: got %s, current is %s", ErrStageMismatch, s, cur)
	case s == model.StagePayment:
		c.mu.Unlock()
		return s, ErrNotAdvanceable
	case c.saving:
		c.mu.Unlock()
		return s, ErrSaveInFlight
	}
	c.saving = true
	appID := c.app.ID
	c.mu.Unlock()

	next, err := c.advance(ctx, appID, s, local)

	c.mu.Lock()
	c.saving = false
	c.mu.Unlock()
	return next, err
}

func (c *Controller) advance(ctx context.Context, appID string, s model.Stage, local model.Fields) (model.Stage, error) {
	fields := local.Clone()
	derive(s, fields)

	in := validation.Input{Fields: fields}
	if c.assets != nil {
		in.Assets = c.assets.Statuses()
	}
	errs, err := validation.Validate(s, in)
	if err != nil {
		return s, err
	}
	if !errs.OK() {
		return s, &ValidationError{Stage: s, Fields: errs}
	}

	if _, err := c.tokens.Token(); err != nil {
		return s, err
	}
	res, err := c.store.SaveStage(ctx, appID, s, fields)
	if err != nil {
		c.log.WithField("stage", s).WithError(err).Warn("stage save failed")
		return s, &PersistError{Stage: s, Err: err}
	}
	if !res.Errors.OK() {
		return s, &ValidationError{Stage: s, Fields: res.Errors}
	}

	next, _ := s.Next()
	c.mu.Lock()
	defer c.mu.Unlock()
	if res.ApplicationID != "" {
		c.app.ID = res.ApplicationID
	}
	c.app.Fields[s] = fields
	c.edits[s] = fields.Clone()
	if c.assets != nil && (s == model.StageQualifications || s == model.StageDocuments) {
		c.app.Documents = c.assets.Uploaded()
	}
	c.furthest = model.Later(c.furthest, next)
	c.app.Stage = c.furthest
	// A GoBack during the save wins over the forward move.
	if c.current == s {
		c.current = next
	}
	c.log.WithFields(logrus.Fields{"application_id": c.app.ID, "stage": s, "next": next, "current": c.current}).Info("stage saved")
	return c.current, nil
}

// GoBack moves to any earlier stage without validation. Persisted data of
// later stages is kept.
func (c *Controller) GoBack(target model.Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == model.StageSubmitted {
		return ErrSubmitted
	}
	if !target.Before(c.current) {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}
	c.current = target
	return nil
}

// PaymentConfirmed is called by the payment engine after the verification
// service reported success. The application becomes Submitted.
func (c *Controller) PaymentConfirmed(ctx context.Context, order model.PaymentOrder) error {
	if order.Status != model.OrderSuccess {
		return fmt.Errorf("order %s is %s, not success", order.OrderID, order.Status)
	}
	c.mu.Lock()
	if c.app.ID == "" || order.ApplicationID != c.app.ID {
		c.mu.Unlock()
		return fmt.Errorf("order %s belongs to application %q", order.OrderID, order.ApplicationID)
	}
	if c.current == model.StageSubmitted {
		c.mu.Unlock()
		return nil
	}
	c.current, c.furthest = model.StageSubmitted, model.StageSubmitted
	c.app.Stage = model.StageSubmitted
	c.app.Status = model.StatusSubmitted
	o := order
	c.app.Payment = &o
	app := c.snapshotApp()
	listeners := append([]func(model.Application){}, c.listeners...)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"application_id": order.ApplicationID, "order_id": order.OrderID}).Info("application submitted")
	for _, fn := range listeners {
		fn(app)
	}
	return nil
}

// Current returns the stage on screen.
func (c *Controller) Current() model.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Furthest returns the furthest stage the service has confirmed.
func (c *Controller) Furthest() model.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.furthest
}

// ApplicationID is empty until BasicInfo was saved.
func (c *Controller) ApplicationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app.ID
}

// Submitted reports whether the flow is finished.
func (c *Controller) Submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == model.StageSubmitted
}

// Fields returns a copy of the editable snapshot of s.
func (c *Controller) Fields(s model.Stage) model.Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editable(s).Clone()
}

// Persisted returns a copy of the server-confirmed fields of s.
func (c *Controller) Persisted(s model.Stage) model.Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app.Fields[s].Clone()
}

// Snapshot builds the read-only projection from persisted fields.
func (c *Controller) Snapshot() model.ApplicationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.BuildSnapshot(c.snapshotApp())
}

func (c *Controller) snapshotApp() model.Application {
	app := c.app
	app.Fields = make(map[model.Stage]model.Fields, len(c.app.Fields))
	for s, f := range c.app.Fields {
		app.Fields[s] = f.Clone()
	}
	docs := make(map[model.Role]string, len(c.app.Documents))
	for r, u := range c.app.Documents {
		docs[r] = u
	}
	if c.assets != nil {
		for r, u := range c.assets.Uploaded() {
			docs[r] = u
		}
	}
	app.Documents = docs
	return app
}

// editable returns the snapshot for s, seeding it from persisted fields.
func (c *Controller) editable(s model.Stage) model.Fields {
	f, ok := c.edits[s]
	if !ok {
		f = c.app.Fields[s].Clone()
		c.edits[s] = f
	}
	return f
}

// IsValidation reports whether err carries field-level messages.
func IsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	ok := errors.As(err, &verr)
	return verr, ok
}
