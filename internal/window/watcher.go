// Package window watches the admission window while an application is in
// progress and interrupts the session once the window has closed.
package window

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// DefaultInterval is the polling period when Config.Interval is zero.
const DefaultInterval = 5 * time.Second

// Source is the admission window service.
type Source interface {
	Window(ctx context.Context, academicYear string) (model.AdmissionWindow, error)
}

// Guard reports true while a redirect must not happen, for example while a
// payment order is unresolved.
type Guard func() bool

// Interrupt is the forced navigation out of the application flow. It is not
// an error.
type Interrupt struct {
	// Location is ClosedPath followed by the entry query string, unchanged.
	Location string
	Query    url.Values
	Window   model.AdmissionWindow
}

// Config configures a Watcher.
type Config struct {
	Source       Source
	AcademicYear string
	Interval     time.Duration
	ClosedPath   string
	// EntryQuery is the raw query string the flow was entered with, e.g.
	// "ref=LSC01&center=Karaikal".
	EntryQuery string
	Guards     []Guard
	// OnClosed runs on the watcher goroutine, at most once. Polling has
	// already ended when it is called.
	OnClosed func(Interrupt)

	Clock  clockwork.Clock
	Logger logrus.FieldLogger
}

// Watcher polls the window on a fixed interval and whenever Focus or
// VisibilityChanged asks for a re-check. All three triggers feed one check.
type Watcher struct {
	cfg     Config
	trigger chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	stopped    bool
	redirected bool
}

// New constructs a Watcher. Call Start to begin polling.
func New(cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ClosedPath == "" {
		cfg.ClosedPath = "/admission-closed"
	}
	return &Watcher{
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the polling goroutine. The first check runs immediately.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			close(w.done)
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		w.mu.Unlock()
		go w.run(ctx)
	})
}

// Stop ends polling exactly once and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		cancel := w.cancel
		w.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	w.mu.Lock()
	wait := w.cancel != nil && !w.redirected
	w.mu.Unlock()
	if wait {
		<-w.done
	}
}

// Done is closed once the watcher has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Focus is called when the session regains focus.
func (w *Watcher) Focus() { w.poke() }

// VisibilityChanged is called when the session becomes visible or hidden.
func (w *Watcher) VisibilityChanged(visible bool) {
	if visible {
		w.poke()
	}
}

func (w *Watcher) poke() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	ticker := w.cfg.Clock.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	if w.check(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		case <-w.trigger:
		}
		if w.check(ctx) {
			return
		}
	}
}

// check fetches the window and redirects when it is closed and no guard is
// busy. It returns true once the watcher has redirected.
func (w *Watcher) check(ctx context.Context) bool {
	win, err := w.cfg.Source.Window(ctx, w.cfg.AcademicYear)
	if err != nil {
		if ctx.Err() == nil {
			w.cfg.Logger.WithError(err).Debug("admission window check failed")
		}
		return false
	}
	if !Closed(win, w.cfg.Clock.Now()) {
		return false
	}
	for _, busy := range w.cfg.Guards {
		if busy() {
			w.cfg.Logger.WithField("admission_code", win.AdmissionCode).Info("window closed, redirect held back")
			return false
		}
	}
	if ctx.Err() != nil {
		return true
	}

	in := Interrupt{Location: w.cfg.ClosedPath, Window: win}
	if w.cfg.EntryQuery != "" {
		in.Location += "?" + w.cfg.EntryQuery
		in.Query, _ = url.ParseQuery(w.cfg.EntryQuery)
	}
	w.cfg.Logger.WithFields(logrus.Fields{"admission_code": win.AdmissionCode, "location": in.Location}).Info("admission window closed")
	w.mu.Lock()
	w.redirected = true
	w.mu.Unlock()
	if w.cfg.OnClosed != nil {
		w.cfg.OnClosed(in)
	}
	return true
}

// Closed reports whether the window no longer accepts applications at now.
// Dates are only enforced when the service supplied a closing date.
func Closed(win model.AdmissionWindow, now time.Time) bool {
	if !win.IsOpen {
		return true
	}
	if win.ClosingDate.IsZero() {
		return false
	}
	return !win.OpenAt(now)
}
