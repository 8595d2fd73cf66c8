package window

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu      sync.Mutex
	windows []model.AdmissionWindow
	err     error
	calls   int
	fetched chan int
}

func newSource(windows ...model.AdmissionWindow) *fakeSource {
	return &fakeSource{windows: windows, fetched: make(chan int, 64)}
}

func (s *fakeSource) Window(ctx context.Context, year string) (model.AdmissionWindow, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	var win model.AdmissionWindow
	if len(s.windows) > 0 {
		i := call - 1
		if i >= len(s.windows) {
			i = len(s.windows) - 1
		}
		win = s.windows[i]
	}
	err := s.err
	s.mu.Unlock()
	s.fetched <- call
	return win, err
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	open   = model.AdmissionWindow{AdmissionCode: "PU2025", AcademicYear: "2025-26", IsOpen: true}
	closed = model.AdmissionWindow{AdmissionCode: "PU2025", AcademicYear: "2025-26", IsOpen: false}
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func waitFetch(t *testing.T, s *fakeSource) {
	t.Helper()
	select {
	case <-s.fetched:
	case <-time.After(2 * time.Second):
		t.Fatalf("window was never fetched")
	}
}

func waitInterrupt(t *testing.T, ch <-chan Interrupt) Interrupt {
	t.Helper()
	select {
	case in := <-ch:
		return in
	case <-time.After(2 * time.Second):
		t.Fatalf("no redirect")
	}
	return Interrupt{}
}

func TestClosedOnPollRedirectsWithReferral(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	src := newSource(open, closed)
	interrupts := make(chan Interrupt, 1)
	w := New(Config{
		Source:     src,
		Interval:   5 * time.Second,
		ClosedPath: "/admission-closed",
		EntryQuery: "ref=LSC01&center=Karaikal",
		OnClosed:   func(in Interrupt) { interrupts <- in },
		Clock:      fc,
		Logger:     quiet(),
	})
	w.Start(ctx)
	defer w.Stop()

	waitFetch(t, src)
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	fc.Advance(5 * time.Second)

	in := waitInterrupt(t, interrupts)
	if in.Location != "/admission-closed?ref=LSC01&center=Karaikal" {
		t.Fatalf("location = %q", in.Location)
	}
	if in.Query.Get("ref") != "LSC01" || in.Query.Get("center") != "Karaikal" {
		t.Fatalf("query = %v", in.Query)
	}
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher kept running after redirect")
	}
}

func TestFocusAndVisibilityTriggerCheck(t *testing.T) {
	src := newSource(open, open, closed)
	interrupts := make(chan Interrupt, 1)
	w := New(Config{Source: src, OnClosed: func(in Interrupt) { interrupts <- in }, Clock: clockwork.NewFakeClock(), Logger: quiet()})
	w.Start(context.Background())
	defer w.Stop()

	waitFetch(t, src)
	w.VisibilityChanged(true)
	waitFetch(t, src)
	w.Focus()
	in := waitInterrupt(t, interrupts)
	if in.Location != "/admission-closed" {
		t.Fatalf("location = %q", in.Location)
	}
}

func TestPendingOrderHoldsRedirect(t *testing.T) {
	var busy atomic.Bool
	busy.Store(true)
	src := newSource(closed)
	interrupts := make(chan Interrupt, 1)
	w := New(Config{
		Source:     src,
		EntryQuery: "ref=LSC09",
		Guards:     []Guard{busy.Load},
		OnClosed:   func(in Interrupt) { interrupts <- in },
		Clock:      clockwork.NewFakeClock(),
		Logger:     quiet(),
	})
	w.Start(context.Background())
	defer w.Stop()

	waitFetch(t, src)
	w.Focus()
	waitFetch(t, src)
	select {
	case in := <-interrupts:
		t.Fatalf("redirected to %s while an order was pending", in.Location)
	default:
	}

	busy.Store(false)
	w.Focus()
	if in := waitInterrupt(t, interrupts); in.Location != "/admission-closed?ref=LSC09" {
		t.Fatalf("location = %q", in.Location)
	}
}

func TestFetchErrorsNeverRedirect(t *testing.T) {
	src := newSource()
	src.err = errors.New("502 bad gateway")
	redirected := make(chan Interrupt, 1)
	w := New(Config{Source: src, OnClosed: func(in Interrupt) { redirected <- in }, Clock: clockwork.NewFakeClock(), Logger: quiet()})
	w.Start(context.Background())

	waitFetch(t, src)
	w.Focus()
	waitFetch(t, src)
	w.Stop()
	select {
	case <-redirected:
		t.Fatalf("fetch error caused a redirect")
	default:
	}
}

func TestStopIsIdempotent(t *testing.T) {
	src := newSource(open)
	w := New(Config{Source: src, Clock: clockwork.NewFakeClock(), Logger: quiet()})
	w.Start(context.Background())
	waitFetch(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
	select {
	case <-w.Done():
	default:
		t.Fatalf("Stop returned before the watcher exited")
	}
	w.Focus()
}

func TestStopBeforeStart(t *testing.T) {
	src := newSource(closed)
	w := New(Config{Source: src, Clock: clockwork.NewFakeClock(), Logger: quiet()})
	w.Stop()
	w.Start(context.Background())
	<-w.Done()
	if src.count() != 0 {
		t.Fatalf("stopped watcher fetched the window")
	}
}

func TestClosed(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 6, d, 9, 0, 0, 0, time.UTC) }
	win := model.AdmissionWindow{IsOpen: true, OpeningDate: day(1), ClosingDate: day(20)}
	cases := []struct {
		name string
		win  model.AdmissionWindow
		now  time.Time
		want bool
	}{
		{"open in range", win, day(10), false},
		{"past closing date", win, day(21), true},
		{"switched off", closed, day(10), true},
		{"no dates", open, day(10), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Closed(tc.win, tc.now); got != tc.want {
				t.Fatalf("Closed = %v, want %v", got, tc.want)
			}
		})
	}
}
