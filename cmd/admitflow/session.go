package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/client"
	"github.com/dharsanguruparan/AdmitFlow/internal/config"
	"github.com/dharsanguruparan/AdmitFlow/internal/documents"
	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/stage"
	"github.com/dharsanguruparan/AdmitFlow/internal/window"
)

// session is one applicant's run of the application flow.
type session struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	api      *client.Client
	docs     *documents.Manager
	stages   *stage.Controller
	payments *payment.Engine
	watcher  *window.Watcher
	out      io.Writer
	// query overrides the derived entry query string.
	query    string
}

func newSession(cfg *config.Config, log logrus.FieldLogger, in io.Reader, out io.Writer) *session {
	tokens := auth.StaticToken(cfg.APIToken)
	api := client.New(cfg.APIBaseURL, tokens, client.WithAcademicYear(cfg.AcademicYear), client.WithLogger(log))
	docs := documents.NewManager(api, documents.WithRetries(cfg.UploadRetries), documents.WithLogger(log))
	stages := stage.New(api, tokens, docs, log)
	payments := payment.NewEngine(payment.Deps{
		Orders:    api,
		Verifier:  api,
		Gateway:   gateway.NewConsole(in, out),
		App:       stages,
		Confirmer: stages,
		Logger:    log,
	})
	return &session{cfg: cfg, log: log, api: api, docs: docs, stages: stages, payments: payments, out: out}
}

// start resumes the application and begins watching the admission window.
// The returned context is cancelled when the window closes mid-session.
// Watching ends once the application is submitted.
func (s *session) start(ctx context.Context, applicationID string) (context.Context, context.CancelFunc, error) {
	if err := s.stages.Resume(ctx, applicationID); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.watcher = window.New(window.Config{
		Source:       s.api,
		AcademicYear: s.cfg.AcademicYear,
		Interval:     s.cfg.PollInterval,
		ClosedPath:   s.cfg.ClosedPath,
		EntryQuery:   s.entryQuery(),
		Guards:       []window.Guard{s.payments.HasPendingOrder, s.stages.Submitted},
		OnClosed: func(in window.Interrupt) {
			fmt.Fprintf(s.out, "\nAdmissions for %s are closed. Continue at %s\n", in.Window.AcademicYear, in.Location)
			cancel()
		},
		Logger: s.log,
	})
	watcher := s.watcher
	s.stages.OnSubmitted(func(model.Application) { watcher.Stop() })
	if !s.stages.Submitted() {
		watcher.Start(ctx)
	}
	return ctx, func() {
		watcher.Stop()
		cancel()
	}, nil
}

// entryQuery is the query string the closed view needs to keep the
// learner support centre attribution: ref=<code>&center=<name>. An explicit
// query wins, then the saved application, then the token claims.
func (s *session) entryQuery() string {
	if s.query != "" {
		return strings.TrimPrefix(s.query, "?")
	}
	ref := s.stages.Referral()
	if ref == nil {
		if claims, err := auth.PeekClaims(s.cfg.APIToken); err == nil {
			ref = claims.Referral()
		}
	}
	if ref == nil {
		return ""
	}
	q := url.Values{"ref": {ref.Code}}
	if ref.Name != "" {
		q.Set("center", ref.Name)
	}
	return q.Encode()
}

func (s *session) printStatus() {
	fmt.Fprintf(s.out, "Application: %s\n", orNone(s.stages.ApplicationID()))
	fmt.Fprintf(s.out, "Stage:       %s (furthest %s)\n", s.stages.Current(), s.stages.Furthest())
	statuses := s.docs.Statuses()
	for _, role := range model.AllRoles() {
		if st := statuses[role]; st != "" && st != model.AssetEmpty {
			fmt.Fprintf(s.out, "  %-22s %s\n", role, st)
		}
	}
	if o, ok := s.payments.Current(); ok {
		fmt.Fprintf(s.out, "Payment:     %s (%s)\n", o.OrderID, o.Status)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
