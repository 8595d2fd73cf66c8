package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
	"github.com/dharsanguruparan/AdmitFlow/internal/stage"
)

func newApplyCmd(g *globals) *cobra.Command {
	var applicationID string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Work on your admission application",
	}
	cmd.PersistentFlags().StringVar(&applicationID, "application", "", "Application id to resume (default: your application for the academic year)")
	cmd.PersistentFlags().StringVar(&g.entryQuery, "entry-query", "", "Query string to keep when admissions close, e.g. ref=LSC01&center=Karaikal (default: from your referral)")
	cmd.AddCommand(
		newApplyStatusCmd(g, &applicationID),
		newApplySaveCmd(g, &applicationID),
		newApplyUploadCmd(g, &applicationID),
		newApplyPayCmd(g, &applicationID),
	)
	return cmd
}

// openSession loads configuration and resumes the application.
func openSession(cmd *cobra.Command, g *globals, applicationID string) (*session, func(), error) {
	cfg, log, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	s := newSession(cfg, log, cmd.InOrStdin(), cmd.OutOrStdout())
	s.query = g.entryQuery
	ctx, cancel, err := s.start(cmd.Context(), applicationID)
	if err != nil {
		return nil, nil, err
	}
	cmd.SetContext(ctx)
	return s, cancel, nil
}

func newApplyStatusCmd(g *globals, applicationID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stage, documents and payment of your application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := openSession(cmd, g, *applicationID)
			if err != nil {
				return err
			}
			defer done()
			s.printStatus()
			return nil
		},
	}
}

func newApplySaveCmd(g *globals, applicationID *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <stage> [field=value...]",
		Short: "Edit the fields of a stage and save it",
		Long: `save applies field=value edits to the stage and saves it. Fields not named keep
their saved values. Saving an earlier stage goes back to it first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := model.ParseStage(args[0])
			if err != nil {
				return err
			}
			edits, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			s, done, err := openSession(cmd, g, *applicationID)
			if err != nil {
				return err
			}
			defer done()

			if target.Before(s.stages.Current()) {
				if err := s.stages.GoBack(target); err != nil {
					return err
				}
			}
			for _, e := range edits {
				if err := s.stages.Edit(e.name, e.value); err != nil {
					return fmt.Errorf("%s: %w", e.name, err)
				}
			}
			next, err := s.stages.ValidateAndAdvance(cmd.Context(), target, s.stages.Fields(target))
			if verr, ok := stage.IsValidation(err); ok {
				printFieldErrors(s, verr)
				return errors.New("stage not saved")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Saved %s for %s. Next: %s\n", target, s.stages.ApplicationID(), next)
			return nil
		},
	}
	return cmd
}

func printFieldErrors(s *session, verr *stage.ValidationError) {
	names := make([]string, 0, len(verr.Fields))
	for name := range verr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "  %s: %s\n", name, verr.Fields[name])
	}
}

func newApplyUploadCmd(g *globals, applicationID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <role> <file>",
		Short: "Upload a document or marksheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := model.Role(args[0])
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			s, done, err := openSession(cmd, g, *applicationID)
			if err != nil {
				return err
			}
			defer done()

			if _, err := s.docs.Select(role, filepath.Base(args[1]), data); err != nil {
				return err
			}
			asset, err := s.docs.Upload(cmd.Context(), role)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Uploaded %s: %s\n", role, asset.RemoteURL)
			return nil
		},
	}
}

func newApplyPayCmd(g *globals, applicationID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pay",
		Short: "Pay the application fee and submit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := openSession(cmd, g, *applicationID)
			if err != nil {
				return err
			}
			defer done()
			if s.stages.Submitted() {
				fmt.Fprintln(s.out, "Application already submitted.")
				return nil
			}
			if s.stages.Current() != model.StagePayment {
				return fmt.Errorf("application is at %s; complete it before paying", s.stages.Current())
			}

			settled := make(chan error, 1)
			s.payments.OnSettled(func(o model.PaymentOrder, err error) {
				if err == nil && o.Status == model.OrderCreated {
					err = fmt.Errorf("payment for %s is still being processed; run pay again later", o.OrderID)
				}
				if err == nil && o.Status != model.OrderSuccess {
					err = fmt.Errorf("payment %s", o.Status)
				}
				settled <- err
			})

			order, err := s.payments.CreateOrder(cmd.Context(), s.cfg.ApplicationFee, s.cfg.Currency)
			if err != nil {
				return err
			}
			prefill := payment.Prefill{Name: s.stages.Fields(model.StagePersonalDetails).Get("name_initial")}
			if err := s.payments.InvokeGateway(cmd.Context(), order, prefill); err != nil {
				return err
			}
			select {
			case err := <-settled:
				if err != nil {
					return err
				}
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
			fmt.Fprintf(s.out, "Payment received. Application %s is submitted.\n", s.stages.ApplicationID())
			return nil
		},
	}
}

type assignment struct {
	name  string
	value string
}

// parseAssignments splits name=value arguments. Values may contain '='.
func parseAssignments(args []string) ([]assignment, error) {
	out := make([]assignment, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		out = append(out, assignment{name: name, value: value})
	}
	return out, nil
}
