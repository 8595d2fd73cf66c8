package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/client"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

const dateLayout = "2006-01-02"

func newWindowCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Inspect and manage admission windows",
	}
	cmd.AddCommand(
		newWindowStatusCmd(g),
		newWindowSaveCmd(g),
		newWindowSwitchCmd(g, "open", true),
		newWindowSwitchCmd(g, "close", false),
	)
	return cmd
}

func (g *globals) client() (*client.Client, error) {
	cfg, log, err := g.load()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.APIBaseURL, auth.StaticToken(cfg.APIToken), client.WithAcademicYear(cfg.AcademicYear), client.WithLogger(log)), nil
}

func printWindow(w io.Writer, win model.AdmissionWindow) {
	state := "closed"
	if win.OpenAt(time.Now()) {
		state = "open"
	}
	fmt.Fprintf(w, "%s  %s  %s to %s  switch=%t  (%s today)\n",
		win.AdmissionCode, win.AcademicYear,
		win.OpeningDate.Format(dateLayout), win.ClosingDate.Format(dateLayout),
		win.IsOpen, state)
}

func newWindowStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the admission window of the academic year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			win, err := c.Window(cmd.Context(), "")
			if err != nil {
				return err
			}
			printWindow(cmd.OutOrStdout(), win)
			return nil
		},
	}
}

func newWindowSaveCmd(g *globals) *cobra.Command {
	var (
		code   string
		opens  string
		closes string
		open   bool
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or replace the window of an academic year (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			openingDate, err := time.Parse(dateLayout, opens)
			if err != nil {
				return fmt.Errorf("--opens: %w", err)
			}
			closingDate, err := time.Parse(dateLayout, closes)
			if err != nil {
				return fmt.Errorf("--closes: %w", err)
			}
			if g.year == "" {
				return fmt.Errorf("--year is required")
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			win, err := c.SaveWindow(cmd.Context(), model.AdmissionWindow{
				AdmissionCode: code,
				AcademicYear:  g.year,
				IsOpen:        open,
				OpeningDate:   openingDate,
				ClosingDate:   closingDate,
			})
			if err != nil {
				return err
			}
			printWindow(cmd.OutOrStdout(), win)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Admission code, e.g. PU2025")
	cmd.Flags().StringVar(&opens, "opens", "", "Opening date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&closes, "closes", "", "Closing date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&open, "open", false, "Turn the admin switch on")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("opens")
	_ = cmd.MarkFlagRequired("closes")
	return cmd
}

func newWindowSwitchCmd(g *globals, name string, open bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <admission-code>",
		Short: fmt.Sprintf("Switch a window %s (admin)", name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			switchWindow := c.CloseWindow
			if open {
				switchWindow = c.OpenWindow
			}
			win, err := switchWindow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printWindow(cmd.OutOrStdout(), win)
			return nil
		},
	}
}
