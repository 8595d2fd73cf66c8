package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/AdmitFlow/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "admitflow: %v\n", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	apiURL  string
	token   string
	year    string
	verbose bool

	// entryQuery is only used by apply.
	entryQuery string
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "admitflow",
		Short: "AdmitFlow admissions CLI",
		Long: `admitflow walks an applicant through the admission application against an
AdmitFlow API: saving stages, uploading documents and paying the application fee.
Administrators use it to manage admission windows and issue tokens.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.apiURL, "api", "", "API base URL (default $ADMITFLOW_API_URL)")
	cmd.PersistentFlags().StringVar(&g.token, "token", "", "Bearer token (default $ADMITFLOW_TOKEN)")
	cmd.PersistentFlags().StringVar(&g.year, "year", "", "Academic year, e.g. 2025-26 (default $ADMITFLOW_ACADEMIC_YEAR)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log API calls")
	cmd.AddCommand(
		newApplyCmd(g),
		newWindowCmd(g),
		newTokenCmd(),
	)
	return cmd
}

// load reads the environment and applies flag overrides.
func (g *globals) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if g.apiURL != "" {
		cfg.APIBaseURL = g.apiURL
	}
	if g.token != "" {
		cfg.APIToken = g.token
	}
	if g.year != "" {
		cfg.AcademicYear = g.year
	}
	log := config.NewLogger(cfg)
	if g.verbose {
		log.SetLevel(logrus.DebugLevel)
	} else if log.GetLevel() > logrus.WarnLevel {
		log.SetLevel(logrus.WarnLevel)
	}
	return cfg, log, nil
}
