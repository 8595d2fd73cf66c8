package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/config"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue bearer tokens for development and administration",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
		lscCode string
		lscName string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != auth.RoleApplicant && role != auth.RoleAdmin {
				return fmt.Errorf("--role must be %s or %s", auth.RoleApplicant, auth.RoleAdmin)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			var opts []auth.IssueOption
			if lscCode != "" {
				opts = append(opts, auth.WithReferral(lscCode, lscName))
			}
			tok, err := auth.Issue(cfg.JWTSecret, subject, role, ttl, time.Now(), opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Applicant or admin id")
	cmd.Flags().StringVar(&role, "role", auth.RoleApplicant, "applicant or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&lscCode, "lsc-code", "", "Learner support centre code")
	cmd.Flags().StringVar(&lscName, "lsc-name", "", "Learner support centre name")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
