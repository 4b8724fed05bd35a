package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/timebank/internal/adapter/http/middleware"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/infrastructure/auth"
	"github.com/iho/timebank/internal/infrastructure/logger"
	"github.com/iho/timebank/internal/infrastructure/postgres"
)

type options struct {
	baseURL  string
	timeout  time.Duration
	token    string
	callerID string
	role     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "timebank-cli",
		Short:         "Timebank CLI tool",
		Long:          `A command line interface for operating the timebank service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the timebank API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("TIMEBANK_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.callerID, "caller", "cli", "Caller ID sent when the server runs without auth")
	rootCmd.PersistentFlags().StringVar(&opts.role, "role", string(domain.RoleAdmin), "Caller role sent when the server runs without auth")

	rootCmd.AddCommand(ledgerCmd(opts), tokenCmd(), migrateCmd())
	return rootCmd
}

func ledgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConsistency(cmd.OutOrStdout(), opts)
		},
	})
	return cmd
}

func checkConsistency(out io.Writer, opts *options) error {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(opts.baseURL, "/")+"/api/v1/admin/consistency", nil)
	if err != nil {
		return err
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	} else {
		req.Header.Set(middleware.CallerIDHeader, opts.callerID)
		req.Header.Set(middleware.CallerRoleHeader, opts.role)
	}

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var report struct {
		Consistent       bool   `json:"consistent"`
		TotalBalance     string `json:"total_balance"`
		TotalSigned      string `json:"total_signed"`
		Difference       string `json:"difference"`
		UnpairedDebits   int    `json:"unpaired_debits"`
		NegativeAccounts int    `json:"negative_accounts"`
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict:
		if err := json.Unmarshal(body, &report); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	default:
		return fmt.Errorf("consistency check failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	fmt.Fprintf(out, "Total balance:     %s\n", report.TotalBalance)
	fmt.Fprintf(out, "Total signed:      %s\n", report.TotalSigned)
	fmt.Fprintf(out, "Difference:        %s\n", report.Difference)
	fmt.Fprintf(out, "Unpaired debits:   %d\n", report.UnpairedDebits)
	fmt.Fprintf(out, "Negative accounts: %d\n", report.NegativeAccounts)

	if !report.Consistent {
		return fmt.Errorf("ledger is INCONSISTENT")
	}
	fmt.Fprintln(out, "Consistency check PASSED")
	return nil
}

func tokenCmd() *cobra.Command {
	var (
		participant string
		role        string
		secret      string
		expiration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			token, err := auth.NewJWTManager(secret, expiration).Generate(domain.Caller{
				ID:   participant,
				Role: domain.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&participant, "participant", "", "Participant ID (token subject)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleParticipant), "Role: participant, admin or service")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret")
	cmd.Flags().DurationVar(&expiration, "expiration", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("participant")
	return cmd
}

func migrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")

	log := logger.New(logger.Config{Level: "info", Format: "console", Output: os.Stderr})

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return postgres.RunMigrations(databaseURL, log)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return postgres.RunMigrationsDown(databaseURL, log)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				version, dirty, err := postgres.MigrationVersion(databaseURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
