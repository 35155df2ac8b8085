package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"reviewdesk/internal/adapters/analysis"
	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/adapters/platform"
	redisad "reviewdesk/internal/adapters/redis"
	"reviewdesk/internal/app"
	"reviewdesk/internal/audit"
	"reviewdesk/internal/compliance"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/quality"
	"reviewdesk/internal/shared"
	mysqlrepo "reviewdesk/internal/storage/mysql"
)

var (
	cfg    shared.Config
	policy shared.Policy

	locations  []string
	sinceFlag  string
	workers    int
	policyPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "reconciler",
	Short:         "Reconcile platform reviews and publish approved replies",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = shared.Load()

		// 1) initialize global logger (console in dev, JSON otherwise)
		log.Logger = observability.NewLogger(cfg.AppEnv)

		if policyPath == "" {
			policyPath = cfg.PolicyFile
		}
		var err error
		policy, err = shared.LoadPolicy(policyPath)
		if err != nil {
			log.Error().Err(err).Msg("policy load failed")
			return err
		}
		if len(locations) > 0 {
			cfg.LocationIDs = locations
		}
		if workers > 0 {
			cfg.ReconcileWorkers = workers
			cfg.PublishWorkers = workers
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&locations, "location", "l", nil, "Location id (repeatable; overrides LOCATION_IDS)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Parallel workers (overrides RECONCILE_WORKERS/PUBLISH_WORKERS)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Policy YAML file (overrides POLICY_FILE)")
	runCmd.Flags().StringVar(&sinceFlag, "since", "", "Only fetch reviews updated since this RFC3339 time")

	checkCmd.Flags().String("target", string(domain.TargetReviewReply), "review_reply or marketing_post")
	checkCmd.Flags().String("review", "", "Review text the reply answers")
	checkCmd.Flags().String("author", "", "Reviewer name, used for the greeting check")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(checkCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile every configured location once",
	RunE: func(cmd *cobra.Command, args []string) error {
		var since *time.Time
		if sinceFlag != "" {
			t, err := time.Parse(time.RFC3339, sinceFlag)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			since = &t
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		client, err := platform.New(cfg.PlatformBase, cfg.PlatformKey, cfg.PlatformRPS)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize platform client")
			return err
		}
		repo := mysqlrepo.New(db)
		cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		rec := app.NewReconciler(client, analysis.New(cfg.AnalyzerURL, cfg.AnalyzerKey, 0), repo, cache, policy)

		log.Info().
			Str("business_id", cfg.BusinessID).
			Strs("locations", cfg.LocationIDs).
			Int("workers", cfg.ReconcileWorkers).
			Msg("reconciliation starting")

		start := time.Now()
		counts, err := rec.ReconcileAll(cmd.Context(), cfg.BusinessID, cfg.LocationIDs, since, cfg.ReconcileWorkers)
		for loc, c := range counts {
			log.Info().
				Str("location_id", loc).
				Int("fetched", c.Fetched).
				Int("processed", c.Processed).
				Int("analyzed", c.Analyzed).
				Int("errors", c.Errors).
				Int("new_or_updated_saved", c.NewOrUpdatedSaved).
				Msg("location reconciled")
		}
		if err != nil {
			log.Error().Err(err).Msg("reconciliation failed")
			return err
		}
		log.Info().Dur("took", time.Since(start)).Msg("reconciliation completed")
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish-approved",
	Short: "Publish stored drafts of AutoApproved reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.BusinessID == "" {
			return domain.ErrMissingBusinessID
		}
		if len(cfg.LocationIDs) == 0 {
			return domain.ErrMissingLocationID
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		client, err := platform.New(cfg.PlatformBase, cfg.PlatformKey, cfg.PlatformRPS)
		if err != nil {
			return err
		}
		repo := mysqlrepo.New(db)
		cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		svc := app.NewPublicationService(repo, client, audit.New(repo), cache, policy, cfg.BusinessID, cfg.PublishWorkers)

		var errs []error
		for _, loc := range cfg.LocationIDs {
			sum, err := svc.PublishAutoApproved(cmd.Context(), loc)
			if err != nil {
				log.Warn().Err(err).Str("location_id", loc).Msg("publish auto-approved failed")
				errs = append(errs, err)
				continue
			}
			log.Info().
				Str("location_id", loc).
				Int("published", sum.Published).
				Int("blocked", sum.Blocked).
				Int("failed", sum.Failed).
				Msg("auto-approved replies published")
		}
		return errors.Join(errs...)
	},
}

type checkOutput struct {
	Blocked       bool               `json:"blocked"`
	SanitizedText string             `json:"sanitized_text"`
	Violations    []domain.Violation `json:"violations"`
	QualityOK     *bool              `json:"quality_ok,omitempty"`
	Issues        []string           `json:"issues,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Run the compliance guard (and reply quality gate) on text from args or stdin",
	Args:  cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// no config or logger needed beyond the policy
		var err error
		if policyPath == "" {
			policyPath = os.Getenv("POLICY_FILE")
		}
		policy, err = shared.LoadPolicy(policyPath)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) == 1 {
			text = args[0]
		} else {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(b)
		}
		target, _ := cmd.Flags().GetString("target")
		review, _ := cmd.Flags().GetString("review")
		author, _ := cmd.Flags().GetString("author")

		t := domain.Target(target)
		if t != domain.TargetReviewReply && t != domain.TargetMarketingPost {
			return fmt.Errorf("unknown target %q", target)
		}
		text = strings.TrimSpace(text)

		g := compliance.Check(compliance.Input{Target: t, Text: text, ReviewText: review}, policy.Compliance())
		out := checkOutput{Blocked: g.Blocked, SanitizedText: g.SanitizedText, Violations: g.Violations}
		if t == domain.TargetReviewReply {
			q := quality.Check(text, policy.Contract(author, review))
			out.QualityOK, out.Issues = &q.OK, q.Issues
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		if out.Blocked {
			return &domain.BlockedError{Target: t, Codes: g.BlockingCodes()}
		}
		return nil
	},
}

func openDB() (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	log.Info().Msg("db ping ok")
	return db, nil
}
