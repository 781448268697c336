package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kitbuilder587/genclient/internal/client"
	"github.com/kitbuilder587/genclient/internal/config"
	"github.com/kitbuilder587/genclient/internal/credential"
	"github.com/kitbuilder587/genclient/internal/domain"
	"github.com/kitbuilder587/genclient/internal/metrics"
	"github.com/kitbuilder587/genclient/internal/model"
	"github.com/kitbuilder587/genclient/internal/quota"
	quotapg "github.com/kitbuilder587/genclient/internal/quota/postgres"
	quotaredis "github.com/kitbuilder587/genclient/internal/quota/redis"
	"github.com/kitbuilder587/genclient/internal/transport"
	"github.com/kitbuilder587/genclient/internal/transport/gemini"
)

// quotacheck sends one tiny prompt through the full client and reports
// whether the configured keys still have quota. Exit codes: 0 the key
// works, 1 misconfiguration, 2 the call failed.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("quota check failed", zap.Error(err))
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tracker, cleanup, err := buildTracker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build quota tracker: %w", err)
	}
	defer cleanup()

	creds := make([]credential.Credential, 0, len(cfg.Credentials.Keys))
	for i, key := range cfg.Credentials.Keys {
		creds = append(creds, credential.New(fmt.Sprintf("key%d", i+1), key))
	}
	registry, err := credential.NewRegistry(creds)
	if err != nil {
		return err
	}

	candidates := make([]domain.ModelCandidate, 0, len(cfg.Models.Candidates))
	for i, id := range cfg.Models.Candidates {
		tier := domain.TierFast
		if i > 0 {
			tier = domain.TierCapable
		}
		candidates = append(candidates, domain.ModelCandidate{ID: id, Tier: tier})
	}
	selector, err := model.NewSelector(candidates)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New(nil)
		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	c, err := client.New(client.Deps{
		Transport:   gemini.New(logger),
		Tracker:     tracker,
		Models:      selector,
		Credentials: registry,
		Logger:      logger,
		Metrics:     m,
	}, client.Config{
		MaxAttempts:      cfg.Policy.MaxAttempts,
		BackoffBase:      cfg.Policy.BackoffBase,
		BackoffCap:       cfg.Policy.BackoffCap,
		WaitThreshold:    cfg.Policy.WaitThreshold,
		RequestTimeout:   cfg.Policy.RequestTimeout,
		SmoothRPS:        cfg.Policy.SmoothRPS,
		BatchConcurrency: cfg.Policy.BatchConcurrency,
	})
	if err != nil {
		return err
	}

	logger.Info("checking quota",
		zap.Int("credentials", registry.Remaining()),
		zap.Int("models", selector.Remaining()),
	)

	res, err := c.Generate(ctx, "Reply with the single word OK.", transport.Options{MaxTokens: 16})
	if err != nil {
		var report *domain.FailureReport
		if errors.As(err, &report) {
			fmt.Printf("FAIL   outcome=%s\n", report.Kind)
			if report.Wait > 0 {
				fmt.Printf("       retry after %s\n", report.Wait.Round(time.Second))
			}
			fmt.Printf("       %s\n", report.Reason)
			return err
		}
		return err
	}

	fmt.Printf("OK     model=%s attempts=%d\n", res.Model, res.Attempts)
	if mem, ok := tracker.(*quota.Memory); ok {
		u := mem.Snapshot()
		fmt.Printf("quota  minute %d/%d (resets in %s), day %d/%d (resets in %s)\n",
			u.ShortUsed, u.ShortLimit, u.ShortReset.Round(time.Second),
			u.LongUsed, u.LongLimit, u.LongReset.Round(time.Second))
	}
	return nil
}

func buildTracker(ctx context.Context, cfg *config.Config) (quota.Tracker, func(), error) {
	qcfg := quota.Config{
		ShortLimit: cfg.Quota.PerMinute, ShortWindow: time.Minute,
		LongLimit: cfg.Quota.PerDay, LongWindow: 24 * time.Hour,
	}

	switch cfg.Store.Type {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Store.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		t, err := quotaredis.New(rdb, qcfg, cfg.Store.RedisPrefix)
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return t, func() { rdb.Close() }, nil

	case "postgres":
		t, err := quotapg.New(ctx, cfg.Store.DatabaseURL, qcfg, "quotacheck")
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil

	default:
		t, err := quota.NewMemory(qcfg)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil
	}
}
