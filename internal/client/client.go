package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kitbuilder587/genclient/internal/credential"
	"github.com/kitbuilder587/genclient/internal/domain"
	"github.com/kitbuilder587/genclient/internal/metrics"
	"github.com/kitbuilder587/genclient/internal/model"
	"github.com/kitbuilder587/genclient/internal/quota"
	"github.com/kitbuilder587/genclient/internal/transport"
)

// Config holds the retry and wait policy. Zero values take the defaults
// below; negative values fail construction.
type Config struct {
	// MaxAttempts bounds transient-error retries per generate call.
	MaxAttempts int
	// BackoffBase doubles per retry up to BackoffCap, with jitter.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// WaitThreshold is the longest quota wait worth sleeping through
	// inside a call. Anything longer asks for a credential rotation.
	WaitThreshold time.Duration
	// RequestTimeout bounds a single transport call; a hang becomes a
	// retryable failure instead of blocking forever.
	RequestTimeout time.Duration
	// SmoothRPS, when positive, spaces outgoing requests so bursts do
	// not slam into the per-minute cap. Off by default.
	SmoothRPS float64

	// BatchConcurrency bounds parallel calls inside GenerateBatch.
	BatchConcurrency int
}

const (
	defaultMaxAttempts      = 3
	defaultBackoffBase      = 2 * time.Second
	defaultBackoffCap       = 30 * time.Second
	defaultWaitThreshold    = time.Minute
	defaultRequestTimeout   = 60 * time.Second
	defaultBatchConcurrency = 3
)

func (c *Config) withDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.WaitThreshold == 0 {
		c.WaitThreshold = defaultWaitThreshold
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.BatchConcurrency == 0 {
		c.BatchConcurrency = defaultBatchConcurrency
	}
}

func (c *Config) validate() error {
	if c.MaxAttempts < 0 {
		return domain.ErrInvalidAttempts
	}
	if c.BackoffBase < 0 || c.BackoffCap < 0 || c.BackoffCap < c.BackoffBase {
		return domain.ErrInvalidBackoff
	}
	if c.WaitThreshold < 0 {
		return domain.ErrInvalidThreshold
	}
	return nil
}

// Deps wires the client. Transport, Tracker, Models and Credentials are
// required; Logger and Metrics are optional.
type Deps struct {
	Transport   transport.Transport
	Tracker     quota.Tracker
	Models      *model.Selector
	Credentials *credential.Registry
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Client is the resilient façade over one generative API: it counts quota
// locally before every send, classifies remote failures, falls back across
// model candidates, and rotates credentials when waiting out a quota would
// take too long. One instance is safe for concurrent callers.
type Client struct {
	transport   transport.Transport
	tracker     quota.Tracker
	models      *model.Selector
	credentials *credential.Registry
	logger      *zap.Logger
	metrics     *metrics.Metrics
	cfg         Config
	limiter     *rate.Limiter
}

func New(deps Deps, cfg Config) (*Client, error) {
	if deps.Transport == nil {
		return nil, domain.ErrMissingTransport
	}
	if deps.Tracker == nil {
		return nil, domain.ErrMissingTracker
	}
	if deps.Models == nil {
		return nil, domain.ErrNoModels
	}
	if deps.Credentials == nil {
		return nil, domain.ErrNoCredentials
	}

	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	c := &Client{
		transport:   deps.Transport,
		tracker:     deps.Tracker,
		models:      deps.Models,
		credentials: deps.Credentials,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		cfg:         cfg,
	}
	if cfg.SmoothRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SmoothRPS), 1)
	}
	return c, nil
}

// Generate runs one prompt through the full policy. On success the result
// carries the payload and which model produced it; every failure comes
// back as a *domain.FailureReport with the terminal outcome kind and, for
// quota failures, how long until the condition may clear.
func (c *Client) Generate(ctx context.Context, prompt string, opts transport.Options) (*domain.Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.ErrEmptyPrompt
	}

	log := c.logger.With(zap.String("request_id", uuid.NewString()))
	start := time.Now()
	if c.metrics != nil {
		c.metrics.IncRequestsInFlight()
		defer c.metrics.DecRequestsInFlight()
	}

	res, report := c.generate(ctx, log, prompt, opts)

	modelLabel := "none"
	if res != nil {
		modelLabel = res.Model
	} else if cand, err := c.models.Current(); err == nil {
		modelLabel = cand.ID
	}

	if report != nil {
		if c.metrics != nil {
			c.metrics.RecordRequest(modelLabel, string(report.Kind), time.Since(start))
		}
		log.Warn("generate failed",
			zap.String("outcome", string(report.Kind)),
			zap.Duration("wait", report.Wait),
			zap.String("reason", report.Reason),
		)
		return nil, report
	}

	if c.metrics != nil {
		c.metrics.RecordRequest(modelLabel, "success", time.Since(start))
	}
	return res, nil
}

func (c *Client) generate(ctx context.Context, log *zap.Logger, prompt string, opts transport.Options) (*domain.Result, *domain.FailureReport) {
	retries := 0
	attempts := 0
	sleptForQuota := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		cand, err := c.models.Current()
		if err != nil {
			return nil, &domain.FailureReport{Kind: domain.KindExhaustedCandidates, Reason: err.Error()}
		}
		cred, err := c.credentials.Active()
		if err != nil {
			return nil, &domain.FailureReport{Kind: domain.KindCredentialsExhausted, Reason: err.Error()}
		}

		// локальная проверка до похода в сеть
		ok, rerr := c.tracker.Reserve(ctx)
		if rerr != nil {
			// трекер - оптимизация, не источник истины: сервер все равно
			// проверит сам
			log.Warn("quota tracker unavailable, sending anyway", zap.Error(rerr))
			ok = true
		}
		if !ok {
			wait, werr := c.tracker.TimeUntilAvailable(ctx)
			if werr != nil {
				wait = 0
			}
			if c.metrics != nil {
				c.metrics.RecordQuotaRefusal("local")
			}
			return nil, &domain.FailureReport{
				Kind:   domain.KindQuotaExceeded,
				Reason: "local quota window exhausted",
				Wait:   wait,
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, cancelled(err)
			}
		}

		attempts++
		resp, serr := c.send(ctx, transport.Request{
			Model:      cand.ID,
			Credential: cred,
			Prompt:     prompt,
			Options:    opts,
		})

		var cls Classification
		switch {
		case serr != nil:
			if ctx.Err() != nil {
				return nil, cancelled(ctx.Err())
			}
			cls = Classification{Kind: domain.KindRetryable, Reason: serr.Error()}
		case resp.OK():
			log.Info("generate succeeded",
				zap.String("model", cand.ID),
				zap.Int("attempts", attempts),
			)
			return &domain.Result{Payload: resp.Payload, Model: cand.ID, Attempts: attempts}, nil
		default:
			cls = Classify(resp.Status, resp.Message)
		}

		switch cls.Kind {
		case domain.KindRetryable:
			retries++
			if retries >= c.cfg.MaxAttempts {
				return nil, &domain.FailureReport{
					Kind:   domain.KindFatal,
					Reason: fmt.Sprintf("retry budget exhausted after %d attempts: %s", retries, cls.Reason),
				}
			}
			if c.metrics != nil {
				c.metrics.RecordRetry()
			}
			delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffCap, retries)
			log.Warn("transient failure, backing off",
				zap.String("model", cand.ID),
				zap.Int("retry", retries),
				zap.Duration("delay", delay),
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, cancelled(err)
			}

		case domain.KindModelUnavailable:
			log.Warn("model unavailable, falling back",
				zap.String("model", cand.ID),
				zap.String("reason", cls.Reason),
			)
			if err := c.models.Advance(); err != nil {
				return nil, &domain.FailureReport{Kind: domain.KindExhaustedCandidates, Reason: cls.Reason}
			}
			if c.metrics != nil {
				c.metrics.RecordModelSwitch()
			}
			// другой target - слот ретрая не тратим

		case domain.KindQuotaExceeded:
			if report := c.handleQuotaExceeded(ctx, log, cls, &sleptForQuota); report != nil {
				return nil, report
			}

		default:
			return nil, &domain.FailureReport{Kind: domain.KindFatal, Reason: cls.Reason}
		}
	}
}

// handleQuotaExceeded reconciles the tracker with the server verdict, then
// either waits the retry-after out (short waits, once per call), rotates
// to the next credential, or gives up with the wait attached.
func (c *Client) handleQuotaExceeded(ctx context.Context, log *zap.Logger, cls Classification, sleptForQuota *bool) *domain.FailureReport {
	if err := c.tracker.NoteRemoteExhaustion(ctx, cls.Scope, cls.RetryAfter); err != nil {
		log.Warn("quota tracker reconciliation failed", zap.Error(err))
	}

	if cls.HasRetryAfter && cls.RetryAfter <= c.cfg.WaitThreshold && !*sleptForQuota {
		*sleptForQuota = true
		log.Info("remote quota exceeded, waiting it out",
			zap.String("scope", string(cls.Scope)),
			zap.Duration("retry_after", cls.RetryAfter),
		)
		if err := sleepCtx(ctx, cls.RetryAfter); err != nil {
			return cancelled(err)
		}
		return nil
	}

	// ждать слишком долго (или сервер не сказал сколько) - пробуем
	// следующий ключ
	if err := c.credentials.Rotate(); err != nil {
		wait := cls.RetryAfter
		if !cls.HasRetryAfter {
			if w, werr := c.tracker.TimeUntilAvailable(ctx); werr == nil {
				wait = w
			}
		}
		return &domain.FailureReport{Kind: domain.KindQuotaExceeded, Reason: cls.Reason, Wait: wait}
	}

	// свежий ключ - свежая квота
	if err := c.tracker.Reset(ctx); err != nil {
		log.Warn("quota tracker reset failed", zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.RecordCredentialRotation()
	}
	if cred, err := c.credentials.Active(); err == nil {
		log.Info("rotated to next credential", zap.String("credential", cred.Masked()))
	}
	return nil
}

func (c *Client) send(ctx context.Context, req transport.Request) (*transport.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	return c.transport.Send(ctx, req)
}

// GenerateBatch runs several prompts with bounded concurrency and returns
// results in prompt order. The first terminal failure cancels the rest.
func (c *Client) GenerateBatch(ctx context.Context, prompts []string, opts transport.Options) ([]*domain.Result, error) {
	results := make([]*domain.Result, len(prompts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchConcurrency)

	for i, prompt := range prompts {
		g.Go(func() error {
			res, err := c.Generate(gctx, prompt, opts)
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func cancelled(err error) *domain.FailureReport {
	reason := domain.ErrCancelled.Error()
	if err != nil && !errors.Is(err, context.Canceled) {
		reason = err.Error()
	}
	return &domain.FailureReport{Kind: domain.KindCancelled, Reason: reason}
}
