// Package orchestrate drives extraction over a batch of text units:
// worker fan-out, cache-first lookups, client-side rate limiting, and
// the cheap-to-expensive model escalation policy.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/kerimala/MKUEMRLP/internal/cache"
	"github.com/kerimala/MKUEMRLP/internal/extract"
	"github.com/kerimala/MKUEMRLP/internal/model"
	"github.com/kerimala/MKUEMRLP/internal/worker"
)

// escalationConfidence is the candidate confidence below which adaptive
// mode hands the unit to the expensive model.
const escalationConfidence = 0.65

// Mode selects which model(s) process a unit.
type Mode string

const (
	// ModeFast uses the cheap model only.
	ModeFast Mode = "fast"
	// ModeThorough uses the expensive model only.
	ModeThorough Mode = "thorough"
	// ModeAdaptive starts cheap and escalates on weak candidates.
	ModeAdaptive Mode = "adaptive"
)

// ParseMode validates a mode string from flags or config.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFast, ModeThorough, ModeAdaptive:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (use fast, thorough or adaptive)", s)
	}
}

// Extractor is the extraction client surface the orchestrator needs.
// *extract.Client satisfies it.
type Extractor interface {
	Extract(ctx context.Context, unit model.TextUnit, instructions, modelName string) (*model.UnitResult, []byte, error)
}

// Stats counts what a batch actually did. All fields are totals across
// the batch.
type Stats struct {
	Units       int64 `json:"units"`
	CacheHits   int64 `json:"cache_hits"`
	LiveCalls   int64 `json:"live_calls"`
	Escalations int64 `json:"escalations"`
	Failures    int64 `json:"failures"`
}

// Options tunes one orchestrator run.
type Options struct {
	Mode         Mode
	Instructions string

	// Force bypasses cache reads (writes still happen), reprocessing
	// every unit.
	Force   bool
	Verbose bool
}

// Orchestrator processes batches of units. Safe for a single batch at a
// time; build a fresh one per run.
type Orchestrator struct {
	client  Extractor
	store   cache.Store
	limiter *rate.Limiter
	pool    *worker.Pool
	service model.ServiceConfig
	opts    Options

	cacheHits   atomic.Int64
	liveCalls   atomic.Int64
	escalations atomic.Int64
}

// New builds an orchestrator. store may be nil to disable caching.
func New(client Extractor, store cache.Store, cfg *model.Config, opts Options) *Orchestrator {
	var limiter *rate.Limiter
	if cfg.Concurrency.RequestsPerSecond > 0 {
		burst := cfg.Concurrency.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Concurrency.RequestsPerSecond), burst)
	}
	return &Orchestrator{
		client:  client,
		store:   store,
		limiter: limiter,
		pool:    worker.NewPool(cfg.Concurrency.Workers),
		service: cfg.Service,
		opts:    opts,
	}
}

// Process runs the whole batch and returns one outcome per unit, in
// input order. Unit failures are recorded in the outcomes and never
// abort the batch.
func (o *Orchestrator) Process(ctx context.Context, units []model.TextUnit) ([]worker.Outcome, Stats) {
	if o.opts.Verbose {
		o.pool.OnDone = func(done, total int, outcome worker.Outcome) {
			status := "ok"
			if outcome.Err != nil {
				status = "FAILED"
			}
			fmt.Fprintf(os.Stderr, "[%d/%d] %s__%s %s\n",
				done, total, outcome.Unit.DocID, outcome.Unit.UnitID, status)
		}
	}

	outcomes := o.pool.Run(ctx, units, o.processUnit)

	stats := Stats{
		Units:       int64(len(units)),
		CacheHits:   o.cacheHits.Load(),
		LiveCalls:   o.liveCalls.Load(),
		Escalations: o.escalations.Load(),
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			stats.Failures++
		}
	}
	return outcomes, stats
}

func (o *Orchestrator) processUnit(ctx context.Context, unit model.TextUnit) (*model.UnitResult, error) {
	switch o.opts.Mode {
	case ModeThorough:
		return o.extractWith(ctx, unit, o.service.ReasonerModel)
	case ModeAdaptive:
		result, err := o.extractWith(ctx, unit, o.service.ChatModel)
		if err != nil {
			return nil, err
		}
		if !needsEscalation(result) {
			return result, nil
		}
		o.escalations.Add(1)
		if o.opts.Verbose {
			fmt.Fprintf(os.Stderr, "Escalating %s__%s to %s\n",
				unit.DocID, unit.UnitID, o.service.ReasonerModel)
		}
		escalated, err := o.extractWith(ctx, unit, o.service.ReasonerModel)
		if err != nil {
			// The cheap result is still usable; keep it rather than
			// failing the unit.
			fmt.Fprintf(os.Stderr, "Warning: escalation failed for %s__%s, keeping %s result: %v\n",
				unit.DocID, unit.UnitID, o.service.ChatModel, err)
			return result, nil
		}
		return escalated, nil
	default:
		return o.extractWith(ctx, unit, o.service.ChatModel)
	}
}

// extractWith resolves one unit against one model, cache first.
func (o *Orchestrator) extractWith(ctx context.Context, unit model.TextUnit, modelName string) (*model.UnitResult, error) {
	if o.store != nil && !o.opts.Force {
		if raw, found := o.store.Get(unit.DocID, unit.Text, modelName); found {
			result, err := extract.ParseContent(unit, raw)
			if err == nil {
				o.cacheHits.Add(1)
				return result, nil
			}
			// Unreadable entry; fall through to a live call that will
			// overwrite it.
			fmt.Fprintf(os.Stderr, "Warning: discarding corrupt cache entry for %s__%s (%s): %v\n",
				unit.DocID, unit.UnitID, modelName, err)
		}
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	o.liveCalls.Add(1)
	result, raw, err := o.client.Extract(ctx, unit, o.opts.Instructions, modelName)
	if err != nil {
		return nil, err
	}

	if o.store != nil {
		if err := o.store.Put(unit.DocID, unit.Text, modelName, raw); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache write failed for %s__%s: %v\n",
				unit.DocID, unit.UnitID, err)
		}
	}
	return result, nil
}

// needsEscalation reports whether any candidate in the cheap result is
// marked unsure or weakly supported.
func needsEscalation(result *model.UnitResult) bool {
	for _, candidates := range result.Candidates {
		for _, cand := range candidates {
			if cand.Decision == model.DecisionUnsure || cand.Confidence < escalationConfidence {
				return true
			}
		}
	}
	return false
}
