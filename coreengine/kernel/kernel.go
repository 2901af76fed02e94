// Package kernel is the service layer around the capability wirings.
//
// The Kernel composes:
//   - one long-lived wiring per capability domain
//   - the tenant RateLimiter that feeds quota turns
//   - the work-order EventStore
//   - the CommBus that receives TurnCompleted events
//
// Every turn runs under a single mutex with panic recovery, inside a trace
// span, and is counted, logged and published once it completes.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/selene/commbus"
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/config"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/clarify"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/costbudget"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/export"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/governance"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/lexicon"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/quota"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/retry"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/searchplan"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/summarize"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/tenant"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/workorder"
	"github.com/jeeves-cluster-organization/selene/coreengine/observability"
	"github.com/jeeves-cluster-organization/selene/coreengine/storage"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

// Logger is the structured key-value logger used by the kernel.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// outcomeError labels turns that ended in an error rather than an outcome.
const outcomeError = "error"

// =============================================================================
// Options
// =============================================================================

// Engines are the capability engines the wirings drive. Nil fields get the
// domain's production engine.
type Engines struct {
	SearchPlan capability.Engine[searchplan.Request]
	Quota      capability.Engine[quota.Request]
	Retry      capability.Engine[retry.Request]
	CostBudget capability.Engine[costbudget.Request]
	Summarize  capability.Engine[summarize.Request]
	Tenant     capability.Engine[tenant.Request]
	Clarify    capability.Engine[clarify.Request]
	Lexicon    capability.Engine[lexicon.Request]
	WorkOrder  capability.Engine[workorder.Request]
	Export     capability.Engine[export.Request]
	Governance capability.Engine[governance.Request]
}

func (e *Engines) fill() {
	if e.SearchPlan == nil {
		e.SearchPlan = searchplan.Engine{}
	}
	if e.Quota == nil {
		e.Quota = quota.Engine{}
	}
	if e.Retry == nil {
		e.Retry = retry.Engine{}
	}
	if e.CostBudget == nil {
		e.CostBudget = costbudget.Engine{}
	}
	if e.Summarize == nil {
		e.Summarize = summarize.Engine{}
	}
	if e.Tenant == nil {
		e.Tenant = tenant.Engine{}
	}
	if e.Clarify == nil {
		e.Clarify = clarify.Engine{}
	}
	if e.Lexicon == nil {
		e.Lexicon = lexicon.Engine{}
	}
	if e.WorkOrder == nil {
		e.WorkOrder = workorder.Engine{}
	}
	if e.Export == nil {
		e.Export = export.Engine{}
	}
	if e.Governance == nil {
		e.Governance = governance.Engine{}
	}
}

type options struct {
	engines      Engines
	bus          commbus.CommBus
	now          func() time.Time
	storeBackend string
}

// Option customizes a Kernel.
type Option func(*options)

// WithEngines replaces the default engines; nil fields keep the default.
func WithEngines(e Engines) Option {
	return func(o *options) { o.engines = e }
}

// WithBus sets the bus turn events are published on.
func WithBus(bus commbus.CommBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithClock sets the clock used for durations and rate windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStoreBackend names the store backend in metrics (default "memory").
func WithStoreBackend(name string) Option {
	return func(o *options) { o.storeBackend = name }
}

// =============================================================================
// Kernel
// =============================================================================

// Kernel owns the wirings and the little mutable state around them.
//
// Usage:
//
//	k, err := kernel.New(logger, cfg, store)
//	out, err := k.PlanSearch(ctx, searchplan.TurnInput{...})
//	res, err := k.Dispatch(ctx, "quota", payload)
type Kernel struct {
	config       *config.Config
	logger       Logger
	store        storage.EventStore
	storeBackend string
	bus          commbus.CommBus
	rateLimiter  *RateLimiter
	now          func() time.Time

	searchPlan *searchplan.Wiring
	quota      *quota.Wiring
	retry      *retry.Wiring
	costBudget *costbudget.Wiring
	summarize  *summarize.Wiring
	tenant     *tenant.Wiring
	clarify    *clarify.Wiring
	lexicon    *lexicon.Wiring
	workOrder  *workorder.Wiring
	export     *export.Wiring
	governance *governance.Wiring

	stats   map[string]map[string]int
	statsMu sync.Mutex

	// mu serializes turns and maintenance cycles.
	mu        sync.Mutex
	startedAt time.Time
}

// New builds every wiring from cfg. A nil cfg uses config.DefaultConfig, a
// nil store an in-memory one and a nil logger discards.
func New(logger Logger, cfg *config.Config, store storage.EventStore, opts ...Option) (*Kernel, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := options{storeBackend: "memory"}
	for _, opt := range opts {
		opt(&o)
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.bus == nil {
		o.bus = commbus.NewInMemoryCommBus(logger, 5*time.Second)
	}
	o.engines.fill()

	k := &Kernel{
		config:       cfg,
		logger:       logger,
		store:        store,
		storeBackend: o.storeBackend,
		bus:          o.bus,
		rateLimiter:  NewRateLimiter(cfg.RateLimit, o.now),
		now:          o.now,
		stats:        make(map[string]map[string]int),
		startedAt:    o.now().UTC(),
	}

	d := cfg.Domains
	e := o.engines
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	k.searchPlan, err = searchplan.NewWiring(d.SearchPlan, e.SearchPlan)
	collect(err)
	k.quota, err = quota.NewWiring(d.Quota, e.Quota)
	collect(err)
	k.retry, err = retry.NewWiring(d.Retry, e.Retry)
	collect(err)
	k.costBudget, err = costbudget.NewWiring(d.CostBudget, e.CostBudget)
	collect(err)
	k.summarize, err = summarize.NewWiring(d.Summarize, e.Summarize)
	collect(err)
	k.tenant, err = tenant.NewWiring(d.Tenant, e.Tenant)
	collect(err)
	k.clarify, err = clarify.NewWiring(d.Clarify, e.Clarify)
	collect(err)
	k.lexicon, err = lexicon.NewWiring(d.Lexicon, e.Lexicon)
	collect(err)
	k.workOrder, err = workorder.NewWiring(d.WorkOrder, e.WorkOrder)
	collect(err)
	k.export, err = export.NewWiring(d.Export, e.Export)
	collect(err)
	k.governance, err = governance.NewWiring(d.Governance, e.Governance)
	collect(err)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	if err := k.registerBusHandlers(); err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	logger.Info("kernel_initialized",
		"store_backend", k.storeBackend,
		"rate_per_minute", cfg.RateLimit.RequestsPerMinute,
		"domains", len(Domains()),
	)
	return k, nil
}

// Domains lists the dispatchable domain names.
func Domains() []string {
	return []string{
		searchplan.Domain, quota.Domain, retry.Domain, costbudget.Domain,
		summarize.Domain, tenant.Domain, clarify.Domain, lexicon.Domain,
		workorder.Domain, export.Domain, governance.Domain,
	}
}

// Bus returns the bus turn events are published on.
func (k *Kernel) Bus() commbus.CommBus {
	return k.bus
}

// RateLimiter returns the tenant rate limiter.
func (k *Kernel) RateLimiter() *RateLimiter {
	return k.rateLimiter
}

// Config returns the configuration the kernel was built from.
func (k *Kernel) Config() *config.Config {
	return k.config
}

// Uptime returns the time since New.
func (k *Kernel) Uptime() time.Duration {
	return k.now().UTC().Sub(k.startedAt)
}

// Close closes the event store.
func (k *Kernel) Close() error {
	return k.store.Close()
}

// =============================================================================
// Turn execution
// =============================================================================

// execute runs one turn: span, lock, panic recovery, then bookkeeping and
// the TurnCompleted event once the lock is released.
func execute[B contract.Response, V wiring.Verdict](
	ctx context.Context,
	k *Kernel,
	domain string,
	in wiring.Turn,
	run func(ctx context.Context) (wiring.Outcome[B, V], error),
) (wiring.Outcome[B, V], error) {
	corr, turn := in.Identity()
	ctx, span := observability.StartTurnSpan(ctx, domain, string(corr), uint32(turn))
	start := k.now()

	out, err := func() (wiring.Outcome[B, V], error) {
		k.mu.Lock()
		defer k.mu.Unlock()
		return SafeExecuteWithResult(k.logger, "turn", func() (wiring.Outcome[B, V], error) {
			return run(ctx)
		}, "domain", domain, "correlation_id", string(corr), "turn_id", uint32(turn))
	}()

	k.completeTurn(ctx, turnRecord{
		domain:        domain,
		correlationID: string(corr),
		turnID:        uint32(turn),
		kind:          out.Kind,
		refuse:        out.Refuse,
		err:           err,
		duration:      k.now().Sub(start),
	}, span)
	return out, err
}

type turnRecord struct {
	domain        string
	correlationID string
	turnID        uint32
	kind          wiring.OutcomeKind
	refuse        *contract.Refuse
	err           error
	duration      time.Duration
}

func (r turnRecord) outcome() string {
	if r.err != nil {
		return outcomeError
	}
	return string(r.kind)
}

func (k *Kernel) completeTurn(ctx context.Context, r turnRecord, span oteltrace.Span) {
	outcome := r.outcome()
	var reasonClass, reasonCode string
	if r.refuse != nil && r.err == nil {
		reasonClass = string(r.refuse.ReasonCode.Class())
		reasonCode = r.refuse.ReasonCode.String()
	}

	observability.RecordTurn(r.domain, outcome, reasonClass, float64(r.duration.Milliseconds()))
	observability.EndTurnSpan(span, outcome, reasonCode, r.err)

	k.statsMu.Lock()
	byOutcome, ok := k.stats[r.domain]
	if !ok {
		byOutcome = make(map[string]int)
		k.stats[r.domain] = byOutcome
	}
	byOutcome[outcome]++
	k.statsMu.Unlock()

	if r.err != nil {
		k.logger.Warn("turn_failed",
			"domain", r.domain,
			"correlation_id", r.correlationID,
			"turn_id", r.turnID,
			"error", r.err,
		)
		return
	}
	k.logger.Info("turn_completed",
		"domain", r.domain,
		"correlation_id", r.correlationID,
		"turn_id", r.turnID,
		"outcome", outcome,
		"reason_code", reasonCode,
		"duration_ms", r.duration.Milliseconds(),
	)

	event := &commbus.TurnCompleted{
		Domain:        r.domain,
		CorrelationID: r.correlationID,
		TurnID:        r.turnID,
		Outcome:       outcome,
		ReasonCode:    reasonCode,
		Duration:      r.duration,
	}
	if err := k.bus.Publish(ctx, event); err != nil {
		k.logger.Warn("turn_event_publish_failed", "domain", r.domain, "error", err)
	}
}

// TurnStats returns a copy of the per-domain outcome counters. An empty
// domain returns all of them.
func (k *Kernel) TurnStats(domain string) map[string]map[string]int {
	k.statsMu.Lock()
	defer k.statsMu.Unlock()

	out := make(map[string]map[string]int)
	for d, byOutcome := range k.stats {
		if domain != "" && d != domain {
			continue
		}
		cp := make(map[string]int, len(byOutcome))
		for o, n := range byOutcome {
			cp[o] = n
		}
		out[d] = cp
	}
	return out
}

// =============================================================================
// Bus handlers
// =============================================================================

func (k *Kernel) registerBusHandlers() error {
	if err := k.bus.RegisterHandler("GetTurnStats", func(ctx context.Context, msg commbus.Message) (any, error) {
		q, ok := msg.(*commbus.GetTurnStats)
		if !ok {
			return nil, fmt.Errorf("unexpected message %T", msg)
		}
		return &commbus.TurnStatsResponse{Turns: k.TurnStats(q.Domain)}, nil
	}); err != nil {
		return err
	}
	return k.bus.RegisterHandler("ResetTenantWindow", func(ctx context.Context, msg commbus.Message) (any, error) {
		cmd, ok := msg.(*commbus.ResetTenantWindow)
		if !ok {
			return nil, fmt.Errorf("unexpected message %T", msg)
		}
		n := k.rateLimiter.ResetTenant(cmd.TenantID)
		k.logger.Info("tenant_window_reset", "tenant_id", cmd.TenantID, "windows", n)
		return n, nil
	})
}
