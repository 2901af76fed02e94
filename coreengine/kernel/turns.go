package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeeves-cluster-organization/selene/commbus"
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
)

// ErrIdempotencyKeyReused is returned when the store already holds the
// proposal's idempotency key for a different work order or sequence.
var ErrIdempotencyKeyReused = errors.New("idempotency key reused for a different event")

// maxRetryAfterMS caps the retry hint handed to the quota engine.
const maxRetryAfterMS = 24 * 60 * 60 * 1000

// =============================================================================
// Stateless domains
// =============================================================================

// PlanSearch runs one search-plan turn.
func (k *Kernel) PlanSearch(ctx context.Context, in searchplan.TurnInput) (searchplan.Outcome, error) {
	return execute(ctx, k, searchplan.Domain, in, func(context.Context) (searchplan.Outcome, error) {
		return k.searchPlan.RunTurn(in)
	})
}

// ScheduleRetry runs one retry turn.
func (k *Kernel) ScheduleRetry(ctx context.Context, in retry.TurnInput) (retry.Outcome, error) {
	return execute(ctx, k, retry.Domain, in, func(context.Context) (retry.Outcome, error) {
		return k.retry.RunTurn(in)
	})
}

// PlanCost runs one cost-budget turn.
func (k *Kernel) PlanCost(ctx context.Context, in costbudget.TurnInput) (costbudget.Outcome, error) {
	return execute(ctx, k, costbudget.Domain, in, func(context.Context) (costbudget.Outcome, error) {
		return k.costBudget.RunTurn(in)
	})
}

// Summarize runs one summarization turn.
func (k *Kernel) Summarize(ctx context.Context, in summarize.TurnInput) (summarize.Outcome, error) {
	return execute(ctx, k, summarize.Domain, in, func(context.Context) (summarize.Outcome, error) {
		return k.summarize.RunTurn(in)
	})
}

// ResolveTenant runs one tenant-resolution turn.
func (k *Kernel) ResolveTenant(ctx context.Context, in tenant.TurnInput) (tenant.Outcome, error) {
	return execute(ctx, k, tenant.Domain, in, func(context.Context) (tenant.Outcome, error) {
		return k.tenant.RunTurn(in)
	})
}

// Clarify runs one clarification turn.
func (k *Kernel) Clarify(ctx context.Context, in clarify.TurnInput) (clarify.Outcome, error) {
	return execute(ctx, k, clarify.Domain, in, func(context.Context) (clarify.Outcome, error) {
		return k.clarify.RunTurn(in)
	})
}

// ApplyLexicon runs one lexicon turn.
func (k *Kernel) ApplyLexicon(ctx context.Context, in lexicon.TurnInput) (lexicon.Outcome, error) {
	return execute(ctx, k, lexicon.Domain, in, func(context.Context) (lexicon.Outcome, error) {
		return k.lexicon.RunTurn(in)
	})
}

// GrantExport runs one export-consent turn.
func (k *Kernel) GrantExport(ctx context.Context, in export.TurnInput) (export.Outcome, error) {
	return execute(ctx, k, export.Domain, in, func(context.Context) (export.Outcome, error) {
		return k.export.RunTurn(in)
	})
}

// ReviewBlueprint runs one governance turn.
func (k *Kernel) ReviewBlueprint(ctx context.Context, in governance.TurnInput) (governance.Outcome, error) {
	return execute(ctx, k, governance.Domain, in, func(context.Context) (governance.Outcome, error) {
		return k.governance.RunTurn(in)
	})
}

// =============================================================================
// Quota
// =============================================================================

// DecideQuota runs one quota turn. When a well-formed input names a tenant,
// the tenant's rate windows are checked and counted first; an exceeded
// window raises Signals.RateLimitExceeded and the retry hint before the
// engine sees the input. Malformed input is rejected without being counted.
func (k *Kernel) DecideQuota(ctx context.Context, in quota.TurnInput) (quota.Outcome, error) {
	return execute(ctx, k, quota.Domain, in, func(context.Context) (quota.Outcome, error) {
		if err := contract.Check("turn_input", in); err != nil {
			return quota.Outcome{}, err
		}
		if in.Usage.TenantID != "" && k.quota.Config().Enabled && in.Usage.Validate() == nil {
			in.Signals = k.applyRateLimit(in.Usage.TenantID, in.Signals)
		}
		return k.quota.RunTurn(in)
	})
}

func (k *Kernel) applyRateLimit(tenantID string, s quota.Signals) quota.Signals {
	res := k.rateLimiter.Check(tenantID, true)
	if !res.Exceeded() {
		return s
	}
	observability.RecordRateLimited(res.Window)
	k.logger.Info("tenant_rate_limited",
		"tenant_id", tenantID,
		"window", res.Window,
		"current", res.Current,
		"limit", res.Limit,
		"retry_after_ms", res.RetryAfterMS,
	)
	s.RateLimitExceeded = true
	s.RetryAfterMS = min(max(s.RetryAfterMS, res.RetryAfterMS), maxRetryAfterMS)
	return s
}

// =============================================================================
// Work orders
// =============================================================================

// AppendWorkOrderEvent runs one work-order turn against the stored history.
//
// Rows already committed for the turn's correlation and work order replace
// the caller's Prior list; with no stored rows the caller's list is used.
// A forwarded, non-duplicate append is committed before the turn returns.
// WorkOrderEventCommitted is published after the turn lock is released.
func (k *Kernel) AppendWorkOrderEvent(ctx context.Context, in workorder.TurnInput) (workorder.Outcome, error) {
	var committed *commbus.WorkOrderEventCommitted

	out, err := execute(ctx, k, workorder.Domain, in, func(ctx context.Context) (workorder.Outcome, error) {
		if in.History != nil {
			h, err := k.loadHistory(ctx, string(in.CorrelationID), *in.History)
			if err != nil {
				return workorder.Outcome{}, err
			}
			in.History = &h
		}

		out, err := k.workOrder.RunTurn(in)
		if err != nil || !out.Forwarded() {
			return out, err
		}

		a := out.Bundle.Build.Append
		committed = &commbus.WorkOrderEventCommitted{
			CorrelationID:  string(in.CorrelationID),
			WorkOrderID:    a.WorkOrderID,
			Sequence:       a.Sequence,
			Kind:           string(a.Kind),
			IdempotencyKey: a.IdempotencyKey,
			Duplicate:      a.Duplicate,
		}
		if a.Duplicate {
			observability.RecordCommit(k.storeBackend, "duplicate")
			return out, nil
		}

		res, err := k.store.Commit(ctx, storage.Row{
			CorrelationID:  string(in.CorrelationID),
			WorkOrderID:    a.WorkOrderID,
			Sequence:       a.Sequence,
			Kind:           string(a.Kind),
			IdempotencyKey: a.IdempotencyKey,
			Actor:          a.Actor,
		})
		if err == nil && res.Duplicate && (res.Row.WorkOrderID != a.WorkOrderID || res.Row.Sequence != a.Sequence) {
			err = storage.NewCommitError(a.IdempotencyKey, ErrIdempotencyKeyReused)
		}
		if err != nil {
			committed = nil
			observability.RecordCommit(k.storeBackend, "error")
			return workorder.Outcome{}, fmt.Errorf("append work order event: %w", err)
		}
		if res.Duplicate {
			committed.Duplicate = true
			observability.RecordCommit(k.storeBackend, "duplicate")
		} else {
			observability.RecordCommit(k.storeBackend, "committed")
		}
		return out, nil
	})

	if err == nil && committed != nil {
		if perr := k.bus.Publish(ctx, committed); perr != nil {
			k.logger.Warn("work_order_event_publish_failed",
				"work_order_id", committed.WorkOrderID,
				"error", perr,
			)
		}
	}
	return out, err
}

// loadHistory replaces h.Prior with the stored rows of its work order, if
// there are any.
func (k *Kernel) loadHistory(ctx context.Context, correlationID string, h workorder.History) (workorder.History, error) {
	rows, err := k.store.QueryByCorrelation(ctx, correlationID)
	if err != nil {
		return h, fmt.Errorf("load work order history: %w", err)
	}
	var prior []workorder.PriorEvent
	for _, r := range rows {
		if r.WorkOrderID != h.WorkOrderID {
			continue
		}
		prior = append(prior, workorder.PriorEvent{
			Sequence:       r.Sequence,
			Kind:           workorder.Kind(r.Kind),
			IdempotencyKey: r.IdempotencyKey,
		})
	}
	if len(prior) > 0 {
		h.Prior = prior
	}
	return h, nil
}
