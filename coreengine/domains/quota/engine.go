package quota

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Engine is the quota capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		d, refused := decide(op, r.Envelope, r.Usage, r.Signals, r.Items)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(d))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

// decide is shared by build and validate.
func decide(op capability.Op, env contract.Envelope, usage Usage, signals Signals, items []Item) (Decision, *contract.Refuse) {
	if g := capability.FirstBlocked(
		capability.When(len(items) == 0, ReasonNoItems, "no items to admit"),
		capability.When(usage.UsedUnits > usage.LimitUnits, Namespace.BudgetExceeded(), "usage already exceeds the limit"),
	); g != nil {
		return Decision{}, capability.Refusal(op.Capability, g.Code, g.Message)
	}

	ranked := capability.Rank(items, capability.ByScoreThenKey(
		func(it Item) int64 { return int64(it.Priority) },
		func(it Item) string { return it.ItemID },
	))

	d := Decision{
		Cause: capability.Decide(CauseNone,
			capability.Rule[ThrottleCause]{Applies: signals.PolicyBlocked, Value: CausePolicyBlocked},
			capability.Rule[ThrottleCause]{Applies: signals.BudgetExceeded, Value: CauseBudgetExceeded},
			capability.Rule[ThrottleCause]{Applies: signals.RateLimitExceeded, Value: CauseRateLimitExceeded},
		),
		Admitted: []string{},
		Deferred: []string{},
	}
	if d.Cause == CauseRateLimitExceeded {
		d.RetryAfterMS = signals.RetryAfterMS
	}

	budget := capability.EffectiveBudget(env.MaxCandidates, MaxAdmitted)
	remaining := usage.LimitUnits - usage.UsedUnits
	for _, it := range ranked {
		if d.Cause == CauseNone && len(d.Admitted) < budget && it.Units <= remaining {
			d.Admitted = append(d.Admitted, it.ItemID)
			d.AdmittedUnits += it.Units
			remaining -= it.Units
			continue
		}
		d.Deferred = append(d.Deferred, it.ItemID)
	}

	d.UtilizationBP = capability.BasisPoints(usage.UsedUnits+d.AdmittedUnits, usage.LimitUnits)
	d.NearLimit = d.UtilizationBP >= NearLimitBP
	return d, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	known := capability.Index(r.Items, func(it Item) string { return it.ItemID })
	for i, id := range r.Decision.Admitted {
		if _, ok := known[id]; !ok {
			d.AddIndexed("admitted", i, "unknown_item")
		}
	}

	if expected, ok := capability.Rederive(d, func() (Decision, *contract.Refuse) {
		return decide(op, r.Envelope, r.Usage, r.Signals, r.Items)
	}); ok {
		got := r.Decision
		capability.DiffValue(d, "cause", expected.Cause, got.Cause)
		capability.DiffValue(d, "retry_after", expected.RetryAfterMS, got.RetryAfterMS)
		capability.DiffValue(d, "utilization", expected.UtilizationBP, got.UtilizationBP)
		capability.DiffValue(d, "near_limit", expected.NearLimit, got.NearLimit)
		capability.DiffStrings(d, "admitted", expected.Admitted, got.Admitted)
		capability.DiffStrings(d, "deferred", expected.Deferred, got.Deferred)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
