package costbudget

import (
	"cmp"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Engine is the cost budget capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		p, refused := plan(op, r.Envelope, r.Budget, r.LineItems)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(p))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

// fundingOrder puts required items first, then priority desc, id asc.
func fundingOrder(a, b LineItem) int {
	if a.Required != b.Required {
		if a.Required {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.ItemID, b.ItemID)
}

func plan(op capability.Op, env contract.Envelope, budget Budget, items []LineItem) (Plan, *contract.Refuse) {
	if g := capability.FirstBlocked(
		capability.When(len(items) == 0, ReasonNoItems, "no line items to fund"),
		capability.When(budget.SpentMicros >= budget.BudgetMicros, Namespace.BudgetExceeded(), "budget is already spent"),
	); g != nil {
		return Plan{}, capability.Refusal(op.Capability, g.Code, g.Message)
	}

	limit := capability.EffectiveBudget(env.MaxCandidates, MaxFunded)
	p := Plan{Funded: []string{}, Unfunded: []string{}, RemainingMicros: budget.BudgetMicros - budget.SpentMicros}
	requiredUnfunded := false
	for _, it := range capability.Rank(items, fundingOrder) {
		if len(p.Funded) < limit && it.EstimatedMicros <= p.RemainingMicros {
			p.Funded = append(p.Funded, it.ItemID)
			p.FundedMicros += it.EstimatedMicros
			p.RemainingMicros -= it.EstimatedMicros
			continue
		}
		p.Unfunded = append(p.Unfunded, it.ItemID)
		requiredUnfunded = requiredUnfunded || it.Required
	}

	if requiredUnfunded {
		return Plan{}, capability.Refusal(op.Capability, ReasonRequiredItemUnfunded, "a required line item cannot be funded")
	}
	return p, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	known := capability.Index(r.LineItems, func(it LineItem) string { return it.ItemID })
	for i, id := range r.Plan.Funded {
		if _, ok := known[id]; !ok {
			d.AddIndexed("funded", i, "unknown_item")
		}
	}

	if expected, ok := capability.Rederive(d, func() (Plan, *contract.Refuse) {
		return plan(op, r.Envelope, r.Budget, r.LineItems)
	}); ok {
		capability.DiffValue(d, "funded_total", expected.FundedMicros, r.Plan.FundedMicros)
		capability.DiffValue(d, "remaining", expected.RemainingMicros, r.Plan.RemainingMicros)
		capability.DiffStrings(d, "funded", expected.Funded, r.Plan.Funded)
		capability.DiffStrings(d, "unfunded", expected.Unfunded, r.Plan.Unfunded)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
