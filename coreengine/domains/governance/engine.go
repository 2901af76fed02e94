package governance

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Engine is the governance capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		review, refused := reviewBlueprint(op, r.Envelope, r.Blueprint)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(review))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

func byRisk() func(a, b Step) int {
	return capability.ByScoreThenKey(
		func(s Step) int64 { return int64(s.RiskBP) },
		func(s Step) string { return s.StepID },
	)
}

// ExecutionOrder is Kahn's algorithm taking ready steps risk desc, id asc.
// ok is false when the steps contain a cycle.
func ExecutionOrder(steps []Step) (order []string, ok bool) {
	pending := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		byID[s.StepID] = s
		pending[s.StepID] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.StepID)
		}
	}

	var ready []Step
	for _, s := range steps {
		if pending[s.StepID] == 0 {
			ready = append(ready, s)
		}
	}
	for len(ready) > 0 {
		ready = capability.Rank(ready, byRisk())
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.StepID)
		for _, id := range dependents[next.StepID] {
			pending[id]--
			if pending[id] == 0 {
				ready = append(ready, byID[id])
			}
		}
	}
	return order, len(order) == len(steps)
}

func reviewBlueprint(op capability.Op, env contract.Envelope, b Blueprint) (Review, *contract.Refuse) {
	approved := capability.TokenSet(b.Approvals)
	known := capability.Index(b.Steps, func(s Step) string { return s.StepID })

	unapproved, unknownDep := false, false
	for _, s := range b.Steps {
		if _, ok := approved[s.StepID]; s.RequiresApproval && !ok {
			unapproved = true
		}
		for _, dep := range s.DependsOn {
			if _, ok := known[dep]; !ok {
				unknownDep = true
			}
		}
	}

	var order []string
	if g := capability.FirstBlocked(
		capability.When(len(b.Steps) == 0, ReasonEmptyBlueprint, "blueprint has no steps"),
		capability.When(len(b.Steps) > capability.EffectiveBudget(env.MaxCandidates, MaxSteps), Namespace.BudgetExceeded(), "blueprint has too many steps"),
		capability.When(unapproved, ReasonApprovalMissing, "a step requiring approval is not approved"),
		capability.When(unknownDep, ReasonUnknownDependency, "a step depends on an unknown step"),
		capability.Lazy(func() bool {
			var ok bool
			order, ok = ExecutionOrder(b.Steps)
			return !ok
		}, ReasonDependencyCycle, "steps form a dependency cycle"),
	); g != nil {
		return Review{}, capability.Refusal(op.Capability, g.Code, g.Message)
	}

	review := Review{BlueprintID: b.BlueprintID, Order: order}
	for _, s := range b.Steps {
		review.TotalRiskBP += s.RiskBP
		review.MaxRiskBP = max(review.MaxRiskBP, s.RiskBP)
	}
	review.HighRisk = review.MaxRiskBP >= HighRiskBP
	return review, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	known := capability.Index(r.Blueprint.Steps, func(s Step) string { return s.StepID })
	for i, a := range r.Blueprint.Approvals {
		if _, ok := known[a]; !ok {
			d.AddIndexed("approval", i, "unknown_step")
		}
	}

	if expected, ok := capability.Rederive(d, func() (Review, *contract.Refuse) {
		return reviewBlueprint(op, r.Envelope, r.Blueprint)
	}); ok {
		capability.DiffValue(d, "total_risk", expected.TotalRiskBP, r.Review.TotalRiskBP)
		capability.DiffValue(d, "max_risk", expected.MaxRiskBP, r.Review.MaxRiskBP)
		capability.DiffValue(d, "high_risk", expected.HighRisk, r.Review.HighRisk)
		capability.DiffStrings(d, "order", expected.Order, r.Review.Order)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
