package workorder

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// transitions lists the kinds that may follow each non-terminal state.
// Cancellation is allowed from every non-terminal state.
var transitions = map[State][]Kind{
	StateNone:             {KindCreated},
	State(KindCreated):    {KindAssigned, KindCancelled},
	State(KindAssigned):   {KindInProgress, KindCancelled},
	State(KindInProgress): {KindBlocked, KindCompleted, KindCancelled},
	State(KindBlocked):    {KindInProgress, KindCancelled},
}

// CanTransition reports whether k may be appended to an order in state s.
func CanTransition(s State, k Kind) bool {
	for _, next := range transitions[s] {
		if next == k {
			return true
		}
	}
	return false
}

// Engine is the work order capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		a, refused := appendEvent(op, r.Envelope, r.History)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(a))
	case *ValidateRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
		verdict, err := capability.Verify(op, r.Envelope.MaxDiagnostics,
			func() (Append, *contract.Refuse) { return appendEvent(op, r.Envelope, r.History) },
			func(d *contract.Diagnostics, expected Append) {
				capability.DiffValue(d, "sequence", expected.Sequence, r.Append.Sequence)
				capability.DiffValue(d, "kind", expected.Kind, r.Append.Kind)
				capability.DiffValue(d, "state", expected.State, r.Append.State)
				capability.DiffValue(d, "duplicate", expected.Duplicate, r.Append.Duplicate)
			})
		if err != nil {
			return op.Internal()
		}
		return op.Complete(NewValidateOKV1(verdict))
	default:
		return nil
	}
}

// contiguous reports whether prior is numbered 1..n and opens with created.
func contiguous(prior []PriorEvent) bool {
	for i, e := range prior {
		if e.Sequence != i+1 {
			return false
		}
	}
	return len(prior) == 0 || prior[0].Kind == KindCreated
}

// Current returns the state after the prior events.
func Current(prior []PriorEvent) State {
	if len(prior) == 0 {
		return StateNone
	}
	return State(prior[len(prior)-1].Kind)
}

func appendEvent(op capability.Op, env contract.Envelope, h History) (Append, *contract.Refuse) {
	state := Current(h.Prior)
	// A replay of a recorded key is answered before any gate.
	if contiguous(h.Prior) {
		for _, e := range h.Prior {
			if e.IdempotencyKey == h.Proposal.IdempotencyKey {
				return Append{
					WorkOrderID:    h.WorkOrderID,
					Sequence:       e.Sequence,
					Kind:           e.Kind,
					IdempotencyKey: e.IdempotencyKey,
					State:          state,
					Duplicate:      true,
				}, nil
			}
		}
	}

	ceiling := capability.EffectiveBudget(env.MaxCandidates, MaxEvents)
	if g := capability.FirstBlocked(
		capability.When(len(h.Prior) >= ceiling, Namespace.BudgetExceeded(), "event ceiling reached"),
		capability.When(!contiguous(h.Prior), ReasonHistoryGap, "prior events are not contiguous from created"),
		capability.When(state.Terminal(), ReasonWorkOrderClosed, "work order is closed"),
		capability.When(!CanTransition(state, h.Proposal.Kind), ReasonInvalidTransition, "transition is not allowed from the current state"),
	); g != nil {
		return Append{}, capability.Refusal(op.Capability, g.Code, g.Message)
	}

	return Append{
		WorkOrderID:    h.WorkOrderID,
		Sequence:       len(h.Prior) + 1,
		Kind:           h.Proposal.Kind,
		IdempotencyKey: h.Proposal.IdempotencyKey,
		Actor:          h.Proposal.Actor,
		State:          State(h.Proposal.Kind),
	}, nil
}
