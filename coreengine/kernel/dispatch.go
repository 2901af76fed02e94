package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

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
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

// ErrUnknownDomain is returned by Dispatch for a domain it does not serve.
var ErrUnknownDomain = errors.New("unknown domain")

// InputError reports a turn input that could not be decoded or failed its
// structural checks. The engine was not called.
type InputError struct {
	Domain string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s input: %v", e.Domain, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// TurnResult is the domain-independent view of an Outcome.
type TurnResult struct {
	Domain string             `json:"domain"`
	Kind   wiring.OutcomeKind `json:"kind"`
	Refuse *contract.Refuse   `json:"refuse,omitempty"`
	Bundle any                `json:"bundle,omitempty"`
}

// Dispatch decodes a JSON turn input for the named domain and runs it.
// Unknown fields are rejected.
func (k *Kernel) Dispatch(ctx context.Context, domain string, payload []byte) (TurnResult, error) {
	switch domain {
	case searchplan.Domain:
		return dispatch(ctx, domain, payload, k.PlanSearch)
	case quota.Domain:
		return dispatch(ctx, domain, payload, k.DecideQuota)
	case retry.Domain:
		return dispatch(ctx, domain, payload, k.ScheduleRetry)
	case costbudget.Domain:
		return dispatch(ctx, domain, payload, k.PlanCost)
	case summarize.Domain:
		return dispatch(ctx, domain, payload, k.Summarize)
	case tenant.Domain:
		return dispatch(ctx, domain, payload, k.ResolveTenant)
	case clarify.Domain:
		return dispatch(ctx, domain, payload, k.Clarify)
	case lexicon.Domain:
		return dispatch(ctx, domain, payload, k.ApplyLexicon)
	case workorder.Domain:
		return dispatch(ctx, domain, payload, k.AppendWorkOrderEvent)
	case export.Domain:
		return dispatch(ctx, domain, payload, k.GrantExport)
	case governance.Domain:
		return dispatch(ctx, domain, payload, k.ReviewBlueprint)
	default:
		return TurnResult{}, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
}

func dispatch[In wiring.Turn, B contract.Response, V wiring.Verdict](
	ctx context.Context,
	domain string,
	payload []byte,
	run func(context.Context, In) (wiring.Outcome[B, V], error),
) (TurnResult, error) {
	var in In
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return TurnResult{}, &InputError{Domain: domain, Err: err}
	}

	out, err := run(ctx, in)
	if err != nil {
		var v *contract.Violation
		if errors.As(err, &v) {
			return TurnResult{}, &InputError{Domain: domain, Err: err}
		}
		return TurnResult{}, err
	}

	res := TurnResult{Domain: domain, Kind: out.Kind, Refuse: out.Refuse}
	if out.Bundle != nil {
		res.Bundle = out.Bundle
	}
	return res, nil
}
