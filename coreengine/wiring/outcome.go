package wiring

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// =============================================================================
// TURN / VERDICT CONSTRAINTS
// =============================================================================

// Turn is the per-turn input a wiring accepts.
type Turn interface {
	contract.Validator
	Identity() (contract.CorrelationID, contract.TurnID)
}

// Header is the identity every domain's turn input embeds.
type Header struct {
	CorrelationID contract.CorrelationID `json:"correlation_id"`
	TurnID        contract.TurnID        `json:"turn_id"`
}

// Identity returns the correlation and turn ids.
func (h Header) Identity() (contract.CorrelationID, contract.TurnID) {
	return h.CorrelationID, h.TurnID
}

// Validate checks both ids.
func (h Header) Validate() error {
	return contract.First(h.CorrelationID.Validate(), h.TurnID.Validate())
}

// Verdict is implemented by every validate-phase Ok variant.
type Verdict interface {
	contract.Response
	VerdictStatus() contract.ValidationStatus
	DiagnosticCodes() []string
}

// =============================================================================
// OUTCOME
// =============================================================================

// OutcomeKind tells the caller what a turn produced.
type OutcomeKind string

const (
	OutcomeNotInvokedDisabled OutcomeKind = "not_invoked_disabled"
	OutcomeNotInvokedNoInput  OutcomeKind = "not_invoked_no_input"
	OutcomeRefused            OutcomeKind = "refused"
	OutcomeForwarded          OutcomeKind = "forwarded"
)

// Outcome is the result of one RunTurn. Exactly one of Refuse and Bundle is
// set for refused and forwarded outcomes; neither is set otherwise.
type Outcome[B contract.Response, V Verdict] struct {
	Kind   OutcomeKind          `json:"kind"`
	Refuse *contract.Refuse     `json:"refuse,omitempty"`
	Bundle *ForwardBundle[B, V] `json:"bundle,omitempty"`
}

// Invoked reports whether the engine was called at all.
func (o Outcome[B, V]) Invoked() bool {
	return o.Kind == OutcomeRefused || o.Kind == OutcomeForwarded
}

// Forwarded reports whether the turn produced a bundle.
func (o Outcome[B, V]) Forwarded() bool {
	return o.Kind == OutcomeForwarded && o.Bundle != nil
}

// =============================================================================
// FORWARD BUNDLE
// =============================================================================

// ForwardBundle carries a build result together with the passing verdict
// that checked it. It cannot be constructed from a failing verdict.
type ForwardBundle[B contract.Response, V Verdict] struct {
	CorrelationID contract.CorrelationID `json:"correlation_id"`
	TurnID        contract.TurnID        `json:"turn_id"`
	Build         B                      `json:"build"`
	Validation    V                      `json:"validation"`
}

// NewForwardBundleV1 builds and validates a ForwardBundle.
func NewForwardBundleV1[B contract.Response, V Verdict](
	correlationID contract.CorrelationID,
	turnID contract.TurnID,
	build B,
	validation V,
) (*ForwardBundle[B, V], error) {
	b := &ForwardBundle[B, V]{
		CorrelationID: correlationID,
		TurnID:        turnID,
		Build:         build,
		Validation:    validation,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks identity, both payloads and that the verdict passed.
func (b *ForwardBundle[B, V]) Validate() error {
	if b == nil {
		return contract.Violate("bundle", contract.ReasonNil)
	}
	if err := contract.First(
		b.CorrelationID.Validate(),
		b.TurnID.Validate(),
		contract.Check("bundle.build", b.Build),
		contract.Check("bundle.validation", b.Validation),
	); err != nil {
		return err
	}
	if b.Validation.VerdictStatus() != contract.ValidationStatusOK {
		return contract.Violate("bundle.validation.status", contract.ReasonInconsistent)
	}
	return nil
}
