// Package workorder decides whether a proposed event may be appended to a
// work order's append-only history.
package workorder

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x010B

	CapabilityBuild    contract.CapabilityID = "WORKORDER_BUILD"
	CapabilityValidate contract.CapabilityID = "WORKORDER_VALIDATE"

	// MaxEvents is the configured event ceiling per work order.
	MaxEvents = 64
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxEvents, MaxDiagnostics: 32}

// Reason codes.
var (
	ReasonAppended          = Namespace.Success(1)
	ReasonHistoryGap        = Namespace.Policy(1)
	ReasonWorkOrderClosed   = Namespace.Policy(2)
	ReasonInvalidTransition = Namespace.Policy(3)
)

// Kind is an event kind. Each kind names the state the order is in after it.
type Kind string

const (
	KindCreated    Kind = "created"
	KindAssigned   Kind = "assigned"
	KindInProgress Kind = "in_progress"
	KindBlocked    Kind = "blocked"
	KindCompleted  Kind = "completed"
	KindCancelled  Kind = "cancelled"
)

// Validate rejects unknown kinds.
func (k Kind) Validate() error {
	switch k {
	case KindCreated, KindAssigned, KindInProgress, KindBlocked, KindCompleted, KindCancelled:
		return nil
	}
	return contract.Violate("kind", contract.ReasonUnknownVariant)
}

// State is the lifecycle state of a work order. StateNone precedes the
// created event.
type State string

const StateNone State = "none"

// Terminal reports whether no further event may follow.
func (s State) Terminal() bool {
	return s == State(KindCompleted) || s == State(KindCancelled)
}

// PriorEvent is a committed event.
type PriorEvent struct {
	Sequence       int    `json:"sequence"`
	Kind           Kind   `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Validate checks the sequence, kind and key of one committed event.
func (e PriorEvent) Validate() error {
	return contract.First(
		contract.CheckRange("prior.sequence", int64(e.Sequence), 1, contract.GlobalCeiling),
		e.Kind.Validate(),
		contract.CheckIdentifier("prior.idempotency_key", e.IdempotencyKey, contract.MaxIdentifierLen),
	)
}

// Proposal is the event the caller wants to append.
type Proposal struct {
	Kind           Kind   `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`
	Actor          string `json:"actor"`
}

// Validate checks every field.
func (p Proposal) Validate() error {
	return contract.First(
		p.Kind.Validate(),
		contract.CheckIdentifier("proposal.idempotency_key", p.IdempotencyKey, contract.MaxIdentifierLen),
		contract.CheckIdentifier("proposal.actor", p.Actor, contract.MaxIdentifierLen),
	)
}

// History is a work order's committed events plus the proposal.
type History struct {
	WorkOrderID string       `json:"work_order_id"`
	Prior       []PriorEvent `json:"prior"`
	Proposal    Proposal     `json:"proposal"`
}

// Validate checks each event and that prior idempotency keys are unique.
// Sequence gaps are a policy refusal, not a schema error.
func (h History) Validate() error {
	if err := contract.First(
		contract.CheckIdentifier("work_order_id", h.WorkOrderID, contract.MaxIdentifierLen),
		contract.CheckCount("prior", len(h.Prior), contract.GlobalCeiling, false),
		h.Proposal.Validate(),
	); err != nil {
		return err
	}
	keys := make([]string, len(h.Prior))
	for i, e := range h.Prior {
		if err := e.Validate(); err != nil {
			return err
		}
		keys[i] = e.IdempotencyKey
	}
	return contract.CheckUnique("prior", keys)
}

// Append is the build output: the event to commit, or the prior event when
// the proposal repeats an idempotency key.
type Append struct {
	WorkOrderID    string `json:"work_order_id"`
	Sequence       int    `json:"sequence"`
	Kind           Kind   `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`
	Actor          string `json:"actor,omitempty"`
	State          State  `json:"state"`
	Duplicate      bool   `json:"duplicate"`
}

// Validate checks every field.
func (a Append) Validate() error {
	return contract.First(
		contract.CheckIdentifier("append.work_order_id", a.WorkOrderID, contract.MaxIdentifierLen),
		contract.CheckRange("append.sequence", int64(a.Sequence), 1, contract.GlobalCeiling),
		a.Kind.Validate(),
		contract.CheckIdentifier("append.idempotency_key", a.IdempotencyKey, contract.MaxIdentifierLen),
		contract.CheckOptionalText("append.actor", a.Actor, contract.MaxIdentifierLen),
		Kind(a.State).Validate(),
	)
}

func (a Append) consistent() error {
	if !a.Duplicate && (a.State != State(a.Kind) || a.Actor == "") {
		return contract.Violate("append.state", contract.ReasonInconsistent)
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isWorkOrderRequest()
}

// BuildRequest asks for the append derived from History.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	History       History                `json:"history"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, h History) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, History: h}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the history.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.History.Validate(),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isWorkOrderRequest()               {}

// ValidateRequest asks whether Append is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	History       History                `json:"history"`
	Append        Append                 `json:"append"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, h History, a Append) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, History: h, Append: a}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the history and the supplied append.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.History.Validate(),
		r.Append.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isWorkOrderRequest()               {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived append.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Append     Append              `json:"append"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(a Append) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonAppended, Append: a}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the append.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonAppended {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return contract.First(o.Append.Validate(), o.Append.consistent())
}

// Reason returns the success code.
func (o *BuildOK) Reason() contract.ReasonCode { return o.ReasonCode }

// ValidateOK carries the verdict.
type ValidateOK struct {
	contract.Verdict
}

// NewValidateOKV1 builds and validates a ValidateOK.
func NewValidateOKV1(v contract.Verdict) (*ValidateOK, error) {
	ok := &ValidateOK{Verdict: v}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the verdict and its namespace.
func (o *ValidateOK) Validate() error {
	if o == nil {
		return contract.Violate("validate_ok", contract.ReasonNil)
	}
	if o.ReasonCode.Namespace() != Namespace {
		return contract.Violate("validate_ok.reason_code", contract.ReasonWrongNamespace)
	}
	return o.Verdict.Validate()
}

// =============================================================================
// TURN INPUT
// =============================================================================

// TurnInput is what a caller supplies for one turn.
type TurnInput struct {
	wiring.Header
	History *History `json:"history,omitempty"`
}

// Validate checks the header. The history is checked when a request is built.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
