// Package retry schedules the next attempt of a failed operation. It only
// computes the schedule; executing the retry is the caller's job.
package retry

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0107

	CapabilityBuild    contract.CapabilityID = "RETRY_BUILD"
	CapabilityValidate contract.CapabilityID = "RETRY_VALIDATE"

	// MaxAttempts is the configured attempt ceiling.
	MaxAttempts = 10

	maxHintMS = 24 * 60 * 60 * 1000
)

// HardCaps: MaxCandidates doubles as the attempt ceiling.
var HardCaps = contract.Caps{MaxCandidates: MaxAttempts, MaxDiagnostics: 32}

var (
	ReasonScheduled    = Namespace.Success(1)
	ReasonNonRetryable = Namespace.Policy(1)
)

// FailureClass classifies what went wrong on the last attempt.
type FailureClass string

const (
	FailureTransient   FailureClass = "transient"
	FailureTimeout     FailureClass = "timeout"
	FailureRateLimited FailureClass = "rate_limited"
	FailurePermanent   FailureClass = "permanent"
)

// Validate rejects unknown classes.
func (c FailureClass) Validate() error {
	switch c {
	case FailureTransient, FailureTimeout, FailureRateLimited, FailurePermanent:
		return nil
	}
	return contract.Violate("failure_class", contract.ReasonUnknownVariant)
}

// Failure describes the attempt that just failed. Attempt counts completed
// attempts, so the first failure has Attempt 1.
type Failure struct {
	OperationID      string       `json:"operation_id"`
	Attempt          int          `json:"attempt"`
	Class            FailureClass `json:"failure_class"`
	FailedAtMonoMS   int64        `json:"failed_at_mono_ms"`
	RetryAfterHintMS int64        `json:"retry_after_hint_ms"`
}

// Validate checks every field.
func (f Failure) Validate() error {
	return contract.First(
		contract.CheckIdentifier("operation_id", f.OperationID, contract.MaxIdentifierLen),
		contract.CheckRange("attempt", int64(f.Attempt), 1, 1000),
		f.Class.Validate(),
		contract.CheckRange("failed_at_mono_ms", f.FailedAtMonoMS, 0, 1<<52),
		contract.CheckRange("retry_after_hint_ms", f.RetryAfterHintMS, 0, maxHintMS),
	)
}

// Schedule is the build output.
type Schedule struct {
	OperationID   string `json:"operation_id"`
	NextAttempt   int    `json:"next_attempt"`
	DelayMS       int64  `json:"delay_ms"`
	RetryAtMonoMS int64  `json:"retry_at_mono_ms"`
}

// Validate checks the attempt number, delay and deadline ranges.
func (s Schedule) Validate() error {
	return contract.First(
		contract.CheckIdentifier("schedule.operation_id", s.OperationID, contract.MaxIdentifierLen),
		contract.CheckRange("schedule.next_attempt", int64(s.NextAttempt), 2, 1001),
		contract.CheckRange("schedule.delay_ms", s.DelayMS, 1, maxHintMS),
		contract.CheckRange("schedule.retry_at_mono_ms", s.RetryAtMonoMS, 1, 1<<53),
	)
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isRetryRequest()
}

// BuildRequest asks for the schedule derived from Failure.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Failure       Failure                `json:"failure"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, f Failure) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Failure: f}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the failure.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Failure.Validate(),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isRetryRequest()                   {}

// ValidateRequest asks whether Schedule is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Failure       Failure                `json:"failure"`
	Schedule      Schedule               `json:"schedule"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, f Failure, s Schedule) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Failure: f, Schedule: s}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the failure and the supplied schedule.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Failure.Validate(),
		r.Schedule.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isRetryRequest()                   {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived schedule.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Schedule   Schedule            `json:"schedule"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(s Schedule) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonScheduled, Schedule: s}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the schedule.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonScheduled {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return o.Schedule.Validate()
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
	Failure *Failure `json:"failure,omitempty"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
