// Package governance reviews a process blueprint before it runs: approvals,
// dependency integrity and execution order.
package governance

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0103

	CapabilityBuild    contract.CapabilityID = "GOVERNANCE_BUILD"
	CapabilityValidate contract.CapabilityID = "GOVERNANCE_VALIDATE"

	// MaxSteps is the configured step ceiling.
	MaxSteps     = 64
	MaxDependsOn = 16
	MaxBlueprint = contract.GlobalCeiling

	// HighRiskBP is the step risk at which a blueprint is high risk.
	HighRiskBP = 9000
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxSteps, MaxDiagnostics: 32}

var (
	ReasonReviewed          = Namespace.Success(1)
	ReasonEmptyBlueprint    = Namespace.Policy(1)
	ReasonApprovalMissing   = Namespace.Policy(2)
	ReasonUnknownDependency = Namespace.Policy(3)
	ReasonDependencyCycle   = Namespace.Policy(4)
)

// Step is one unit of the process.
type Step struct {
	StepID           string   `json:"step_id"`
	DependsOn        []string `json:"depends_on"`
	RiskBP           int      `json:"risk_bp"`
	RequiresApproval bool     `json:"requires_approval"`
}

func (s Step) Validate() error {
	if err := contract.First(
		contract.CheckIdentifier("step.step_id", s.StepID, contract.MaxIdentifierLen),
		contract.CheckCount("step.depends_on", len(s.DependsOn), MaxDependsOn, false),
		contract.CheckBasisPoints("step.risk_bp", s.RiskBP),
	); err != nil {
		return err
	}
	for _, dep := range s.DependsOn {
		if err := contract.CheckIdentifier("step.depends_on", dep, contract.MaxIdentifierLen); err != nil {
			return err
		}
	}
	return contract.CheckUnique("step.depends_on", s.DependsOn)
}

// Blueprint is the process under review.
type Blueprint struct {
	BlueprintID string   `json:"blueprint_id"`
	Steps       []Step   `json:"steps"`
	Approvals   []string `json:"approvals"`
}

// Validate checks each step and that step ids are unique.
func (b Blueprint) Validate() error {
	if err := contract.First(
		contract.CheckIdentifier("blueprint_id", b.BlueprintID, contract.MaxIdentifierLen),
		contract.CheckCount("steps", len(b.Steps), MaxBlueprint, false),
		contract.CheckCount("approvals", len(b.Approvals), MaxBlueprint, false),
	); err != nil {
		return err
	}
	ids := make([]string, len(b.Steps))
	for i, s := range b.Steps {
		if err := s.Validate(); err != nil {
			return err
		}
		ids[i] = s.StepID
	}
	for _, a := range b.Approvals {
		if err := contract.CheckIdentifier("approvals", a, contract.MaxIdentifierLen); err != nil {
			return err
		}
	}
	return contract.First(
		contract.CheckUnique("steps", ids),
		contract.CheckUnique("approvals", b.Approvals),
	)
}

// Review is the build output.
type Review struct {
	BlueprintID string   `json:"blueprint_id"`
	Order       []string `json:"order"`
	TotalRiskBP int      `json:"total_risk_bp"`
	MaxRiskBP   int      `json:"max_risk_bp"`
	HighRisk    bool     `json:"high_risk"`
}

// Validate checks every field.
func (r Review) Validate() error {
	if err := contract.First(
		contract.CheckIdentifier("review.blueprint_id", r.BlueprintID, contract.MaxIdentifierLen),
		contract.CheckCount("review.order", len(r.Order), MaxBlueprint, true),
		contract.CheckRange("review.total_risk_bp", int64(r.TotalRiskBP), 0, int64(MaxBlueprint)*10000),
		contract.CheckBasisPoints("review.max_risk_bp", r.MaxRiskBP),
	); err != nil {
		return err
	}
	for _, id := range r.Order {
		if err := contract.CheckIdentifier("review.order", id, contract.MaxIdentifierLen); err != nil {
			return err
		}
	}
	return contract.CheckUnique("review.order", r.Order)
}

func (r Review) consistent() error {
	if r.HighRisk != (r.MaxRiskBP >= HighRiskBP) || r.MaxRiskBP > r.TotalRiskBP {
		return contract.Violate("review.high_risk", contract.ReasonInconsistent)
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isGovernanceRequest()
}

// BuildRequest asks for the review derived from Blueprint.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Blueprint     Blueprint              `json:"blueprint"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, b Blueprint) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Blueprint: b}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the blueprint.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Blueprint.Validate(),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isGovernanceRequest()              {}

// ValidateRequest asks whether Review is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Blueprint     Blueprint              `json:"blueprint"`
	Review        Review                 `json:"review"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, b Blueprint, review Review) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Blueprint: b, Review: review}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the blueprint and the supplied review.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Blueprint.Validate(),
		r.Review.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isGovernanceRequest()              {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived review.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Review     Review              `json:"review"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(review Review) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonReviewed, Review: review}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the review.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonReviewed {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return contract.First(o.Review.Validate(), o.Review.consistent())
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
	Blueprint *Blueprint `json:"blueprint,omitempty"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
