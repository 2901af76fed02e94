// Package costbudget decides which line items of a turn are funded from the
// remaining spend budget.
package costbudget

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0101

	CapabilityBuild    contract.CapabilityID = "COSTBUDGET_BUILD"
	CapabilityValidate contract.CapabilityID = "COSTBUDGET_VALIDATE"

	// MaxFunded is the configured funding ceiling.
	MaxFunded   = 64
	MaxItems    = contract.GlobalCeiling
	MaxPriority = 1000

	maxMicros = 1 << 50
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxFunded, MaxDiagnostics: 32}

var (
	ReasonPlanned              = Namespace.Success(1)
	ReasonNoItems              = Namespace.Policy(1)
	ReasonRequiredItemUnfunded = Namespace.Policy(2)
)

// LineItem is one cost the turn would incur.
type LineItem struct {
	ItemID          string `json:"item_id"`
	EstimatedMicros int64  `json:"estimated_micros"`
	Priority        int    `json:"priority"`
	Required        bool   `json:"required"`
}

func (l LineItem) Validate() error {
	return contract.First(
		contract.CheckIdentifier("line_item.item_id", l.ItemID, contract.MaxIdentifierLen),
		contract.CheckRange("line_item.estimated_micros", l.EstimatedMicros, 0, maxMicros),
		contract.CheckRange("line_item.priority", int64(l.Priority), 0, MaxPriority),
	)
}

// Budget is the spend limit and what has been spent against it.
type Budget struct {
	BudgetMicros int64 `json:"budget_micros"`
	SpentMicros  int64 `json:"spent_micros"`
}

// Validate checks the limits.
func (b Budget) Validate() error {
	return contract.First(
		contract.CheckRange("budget_micros", b.BudgetMicros, 1, maxMicros),
		contract.CheckRange("spent_micros", b.SpentMicros, 0, maxMicros),
	)
}

func validateItems(items []LineItem) error {
	if err := contract.CheckCount("line_items", len(items), MaxItems, false); err != nil {
		return err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		ids[i] = it.ItemID
	}
	return contract.CheckUnique("line_items", ids)
}

// Plan is the build output. Funded is in funding order.
type Plan struct {
	Funded          []string `json:"funded"`
	Unfunded        []string `json:"unfunded"`
	FundedMicros    int64    `json:"funded_micros"`
	RemainingMicros int64    `json:"remaining_micros"`
}

func (p Plan) Validate() error {
	if err := contract.First(
		contract.CheckCount("plan.funded", len(p.Funded), MaxItems, false),
		contract.CheckCount("plan.unfunded", len(p.Unfunded), MaxItems, false),
		contract.CheckRange("plan.funded_micros", p.FundedMicros, 0, maxMicros),
		contract.CheckRange("plan.remaining_micros", p.RemainingMicros, 0, maxMicros),
	); err != nil {
		return err
	}
	for _, id := range p.Funded {
		if err := contract.CheckIdentifier("plan.funded", id, contract.MaxIdentifierLen); err != nil {
			return err
		}
	}
	for _, id := range p.Unfunded {
		if err := contract.CheckIdentifier("plan.unfunded", id, contract.MaxIdentifierLen); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isCostBudgetRequest()
}

// BuildRequest asks for the plan derived from Budget and Items.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Budget        Budget                 `json:"budget"`
	LineItems     []LineItem             `json:"line_items"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, budget Budget, items []LineItem) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Budget: budget, LineItems: items}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the budget and line items.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Budget.Validate(),
		validateItems(r.LineItems),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isCostBudgetRequest()              {}

// ValidateRequest asks whether Plan is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Budget        Budget                 `json:"budget"`
	LineItems     []LineItem             `json:"line_items"`
	Plan          Plan                   `json:"plan"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, budget Budget, items []LineItem, plan Plan) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Budget: budget, LineItems: items, Plan: plan}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the budget and line items and the supplied plan.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Budget.Validate(),
		validateItems(r.LineItems),
		r.Plan.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isCostBudgetRequest()              {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived plan.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Plan       Plan                `json:"plan"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(p Plan) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonPlanned, Plan: p}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the plan.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonPlanned {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return o.Plan.Validate()
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
	Budget    Budget     `json:"budget"`
	LineItems []LineItem `json:"line_items"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
