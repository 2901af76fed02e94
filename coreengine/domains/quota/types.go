// Package quota decides, for one tenant turn, which work items are admitted
// under the tenant's unit limit and why the turn is throttled, if it is.
package quota

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0106

	CapabilityBuild    contract.CapabilityID = "QUOTA_BUILD"
	CapabilityValidate contract.CapabilityID = "QUOTA_VALIDATE"

	// MaxAdmitted is the configured admission ceiling.
	MaxAdmitted = 64
	MaxItems    = contract.GlobalCeiling
	MaxPriority = 1000

	// NearLimitBP is the utilization at which a tenant is near its limit.
	NearLimitBP = 9000
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxAdmitted, MaxDiagnostics: 32}

var (
	ReasonDecided = Namespace.Success(1)
	ReasonNoItems = Namespace.Policy(1)
)

// ThrottleCause is why nothing was admitted.
type ThrottleCause string

const (
	CauseNone              ThrottleCause = "none"
	CausePolicyBlocked     ThrottleCause = "policy_blocked"
	CauseBudgetExceeded    ThrottleCause = "budget_exceeded"
	CauseRateLimitExceeded ThrottleCause = "rate_limit_exceeded"
)

// Validate rejects unknown causes.
func (c ThrottleCause) Validate() error {
	switch c {
	case CauseNone, CausePolicyBlocked, CauseBudgetExceeded, CauseRateLimitExceeded:
		return nil
	}
	return contract.Violate("throttle_cause", contract.ReasonUnknownVariant)
}

// =============================================================================
// INPUTS
// =============================================================================

// Item is one unit-consuming piece of work.
type Item struct {
	ItemID   string `json:"item_id"`
	Priority int    `json:"priority"`
	Units    int64  `json:"units"`
}

func (i Item) Validate() error {
	return contract.First(
		contract.CheckIdentifier("item.item_id", i.ItemID, contract.MaxIdentifierLen),
		contract.CheckRange("item.priority", int64(i.Priority), 0, MaxPriority),
		contract.CheckRange("item.units", i.Units, 1, 1<<40),
	)
}

// Signals are the throttle flags computed outside the engine.
type Signals struct {
	PolicyBlocked     bool  `json:"policy_blocked"`
	BudgetExceeded    bool  `json:"budget_exceeded"`
	RateLimitExceeded bool  `json:"rate_limit_exceeded"`
	RetryAfterMS      int64 `json:"retry_after_ms"`
}

func (s Signals) Validate() error {
	return contract.CheckRange("signals.retry_after_ms", s.RetryAfterMS, 0, 24*60*60*1000)
}

// Usage is the tenant's unit limit and consumption so far.
type Usage struct {
	TenantID   string `json:"tenant_id"`
	LimitUnits int64  `json:"limit_units"`
	UsedUnits  int64  `json:"used_units"`
}

// Validate checks the tenant and that both unit counts are in range.
func (u Usage) Validate() error {
	return contract.First(
		contract.CheckIdentifier("tenant_id", u.TenantID, contract.MaxIdentifierLen),
		contract.CheckRange("limit_units", u.LimitUnits, 1, 1<<50),
		contract.CheckRange("used_units", u.UsedUnits, 0, 1<<50),
	)
}

func validateItems(items []Item) error {
	if err := contract.CheckCount("items", len(items), MaxItems, false); err != nil {
		return err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		ids[i] = it.ItemID
	}
	return contract.CheckUnique("items", ids)
}

// =============================================================================
// DECISION
// =============================================================================

// Decision is the build output.
type Decision struct {
	Cause         ThrottleCause `json:"cause"`
	RetryAfterMS  int64         `json:"retry_after_ms"`
	Admitted      []string      `json:"admitted"`
	Deferred      []string      `json:"deferred"`
	AdmittedUnits int64         `json:"admitted_units"`
	UtilizationBP int           `json:"utilization_bp"`
	NearLimit     bool          `json:"near_limit"`
}

// Validate checks each field on its own.
func (d Decision) Validate() error {
	if err := contract.First(
		d.Cause.Validate(),
		contract.CheckRange("decision.retry_after_ms", d.RetryAfterMS, 0, 24*60*60*1000),
		contract.CheckCount("decision.admitted", len(d.Admitted), MaxItems, false),
		contract.CheckCount("decision.deferred", len(d.Deferred), MaxItems, false),
		contract.CheckRange("decision.admitted_units", d.AdmittedUnits, 0, 1<<50),
		contract.CheckBasisPoints("decision.utilization_bp", d.UtilizationBP),
	); err != nil {
		return err
	}
	for _, id := range append(append([]string(nil), d.Admitted...), d.Deferred...) {
		if err := contract.CheckIdentifier("decision.item_id", id, contract.MaxIdentifierLen); err != nil {
			return err
		}
	}
	return nil
}

// consistent checks the cross-field rules every derived decision obeys.
func (d Decision) consistent() error {
	if d.Cause != CauseNone && len(d.Admitted) > 0 {
		return contract.Violate("decision.admitted", contract.ReasonInconsistent)
	}
	if d.Cause != CauseRateLimitExceeded && d.RetryAfterMS != 0 {
		return contract.Violate("decision.retry_after_ms", contract.ReasonInconsistent)
	}
	if d.NearLimit != (d.UtilizationBP >= NearLimitBP) {
		return contract.Violate("decision.near_limit", contract.ReasonInconsistent)
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isQuotaRequest()
}

// BuildRequest asks for an admission decision.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Usage         Usage                  `json:"usage"`
	Signals       Signals                `json:"signals"`
	Items         []Item                 `json:"items"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, usage Usage, signals Signals, items []Item) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Usage: usage, Signals: signals, Items: items}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and usage, signals and items.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Usage.Validate(),
		r.Signals.Validate(),
		validateItems(r.Items),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isQuotaRequest()                   {}

// ValidateRequest asks whether Decision is what a build over the same
// inputs would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Usage         Usage                  `json:"usage"`
	Signals       Signals                `json:"signals"`
	Items         []Item                 `json:"items"`
	Decision      Decision               `json:"decision"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, usage Usage, signals Signals, items []Item, decision Decision) (*ValidateRequest, error) {
	r := &ValidateRequest{
		SchemaVersion: SchemaVersion,
		Envelope:      env,
		Usage:         usage,
		Signals:       signals,
		Items:         items,
		Decision:      decision,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, usage, signals and items and the supplied decision.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Usage.Validate(),
		r.Signals.Validate(),
		validateItems(r.Items),
		r.Decision.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isQuotaRequest()                   {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived decision.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Decision   Decision            `json:"decision"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(d Decision) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonDecided, Decision: d}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the decision.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonDecided {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return contract.First(o.Decision.Validate(), o.Decision.consistent())
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
	Usage   Usage   `json:"usage"`
	Signals Signals `json:"signals"`
	Items   []Item  `json:"items"`
}

// Validate checks the header; the rest is checked by the request
// constructors once the domain is known to be invoked.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
