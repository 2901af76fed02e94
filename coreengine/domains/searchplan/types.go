// Package searchplan turns a raw spoken query into a bounded, ranked set of
// search queries and validates a supplied plan against re-derivation.
//
// It is the reference engine for the capability pattern; the other domain
// packages follow the same layout.
package searchplan

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

// =============================================================================
// IDENTITY
// =============================================================================

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0108

	CapabilityBuild    contract.CapabilityID = "SEARCHPLAN_BUILD"
	CapabilityValidate contract.CapabilityID = "SEARCHPLAN_VALIDATE"

	// MaxPlanQueries is the configured plan ceiling.
	MaxPlanQueries   = 8
	MaxRawQueryRunes = 512
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxPlanQueries, MaxDiagnostics: 32}

// Reason codes.
var (
	ReasonPlanBuilt      = Namespace.Success(1)
	ReasonNoIntentTokens = Namespace.Policy(1)
)

// Strategy names how a query was derived from the raw query.
type Strategy string

const (
	StrategyVerbatim        Strategy = "verbatim"
	StrategyKeywords        Strategy = "keywords"
	StrategyUntimed         Strategy = "untimed"
	StrategyUntimedKeywords Strategy = "untimed_keywords"
	StrategyHead            Strategy = "head"
)

// Validate rejects unknown strategies.
func (s Strategy) Validate() error {
	switch s {
	case StrategyVerbatim, StrategyKeywords, StrategyUntimed, StrategyUntimedKeywords, StrategyHead:
		return nil
	}
	return contract.Violate("strategy", contract.ReasonUnknownVariant)
}

// =============================================================================
// PAYLOAD
// =============================================================================

// Query is one candidate search query. Its id is its strategy.
type Query struct {
	QueryID    string   `json:"query_id"`
	Text       string   `json:"text"`
	Strategy   Strategy `json:"strategy"`
	CoverageBP int      `json:"coverage_bp"`
}

// Validate checks every field.
func (q Query) Validate() error {
	return contract.First(
		contract.CheckIdentifier("query.query_id", q.QueryID, contract.MaxIdentifierLen),
		contract.CheckText("query.text", q.Text, MaxRawQueryRunes),
		q.Strategy.Validate(),
		contract.CheckBasisPoints("query.coverage_bp", q.CoverageBP),
	)
}

func validateQueries(field string, queries []Query, max int, required bool) error {
	if err := contract.CheckCount(field, len(queries), max, required); err != nil {
		return err
	}
	ids := make([]string, len(queries))
	for i, q := range queries {
		if err := q.Validate(); err != nil {
			return err
		}
		ids[i] = q.QueryID
	}
	return contract.CheckUnique(field, ids)
}

// Plan is the build output: ranked queries and the selected one.
type Plan struct {
	IntentTokens    []string `json:"intent_tokens"`
	Queries         []Query  `json:"queries"`
	SelectedQueryID string   `json:"selected_query_id"`
}

// Validate checks the queries and that the selection refers to one of them.
func (p Plan) Validate() error {
	if err := contract.CheckCount("plan.intent_tokens", len(p.IntentTokens), MaxRawQueryRunes, true); err != nil {
		return err
	}
	if err := validateQueries("plan.queries", p.Queries, MaxPlanQueries, true); err != nil {
		return err
	}
	for _, q := range p.Queries {
		if q.QueryID == p.SelectedQueryID {
			return nil
		}
	}
	return contract.Violate("plan.selected_query_id", contract.ReasonInconsistent)
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isSearchPlanRequest()
}

// BuildRequest asks for a plan for RawQuery.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	RawQuery      string                 `json:"raw_query"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, rawQuery string) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, RawQuery: rawQuery}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the raw query.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		contract.CheckText("raw_query", r.RawQuery, MaxRawQueryRunes),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isSearchPlanRequest()              {}

// ValidateRequest asks whether Queries and SelectedQueryID are what a
// build for RawQuery would produce.
type ValidateRequest struct {
	SchemaVersion   contract.SchemaVersion `json:"schema_version"`
	Envelope        contract.Envelope      `json:"envelope"`
	RawQuery        string                 `json:"raw_query"`
	SelectedQueryID string                 `json:"selected_query_id"`
	Queries         []Query                `json:"queries"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, rawQuery, selectedQueryID string, queries []Query) (*ValidateRequest, error) {
	r := &ValidateRequest{
		SchemaVersion:   SchemaVersion,
		Envelope:        env,
		RawQuery:        rawQuery,
		SelectedQueryID: selectedQueryID,
		Queries:         queries,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the raw query and each supplied query.
// The supplied list may be longer than the plan ceiling so the surplus is
// reported as drift rather than rejected.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		contract.CheckText("raw_query", r.RawQuery, MaxRawQueryRunes),
		contract.CheckIdentifier("selected_query_id", r.SelectedQueryID, contract.MaxIdentifierLen),
		validateQueries("queries", r.Queries, contract.GlobalCeiling, true),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isSearchPlanRequest()              {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived plan.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Plan       Plan                `json:"plan"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(plan Plan) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonPlanBuilt, Plan: plan}
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
	if o.ReasonCode != ReasonPlanBuilt {
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

// TurnInput is what the orchestrator hands this domain each turn.
type TurnInput struct {
	wiring.Header
	RawQuery string `json:"raw_query"`
}

// Validate checks the header and the optional raw query.
func (t TurnInput) Validate() error {
	return contract.First(
		t.Header.Validate(),
		contract.CheckOptionalText("raw_query", t.RawQuery, MaxRawQueryRunes),
	)
}
