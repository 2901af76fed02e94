// Package tenant resolves which tenant a turn belongs to from the hints the
// edge collected (explicit header, api key, subdomain, user default).
package tenant

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x010A

	CapabilityBuild    contract.CapabilityID = "TENANT_BUILD"
	CapabilityValidate contract.CapabilityID = "TENANT_VALIDATE"

	// MaxCandidates is the configured candidate list ceiling.
	MaxCandidates = 16
	MaxHints      = 8
	MaxDirectory  = contract.GlobalCeiling
	MaxSlugLen    = 63

	maxScore = 400
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxCandidates, MaxDiagnostics: 32}

var (
	ReasonResolved       = Namespace.Success(1)
	ReasonNoHints        = Namespace.Policy(1)
	ReasonTenantUnknown  = Namespace.Policy(2)
	ReasonTenantConflict = Namespace.Policy(3)
	ReasonTenantInactive = Namespace.Policy(4)
)

// Source is where a hint came from.
type Source string

const (
	SourceExplicit    Source = "explicit"
	SourceAPIKey      Source = "api_key"
	SourceSubdomain   Source = "subdomain"
	SourceUserDefault Source = "user_default"
)

// Validate rejects unknown sources.
func (s Source) Validate() error {
	switch s {
	case SourceExplicit, SourceAPIKey, SourceSubdomain, SourceUserDefault:
		return nil
	}
	return contract.Violate("source", contract.ReasonUnknownVariant)
}

// Weight is the base score of a match from s.
func (s Source) Weight() int {
	switch s {
	case SourceExplicit:
		return 400
	case SourceAPIKey:
		return 300
	case SourceSubdomain:
		return 200
	default:
		return 100
	}
}

// authoritative sources must agree with each other.
func (s Source) authoritative() bool {
	return s == SourceExplicit || s == SourceAPIKey
}

// Hint names a tenant by slug.
type Hint struct {
	Source Source `json:"source"`
	Slug   string `json:"slug"`
}

func (h Hint) Validate() error {
	return contract.First(
		h.Source.Validate(),
		contract.CheckIdentifier("hint.slug", h.Slug, MaxSlugLen),
	)
}

// Entry is one tenant in the directory.
type Entry struct {
	TenantID string `json:"tenant_id"`
	Slug     string `json:"slug"`
	Active   bool   `json:"active"`
}

func (e Entry) Validate() error {
	return contract.First(
		contract.CheckIdentifier("entry.tenant_id", e.TenantID, contract.MaxIdentifierLen),
		contract.CheckIdentifier("entry.slug", e.Slug, MaxSlugLen),
	)
}

func validateInputs(hints []Hint, directory []Entry) error {
	if err := contract.First(
		contract.CheckCount("hints", len(hints), MaxHints, false),
		contract.CheckCount("directory", len(directory), MaxDirectory, false),
	); err != nil {
		return err
	}
	for _, h := range hints {
		if err := h.Validate(); err != nil {
			return err
		}
	}
	ids := make([]string, len(directory))
	for i, e := range directory {
		if err := e.Validate(); err != nil {
			return err
		}
		ids[i] = e.TenantID
	}
	return contract.CheckUnique("directory", ids)
}

// Candidate is the best match found for one tenant.
type Candidate struct {
	TenantID string `json:"tenant_id"`
	Source   Source `json:"source"`
	Distance int    `json:"distance"`
	Score    int    `json:"score"`
}

func (c Candidate) Validate() error {
	return contract.First(
		contract.CheckIdentifier("candidate.tenant_id", c.TenantID, contract.MaxIdentifierLen),
		c.Source.Validate(),
		contract.CheckRange("candidate.distance", int64(c.Distance), 0, 1),
		contract.CheckRange("candidate.score", int64(c.Score), 0, maxScore),
	)
}

// Resolution is the build output. Candidates[0] is the resolved tenant.
type Resolution struct {
	TenantID   string      `json:"tenant_id"`
	Candidates []Candidate `json:"candidates"`
}

// Validate checks each candidate and that candidate tenants are unique.
func (r Resolution) Validate() error {
	if err := contract.First(
		contract.CheckIdentifier("resolution.tenant_id", r.TenantID, contract.MaxIdentifierLen),
		contract.CheckCount("resolution.candidates", len(r.Candidates), contract.GlobalCeiling, true),
	); err != nil {
		return err
	}
	ids := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		if err := c.Validate(); err != nil {
			return err
		}
		ids[i] = c.TenantID
	}
	return contract.CheckUnique("resolution.candidates", ids)
}

// consistent checks that the resolved tenant heads the candidate list.
func (r Resolution) consistent() error {
	if r.Candidates[0].TenantID != r.TenantID {
		return contract.Violate("resolution.tenant_id", contract.ReasonInconsistent)
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isTenantRequest()
}

// BuildRequest asks for the resolution derived from Hints against Directory.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Hints         []Hint                 `json:"hints"`
	Directory     []Entry                `json:"directory"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, hints []Hint, directory []Entry) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Hints: hints, Directory: directory}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the hints and directory.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		validateInputs(r.Hints, r.Directory),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isTenantRequest()                  {}

// ValidateRequest asks whether Resolution is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Hints         []Hint                 `json:"hints"`
	Directory     []Entry                `json:"directory"`
	Resolution    Resolution             `json:"resolution"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, hints []Hint, directory []Entry, res Resolution) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Hints: hints, Directory: directory, Resolution: res}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the hints and directory and the supplied resolution.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		validateInputs(r.Hints, r.Directory),
		r.Resolution.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isTenantRequest()                  {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived resolution.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Resolution Resolution          `json:"resolution"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(res Resolution) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonResolved, Resolution: res}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the resolution.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonResolved {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return contract.First(o.Resolution.Validate(), o.Resolution.consistent())
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
	Hints     []Hint  `json:"hints"`
	Directory []Entry `json:"directory"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
