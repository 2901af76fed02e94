// Package export decides which fields a requester may export and which are
// redacted.
package export

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0102

	CapabilityBuild    contract.CapabilityID = "EXPORT_BUILD"
	CapabilityValidate contract.CapabilityID = "EXPORT_VALIDATE"

	// MaxExportFields is the configured field ceiling.
	MaxExportFields = 64
	MaxFields       = contract.GlobalCeiling
	MaxPriority     = 1000
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxExportFields, MaxDiagnostics: 32}

var (
	ReasonGranted           = Namespace.Success(1)
	ReasonNoFields          = Namespace.Policy(1)
	ReasonConsentRequired   = Namespace.Policy(2)
	ReasonNothingExportable = Namespace.Policy(3)
)

// Sensitivity orders data classes: public < internal < restricted.
type Sensitivity string

const (
	SensitivityPublic     Sensitivity = "public"
	SensitivityInternal   Sensitivity = "internal"
	SensitivityRestricted Sensitivity = "restricted"
)

func (s Sensitivity) level() int {
	switch s {
	case SensitivityPublic:
		return 0
	case SensitivityInternal:
		return 1
	case SensitivityRestricted:
		return 2
	}
	return -1
}

// Validate rejects unknown sensitivities.
func (s Sensitivity) Validate() error {
	if s.level() < 0 {
		return contract.Violate("sensitivity", contract.ReasonUnknownVariant)
	}
	return nil
}

// Role is the requester's role.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleAnalyst Role = "analyst"
	RoleAdmin   Role = "admin"
)

// Validate rejects unknown roles.
func (r Role) Validate() error {
	switch r {
	case RoleViewer, RoleAnalyst, RoleAdmin:
		return nil
	}
	return contract.Violate("role", contract.ReasonUnknownVariant)
}

// Clearance is the most sensitive class the role may export.
func (r Role) Clearance() Sensitivity {
	switch r {
	case RoleAdmin:
		return SensitivityRestricted
	case RoleAnalyst:
		return SensitivityInternal
	default:
		return SensitivityPublic
	}
}

// Cleared reports whether r may export data of class s.
func (r Role) Cleared(s Sensitivity) bool {
	return s.level() <= r.Clearance().level()
}

// Field is one requested column.
type Field struct {
	Name        string      `json:"name"`
	Sensitivity Sensitivity `json:"sensitivity"`
	Priority    int         `json:"priority"`
}

func (f Field) Validate() error {
	return contract.First(
		contract.CheckCode("field.name", f.Name, contract.MaxIdentifierLen),
		f.Sensitivity.Validate(),
		contract.CheckRange("field.priority", int64(f.Priority), 0, MaxPriority),
	)
}

// Export is what the requester asked for.
type Export struct {
	Role    Role    `json:"role"`
	Consent bool    `json:"consent"`
	Purpose string  `json:"purpose"`
	Fields  []Field `json:"fields"`
}

// Validate checks the requester and that field names are unique.
func (e Export) Validate() error {
	if err := contract.First(
		e.Role.Validate(),
		contract.CheckCode("purpose", e.Purpose, contract.MaxIdentifierLen),
		contract.CheckCount("fields", len(e.Fields), MaxFields, false),
	); err != nil {
		return err
	}
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
		names[i] = f.Name
	}
	return contract.CheckUnique("fields", names)
}

// Grant is the build output. Both lists are ranked priority desc, name asc.
type Grant struct {
	Purpose  string   `json:"purpose"`
	Granted  []string `json:"granted"`
	Redacted []string `json:"redacted"`
}

// Validate checks the purpose and each granted or redacted field name.
func (g Grant) Validate() error {
	if err := contract.First(
		contract.CheckCode("grant.purpose", g.Purpose, contract.MaxIdentifierLen),
		contract.CheckCount("grant.granted", len(g.Granted), MaxFields, true),
		contract.CheckCount("grant.redacted", len(g.Redacted), MaxFields, false),
	); err != nil {
		return err
	}
	for _, n := range append(append([]string(nil), g.Granted...), g.Redacted...) {
		if err := contract.CheckCode("grant.field", n, contract.MaxIdentifierLen); err != nil {
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
	isExportRequest()
}

// BuildRequest asks for the grant derived from Export.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Export        Export                 `json:"export"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, e Export) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Export: e}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the export request.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Export.Validate(),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isExportRequest()                  {}

// ValidateRequest asks whether Grant is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Export        Export                 `json:"export"`
	Grant         Grant                  `json:"grant"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, e Export, g Grant) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Export: e, Grant: g}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the export request and the supplied grant.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Export.Validate(),
		r.Grant.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isExportRequest()                  {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived grant.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Grant      Grant               `json:"grant"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(g Grant) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonGranted, Grant: g}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the grant.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonGranted {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return o.Grant.Validate()
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
	Export *Export `json:"export,omitempty"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
