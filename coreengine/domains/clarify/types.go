// Package clarify chooses the follow-up questions to ask when an intent is
// missing required fields.
package clarify

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0105

	CapabilityBuild    contract.CapabilityID = "CLARIFY_BUILD"
	CapabilityValidate contract.CapabilityID = "CLARIFY_VALIDATE"

	// MaxQuestions is the configured question ceiling.
	MaxQuestions = 5
	MaxFields    = 64
	MaxPriority  = 1000
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxQuestions, MaxDiagnostics: 32}

var (
	ReasonClarified             = Namespace.Success(1)
	ReasonUnknownFieldReference = Namespace.Policy(1)
)

// Field is a slot the intent needs before it can run.
type Field struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Prompt   string `json:"prompt"`
}

// Validate checks every field.
func (f Field) Validate() error {
	return contract.First(
		contract.CheckCode("field.name", f.Name, contract.MaxIdentifierLen),
		contract.CheckRange("field.priority", int64(f.Priority), 0, MaxPriority),
		contract.CheckText("field.prompt", f.Prompt, contract.MaxMessageRunes),
	)
}

// Ask is what the turn knows about the intent.
type Ask struct {
	Intent   string   `json:"intent"`
	Required []Field  `json:"required"`
	Provided []string `json:"provided"`
}

// Validate checks the intent and that required field names are unique.
func (a Ask) Validate() error {
	if err := contract.First(
		contract.CheckCode("intent", a.Intent, contract.MaxIdentifierLen),
		contract.CheckCount("required", len(a.Required), MaxFields, false),
		contract.CheckCount("provided", len(a.Provided), MaxFields, false),
	); err != nil {
		return err
	}
	names := make([]string, len(a.Required))
	for i, f := range a.Required {
		if err := f.Validate(); err != nil {
			return err
		}
		names[i] = f.Name
	}
	for _, p := range a.Provided {
		if err := contract.CheckCode("provided", p, contract.MaxIdentifierLen); err != nil {
			return err
		}
	}
	return contract.First(
		contract.CheckUnique("required", names),
		contract.CheckUnique("provided", a.Provided),
	)
}

// Question asks for one missing field.
type Question struct {
	Field  string `json:"field"`
	Prompt string `json:"prompt"`
}

func (q Question) Validate() error {
	return contract.First(
		contract.CheckCode("question.field", q.Field, contract.MaxIdentifierLen),
		contract.CheckText("question.prompt", q.Prompt, contract.MaxMessageRunes),
	)
}

// Clarification is the build output.
type Clarification struct {
	Intent    string     `json:"intent"`
	Complete  bool       `json:"complete"`
	Missing   int        `json:"missing"`
	Questions []Question `json:"questions"`
}

// Validate checks each question and that question fields are unique.
func (c Clarification) Validate() error {
	if err := contract.First(
		contract.CheckCode("clarification.intent", c.Intent, contract.MaxIdentifierLen),
		contract.CheckRange("clarification.missing", int64(c.Missing), 0, MaxFields),
		contract.CheckCount("clarification.questions", len(c.Questions), MaxFields, false),
	); err != nil {
		return err
	}
	names := make([]string, len(c.Questions))
	for i, q := range c.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
		names[i] = q.Field
	}
	return contract.CheckUnique("clarification.questions", names)
}

func (c Clarification) consistent() error {
	if c.Complete != (c.Missing == 0) || len(c.Questions) > c.Missing {
		return contract.Violate("clarification.complete", contract.ReasonInconsistent)
	}
	if c.Missing > 0 && len(c.Questions) == 0 {
		return contract.Violate("clarification.questions", contract.ReasonInconsistent)
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isClarifyRequest()
}

// BuildRequest asks for the clarification derived from Ask.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Ask           Ask                    `json:"ask"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, ask Ask) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Ask: ask}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the ask.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Ask.Validate(),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isClarifyRequest()                 {}

// ValidateRequest asks whether Clarification is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Ask           Ask                    `json:"ask"`
	Clarification Clarification          `json:"clarification"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, ask Ask, c Clarification) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Ask: ask, Clarification: c}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the ask and the supplied clarification.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Ask.Validate(),
		r.Clarification.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isClarifyRequest()                 {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived clarification.
type BuildOK struct {
	ReasonCode    contract.ReasonCode `json:"reason_code"`
	Clarification Clarification       `json:"clarification"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(c Clarification) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonClarified, Clarification: c}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the clarification.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonClarified {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return contract.First(o.Clarification.Validate(), o.Clarification.consistent())
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
	Ask *Ask `json:"ask,omitempty"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
