// Package lexicon applies a pronunciation lexicon to the text of a spoken
// response.
package lexicon

import (
	"golang.org/x/text/language"

	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0104

	CapabilityBuild    contract.CapabilityID = "LEXICON_BUILD"
	CapabilityValidate contract.CapabilityID = "LEXICON_VALIDATE"

	// MaxApplications is the configured application ceiling.
	MaxApplications  = 32
	MaxEntries       = contract.GlobalCeiling
	MaxTextRunes     = 1024
	MaxGraphemeRunes = 64
	MaxPhonemeRunes  = 128
	MaxPriority      = 1000
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxApplications, MaxDiagnostics: 32}

var (
	ReasonApplied      = Namespace.Success(1)
	ReasonEmptyLexicon = Namespace.Policy(1)
)

// Locale is a BCP-47 subset: "xx" or "xx-YY".
type Locale string

// Validate requires a registered language tag, then the two accepted shapes.
func (l Locale) Validate() error {
	s := string(l)
	if _, err := language.Parse(s); err != nil {
		return contract.Violate("locale", contract.ReasonBadCharset)
	}
	lower := func(c byte) bool { return c >= 'a' && c <= 'z' }
	upper := func(c byte) bool { return c >= 'A' && c <= 'Z' }
	switch {
	case len(s) == 2 && lower(s[0]) && lower(s[1]):
		return nil
	case len(s) == 5 && lower(s[0]) && lower(s[1]) && s[2] == '-' && upper(s[3]) && upper(s[4]):
		return nil
	}
	return contract.Violate("locale", contract.ReasonBadCharset)
}

// Entry maps a written form to its pronunciation.
type Entry struct {
	EntryID  string `json:"entry_id"`
	Grapheme string `json:"grapheme"`
	Phoneme  string `json:"phoneme"`
	Priority int    `json:"priority"`
}

// Validate checks every field.
func (e Entry) Validate() error {
	return contract.First(
		contract.CheckIdentifier("entry.entry_id", e.EntryID, contract.MaxIdentifierLen),
		contract.CheckText("entry.grapheme", e.Grapheme, MaxGraphemeRunes),
		contract.CheckText("entry.phoneme", e.Phoneme, MaxPhonemeRunes),
		contract.CheckRange("entry.priority", int64(e.Priority), 0, MaxPriority),
	)
}

// Utterance is the text to speak and the lexicon to apply.
type Utterance struct {
	Locale  Locale  `json:"locale"`
	Text    string  `json:"text"`
	Entries []Entry `json:"entries"`
}

// Validate checks the text, locale and that entry ids are unique.
func (u Utterance) Validate() error {
	if err := contract.First(
		u.Locale.Validate(),
		contract.CheckText("text", u.Text, MaxTextRunes),
		contract.CheckCount("entries", len(u.Entries), MaxEntries, false),
	); err != nil {
		return err
	}
	ids := make([]string, len(u.Entries))
	for i, e := range u.Entries {
		if err := e.Validate(); err != nil {
			return err
		}
		ids[i] = e.EntryID
	}
	return contract.CheckUnique("entries", ids)
}

// MatchKind says how a token matched its entry.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
)

// Validate rejects unknown match kinds.
func (m MatchKind) Validate() error {
	switch m {
	case MatchExact, MatchFuzzy:
		return nil
	}
	return contract.Violate("match", contract.ReasonUnknownVariant)
}

// Application replaces one text token with an entry's phoneme.
type Application struct {
	TokenIndex int       `json:"token_index"`
	Token      string    `json:"token"`
	EntryID    string    `json:"entry_id"`
	Phoneme    string    `json:"phoneme"`
	Match      MatchKind `json:"match"`
	Score      int       `json:"score"`
}

func (a Application) Validate() error {
	return contract.First(
		contract.CheckRange("application.token_index", int64(a.TokenIndex), 0, MaxTextRunes),
		contract.CheckText("application.token", a.Token, MaxTextRunes),
		contract.CheckIdentifier("application.entry_id", a.EntryID, contract.MaxIdentifierLen),
		contract.CheckText("application.phoneme", a.Phoneme, MaxPhonemeRunes),
		a.Match.Validate(),
		contract.CheckRange("application.score", int64(a.Score), 0, ExactScore+MaxPriority),
	)
}

// Rendering is the build output, best application first.
type Rendering struct {
	Locale       Locale        `json:"locale"`
	Applications []Application `json:"applications"`
}

// Validate checks the locale and each application.
func (r Rendering) Validate() error {
	if err := contract.First(
		r.Locale.Validate(),
		contract.CheckCount("rendering.applications", len(r.Applications), contract.GlobalCeiling, false),
	); err != nil {
		return err
	}
	for _, a := range r.Applications {
		if err := a.Validate(); err != nil {
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
	isLexiconRequest()
}

// BuildRequest asks for the rendering derived from Utterance.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Utterance     Utterance              `json:"utterance"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, u Utterance) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Utterance: u}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the utterance.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Utterance.Validate(),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isLexiconRequest()                 {}

// ValidateRequest asks whether Rendering is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Utterance     Utterance              `json:"utterance"`
	Rendering     Rendering              `json:"rendering"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, u Utterance, rendering Rendering) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Utterance: u, Rendering: rendering}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the utterance and the supplied rendering.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		r.Utterance.Validate(),
		r.Rendering.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isLexiconRequest()                 {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived rendering.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Rendering  Rendering           `json:"rendering"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(rendering Rendering) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonApplied, Rendering: rendering}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the rendering.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonApplied {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return o.Rendering.Validate()
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
	Utterance *Utterance `json:"utterance,omitempty"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
