// Package summarize picks the sentences of an extractive summary.
package summarize

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const (
	SchemaVersion contract.SchemaVersion = 1
	Namespace     contract.Namespace     = 0x0109

	CapabilityBuild    contract.CapabilityID = "SUMMARIZE_BUILD"
	CapabilityValidate contract.CapabilityID = "SUMMARIZE_VALIDATE"

	// MaxSelected is the configured summary length ceiling.
	MaxSelected      = 16
	MaxSentences     = contract.GlobalCeiling
	MaxSentenceRunes = 1024
)

// HardCaps bound the envelope ceilings this domain accepts.
var HardCaps = contract.Caps{MaxCandidates: MaxSelected, MaxDiagnostics: 32}

var (
	ReasonSummarized  = Namespace.Success(1)
	ReasonNoSentences = Namespace.Policy(1)
)

// Sentence is one candidate sentence in document order.
type Sentence struct {
	SentenceID  string `json:"sentence_id"`
	Text        string `json:"text"`
	RelevanceBP int    `json:"relevance_bp"`
}

func (s Sentence) Validate() error {
	return contract.First(
		contract.CheckIdentifier("sentence.sentence_id", s.SentenceID, contract.MaxIdentifierLen),
		contract.CheckText("sentence.text", s.Text, MaxSentenceRunes),
		contract.CheckBasisPoints("sentence.relevance_bp", s.RelevanceBP),
	)
}

func validateSentences(sentences []Sentence) error {
	if err := contract.CheckCount("sentences", len(sentences), MaxSentences, false); err != nil {
		return err
	}
	ids := make([]string, len(sentences))
	for i, s := range sentences {
		if err := s.Validate(); err != nil {
			return err
		}
		ids[i] = s.SentenceID
	}
	return contract.CheckUnique("sentences", ids)
}

// Selection is one chosen sentence and its blended score.
type Selection struct {
	SentenceID string `json:"sentence_id"`
	ScoreBP    int    `json:"score_bp"`
}

func (s Selection) Validate() error {
	return contract.First(
		contract.CheckIdentifier("selection.sentence_id", s.SentenceID, contract.MaxIdentifierLen),
		contract.CheckBasisPoints("selection.score_bp", s.ScoreBP),
	)
}

// Summary is the build output, best sentence first.
type Summary struct {
	Selected []Selection `json:"selected"`
}

// Validate checks each selection.
func (s Summary) Validate() error {
	if err := contract.CheckCount("summary.selected", len(s.Selected), MaxSentences, true); err != nil {
		return err
	}
	ids := make([]string, len(s.Selected))
	for i, sel := range s.Selected {
		if err := sel.Validate(); err != nil {
			return err
		}
		ids[i] = sel.SentenceID
	}
	return contract.CheckUnique("summary.selected", ids)
}

// =============================================================================
// REQUESTS
// =============================================================================

// Request is implemented by BuildRequest and ValidateRequest only.
type Request interface {
	contract.Request
	isSummarizeRequest()
}

// BuildRequest asks for the summary derived from Sentences.
type BuildRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Sentences     []Sentence             `json:"sentences"`
}

// NewBuildRequestV1 builds and validates a BuildRequest.
func NewBuildRequestV1(env contract.Envelope, sentences []Sentence) (*BuildRequest, error) {
	r := &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env, Sentences: sentences}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope and the sentences.
func (r *BuildRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		validateSentences(r.Sentences),
	)
}

func (*BuildRequest) Capability() contract.CapabilityID { return CapabilityBuild }
func (*BuildRequest) isSummarizeRequest()               {}

// ValidateRequest asks whether Summary is what a build over the same
// input would produce.
type ValidateRequest struct {
	SchemaVersion contract.SchemaVersion `json:"schema_version"`
	Envelope      contract.Envelope      `json:"envelope"`
	Sentences     []Sentence             `json:"sentences"`
	Summary       Summary                `json:"summary"`
}

// NewValidateRequestV1 builds and validates a ValidateRequest.
func NewValidateRequestV1(env contract.Envelope, sentences []Sentence, summary Summary) (*ValidateRequest, error) {
	r := &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, Sentences: sentences, Summary: summary}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks schema, envelope, the sentences and the supplied summary.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	return contract.First(
		contract.CheckSchema(r.SchemaVersion, SchemaVersion),
		contract.CheckEnvelope(r.Envelope, HardCaps),
		validateSentences(r.Sentences),
		r.Summary.Validate(),
	)
}

func (*ValidateRequest) Capability() contract.CapabilityID { return CapabilityValidate }
func (*ValidateRequest) isSummarizeRequest()               {}

// =============================================================================
// RESPONSES
// =============================================================================

// BuildOK carries the derived summary.
type BuildOK struct {
	ReasonCode contract.ReasonCode `json:"reason_code"`
	Summary    Summary             `json:"summary"`
}

// NewBuildOKV1 builds and validates a BuildOK.
func NewBuildOKV1(s Summary) (*BuildOK, error) {
	ok := &BuildOK{ReasonCode: ReasonSummarized, Summary: s}
	if err := ok.Validate(); err != nil {
		return nil, err
	}
	return ok, nil
}

// Validate checks the reason code and the summary.
func (o *BuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	if o.ReasonCode != ReasonSummarized {
		return contract.Violate("build_ok.reason_code", contract.ReasonWrongReasonClass)
	}
	return o.Summary.Validate()
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
	Sentences []Sentence `json:"sentences"`
}

// Validate checks the turn identity and any domain input.
func (t TurnInput) Validate() error {
	return t.Header.Validate()
}
