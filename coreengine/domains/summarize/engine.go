package summarize

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Score blend weights, in percent.
const (
	WeightRelevance = 45
	WeightPosition  = 35
	WeightLength    = 20
)

// Sentences with a token count in [IdealMinTokens, IdealMaxTokens] get the
// full length score.
const (
	IdealMinTokens = 8
	IdealMaxTokens = 30
)

// Engine is the summarize capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		s, refused := summarize(op, r.Envelope, r.Sentences)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(s))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

// LengthScore rates a sentence of n tokens in basis points.
func LengthScore(n int) int {
	switch {
	case n <= 0:
		return 0
	case n < IdealMinTokens:
		return n * 10000 / IdealMinTokens
	case n > IdealMaxTokens:
		return IdealMaxTokens * 10000 / n
	default:
		return 10000
	}
}

// PositionScore favors sentences early in the document.
func PositionScore(i, n int) int {
	return 10000 - i*10000/n
}

func summarize(op capability.Op, env contract.Envelope, sentences []Sentence) (Summary, *contract.Refuse) {
	unique := capability.Dedupe(sentences, func(s Sentence) string { return capability.Canonicalize(s.Text) })
	if len(unique) == 0 {
		return Summary{}, capability.Refusal(op.Capability, ReasonNoSentences, "no sentences to summarize")
	}

	scored := make([]Selection, len(unique))
	for i, s := range unique {
		blend := WeightRelevance*s.RelevanceBP +
			WeightPosition*PositionScore(i, len(unique)) +
			WeightLength*LengthScore(len(capability.Tokens(s.Text)))
		scored[i] = Selection{SentenceID: s.SentenceID, ScoreBP: blend / 100}
	}

	limit := capability.EffectiveBudget(env.MaxCandidates, MaxSelected)
	return Summary{Selected: capability.RankTopN(scored, limit, capability.ByScoreThenKey(
		func(s Selection) int64 { return int64(s.ScoreBP) },
		func(s Selection) string { return s.SentenceID },
	))}, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	known := capability.Index(r.Sentences, func(s Sentence) string { return s.SentenceID })
	for i, sel := range r.Summary.Selected {
		if _, ok := known[sel.SentenceID]; !ok {
			d.AddIndexed("sentence", i, "unknown_reference")
		}
	}

	if expected, ok := capability.Rederive(d, func() (Summary, *contract.Refuse) {
		return summarize(op, r.Envelope, r.Sentences)
	}); ok {
		capability.DiffSeq(d, "sentence", expected.Selected, r.Summary.Selected,
			capability.FieldOf("id", func(s Selection) string { return s.SentenceID }),
			capability.FieldOf("score", func(s Selection) int { return s.ScoreBP }),
		)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
