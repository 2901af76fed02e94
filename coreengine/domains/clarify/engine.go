package clarify

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Engine is the clarify capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		c, refused := clarify(op, r.Envelope, r.Ask)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(c))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

func clarify(op capability.Op, env contract.Envelope, ask Ask) (Clarification, *contract.Refuse) {
	required := capability.Index(ask.Required, func(f Field) string { return f.Name })
	for _, name := range ask.Provided {
		if _, ok := required[name]; !ok {
			return Clarification{}, capability.Refusal(op.Capability, ReasonUnknownFieldReference, "provided field is not required by the intent")
		}
	}

	provided := capability.TokenSet(ask.Provided)
	var missing []Field
	for _, f := range ask.Required {
		if _, ok := provided[f.Name]; !ok {
			missing = append(missing, f)
		}
	}

	limit := capability.EffectiveBudget(env.MaxCandidates, MaxQuestions)
	asked := capability.RankTopN(missing, limit, capability.ByScoreThenKey(
		func(f Field) int64 { return int64(f.Priority) },
		func(f Field) string { return f.Name },
	))

	c := Clarification{
		Intent:    ask.Intent,
		Complete:  len(missing) == 0,
		Missing:   len(missing),
		Questions: make([]Question, len(asked)),
	}
	for i, f := range asked {
		c.Questions[i] = Question{Field: f.Name, Prompt: f.Prompt}
	}
	return c, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	required := capability.Index(r.Ask.Required, func(f Field) string { return f.Name })
	for i, q := range r.Clarification.Questions {
		if _, ok := required[q.Field]; !ok {
			d.AddIndexed("question", i, "unknown_field")
		}
	}

	if expected, ok := capability.Rederive(d, func() (Clarification, *contract.Refuse) {
		return clarify(op, r.Envelope, r.Ask)
	}); ok {
		capability.DiffValue(d, "complete", expected.Complete, r.Clarification.Complete)
		capability.DiffValue(d, "missing", expected.Missing, r.Clarification.Missing)
		capability.DiffSeq(d, "question", expected.Questions, r.Clarification.Questions,
			capability.FieldOf("field", func(q Question) string { return q.Field }),
			capability.FieldOf("prompt", func(q Question) string { return q.Prompt }),
		)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
