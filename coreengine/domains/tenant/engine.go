package tenant

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

const (
	// FuzzyMinRunes is the shortest slug that may match at distance 1.
	FuzzyMinRunes = 5
	// DistancePenalty is subtracted from the source weight per edit.
	DistancePenalty = 50
)

// Engine is the tenant resolution capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		res, refused := resolve(op, r.Envelope, r.Hints, r.Directory)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(res))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

// SlugDistance returns the edit distance between two slugs and whether it
// is close enough to count as a match.
func SlugDistance(hint, slug string) (int, bool) {
	a, b := capability.Canonicalize(hint), capability.Canonicalize(slug)
	if a == b {
		return 0, true
	}
	if utf8.RuneCountInString(a) < FuzzyMinRunes || utf8.RuneCountInString(b) < FuzzyMinRunes {
		return 0, false
	}
	dist := levenshtein.ComputeDistance(a, b)
	return dist, dist == 1
}

func matches(hints []Hint, directory []Entry) []Candidate {
	var out []Candidate
	for _, h := range hints {
		for _, e := range directory {
			dist, ok := SlugDistance(h.Slug, e.Slug)
			if !ok {
				continue
			}
			out = append(out, Candidate{
				TenantID: e.TenantID,
				Source:   h.Source,
				Distance: dist,
				Score:    h.Source.Weight() - DistancePenalty*dist,
			})
		}
	}
	return out
}

func resolve(op capability.Op, env contract.Envelope, hints []Hint, directory []Entry) (Resolution, *contract.Refuse) {
	refuse := func(code contract.ReasonCode, msg string) (Resolution, *contract.Refuse) {
		return Resolution{}, capability.Refusal(op.Capability, code, msg)
	}
	if len(hints) == 0 {
		return refuse(ReasonNoHints, "no tenant hints")
	}

	ranked := capability.Dedupe(
		capability.Rank(matches(hints, directory), capability.ByScoreThenKey(
			func(c Candidate) int64 { return int64(c.Score) },
			func(c Candidate) string { return c.TenantID },
		)),
		func(c Candidate) string { return c.TenantID },
	)
	if len(ranked) == 0 {
		return refuse(ReasonTenantUnknown, "no tenant matches the hints")
	}

	var authoritative []string
	for _, c := range ranked {
		if c.Source.authoritative() {
			authoritative = append(authoritative, c.TenantID)
		}
	}
	winner := ranked[0]
	active := directory[capability.Index(directory, func(e Entry) string { return e.TenantID })[winner.TenantID]].Active

	if g := capability.FirstBlocked(
		capability.When(len(authoritative) >= 2, ReasonTenantConflict, "authoritative hints name different tenants"),
		capability.When(!active, ReasonTenantInactive, "resolved tenant is inactive"),
	); g != nil {
		return refuse(g.Code, g.Message)
	}

	limit := capability.EffectiveBudget(env.MaxCandidates, MaxCandidates)
	return Resolution{TenantID: winner.TenantID, Candidates: capability.TopN(ranked, limit)}, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	known := capability.Index(r.Directory, func(e Entry) string { return e.TenantID })
	if _, ok := known[r.Resolution.TenantID]; !ok {
		d.Add("resolved_tenant_unknown_reference")
	}

	if expected, ok := capability.Rederive(d, func() (Resolution, *contract.Refuse) {
		return resolve(op, r.Envelope, r.Hints, r.Directory)
	}); ok {
		capability.DiffValue(d, "resolved_tenant", expected.TenantID, r.Resolution.TenantID)
		capability.DiffSeq(d, "candidate", expected.Candidates, r.Resolution.Candidates,
			capability.FieldOf("tenant", func(c Candidate) string { return c.TenantID }),
			capability.FieldOf("source", func(c Candidate) Source { return c.Source }),
			capability.FieldOf("score", func(c Candidate) int { return c.Score }),
		)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
