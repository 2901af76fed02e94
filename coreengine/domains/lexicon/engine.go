package lexicon

import (
	"cmp"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Match scores before the entry priority is added.
const (
	ExactScore = 10000
	FuzzyScore = 5000

	// FuzzyMinRunes is the shortest token that may match at distance 1.
	FuzzyMinRunes = 4
)

// Engine is the lexicon capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		rendering, refused := apply(op, r.Envelope, r.Utterance)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(rendering))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

type keyed struct {
	Entry
	key string
}

// effectiveEntries keeps one entry per canonical grapheme: highest priority,
// then lowest id.
func effectiveEntries(entries []Entry) []keyed {
	ks := make([]keyed, len(entries))
	for i, e := range entries {
		ks[i] = keyed{Entry: e, key: capability.Canonicalize(e.Grapheme)}
	}
	ranked := capability.Rank(ks, capability.ByScoreThenKey(
		func(k keyed) int64 { return int64(k.Priority) },
		func(k keyed) string { return k.EntryID },
	))
	return capability.Dedupe(ranked, func(k keyed) string { return k.key })
}

// bestMatch returns the highest scoring entry for token, if any.
func bestMatch(token string, entries []keyed) (Application, bool) {
	var best Application
	found := false
	for _, e := range entries {
		var a Application
		switch {
		case token == e.key:
			a = Application{EntryID: e.EntryID, Phoneme: e.Phoneme, Match: MatchExact, Score: ExactScore + e.Priority}
		case utf8.RuneCountInString(token) >= FuzzyMinRunes && levenshtein.ComputeDistance(token, e.key) <= 1:
			a = Application{EntryID: e.EntryID, Phoneme: e.Phoneme, Match: MatchFuzzy, Score: FuzzyScore + e.Priority}
		default:
			continue
		}
		if !found || a.Score > best.Score || a.Score == best.Score && a.EntryID < best.EntryID {
			best, found = a, true
		}
	}
	return best, found
}

func apply(op capability.Op, env contract.Envelope, u Utterance) (Rendering, *contract.Refuse) {
	if len(u.Entries) == 0 {
		return Rendering{}, capability.Refusal(op.Capability, ReasonEmptyLexicon, "lexicon has no entries")
	}

	entries := effectiveEntries(u.Entries)
	apps := []Application{}
	for i, tok := range capability.Tokens(u.Text) {
		if a, ok := bestMatch(tok, entries); ok {
			a.TokenIndex, a.Token = i, tok
			apps = append(apps, a)
		}
	}

	limit := capability.EffectiveBudget(env.MaxCandidates, MaxApplications)
	return Rendering{
		Locale: u.Locale,
		Applications: capability.RankTopN(apps, limit, func(a, b Application) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			if c := cmp.Compare(a.TokenIndex, b.TokenIndex); c != 0 {
				return c
			}
			return cmp.Compare(a.EntryID, b.EntryID)
		}),
	}, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	known := capability.Index(r.Utterance.Entries, func(e Entry) string { return e.EntryID })
	for i, a := range r.Rendering.Applications {
		if _, ok := known[a.EntryID]; !ok {
			d.AddIndexed("application", i, "unknown_entry")
		}
	}

	if expected, ok := capability.Rederive(d, func() (Rendering, *contract.Refuse) {
		return apply(op, r.Envelope, r.Utterance)
	}); ok {
		capability.DiffValue(d, "locale", expected.Locale, r.Rendering.Locale)
		capability.DiffSeq(d, "application", expected.Applications, r.Rendering.Applications,
			capability.FieldOf("token_index", func(a Application) int { return a.TokenIndex }),
			capability.FieldOf("entry", func(a Application) string { return a.EntryID }),
			capability.FieldOf("phoneme", func(a Application) string { return a.Phoneme }),
			capability.FieldOf("score", func(a Application) int { return a.Score }),
		)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
