package searchplan

import (
	"strings"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

var (
	wakeAndFillers = capability.TokenSet([]string{
		"selene", "please", "hey", "ok", "okay", "could", "would", "can", "you",
		"me", "tell", "show", "what", "whats", "is", "the",
	})
	connectives = capability.TokenSet([]string{
		"in", "at", "on", "for", "of", "a", "an", "to", "and",
	})
	temporal = capability.TokenSet([]string{
		"today", "tomorrow", "tonight", "now", "yesterday", "weekend", "morning", "evening",
	})
)

// Engine is the searchplan capability engine. The zero value is ready to use.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		return build(r)
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

// =============================================================================
// BUILD
// =============================================================================

func build(r *BuildRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
	plan, refused := derive(r.Envelope, r.RawQuery)
	if refused != nil {
		return refused
	}
	return op.Complete(NewBuildOKV1(plan))
}

// terms splits a raw query into filtered tokens (wake word and fillers
// removed) and intent tokens (connectives also removed).
func terms(rawQuery string) (filtered, intent []string) {
	for _, tok := range capability.Tokens(rawQuery) {
		if _, skip := wakeAndFillers[tok]; skip {
			continue
		}
		filtered = append(filtered, tok)
		if _, conn := connectives[tok]; !conn {
			intent = append(intent, tok)
		}
	}
	return filtered, intent
}

func without(tokens []string, drop map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, skip := drop[t]; !skip {
			out = append(out, t)
		}
	}
	return out
}

type candidate struct {
	query   Query
	ordinal int
}

// derive is shared by build and validate.
func derive(env contract.Envelope, rawQuery string) (Plan, *contract.Refuse) {
	filtered, intent := terms(rawQuery)
	if len(intent) == 0 {
		return Plan{}, capability.Refusal(CapabilityBuild, ReasonNoIntentTokens, "query has no intent tokens")
	}

	intentSet := capability.TokenSet(intent)
	variants := []struct {
		strategy Strategy
		tokens   []string
	}{
		{StrategyVerbatim, filtered},
		{StrategyKeywords, intent},
		{StrategyUntimed, without(filtered, temporal)},
		{StrategyUntimedKeywords, without(intent, temporal)},
		{StrategyHead, intent[:1]},
	}

	candidates := make([]candidate, 0, len(variants))
	for i, v := range variants {
		if len(v.tokens) == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			ordinal: i,
			query: Query{
				QueryID:    string(v.strategy),
				Text:       strings.Join(v.tokens, " "),
				Strategy:   v.strategy,
				CoverageBP: coverage(v.tokens, intentSet),
			},
		})
	}

	candidates = capability.Dedupe(candidates, func(c candidate) string {
		return capability.Canonicalize(c.query.Text)
	})
	ranked := capability.RankTopN(
		candidates,
		capability.EffectiveBudget(env.MaxCandidates, MaxPlanQueries),
		capability.ByScoreThenKey(
			func(c candidate) int64 { return int64(c.query.CoverageBP) },
			func(c candidate) int { return c.ordinal },
		),
	)

	queries := make([]Query, len(ranked))
	for i, c := range ranked {
		queries[i] = c.query
	}
	return Plan{
		IntentTokens:    uniqueTokens(intent),
		Queries:         queries,
		SelectedQueryID: queries[0].QueryID,
	}, nil
}

// coverage is the share of distinct intent tokens present in tokens.
func coverage(tokens []string, intentSet map[string]struct{}) int {
	have := capability.TokenSet(tokens)
	hit := 0
	for t := range intentSet {
		if _, ok := have[t]; ok {
			hit++
		}
	}
	return capability.BasisPoints(int64(hit), int64(len(intentSet)))
}

func uniqueTokens(tokens []string) []string {
	return capability.Dedupe(tokens, func(t string) string { return t })
}

// =============================================================================
// VALIDATE
// =============================================================================

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	_, intent := terms(r.RawQuery)
	intentSet := capability.TokenSet(intent)
	for i, q := range r.Queries {
		if !capability.SharesToken(capability.Tokens(q.Text), intentSet) {
			d.AddIndexed("query", i, "not_intent_anchored")
		}
	}

	expected, derived := capability.Rederive(d, func() (Plan, *contract.Refuse) {
		return derive(r.Envelope, r.RawQuery)
	})
	if derived {
		capability.DiffSeq(d, "query", expected.Queries, r.Queries,
			capability.FieldOf("text", func(q Query) string { return q.Text }),
			capability.FieldOf("strategy", func(q Query) Strategy { return q.Strategy }),
			capability.FieldOf("coverage", func(q Query) int { return q.CoverageBP }),
		)
	}

	if _, found := capability.Index(r.Queries, queryID)[r.SelectedQueryID]; !found {
		d.Add("selected_query_missing")
	} else if derived {
		capability.DiffValue(d, "selected_query", expected.SelectedQueryID, r.SelectedQueryID)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}

func queryID(q Query) string { return q.QueryID }
