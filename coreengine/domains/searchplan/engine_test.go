package searchplan

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/testutil"
)

const sanFrancisco = "Selene please weather in San Francisco tomorrow?"

func buildPlan(t *testing.T, maxCandidates int, raw string) contract.Response {
	t.Helper()
	req, err := NewBuildRequestV1(testutil.NewTestEnvelope(maxCandidates, 32), raw)
	require.NoError(t, err)
	return Engine{}.Run(req)
}

func mustPlan(t *testing.T, maxCandidates int, raw string) Plan {
	t.Helper()
	resp := buildPlan(t, maxCandidates, raw)
	ok, isOK := resp.(*BuildOK)
	require.True(t, isOK, "expected BuildOK, got %#v", resp)
	return ok.Plan
}

func runValidate(t *testing.T, maxDiagnostics int, raw, selected string, queries []Query) *ValidateOK {
	t.Helper()
	req, err := NewValidateRequestV1(testutil.NewTestEnvelope(MaxPlanQueries, maxDiagnostics), raw, selected, queries)
	require.NoError(t, err)
	resp := Engine{}.Run(req)
	ok, isOK := resp.(*ValidateOK)
	require.True(t, isOK, "expected ValidateOK, got %#v", resp)
	return ok
}

// =============================================================================
// BUILD
// =============================================================================

func TestBuildEndToEnd(t *testing.T) {
	plan := mustPlan(t, 4, sanFrancisco)

	require.Len(t, plan.Queries, 4)
	assert.Equal(t, []Query{
		{QueryID: "verbatim", Text: "weather in san francisco tomorrow", Strategy: StrategyVerbatim, CoverageBP: 10000},
		{QueryID: "keywords", Text: "weather san francisco tomorrow", Strategy: StrategyKeywords, CoverageBP: 10000},
		{QueryID: "untimed", Text: "weather in san francisco", Strategy: StrategyUntimed, CoverageBP: 7500},
		{QueryID: "untimed_keywords", Text: "weather san francisco", Strategy: StrategyUntimedKeywords, CoverageBP: 7500},
	}, plan.Queries)
	assert.Equal(t, "verbatim", plan.SelectedQueryID)
	assert.Equal(t, []string{"weather", "san", "francisco", "tomorrow"}, plan.IntentTokens)

	for _, q := range plan.Queries {
		assert.Equal(t, strings.ToLower(q.Text), q.Text)
		last := []rune(q.Text)[len([]rune(q.Text))-1]
		assert.False(t, unicode.IsPunct(last), q.Text)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first := buildPlan(t, 4, sanFrancisco)
	second := buildPlan(t, 4, sanFrancisco)
	assert.Equal(t, first, second)
}

func TestBuildHonorsBudget(t *testing.T) {
	all := mustPlan(t, MaxPlanQueries, sanFrancisco)
	require.Len(t, all.Queries, 5)

	for _, n := range []int{1, 2, 3} {
		plan := mustPlan(t, n, sanFrancisco)
		assert.Len(t, plan.Queries, n)
		assert.Equal(t, all.Queries[:n], plan.Queries, "budget must keep the top-ranked queries")
	}
}

func TestBuildDedupesCanonicalText(t *testing.T) {
	plan := mustPlan(t, MaxPlanQueries, "Weather tomorrow!")

	assert.Equal(t, []Query{
		{QueryID: "verbatim", Text: "weather tomorrow", Strategy: StrategyVerbatim, CoverageBP: 10000},
		{QueryID: "untimed", Text: "weather", Strategy: StrategyUntimed, CoverageBP: 5000},
	}, plan.Queries)
}

func TestBuildRefusesWithoutIntentTokens(t *testing.T) {
	resp := buildPlan(t, 4, "Selene, please tell me!")

	require.NoError(t, testutil.AssertRefused(resp, ReasonNoIntentTokens))
	assert.Equal(t, CapabilityBuild, resp.(*contract.Refuse).CapabilityID)
}

func TestRunRefusesInvalidRequests(t *testing.T) {
	env := testutil.NewTestEnvelope(4, 32)

	tests := []struct {
		name    string
		req     Request
		wantCap contract.CapabilityID
	}{
		{"nil", nil, CapabilityBuild},
		{"typed nil", (*ValidateRequest)(nil), CapabilityValidate},
		{"schema version", &BuildRequest{SchemaVersion: 2, Envelope: env, RawQuery: "weather"}, CapabilityBuild},
		{"empty query", &BuildRequest{SchemaVersion: SchemaVersion, Envelope: env}, CapabilityBuild},
		{"ceiling over hard cap", &BuildRequest{
			SchemaVersion: SchemaVersion,
			Envelope:      contract.Envelope{CorrelationID: "c", TurnID: 1, MaxCandidates: 9, MaxDiagnostics: 4},
			RawQuery:      "weather",
		}, CapabilityBuild},
		{"no queries", &ValidateRequest{SchemaVersion: SchemaVersion, Envelope: env, RawQuery: "x", SelectedQueryID: "head"}, CapabilityValidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Engine{}.Run(tt.req)
			require.NoError(t, testutil.AssertRefused(resp, Namespace.SchemaInvalid()))
			assert.Equal(t, tt.wantCap, resp.(*contract.Refuse).CapabilityID)
		})
	}
}

// =============================================================================
// VALIDATE
// =============================================================================

func TestValidateAgreeingPlanIsClean(t *testing.T) {
	plan := mustPlan(t, MaxPlanQueries, sanFrancisco)

	ok := runValidate(t, 32, sanFrancisco, plan.SelectedQueryID, plan.Queries)

	assert.Equal(t, contract.ValidationStatusOK, ok.Status)
	assert.Empty(t, ok.Diagnostics)
	assert.Equal(t, Namespace.Success(contract.VerdictCleanLocal), ok.ReasonCode)
}

func TestValidateRewrittenQueryIsNotAnchored(t *testing.T) {
	plan := mustPlan(t, MaxPlanQueries, sanFrancisco)
	queries := append([]Query(nil), plan.Queries...)
	queries[0].Text = "pizza near me"

	ok := runValidate(t, 32, sanFrancisco, plan.SelectedQueryID, queries)

	assert.Equal(t, contract.ValidationStatusFail, ok.Status)
	assert.Equal(t, Namespace.Success(contract.VerdictDriftLocal), ok.ReasonCode)
	assert.Equal(t, []string{"query_0_not_intent_anchored", "query_0_text_mismatch"}, ok.Diagnostics)
}

func TestValidateDetectsDrift(t *testing.T) {
	plan := mustPlan(t, MaxPlanQueries, sanFrancisco)

	t.Run("reordered", func(t *testing.T) {
		queries := append([]Query(nil), plan.Queries...)
		queries[0], queries[1] = queries[1], queries[0]
		ok := runValidate(t, 32, sanFrancisco, plan.SelectedQueryID, queries)
		assert.Equal(t, []string{
			"query_0_text_mismatch", "query_0_strategy_mismatch",
			"query_1_text_mismatch", "query_1_strategy_mismatch",
		}, ok.Diagnostics)
	})

	t.Run("missing", func(t *testing.T) {
		ok := runValidate(t, 32, sanFrancisco, plan.SelectedQueryID, plan.Queries[:3])
		assert.Equal(t, []string{"query_count_mismatch", "query_3_missing", "query_4_missing"}, ok.Diagnostics)
	})

	t.Run("wrong selection", func(t *testing.T) {
		ok := runValidate(t, 32, sanFrancisco, "keywords", plan.Queries)
		assert.Equal(t, []string{"selected_query_mismatch"}, ok.Diagnostics)
	})

	t.Run("selection absent", func(t *testing.T) {
		ok := runValidate(t, 32, sanFrancisco, "nope", plan.Queries)
		assert.Equal(t, []string{"selected_query_missing"}, ok.Diagnostics)
	})
}

func TestValidateBoundsDiagnostics(t *testing.T) {
	queries := []Query{
		{QueryID: "a", Text: "pizza", Strategy: StrategyHead, CoverageBP: 1},
		{QueryID: "b", Text: "sushi", Strategy: StrategyHead, CoverageBP: 1},
		{QueryID: "c", Text: "tacos", Strategy: StrategyHead, CoverageBP: 1},
	}

	ok := runValidate(t, 2, sanFrancisco, "a", queries)

	assert.Equal(t, contract.ValidationStatusFail, ok.Status)
	assert.Equal(t, []string{"query_0_not_intent_anchored", "query_1_not_intent_anchored"}, ok.Diagnostics)
}

func TestValidateNotDerivable(t *testing.T) {
	queries := []Query{{QueryID: "head", Text: "weather", Strategy: StrategyHead, CoverageBP: 10000}}

	ok := runValidate(t, 32, "please tell me", "head", queries)

	assert.Equal(t, []string{"query_0_not_intent_anchored", capability.DiagnosticNotDerivable}, ok.Diagnostics)
}

// =============================================================================
// SMART CONSTRUCTION
// =============================================================================

func TestConstructorsRevalidate(t *testing.T) {
	env := testutil.NewTestEnvelope(4, 32)

	_, err := NewBuildRequestV1(env, "")
	assert.Error(t, err)
	_, err = NewBuildRequestV1(env, strings.Repeat("x", MaxRawQueryRunes+1))
	assert.Error(t, err)

	req, err := NewBuildRequestV1(env, sanFrancisco)
	require.NoError(t, err)
	assert.NoError(t, req.Validate())

	_, err = NewBuildOKV1(Plan{IntentTokens: []string{"x"}, Queries: []Query{{QueryID: "head", Text: "x", Strategy: StrategyHead}}, SelectedQueryID: "other"})
	assert.Error(t, err)

	_, err = NewValidateRequestV1(env, "x", "a", []Query{
		{QueryID: "a", Text: "x", Strategy: StrategyHead},
		{QueryID: "a", Text: "y", Strategy: StrategyHead},
	})
	assert.Error(t, err)

	_, err = NewValidateOKV1(contract.Verdict{ReasonCode: contract.Namespace(0x0101).Success(2), Status: contract.ValidationStatusOK})
	assert.Error(t, err)
}
