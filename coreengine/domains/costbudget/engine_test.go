package costbudget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/testutil"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

func lineItems() []LineItem {
	return []LineItem{
		{ItemID: "rerank", EstimatedMicros: 300, Priority: 500},
		{ItemID: "llm-call", EstimatedMicros: 600, Priority: 100, Required: true},
		{ItemID: "search", EstimatedMicros: 200, Priority: 900},
		{ItemID: "audio", EstimatedMicros: 150, Priority: 500},
	}
}

func build(t *testing.T, maxCandidates int, b Budget, items []LineItem) contract.Response {
	t.Helper()
	req, err := NewBuildRequestV1(testutil.NewTestEnvelope(maxCandidates, 32), b, items)
	require.NoError(t, err)
	return Engine{}.Run(req)
}

func mustPlan(t *testing.T, maxCandidates int, b Budget, items []LineItem) Plan {
	t.Helper()
	ok, isOK := build(t, maxCandidates, b, items).(*BuildOK)
	require.True(t, isOK)
	return ok.Plan
}

// =============================================================================
// BUILD
// =============================================================================

func TestFundingOrder(t *testing.T) {
	p := mustPlan(t, MaxFunded, Budget{BudgetMicros: 1000}, lineItems())

	assert.Equal(t, []string{"llm-call", "search", "audio"}, p.Funded)
	assert.Equal(t, []string{"rerank"}, p.Unfunded)
	assert.Equal(t, int64(950), p.FundedMicros)
	assert.Equal(t, int64(50), p.RemainingMicros)
}

func TestFundingRespectsSpent(t *testing.T) {
	p := mustPlan(t, MaxFunded, Budget{BudgetMicros: 1500, SpentMicros: 700}, lineItems())

	assert.Equal(t, []string{"llm-call", "search"}, p.Funded)
	assert.Equal(t, []string{"audio", "rerank"}, p.Unfunded)
	assert.Zero(t, p.RemainingMicros)
}

func TestFundingHonorsCountBudget(t *testing.T) {
	p := mustPlan(t, 2, Budget{BudgetMicros: 10_000}, lineItems())

	assert.Equal(t, []string{"llm-call", "search"}, p.Funded)
	assert.Equal(t, []string{"audio", "rerank"}, p.Unfunded)
}

func TestRefusalPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		budget Budget
		items  []LineItem
		want   contract.ReasonCode
	}{
		{"no items beats spent", Budget{BudgetMicros: 10, SpentMicros: 10}, nil, ReasonNoItems},
		{"spent", Budget{BudgetMicros: 10, SpentMicros: 10}, lineItems(), Namespace.BudgetExceeded()},
		{"required unfunded", Budget{BudgetMicros: 500}, lineItems(), ReasonRequiredItemUnfunded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, testutil.AssertRefused(build(t, MaxFunded, tt.budget, tt.items), tt.want))
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	assert.Equal(t,
		build(t, MaxFunded, Budget{BudgetMicros: 1000}, lineItems()),
		build(t, MaxFunded, Budget{BudgetMicros: 1000}, lineItems()))
}

// =============================================================================
// VALIDATE
// =============================================================================

func runValidate(t *testing.T, p Plan) *ValidateOK {
	t.Helper()
	req, err := NewValidateRequestV1(testutil.NewTestEnvelope(MaxFunded, 32), Budget{BudgetMicros: 1000}, lineItems(), p)
	require.NoError(t, err)
	ok, isOK := Engine{}.Run(req).(*ValidateOK)
	require.True(t, isOK)
	return ok
}

func TestValidateClean(t *testing.T) {
	ok := runValidate(t, mustPlan(t, MaxFunded, Budget{BudgetMicros: 1000}, lineItems()))
	assert.Equal(t, contract.ValidationStatusOK, ok.Status)
}

func TestValidateDrift(t *testing.T) {
	p := mustPlan(t, MaxFunded, Budget{BudgetMicros: 1000}, lineItems())
	p.Funded = []string{"llm-call", "ghost", "audio"}
	p.FundedMicros = 1

	ok := runValidate(t, p)

	assert.Equal(t, contract.ValidationStatusFail, ok.Status)
	assert.Equal(t, []string{
		"funded_1_unknown_item",
		"funded_total_mismatch",
		"funded_1_value_mismatch",
	}, ok.Diagnostics)
}

// =============================================================================
// WIRING
// =============================================================================

func TestWiringForwardsPlan(t *testing.T) {
	w, err := NewWiring(DefaultConfig(), Engine{})
	require.NoError(t, err)

	out, err := w.RunTurn(TurnInput{
		Header:    wiring.Header{CorrelationID: "corr-c", TurnID: 1},
		Budget:    Budget{BudgetMicros: 1000},
		LineItems: lineItems(),
	})

	require.NoError(t, err)
	require.Equal(t, wiring.OutcomeForwarded, out.Kind)
	assert.Equal(t, int64(50), out.Bundle.Build.Plan.RemainingMicros)
}

func TestWiringRequiredUnfundedIsRefused(t *testing.T) {
	w, err := NewWiring(DefaultConfig(), Engine{})
	require.NoError(t, err)

	out, err := w.RunTurn(TurnInput{
		Header:    wiring.Header{CorrelationID: "corr-c", TurnID: 2},
		Budget:    Budget{BudgetMicros: 100},
		LineItems: lineItems(),
	})

	require.NoError(t, err)
	require.Equal(t, wiring.OutcomeRefused, out.Kind)
	assert.Equal(t, ReasonRequiredItemUnfunded, out.Refuse.ReasonCode)
	assert.Equal(t, CapabilityBuild, out.Refuse.CapabilityID)
}

func TestConstructorsRevalidate(t *testing.T) {
	env := testutil.NewTestEnvelope(4, 8)
	_, err := NewBuildRequestV1(env, Budget{}, lineItems())
	assert.Error(t, err)
	_, err = NewBuildRequestV1(env, Budget{BudgetMicros: 1}, []LineItem{{ItemID: "a"}, {ItemID: "a"}})
	assert.Error(t, err)
	_, err = NewBuildOKV1(Plan{Funded: []string{"bad id"}})
	assert.Error(t, err)
}
