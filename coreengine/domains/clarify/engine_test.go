package clarify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/testutil"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

func bookTable(provided ...string) Ask {
	return Ask{
		Intent: "book_table",
		Required: []Field{
			{Name: "party_size", Priority: 900, Prompt: "How many people?"},
			{Name: "time", Priority: 800, Prompt: "What time?"},
			{Name: "date", Priority: 800, Prompt: "Which day?"},
			{Name: "venue", Priority: 500, Prompt: "Where?"},
			{Name: "notes", Priority: 10, Prompt: "Any notes?"},
			{Name: "dietary", Priority: 10, Prompt: "Dietary needs?"},
		},
		Provided: provided,
	}
}

func build(t *testing.T, maxCandidates int, ask Ask) contract.Response {
	t.Helper()
	req, err := NewBuildRequestV1(testutil.NewTestEnvelope(maxCandidates, 32), ask)
	require.NoError(t, err)
	return Engine{}.Run(req)
}

func mustClarify(t *testing.T, maxCandidates int, ask Ask) Clarification {
	t.Helper()
	ok, isOK := build(t, maxCandidates, ask).(*BuildOK)
	require.True(t, isOK)
	return ok.Clarification
}

func fields(c Clarification) []string {
	out := make([]string, len(c.Questions))
	for i, q := range c.Questions {
		out[i] = q.Field
	}
	return out
}

// =============================================================================
// BUILD
// =============================================================================

func TestClarifyRanksMissingFields(t *testing.T) {
	c := mustClarify(t, MaxQuestions, bookTable("venue"))

	assert.False(t, c.Complete)
	assert.Equal(t, 5, c.Missing)
	assert.Equal(t, []string{"party_size", "date", "time", "dietary", "notes"}, fields(c))
	assert.Equal(t, "How many people?", c.Questions[0].Prompt)
}

func TestClarifyHonorsCeiling(t *testing.T) {
	c := mustClarify(t, 2, bookTable())

	assert.Equal(t, 6, c.Missing)
	assert.Equal(t, []string{"party_size", "date"}, fields(c))
}

func TestClarifyComplete(t *testing.T) {
	c := mustClarify(t, MaxQuestions, bookTable("party_size", "time", "date", "venue", "notes", "dietary"))

	assert.True(t, c.Complete)
	assert.Zero(t, c.Missing)
	assert.Empty(t, c.Questions)
}

func TestUnknownProvidedFieldIsRefused(t *testing.T) {
	resp := build(t, MaxQuestions, bookTable("venue", "color"))
	require.NoError(t, testutil.AssertRefused(resp, ReasonUnknownFieldReference))
}

// =============================================================================
// VALIDATE
// =============================================================================

func runValidate(t *testing.T, c Clarification) *ValidateOK {
	t.Helper()
	req, err := NewValidateRequestV1(testutil.NewTestEnvelope(MaxQuestions, 32), bookTable("venue"), c)
	require.NoError(t, err)
	ok, isOK := Engine{}.Run(req).(*ValidateOK)
	require.True(t, isOK)
	return ok
}

func TestValidateClean(t *testing.T) {
	ok := runValidate(t, mustClarify(t, MaxQuestions, bookTable("venue")))
	assert.Equal(t, contract.ValidationStatusOK, ok.Status)
}

func TestValidateDrift(t *testing.T) {
	c := mustClarify(t, MaxQuestions, bookTable("venue"))
	c.Questions[0] = Question{Field: "color", Prompt: "How many people?"}
	c.Questions = c.Questions[:4]

	ok := runValidate(t, c)

	assert.Equal(t, []string{
		"question_0_unknown_field",
		"question_count_mismatch",
		"question_0_field_mismatch",
		"question_4_missing",
	}, ok.Diagnostics)
}

// =============================================================================
// WIRING
// =============================================================================

func TestWiringAsksQuestions(t *testing.T) {
	w, err := NewWiring(DefaultConfig(), Engine{})
	require.NoError(t, err)

	ask := bookTable("venue", "time")
	out, err := w.RunTurn(TurnInput{Header: wiring.Header{CorrelationID: "corr-k", TurnID: 1}, Ask: &ask})

	require.NoError(t, err)
	require.True(t, out.Forwarded())
	assert.Equal(t, []string{"party_size", "date", "dietary", "notes"}, fields(out.Bundle.Build.Clarification))
}

func TestConstructorsRevalidate(t *testing.T) {
	env := testutil.NewTestEnvelope(4, 8)
	_, err := NewBuildRequestV1(env, Ask{Intent: "Book Table"})
	assert.Error(t, err)
	_, err = NewBuildRequestV1(env, bookTable("venue", "venue"))
	assert.Error(t, err)
	_, err = NewBuildOKV1(Clarification{Intent: "book_table", Complete: true, Missing: 1})
	assert.Error(t, err)
}

func TestBuildIsDeterministic(t *testing.T) {
	first := build(t, 3, bookTable("time", "venue"))
	require.IsType(t, &BuildOK{}, first)
	assert.Equal(t, first, build(t, 3, bookTable("time", "venue")))
}
