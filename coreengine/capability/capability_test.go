package capability

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

const testNS contract.Namespace = 0x01FE

// =============================================================================
// TEST REQUEST / RESPONSE
// =============================================================================

type testRequest struct {
	capability contract.CapabilityID
	invalid    bool
}

func (r *testRequest) Validate() error {
	if r == nil {
		return contract.Violate("request", contract.ReasonNil)
	}
	if r.invalid {
		return contract.Violate("payload.items", contract.ReasonRequired)
	}
	return nil
}

func (r *testRequest) Capability() contract.CapabilityID {
	if r == nil {
		return ""
	}
	return r.capability
}

type testOK struct {
	code contract.ReasonCode
}

func (o *testOK) Validate() error {
	if o == nil {
		return contract.Violate("ok", contract.ReasonNil)
	}
	return o.code.Validate()
}

func (o *testOK) Reason() contract.ReasonCode { return o.code }

func serve(req *testRequest, dispatch func(*testRequest) contract.Response) contract.Response {
	return Serve(testNS, "TEST_BUILD", req, dispatch)
}

// =============================================================================
// SERVE
// =============================================================================

func TestServeForwardsValidResponse(t *testing.T) {
	ok := &testOK{code: testNS.Success(1)}
	resp := serve(&testRequest{capability: "TEST_BUILD"}, func(*testRequest) contract.Response { return ok })
	assert.Same(t, ok, resp)
}

func TestServeRefusesInvalidRequest(t *testing.T) {
	called := false
	resp := serve(&testRequest{capability: "TEST_VALIDATE", invalid: true}, func(*testRequest) contract.Response {
		called = true
		return nil
	})

	require.IsType(t, &contract.Refuse{}, resp)
	r := resp.(*contract.Refuse)
	assert.False(t, called)
	assert.Equal(t, testNS.SchemaInvalid(), r.ReasonCode)
	assert.Equal(t, contract.CapabilityID("TEST_VALIDATE"), r.CapabilityID)
	assert.Contains(t, r.Message, "payload.items")
}

func TestServeRefusesTypedNilRequest(t *testing.T) {
	var req *testRequest
	resp := serve(req, func(*testRequest) contract.Response { return nil })

	r, ok := resp.(*contract.Refuse)
	require.True(t, ok)
	assert.Equal(t, contract.CapabilityID("TEST_BUILD"), r.CapabilityID)
	assert.Equal(t, contract.ReasonClassSchemaInvalid, r.ReasonCode.Class())
}

func TestServeConvertsFailuresToInternalError(t *testing.T) {
	tests := []struct {
		name     string
		dispatch func(*testRequest) contract.Response
	}{
		{"panic", func(*testRequest) contract.Response { panic("boom") }},
		{"nil response", func(*testRequest) contract.Response { return nil }},
		{"typed nil response", func(*testRequest) contract.Response { return (*testOK)(nil) }},
		{"invalid response", func(*testRequest) contract.Response { return &testOK{} }},
		{"foreign namespace", func(*testRequest) contract.Response {
			return &testOK{code: contract.Namespace(0x0101).Success(1)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(&testRequest{capability: "TEST_BUILD"}, tt.dispatch)
			r, ok := resp.(*contract.Refuse)
			require.True(t, ok)
			assert.Equal(t, testNS.InternalError(), r.ReasonCode)
			assert.Equal(t, MessageInternal, r.Message)
		})
	}
}

func TestOpComplete(t *testing.T) {
	op := Op{Namespace: testNS, Capability: "TEST_BUILD"}
	ok := &testOK{code: testNS.Success(1)}

	assert.Same(t, ok, op.Complete(ok, nil))

	resp := op.Complete(nil, contract.Violate("x", contract.ReasonRequired))
	assert.Equal(t, testNS.InternalError(), resp.Reason())
}

func TestRefusalDegradesInvalidMessage(t *testing.T) {
	r := Refusal("TEST_BUILD", testNS.Policy(1), "")
	assert.Equal(t, testNS.InternalError(), r.ReasonCode)
	assert.Equal(t, MessageInternal, r.Message)
}

// =============================================================================
// GATES
// =============================================================================

func TestFirstBlockedHonorsOrder(t *testing.T) {
	g := FirstBlocked(
		When(false, testNS.Policy(1), "first"),
		When(true, testNS.Policy(2), "second"),
		When(true, testNS.Policy(3), "third"),
	)
	require.NotNil(t, g)
	assert.Equal(t, testNS.Policy(2), g.Code)
	assert.Equal(t, "second", g.Message)
}

func TestFirstBlockedLazySkipped(t *testing.T) {
	evaluated := false
	g := FirstBlocked(
		When(true, testNS.Policy(1), "first"),
		Lazy(func() bool { evaluated = true; return true }, testNS.Policy(2), "second"),
	)
	require.NotNil(t, g)
	assert.False(t, evaluated)
}

func TestFirstBlockedNone(t *testing.T) {
	assert.Nil(t, FirstBlocked(When(false, testNS.Policy(1), "x")))
	assert.Nil(t, FirstBlocked())
}

func TestDecide(t *testing.T) {
	got := Decide("none",
		Rule[string]{Applies: false, Value: "a"},
		Rule[string]{Applies: true, Value: "b"},
		Rule[string]{Applies: true, Value: "c"},
	)
	assert.Equal(t, "b", got)
	assert.Equal(t, "none", Decide[string]("none"))
}

// =============================================================================
// BUDGET / RANKING
// =============================================================================

func TestEffectiveBudget(t *testing.T) {
	assert.Equal(t, 3, EffectiveBudget(3, 8))
	assert.Equal(t, 8, EffectiveBudget(20, 8))
	assert.Equal(t, 0, EffectiveBudget(0, 8))
	assert.Equal(t, 0, EffectiveBudget(4, -1))
}

type scored struct {
	key   string
	score int64
}

func TestRankTopNSortsBeforeTruncating(t *testing.T) {
	items := []scored{{"c", 10}, {"a", 50}, {"b", 50}, {"d", 90}}
	order := ByScoreThenKey(func(s scored) int64 { return s.score }, func(s scored) string { return s.key })

	got := RankTopN(items, 2, order)

	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].key)
	assert.Equal(t, "a", got[1].key)
	assert.Equal(t, "c", items[0].key, "input must not be reordered")
}

func TestTopN(t *testing.T) {
	assert.Equal(t, []int{1, 2}, TopN([]int{1, 2, 3}, 2))
	assert.Equal(t, []int{1}, TopN([]int{1}, 5))
	assert.Empty(t, TopN([]int{1, 2}, -1))
}

func TestDedupeKeepsFirstCanonical(t *testing.T) {
	got := Dedupe([]string{"Weather Today", "weather  today!", "news"}, Canonicalize)
	assert.Equal(t, []string{"Weather Today", "news"}, got)
}

func TestIndexKeepsFirstPosition(t *testing.T) {
	idx := Index([]string{"a", "b", "a"}, func(s string) string { return s })
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, idx)
}

func TestBasisPoints(t *testing.T) {
	assert.Equal(t, 5000, BasisPoints(1, 2))
	assert.Equal(t, 0, BasisPoints(1, 0))
	assert.Equal(t, 10000, BasisPoints(3, 3))
	assert.Equal(t, 0, BasisPoints(-1, 3))
}

func TestBasisPoints_LargeUnits(t *testing.T) {
	// Products past int64 still divide exactly.
	const unitCap = int64(1) << 50
	assert.Equal(t, 10000, BasisPoints(unitCap, unitCap))
	assert.Equal(t, 9999, BasisPoints(unitCap-1, unitCap))
	assert.Equal(t, 5000, BasisPoints(unitCap/2, unitCap))
	assert.Equal(t, 9999, BasisPoints(math.MaxInt64-1, math.MaxInt64))
}

// =============================================================================
// TEXT
// =============================================================================

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Hello   World?! ", "hello world"},
		{"What's the WEATHER", "whats the weather"},
		{"Ｆｕｌｌｗｉｄｔｈ", "fullwidth"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonicalize(tt.in), tt.in)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"weather", "in", "paris", "today"}, Tokens("Weather in Paris, today?"))
	assert.Empty(t, Tokens("?!"))
}

func TestSharesToken(t *testing.T) {
	set := TokenSet([]string{"paris", "weather"})
	assert.True(t, SharesToken([]string{"rome", "weather"}, set))
	assert.False(t, SharesToken([]string{"rome"}, set))
}

// =============================================================================
// DIFF
// =============================================================================

type pair struct {
	Text  string
	Score int
}

func TestDiffValue(t *testing.T) {
	d := contract.NewDiagnostics(8)
	assert.False(t, DiffValue(d, "total", 3, 3))
	assert.True(t, DiffValue(d, "total", 3, 4))
	assert.Equal(t, []string{"total_mismatch"}, d.Codes())
}

func TestDiffSeq(t *testing.T) {
	fields := []Field[pair]{
		FieldOf("text", func(p pair) string { return p.Text }),
		FieldOf("score", func(p pair) int { return p.Score }),
	}

	t.Run("identical", func(t *testing.T) {
		d := contract.NewDiagnostics(8)
		DiffSeq(d, "query", []pair{{"a", 1}}, []pair{{"a", 1}}, fields...)
		assert.Equal(t, contract.ValidationStatusOK, d.Status())
	})

	t.Run("field drift", func(t *testing.T) {
		d := contract.NewDiagnostics(8)
		DiffSeq(d, "query", []pair{{"a", 1}, {"b", 2}}, []pair{{"a", 1}, {"x", 9}}, fields...)
		assert.Equal(t, []string{"query_1_text_mismatch", "query_1_score_mismatch"}, d.Codes())
	})

	t.Run("missing", func(t *testing.T) {
		d := contract.NewDiagnostics(8)
		DiffSeq(d, "query", []pair{{"a", 1}, {"b", 2}}, []pair{{"a", 1}}, fields...)
		assert.Equal(t, []string{"query_count_mismatch", "query_1_missing"}, d.Codes())
	})

	t.Run("unexpected", func(t *testing.T) {
		d := contract.NewDiagnostics(8)
		DiffSeq(d, "query", nil, []pair{{"a", 1}}, fields...)
		assert.Equal(t, []string{"query_count_mismatch", "query_0_unexpected"}, d.Codes())
	})
}

func TestDiffStringsTruncatesInEmissionOrder(t *testing.T) {
	d := contract.NewDiagnostics(2)
	DiffStrings(d, "item", []string{"a", "b", "c"}, []string{"x", "y", "z"})
	assert.Equal(t, []string{"item_0_value_mismatch", "item_1_value_mismatch"}, d.Codes())
	assert.Equal(t, 1, d.Dropped())
	assert.Equal(t, contract.ValidationStatusFail, d.Status())
}

func TestRederive(t *testing.T) {
	t.Run("refusal yields single diagnostic", func(t *testing.T) {
		d := contract.NewDiagnostics(8)
		_, ok := Rederive(d, func() (int, *contract.Refuse) {
			return 0, contract.MustRefuse("TEST_BUILD", testNS.Policy(1), "no")
		})
		assert.False(t, ok)
		assert.Equal(t, []string{DiagnosticNotDerivable}, d.Codes())
	})

	t.Run("returns expected", func(t *testing.T) {
		d := contract.NewDiagnostics(8)
		expected, ok := Rederive(d, func() (int, *contract.Refuse) { return 7, nil })
		require.True(t, ok)
		assert.Equal(t, 7, expected)
		assert.Equal(t, contract.ValidationStatusOK, d.Status())
	})
}

func TestVerify(t *testing.T) {
	op := Op{Namespace: testNS, Capability: "TEST_VALIDATE"}

	clean, err := Verify(op, 4,
		func() ([]string, *contract.Refuse) { return []string{"a"}, nil },
		func(d *contract.Diagnostics, expected []string) { DiffStrings(d, "item", expected, []string{"a"}) })
	require.NoError(t, err)
	assert.Equal(t, contract.ValidationStatusOK, clean.Status)
	assert.Empty(t, clean.Diagnostics)

	drift, err := Verify(op, 4,
		func() ([]string, *contract.Refuse) { return []string{"a"}, nil },
		func(d *contract.Diagnostics, expected []string) { DiffStrings(d, "item", expected, []string{"b"}) })
	require.NoError(t, err)
	assert.Equal(t, contract.ValidationStatusFail, drift.Status)
	assert.Equal(t, []string{"item_0_value_mismatch"}, drift.Diagnostics)
}

func TestVerdictFromDiagnostics(t *testing.T) {
	op := Op{Namespace: testNS, Capability: "TEST_VALIDATE"}
	d := contract.NewDiagnostics(4)
	d.Add("x_mismatch")

	v, err := Verdict(op, d)
	require.NoError(t, err)
	assert.Equal(t, testNS.Success(contract.VerdictDriftLocal), v.ReasonCode)
	assert.True(t, strings.HasPrefix(v.Diagnostics[0], "x_"))
}
