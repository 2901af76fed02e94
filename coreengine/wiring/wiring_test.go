package wiring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/testutil"
)

// =============================================================================
// ECHO DOMAIN
// =============================================================================

// echo is a minimal domain: build keeps the first N items, validate
// re-derives and diffs them.

const echoNS contract.Namespace = 0x01FC

var echoCaps = contract.Caps{MaxCandidates: 4, MaxDiagnostics: 8}

type echoTurn struct {
	corr  contract.CorrelationID
	turn  contract.TurnID
	items []string
}

func (t echoTurn) Validate() error {
	return contract.First(t.corr.Validate(), t.turn.Validate())
}

func (t echoTurn) Identity() (contract.CorrelationID, contract.TurnID) { return t.corr, t.turn }

type echoRequest interface {
	contract.Request
	isEcho()
}

type echoBuild struct {
	env   contract.Envelope
	items []string
}

func (r *echoBuild) Validate() error                   { return contract.CheckEnvelope(r.env, echoCaps) }
func (r *echoBuild) Capability() contract.CapabilityID { return "ECHO_BUILD" }
func (r *echoBuild) isEcho()                           {}

type echoValidate struct {
	env   contract.Envelope
	items []string
	build *echoBuildOK
}

func (r *echoValidate) Validate() error {
	return contract.First(contract.CheckEnvelope(r.env, echoCaps), contract.Check("build", r.build))
}
func (r *echoValidate) Capability() contract.CapabilityID { return "ECHO_VALIDATE" }
func (r *echoValidate) isEcho()                           {}

type echoBuildOK struct {
	Code  contract.ReasonCode
	Items []string
}

func (o *echoBuildOK) Validate() error {
	if o == nil {
		return contract.Violate("build_ok", contract.ReasonNil)
	}
	return o.Code.Validate()
}
func (o *echoBuildOK) Reason() contract.ReasonCode { return o.Code }

type echoValidateOK struct {
	contract.Verdict
}

func (o *echoValidateOK) Validate() error {
	if o == nil {
		return contract.Violate("validate_ok", contract.ReasonNil)
	}
	return o.Verdict.Validate()
}

func echoEngine() capability.Engine[echoRequest] {
	return capability.EngineFunc[echoRequest](func(req echoRequest) contract.Response {
		switch r := req.(type) {
		case *echoBuild:
			return &echoBuildOK{Code: echoNS.Success(1), Items: capability.TopN(r.items, r.env.MaxCandidates)}
		case *echoValidate:
			d := contract.NewDiagnostics(r.env.MaxDiagnostics)
			capability.DiffStrings(d, "item", capability.TopN(r.items, r.env.MaxCandidates), r.build.Items)
			v, err := contract.NewVerdictV1(echoNS, d)
			if err != nil {
				return nil
			}
			return &echoValidateOK{Verdict: v}
		}
		return nil
	})
}

type echoWiring = Wiring[echoTurn, echoRequest, *echoBuildOK, *echoValidateOK]

func echoProtocol() Protocol[echoTurn, echoRequest, *echoBuildOK] {
	return Protocol[echoTurn, echoRequest, *echoBuildOK]{
		Domain:             "echo",
		Namespace:          echoNS,
		BuildCapability:    "ECHO_BUILD",
		ValidateCapability: "ECHO_VALIDATE",
		HardCaps:           echoCaps,
		HasInput:           func(in echoTurn) bool { return len(in.items) > 0 },
		BuildRequest: func(in echoTurn, env contract.Envelope) (echoRequest, error) {
			return &echoBuild{env: env, items: in.items}, nil
		},
		ValidateRequest: func(in echoTurn, env contract.Envelope, build *echoBuildOK) (echoRequest, error) {
			return &echoValidate{env: env, items: in.items, build: build}, nil
		},
	}
}

func newEcho(t *testing.T, cfg Config, engine capability.Engine[echoRequest]) *echoWiring {
	t.Helper()
	w, err := New[echoTurn, echoRequest, *echoBuildOK, *echoValidateOK](echoProtocol(), cfg, engine)
	require.NoError(t, err)
	return w
}

func turnWith(items ...string) echoTurn {
	return echoTurn{corr: "corr-1", turn: 7, items: items}
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewRejectsInvalidSetup(t *testing.T) {
	_, err := New[echoTurn, echoRequest, *echoBuildOK, *echoValidateOK](
		echoProtocol(), Config{Enabled: true}, echoEngine())
	assert.Error(t, err)

	p := echoProtocol()
	p.HasInput = nil
	_, err = New[echoTurn, echoRequest, *echoBuildOK, *echoValidateOK](p, DefaultConfig(echoCaps), echoEngine())
	assert.Error(t, err)

	_, err = New[echoTurn, echoRequest, *echoBuildOK, *echoValidateOK](echoProtocol(), DefaultConfig(echoCaps), nil)
	assert.Error(t, err)
}

func TestEnvelopeClampsToHardCaps(t *testing.T) {
	w := newEcho(t, Config{Enabled: true, MaxCandidates: 200, MaxDiagnostics: 2}, echoEngine())

	env, err := w.Envelope(turnWith("a"))
	require.NoError(t, err)
	assert.Equal(t, 4, env.MaxCandidates)
	assert.Equal(t, 2, env.MaxDiagnostics)
	assert.Equal(t, contract.CorrelationID("corr-1"), env.CorrelationID)
	assert.Equal(t, contract.TurnID(7), env.TurnID)
}

// =============================================================================
// RUN TURN
// =============================================================================

func TestRunTurnForwards(t *testing.T) {
	w := newEcho(t, DefaultConfig(echoCaps), echoEngine())

	out, err := w.RunTurn(turnWith("a", "b", "c", "d", "e", "f"))

	require.NoError(t, err)
	require.Equal(t, OutcomeForwarded, out.Kind)
	require.True(t, out.Forwarded())
	assert.Nil(t, out.Refuse)
	assert.Equal(t, []string{"a", "b", "c", "d"}, out.Bundle.Build.Items)
	assert.Equal(t, contract.ValidationStatusOK, out.Bundle.Validation.Status)
	assert.Empty(t, out.Bundle.Validation.Diagnostics)
	assert.Equal(t, contract.TurnID(7), out.Bundle.TurnID)
}

func TestRunTurnIsDeterministic(t *testing.T) {
	w := newEcho(t, DefaultConfig(echoCaps), echoEngine())

	first, err := w.RunTurn(turnWith("x", "y"))
	require.NoError(t, err)
	second, err := w.RunTurn(turnWith("x", "y"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunTurnDisabledNeverInvokesEngine(t *testing.T) {
	engine := testutil.NewPanicEngine[echoRequest]()
	cfg := DefaultConfig(echoCaps)
	cfg.Enabled = false
	w := newEcho(t, cfg, engine)

	out, err := w.RunTurn(turnWith("a"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeNotInvokedDisabled, out.Kind)
	assert.False(t, out.Invoked())
	assert.Equal(t, 0, engine.GetCallCount())
}

func TestRunTurnNoInputNeverInvokesEngine(t *testing.T) {
	engine := testutil.NewPanicEngine[echoRequest]()
	w := newEcho(t, DefaultConfig(echoCaps), engine)

	out, err := w.RunTurn(turnWith())

	require.NoError(t, err)
	assert.Equal(t, OutcomeNotInvokedNoInput, out.Kind)
	assert.Equal(t, 0, engine.GetCallCount())
}

func TestRunTurnInvalidInputIsError(t *testing.T) {
	w := newEcho(t, DefaultConfig(echoCaps), echoEngine())

	_, err := w.RunTurn(echoTurn{corr: "bad id!", turn: 1, items: []string{"a"}})

	var v *contract.Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "correlation_id", v.Field)
}

func TestRunTurnPassesRefusalThrough(t *testing.T) {
	refuse := contract.MustRefuse("ECHO_BUILD", echoNS.Policy(1), "tenant blocked")
	engine := testutil.NewMockEngine[echoRequest](nil).WithResponse(refuse)
	w := newEcho(t, DefaultConfig(echoCaps), engine)

	out, err := w.RunTurn(turnWith("a"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeRefused, out.Kind)
	assert.Same(t, refuse, out.Refuse)
	assert.Nil(t, out.Bundle)
	assert.Equal(t, 1, engine.GetCallCount(), "validate phase must not run after a build refusal")
}

func TestRunTurnSynthesizesInternalError(t *testing.T) {
	tests := []struct {
		name      string
		transform func(echoRequest, contract.Response) contract.Response
		wantCap   contract.CapabilityID
	}{
		{
			name: "wrong variant at build",
			transform: func(req echoRequest, resp contract.Response) contract.Response {
				if _, ok := req.(*echoBuild); ok {
					return &echoValidateOK{Verdict: contract.Verdict{
						ReasonCode: echoNS.Success(contract.VerdictCleanLocal),
						Status:     contract.ValidationStatusOK,
					}}
				}
				return resp
			},
			wantCap: "ECHO_BUILD",
		},
		{
			name: "wrong variant at validate",
			transform: func(req echoRequest, resp contract.Response) contract.Response {
				if _, ok := req.(*echoValidate); ok {
					return &echoBuildOK{Code: echoNS.Success(1)}
				}
				return resp
			},
			wantCap: "ECHO_VALIDATE",
		},
		{
			name:      "nil response",
			transform: func(echoRequest, contract.Response) contract.Response { return nil },
			wantCap:   "ECHO_BUILD",
		},
		{
			name: "self-invalid response",
			transform: func(echoRequest, contract.Response) contract.Response {
				return &echoBuildOK{}
			},
			wantCap: "ECHO_BUILD",
		},
		{
			name: "foreign namespace",
			transform: func(echoRequest, contract.Response) contract.Response {
				return &echoBuildOK{Code: contract.Namespace(0x0108).Success(1)}
			},
			wantCap: "ECHO_BUILD",
		},
		{
			name: "engine panic",
			transform: func(echoRequest, contract.Response) contract.Response {
				panic("handler bug")
			},
			wantCap: "ECHO_BUILD",
		},
		{
			name: "diagnostics over ceiling",
			transform: func(req echoRequest, resp contract.Response) contract.Response {
				if _, ok := req.(*echoValidate); ok {
					d := make([]string, 9)
					for i := range d {
						d[i] = "item_mismatch"
					}
					return &echoValidateOK{Verdict: contract.Verdict{
						ReasonCode:  echoNS.Success(contract.VerdictDriftLocal),
						Status:      contract.ValidationStatusFail,
						Diagnostics: d,
					}}
				}
				return resp
			},
			wantCap: "ECHO_VALIDATE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := testutil.NewMockEngine(echoEngine()).WithTransform(tt.transform)
			w := newEcho(t, DefaultConfig(echoCaps), engine)

			out, err := w.RunTurn(turnWith("a", "b"))

			require.NoError(t, err)
			require.Equal(t, OutcomeRefused, out.Kind)
			assert.Equal(t, echoNS.InternalError(), out.Refuse.ReasonCode)
			assert.Equal(t, tt.wantCap, out.Refuse.CapabilityID)
			assert.Nil(t, out.Bundle)
		})
	}
}

func TestRunTurnDriftBecomesValidationFailed(t *testing.T) {
	engine := testutil.NewMockEngine(echoEngine()).WithTransform(
		func(req echoRequest, resp contract.Response) contract.Response {
			if ok, isBuild := resp.(*echoBuildOK); isBuild {
				return &echoBuildOK{Code: ok.Code, Items: []string{"tampered"}}
			}
			return resp
		})
	w := newEcho(t, DefaultConfig(echoCaps), engine)

	out, err := w.RunTurn(turnWith("a", "b"))

	require.NoError(t, err)
	require.Equal(t, OutcomeRefused, out.Kind)
	assert.Equal(t, echoNS.ValidationFailed(), out.Refuse.ReasonCode)
	assert.Equal(t, contract.CapabilityID("ECHO_VALIDATE"), out.Refuse.CapabilityID)
	assert.Equal(t, MessageValidationDrift, out.Refuse.Message)
	assert.Nil(t, out.Bundle)
}

// =============================================================================
// FORWARD BUNDLE
// =============================================================================

func TestForwardBundleRequiresPassingVerdict(t *testing.T) {
	build := &echoBuildOK{Code: echoNS.Success(1)}
	failing := &echoValidateOK{Verdict: contract.Verdict{
		ReasonCode:  echoNS.Success(contract.VerdictDriftLocal),
		Status:      contract.ValidationStatusFail,
		Diagnostics: []string{"item_0_value_mismatch"},
	}}

	_, err := NewForwardBundleV1("corr-1", 1, build, failing)
	assert.Error(t, err)

	passing := &echoValidateOK{Verdict: contract.Verdict{
		ReasonCode: echoNS.Success(contract.VerdictCleanLocal),
		Status:     contract.ValidationStatusOK,
	}}
	b, err := NewForwardBundleV1("corr-1", 1, build, passing)
	require.NoError(t, err)
	assert.NoError(t, b.Validate())

	_, err = NewForwardBundleV1[*echoBuildOK, *echoValidateOK]("corr-1", 1, nil, passing)
	assert.Error(t, err)
}
