// Package wiring runs one conversational turn of one capability domain:
// build, then validate against the build output, then forward a
// proof-carrying bundle or surface a refusal.
//
// A Wiring is configured once and is immutable afterwards; RunTurn is safe
// for concurrent use as long as the injected engine is.
package wiring

import (
	"fmt"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Static messages of refusals synthesized by the wiring itself.
const (
	MessageValidationDrift  = "validation found drift between build and re-derivation"
	MessageUnexpectedOutput = "engine returned an unexpected response"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config is the per-domain wiring configuration.
type Config struct {
	Enabled        bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	MaxCandidates  int  `yaml:"max_candidates" json:"max_candidates" env:"MAX_CANDIDATES" validate:"gte=1,lte=256"`
	MaxDiagnostics int  `yaml:"max_diagnostics" json:"max_diagnostics" env:"MAX_DIAGNOSTICS" validate:"gte=1,lte=256"`
}

// DefaultConfig enables the domain with its hard caps as ceilings.
func DefaultConfig(caps contract.Caps) Config {
	return Config{
		Enabled:        true,
		MaxCandidates:  caps.MaxCandidates,
		MaxDiagnostics: caps.MaxDiagnostics,
	}
}

// Validate checks both ceilings.
func (c Config) Validate() error {
	return contract.Caps{MaxCandidates: c.MaxCandidates, MaxDiagnostics: c.MaxDiagnostics}.Validate()
}

// =============================================================================
// PROTOCOL
// =============================================================================

// Protocol describes how a domain's turn input maps onto its two
// operations. Each domain package declares exactly one.
type Protocol[In Turn, Req contract.Request, B contract.Response] struct {
	Domain             string
	Namespace          contract.Namespace
	BuildCapability    contract.CapabilityID
	ValidateCapability contract.CapabilityID
	HardCaps           contract.Caps

	// HasInput reports whether the turn carries anything for this domain.
	HasInput func(in In) bool
	// BuildRequest derives the build-phase request.
	BuildRequest func(in In, env contract.Envelope) (Req, error)
	// ValidateRequest derives the validate-phase request from the build
	// output.
	ValidateRequest func(in In, env contract.Envelope, build B) (Req, error)
}

func (p Protocol[In, Req, B]) validate() error {
	if p.Domain == "" {
		return contract.Violate("protocol.domain", contract.ReasonRequired)
	}
	if p.Namespace == 0 {
		return contract.Violate("protocol.namespace", contract.ReasonRequired)
	}
	if p.HasInput == nil || p.BuildRequest == nil || p.ValidateRequest == nil {
		return contract.Violate("protocol.hooks", contract.ReasonRequired)
	}
	return contract.First(
		p.BuildCapability.Validate(),
		p.ValidateCapability.Validate(),
		p.HardCaps.Validate(),
	)
}

// =============================================================================
// WIRING
// =============================================================================

// Wiring drives one domain's engine through the build→validate→forward
// sequence.
type Wiring[In Turn, Req contract.Request, B contract.Response, V Verdict] struct {
	protocol Protocol[In, Req, B]
	config   Config
	engine   capability.Engine[Req]
}

// New validates the protocol and config and returns a Wiring.
func New[In Turn, Req contract.Request, B contract.Response, V Verdict](
	protocol Protocol[In, Req, B],
	config Config,
	engine capability.Engine[Req],
) (*Wiring[In, Req, B, V], error) {
	if err := protocol.validate(); err != nil {
		return nil, fmt.Errorf("wiring: invalid protocol: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("wiring %s: invalid config: %w", protocol.Domain, err)
	}
	if engine == nil {
		return nil, fmt.Errorf("wiring %s: engine is required", protocol.Domain)
	}
	return &Wiring[In, Req, B, V]{protocol: protocol, config: config, engine: engine}, nil
}

// Domain returns the domain name.
func (w *Wiring[In, Req, B, V]) Domain() string { return w.protocol.Domain }

// Config returns the wiring configuration.
func (w *Wiring[In, Req, B, V]) Config() Config { return w.config }

// Envelope derives the turn envelope: ceilings are the configured values
// clamped to the domain's hard caps.
func (w *Wiring[In, Req, B, V]) Envelope(in In) (contract.Envelope, error) {
	caps := w.protocol.HardCaps.Clamp(contract.Caps{
		MaxCandidates:  w.config.MaxCandidates,
		MaxDiagnostics: w.config.MaxDiagnostics,
	})
	corr, turn := in.Identity()
	return contract.NewEnvelopeV1(corr, turn, caps.MaxCandidates, caps.MaxDiagnostics)
}

// RunTurn runs one turn. The error is reserved for turn input that violates
// its own contract; every business outcome is carried by the Outcome.
func (w *Wiring[In, Req, B, V]) RunTurn(in In) (Outcome[B, V], error) {
	if err := contract.Check("turn_input", in); err != nil {
		return Outcome[B, V]{}, err
	}
	if !w.config.Enabled {
		return Outcome[B, V]{Kind: OutcomeNotInvokedDisabled}, nil
	}
	if !w.protocol.HasInput(in) {
		return Outcome[B, V]{Kind: OutcomeNotInvokedNoInput}, nil
	}

	env, err := w.Envelope(in)
	if err != nil {
		return Outcome[B, V]{}, err
	}

	// Build phase.
	buildReq, err := w.protocol.BuildRequest(in, env)
	if err != nil {
		return Outcome[B, V]{}, err
	}
	build, refuse := match[B](w.protocol.Namespace, w.protocol.BuildCapability, w.invoke(buildReq))
	if refuse != nil {
		return refused[B, V](refuse), nil
	}

	// Validate phase.
	validateReq, err := w.protocol.ValidateRequest(in, env, build)
	if err != nil {
		return Outcome[B, V]{}, err
	}
	verdict, refuse := match[V](w.protocol.Namespace, w.protocol.ValidateCapability, w.invoke(validateReq))
	if refuse != nil {
		return refused[B, V](refuse), nil
	}
	if len(verdict.DiagnosticCodes()) > env.MaxDiagnostics {
		return refused[B, V](w.internal(w.protocol.ValidateCapability)), nil
	}
	if verdict.VerdictStatus() != contract.ValidationStatusOK {
		return refused[B, V](capability.Refusal(
			w.protocol.ValidateCapability,
			w.protocol.Namespace.ValidationFailed(),
			MessageValidationDrift,
		)), nil
	}

	bundle, err := NewForwardBundleV1(env.CorrelationID, env.TurnID, build, verdict)
	if err != nil {
		return refused[B, V](w.internal(w.protocol.ValidateCapability)), nil
	}
	return Outcome[B, V]{Kind: OutcomeForwarded, Bundle: bundle}, nil
}

// invoke calls the engine; a panic surfaces as a nil response, which match
// turns into an internal-error refusal.
func (w *Wiring[In, Req, B, V]) invoke(req Req) (resp contract.Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
		}
	}()
	return w.engine.Run(req)
}

func (w *Wiring[In, Req, B, V]) internal(capabilityID contract.CapabilityID) *contract.Refuse {
	return capability.Refusal(capabilityID, w.protocol.Namespace.InternalError(), MessageUnexpectedOutput)
}

// match is the exhaustive response match: a refusal passes through
// verbatim, the expected Ok variant is unwrapped, and anything else,
// including nil, self-invalid or foreign-namespace responses, becomes an
// internal-error refusal tagged with the phase's capability id.
func match[T contract.Response](
	ns contract.Namespace,
	capabilityID contract.CapabilityID,
	resp contract.Response,
) (T, *contract.Refuse) {
	var zero T
	internal := capability.Refusal(capabilityID, ns.InternalError(), MessageUnexpectedOutput)

	if resp == nil || resp.Validate() != nil || resp.Reason().Namespace() != ns {
		return zero, internal
	}
	switch r := resp.(type) {
	case *contract.Refuse:
		return zero, r
	case T:
		return r, nil
	default:
		return zero, internal
	}
}

func refused[B contract.Response, V Verdict](r *contract.Refuse) Outcome[B, V] {
	return Outcome[B, V]{Kind: OutcomeRefused, Refuse: r}
}
