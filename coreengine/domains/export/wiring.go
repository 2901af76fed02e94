package export

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

const Domain = "export"

type (
	Wiring  = wiring.Wiring[TurnInput, Request, *BuildOK, *ValidateOK]
	Outcome = wiring.Outcome[*BuildOK, *ValidateOK]
)

// Protocol maps a TurnInput onto this domain's two operations.
func Protocol() wiring.Protocol[TurnInput, Request, *BuildOK] {
	return wiring.Protocol[TurnInput, Request, *BuildOK]{
		Domain:             Domain,
		Namespace:          Namespace,
		BuildCapability:    CapabilityBuild,
		ValidateCapability: CapabilityValidate,
		HardCaps:           HardCaps,
		HasInput:           func(in TurnInput) bool { return in.Export != nil },
		BuildRequest: func(in TurnInput, env contract.Envelope) (Request, error) {
			return NewBuildRequestV1(env, *in.Export)
		},
		ValidateRequest: func(in TurnInput, env contract.Envelope, build *BuildOK) (Request, error) {
			return NewValidateRequestV1(env, *in.Export, build.Grant)
		},
	}
}

// DefaultConfig enables the domain at its hard caps.
func DefaultConfig() wiring.Config { return wiring.DefaultConfig(HardCaps) }

// NewWiring returns a wiring around engine.
func NewWiring(cfg wiring.Config, engine capability.Engine[Request]) (*Wiring, error) {
	return wiring.New[TurnInput, Request, *BuildOK, *ValidateOK](Protocol(), cfg, engine)
}
