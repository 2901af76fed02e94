// Package capability provides the machinery shared by every capability
// engine: the dispatch prelude, fixed-precedence gates, budget arithmetic,
// deterministic ranking and de-duplication, text canonicalization, and the
// build→re-derive→diff routine used by validate operations.
//
// Engines are stateless and total: every input, including nil and invalid
// requests, yields a contract.Response.
package capability

import (
	"unicode/utf8"

	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Static refusal messages.
const (
	MessageSchemaInvalid = "request failed its contract check"
	MessageInternal      = "internal pipeline error"
	MessageNilRequest    = "request is nil"
)

// Engine is the seam every domain's decision logic sits behind.
type Engine[Req contract.Request] interface {
	Run(req Req) contract.Response
}

// EngineFunc adapts a function to Engine.
type EngineFunc[Req contract.Request] func(req Req) contract.Response

// Run calls f.
func (f EngineFunc[Req]) Run(req Req) contract.Response {
	return f(req)
}

// =============================================================================
// OPERATION
// =============================================================================

// Op identifies the operation a handler is answering for, so refusals are
// tagged with the right capability id and namespace.
type Op struct {
	Namespace  contract.Namespace
	Capability contract.CapabilityID
}

// Refuse builds a refusal for this operation.
func (o Op) Refuse(code contract.ReasonCode, message string) contract.Response {
	return Refusal(o.Capability, code, message)
}

// RefuseGate builds a refusal from a blocked gate.
func (o Op) RefuseGate(g *Gate) contract.Response {
	return Refusal(o.Capability, g.Code, g.Message)
}

// Internal builds the internal-pipeline-error refusal.
func (o Op) Internal() contract.Response {
	return Refusal(o.Capability, o.Namespace.InternalError(), MessageInternal)
}

// Complete converts a failed Ok construction into an internal-pipeline-error
// refusal. Handlers pass their validated constructor's results straight in.
func (o Op) Complete(resp contract.Response, err error) contract.Response {
	if err != nil {
		return o.Internal()
	}
	return resp
}

// Refusal builds a Refuse. If the message itself is invalid the refusal
// degrades to the static internal-error message.
func Refusal(capabilityID contract.CapabilityID, code contract.ReasonCode, message string) *contract.Refuse {
	r, err := contract.NewRefuseV1(capabilityID, code, message)
	if err != nil {
		return contract.MustRefuse(capabilityID, code.Namespace().InternalError(), MessageInternal)
	}
	return r
}

// =============================================================================
// DISPATCH PRELUDE
// =============================================================================

// Serve runs the prelude common to every engine: contract-validate the
// request (schema-invalid refusal on failure), dispatch, and convert a
// panicking handler, a nil response, a self-invalid response or a response
// from a foreign namespace into an internal-pipeline-error refusal.
//
// fallback tags refusals when the request cannot name its own capability.
func Serve[Req contract.Request](
	ns contract.Namespace,
	fallback contract.CapabilityID,
	req Req,
	dispatch func(Req) contract.Response,
) (resp contract.Response) {
	if any(req) == nil {
		return Refusal(fallback, ns.SchemaInvalid(), MessageNilRequest)
	}

	op := Op{Namespace: ns, Capability: req.Capability()}
	if op.Capability.Validate() != nil {
		op.Capability = fallback
	}

	if err := req.Validate(); err != nil {
		return op.Refuse(ns.SchemaInvalid(), schemaMessage(err))
	}

	defer func() {
		if r := recover(); r != nil {
			resp = op.Internal()
		}
	}()

	resp = dispatch(req)
	if resp == nil || resp.Validate() != nil || resp.Reason().Namespace() != ns {
		return op.Internal()
	}
	return resp
}

func schemaMessage(err error) string {
	msg := MessageSchemaInvalid + ": " + err.Error()
	if utf8.RuneCountInString(msg) > contract.MaxMessageRunes {
		return MessageSchemaInvalid
	}
	return msg
}
