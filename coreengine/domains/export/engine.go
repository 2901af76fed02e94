package export

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Engine is the export capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		g, refused := grant(op, r.Envelope, r.Export)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(g))
	case *ValidateRequest:
		return validate(r)
	default:
		return nil
	}
}

func grant(op capability.Op, env contract.Envelope, e Export) (Grant, *contract.Refuse) {
	restricted := false
	for _, f := range e.Fields {
		restricted = restricted || f.Sensitivity == SensitivityRestricted
	}
	if g := capability.FirstBlocked(
		capability.When(len(e.Fields) == 0, ReasonNoFields, "no fields requested"),
		capability.When(len(e.Fields) > capability.EffectiveBudget(env.MaxCandidates, MaxExportFields), Namespace.BudgetExceeded(), "too many fields requested"),
		capability.When(restricted && !e.Consent, ReasonConsentRequired, "restricted fields need consent"),
	); g != nil {
		return Grant{}, capability.Refusal(op.Capability, g.Code, g.Message)
	}

	out := Grant{Purpose: e.Purpose, Granted: []string{}, Redacted: []string{}}
	for _, f := range capability.Rank(e.Fields, capability.ByScoreThenKey(
		func(f Field) int64 { return int64(f.Priority) },
		func(f Field) string { return f.Name },
	)) {
		if e.Role.Cleared(f.Sensitivity) {
			out.Granted = append(out.Granted, f.Name)
		} else {
			out.Redacted = append(out.Redacted, f.Name)
		}
	}
	if len(out.Granted) == 0 {
		return Grant{}, capability.Refusal(op.Capability, ReasonNothingExportable, "no requested field is within the role's clearance")
	}
	return out, nil
}

func validate(r *ValidateRequest) contract.Response {
	op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
	d := contract.NewDiagnostics(r.Envelope.MaxDiagnostics)

	known := capability.Index(r.Export.Fields, func(f Field) string { return f.Name })
	for i, name := range r.Grant.Granted {
		if _, ok := known[name]; !ok {
			d.AddIndexed("granted", i, "unknown_field")
		}
	}

	if expected, ok := capability.Rederive(d, func() (Grant, *contract.Refuse) {
		return grant(op, r.Envelope, r.Export)
	}); ok {
		capability.DiffValue(d, "purpose", expected.Purpose, r.Grant.Purpose)
		capability.DiffStrings(d, "granted", expected.Granted, r.Grant.Granted)
		capability.DiffStrings(d, "redacted", expected.Redacted, r.Grant.Redacted)
	}

	verdict, err := capability.Verdict(op, d)
	if err != nil {
		return op.Internal()
	}
	return op.Complete(NewValidateOKV1(verdict))
}
