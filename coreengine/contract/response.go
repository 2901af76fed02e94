package contract

import (
	"strconv"
)

// =============================================================================
// REQUEST / RESPONSE
// =============================================================================

// Request is implemented by every operation variant of every domain.
type Request interface {
	Validator
	Capability() CapabilityID
}

// Response is implemented by every Ok variant and by Refuse.
type Response interface {
	Validator
	Reason() ReasonCode
}

// =============================================================================
// REFUSE
// =============================================================================

// Refuse is the uniform "structurally valid but rejected" response.
type Refuse struct {
	CapabilityID CapabilityID `json:"capability_id"`
	ReasonCode   ReasonCode   `json:"reason_code"`
	Message      string       `json:"message"`
}

// NewRefuseV1 builds and validates a Refuse.
func NewRefuseV1(capabilityID CapabilityID, code ReasonCode, message string) (*Refuse, error) {
	r := &Refuse{CapabilityID: capabilityID, ReasonCode: code, Message: message}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustRefuse builds a Refuse around a literal, pre-validated message and
// panics otherwise. Reserve it for static arguments.
func MustRefuse(capabilityID CapabilityID, code ReasonCode, message string) *Refuse {
	r, err := NewRefuseV1(capabilityID, code, message)
	if err != nil {
		panic("contract: invalid static refuse: " + err.Error())
	}
	return r
}

// Validate checks the capability id, a non-success reason code and the
// message text.
func (r *Refuse) Validate() error {
	if r == nil {
		return Violate("refuse", ReasonNil)
	}
	if err := r.CapabilityID.Validate(); err != nil {
		return err
	}
	if err := r.ReasonCode.Validate(); err != nil {
		return err
	}
	if r.ReasonCode.Class() == ReasonClassSuccess {
		return Violate("refuse.reason_code", ReasonWrongReasonClass)
	}
	return CheckText("refuse.message", r.Message, MaxMessageRunes)
}

// Reason returns the refusal reason code.
func (r *Refuse) Reason() ReasonCode {
	return r.ReasonCode
}

// =============================================================================
// VALIDATION STATUS & DIAGNOSTICS
// =============================================================================

// ValidationStatus is the outcome of a re-derive-and-diff operation.
type ValidationStatus string

const (
	ValidationStatusOK   ValidationStatus = "ok"
	ValidationStatusFail ValidationStatus = "fail"
)

// Validate rejects unknown statuses.
func (s ValidationStatus) Validate() error {
	switch s {
	case ValidationStatusOK, ValidationStatusFail:
		return nil
	default:
		return Violate("status", ReasonUnknownVariant)
	}
}

// Diagnostics is a bounded, ordered collector of diagnostic codes.
// Codes added past the limit are dropped, so earlier-detected issues win.
type Diagnostics struct {
	limit   int
	codes   []string
	dropped int
}

// NewDiagnostics creates a collector capped at limit (at least 1).
func NewDiagnostics(limit int) *Diagnostics {
	if limit < 1 {
		limit = 1
	}
	if limit > GlobalCeiling {
		limit = GlobalCeiling
	}
	return &Diagnostics{limit: limit}
}

// Add appends code unless the collector is full.
func (d *Diagnostics) Add(code string) {
	if len(d.codes) >= d.limit {
		d.dropped++
		return
	}
	d.codes = append(d.codes, code)
}

// AddIndexed appends "<item>_<i>_<what>".
func (d *Diagnostics) AddIndexed(item string, i int, what string) {
	d.Add(item + "_" + strconv.Itoa(i) + "_" + what)
}

// Codes returns a copy of the collected codes in emission order.
func (d *Diagnostics) Codes() []string {
	out := make([]string, len(d.codes))
	copy(out, d.codes)
	return out
}

// Len returns the number of kept codes.
func (d *Diagnostics) Len() int { return len(d.codes) }

// Dropped returns how many codes were truncated.
func (d *Diagnostics) Dropped() int { return d.dropped }

// Status is ok iff nothing was recorded.
func (d *Diagnostics) Status() ValidationStatus {
	if len(d.codes) == 0 && d.dropped == 0 {
		return ValidationStatusOK
	}
	return ValidationStatusFail
}

// =============================================================================
// VERDICT
// =============================================================================

// Verdict is the shared body of every validate-phase Ok variant.
type Verdict struct {
	ReasonCode  ReasonCode       `json:"reason_code"`
	Status      ValidationStatus `json:"status"`
	Diagnostics []string         `json:"diagnostics"`
}

// Local success codes used by verdicts.
const (
	VerdictCleanLocal = 2
	VerdictDriftLocal = 3
)

// NewVerdictV1 builds a verdict for ns from collected diagnostics.
func NewVerdictV1(ns Namespace, diags *Diagnostics) (Verdict, error) {
	v := Verdict{
		ReasonCode:  ns.Success(VerdictCleanLocal),
		Status:      diags.Status(),
		Diagnostics: diags.Codes(),
	}
	if v.Status == ValidationStatusFail {
		v.ReasonCode = ns.Success(VerdictDriftLocal)
	}
	if err := v.Validate(); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

// Validate checks status/diagnostic consistency and every code.
func (v Verdict) Validate() error {
	if err := v.ReasonCode.Validate(); err != nil {
		return err
	}
	if v.ReasonCode.Class() != ReasonClassSuccess {
		return Violate("verdict.reason_code", ReasonWrongReasonClass)
	}
	if err := v.Status.Validate(); err != nil {
		return err
	}
	if (v.Status == ValidationStatusOK) != (len(v.Diagnostics) == 0) {
		return Violate("verdict.diagnostics", ReasonInconsistent)
	}
	if len(v.Diagnostics) > GlobalCeiling {
		return Violate("verdict.diagnostics", ReasonTooMany)
	}
	for _, code := range v.Diagnostics {
		if err := CheckCode("verdict.diagnostics", code, MaxCodeLen); err != nil {
			return err
		}
	}
	return nil
}

// Reason returns the verdict's reason code.
func (v Verdict) Reason() ReasonCode { return v.ReasonCode }

// VerdictStatus returns ok or fail.
func (v Verdict) VerdictStatus() ValidationStatus { return v.Status }

// DiagnosticCodes returns the diagnostics in emission order.
func (v Verdict) DiagnosticCodes() []string { return v.Diagnostics }
