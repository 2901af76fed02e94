package contract

import (
	"strconv"
)

// Namespace is the 16-bit reason-code namespace owned by one domain.
type Namespace uint16

// ReasonCode is a namespaced 32-bit reason: namespace<<16 | local.
// Zero is never valid.
type ReasonCode uint32

// ReasonClass buckets a reason code by its local sub-range.
type ReasonClass string

const (
	ReasonClassSuccess          ReasonClass = "success"
	ReasonClassSchemaInvalid    ReasonClass = "schema_invalid"
	ReasonClassBudgetExceeded   ReasonClass = "budget_exceeded"
	ReasonClassValidationFailed ReasonClass = "validation_failed"
	ReasonClassInternalError    ReasonClass = "internal_error"
	ReasonClassPolicy           ReasonClass = "policy"
	ReasonClassReserved         ReasonClass = "reserved"
)

// Local sub-range bounds (inclusive).
const (
	localSuccessMin          = 0x0001
	localSuccessMax          = 0x00FF
	localSchemaInvalidMin    = 0x0100
	localSchemaInvalidMax    = 0x01FF
	localBudgetExceededMin   = 0x0200
	localBudgetExceededMax   = 0x02FF
	localValidationFailedMin = 0x0300
	localValidationFailedMax = 0x03FF
	localInternalErrorMin    = 0x0400
	localInternalErrorMax    = 0x04FF
	localPolicyMin           = 0x1000
	localPolicyMax           = 0xFFFF
)

// NewReasonCode builds a reason code and rejects reserved ranges.
func NewReasonCode(ns Namespace, local uint16) (ReasonCode, error) {
	c := ns.code(local)
	if err := c.Validate(); err != nil {
		return 0, err
	}
	return c, nil
}

func (ns Namespace) code(local uint16) ReasonCode {
	return ReasonCode(uint32(ns)<<16 | uint32(local))
}

// Success returns the n-th success code (n in 1..255).
func (ns Namespace) Success(n uint8) ReasonCode {
	return ns.code(uint16(n))
}

// SchemaInvalid is the reason for requests that fail their contract check.
func (ns Namespace) SchemaInvalid() ReasonCode {
	return ns.code(localSchemaInvalidMin)
}

// BudgetExceeded is the reason for ceiling and budget refusals.
func (ns Namespace) BudgetExceeded() ReasonCode {
	return ns.code(localBudgetExceededMin)
}

// ValidationFailed is the reason for drift detected by a validate phase.
func (ns Namespace) ValidationFailed() ReasonCode {
	return ns.code(localValidationFailedMin)
}

// InternalError is the internal-pipeline-error reason.
func (ns Namespace) InternalError() ReasonCode {
	return ns.code(localInternalErrorMin)
}

// Policy returns the n-th domain policy code (n in 1..0xEFFF).
// Out-of-range n yields a code that fails validation.
func (ns Namespace) Policy(n uint16) ReasonCode {
	if n == 0 || n > localPolicyMax-localPolicyMin {
		return ns.code(0)
	}
	return ns.code(localPolicyMin + n)
}

// Namespace returns the owning namespace.
func (c ReasonCode) Namespace() Namespace {
	return Namespace(uint32(c) >> 16)
}

// Local returns the namespace-local part.
func (c ReasonCode) Local() uint16 {
	return uint16(uint32(c) & 0xFFFF)
}

// Class buckets the code by numeric range alone.
func (c ReasonCode) Class() ReasonClass {
	l := c.Local()
	switch {
	case l >= localSuccessMin && l <= localSuccessMax:
		return ReasonClassSuccess
	case l >= localSchemaInvalidMin && l <= localSchemaInvalidMax:
		return ReasonClassSchemaInvalid
	case l >= localBudgetExceededMin && l <= localBudgetExceededMax:
		return ReasonClassBudgetExceeded
	case l >= localValidationFailedMin && l <= localValidationFailedMax:
		return ReasonClassValidationFailed
	case l >= localInternalErrorMin && l <= localInternalErrorMax:
		return ReasonClassInternalError
	case l >= localPolicyMin:
		return ReasonClassPolicy
	default:
		return ReasonClassReserved
	}
}

// Validate rejects zero, the zero namespace and reserved local ranges.
func (c ReasonCode) Validate() error {
	if c == 0 {
		return Violate("reason_code", ReasonRequired)
	}
	if c.Namespace() == 0 {
		return Violate("reason_code", ReasonWrongNamespace)
	}
	if c.Class() == ReasonClassReserved {
		return Violate("reason_code", ReasonReservedCode)
	}
	return nil
}

// String renders the code as 0xNNNNLLLL.
func (c ReasonCode) String() string {
	s := strconv.FormatUint(uint64(c), 16)
	for len(s) < 8 {
		s = "0" + s
	}
	return "0x" + s
}
