package capability

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Gate is one precondition. Gates are evaluated in the order given and the
// first blocked gate decides the single reason code, so the order a handler
// lists its gates in is part of its contract.
type Gate struct {
	Code    contract.ReasonCode
	Message string
	blocked func() bool
}

// When is a gate over an already-computed condition.
func When(blocked bool, code contract.ReasonCode, message string) Gate {
	return Gate{Code: code, Message: message, blocked: func() bool { return blocked }}
}

// Lazy is a gate whose condition is only evaluated if every earlier gate
// passed. Use it when the condition is only meaningful after them.
func Lazy(blocked func() bool, code contract.ReasonCode, message string) Gate {
	return Gate{Code: code, Message: message, blocked: blocked}
}

// FirstBlocked returns the first blocked gate, or nil.
func FirstBlocked(gates ...Gate) *Gate {
	for i := range gates {
		if gates[i].blocked != nil && gates[i].blocked() {
			return &gates[i]
		}
	}
	return nil
}

// Rule pairs a condition with the value it selects.
type Rule[T any] struct {
	Applies bool
	Value   T
}

// Decide returns the value of the first applicable rule, or fallback.
func Decide[T any](fallback T, rules ...Rule[T]) T {
	for _, r := range rules {
		if r.Applies {
			return r.Value
		}
	}
	return fallback
}
