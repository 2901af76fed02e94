// Package contract provides the validated value types shared by every
// capability domain.
//
// Every value type exposes one validated constructor (New...V1) that builds
// the value and immediately self-checks it, so no code path outside the
// constructor yields an instance that fails its own Validate. Violations
// carry a static field name and a static reason; they are never formatted.
package contract

import (
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// VIOLATION REASONS
// =============================================================================

// Static violation reasons. Violations never carry dynamic text.
const (
	ReasonRequired         = "is required"
	ReasonTooLong          = "exceeds maximum length"
	ReasonControlChar      = "contains control characters"
	ReasonInvalidUTF8      = "is not valid utf-8"
	ReasonBadCharset       = "contains disallowed characters"
	ReasonNotPositive      = "must be positive"
	ReasonOutOfRange       = "is out of range"
	ReasonSchemaMismatch   = "schema version mismatch"
	ReasonDuplicate        = "contains duplicate identifiers"
	ReasonTooMany          = "exceeds maximum count"
	ReasonExceedsCap       = "exceeds hard cap"
	ReasonUnknownVariant   = "unknown variant"
	ReasonInconsistent     = "is inconsistent"
	ReasonReservedCode     = "is in a reserved range"
	ReasonWrongNamespace   = "belongs to another namespace"
	ReasonWrongReasonClass = "has the wrong reason class"
	ReasonNil              = "is nil"
)

// =============================================================================
// VIOLATION
// =============================================================================

// Violation reports that a value violates its own invariants.
type Violation struct {
	Field  string
	Reason string
}

func (v *Violation) Error() string {
	return v.Field + ": " + v.Reason
}

// Violate builds a Violation. Both arguments must be static strings.
func Violate(field, reason string) *Violation {
	return &Violation{Field: field, Reason: reason}
}

// Validator is implemented by every contract value.
type Validator interface {
	Validate() error
}

// Check runs v's self-check. A nil validator is a violation.
func Check(field string, v Validator) error {
	if v == nil {
		return Violate(field, ReasonNil)
	}
	return v.Validate()
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// FIELD CHECKS
// =============================================================================

// CheckText validates a required text field: non-empty, at most maxRunes
// runes, valid UTF-8 and free of control characters.
func CheckText(field, value string, maxRunes int) error {
	if value == "" {
		return Violate(field, ReasonRequired)
	}
	return CheckOptionalText(field, value, maxRunes)
}

// CheckOptionalText validates a text field that may be empty.
func CheckOptionalText(field, value string, maxRunes int) error {
	if !utf8.ValidString(value) {
		return Violate(field, ReasonInvalidUTF8)
	}
	if utf8.RuneCountInString(value) > maxRunes {
		return Violate(field, ReasonTooLong)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return Violate(field, ReasonControlChar)
		}
	}
	return nil
}

// CheckIdentifier validates an opaque identifier: 1..maxLen ASCII characters
// drawn from [A-Za-z0-9._:-].
func CheckIdentifier(field, value string, maxLen int) error {
	if value == "" {
		return Violate(field, ReasonRequired)
	}
	if len(value) > maxLen {
		return Violate(field, ReasonTooLong)
	}
	for i := 0; i < len(value); i++ {
		if !isIdentifierByte(value[i]) {
			return Violate(field, ReasonBadCharset)
		}
	}
	return nil
}

// CheckCode validates a lower snake-case code such as a diagnostic.
func CheckCode(field, value string, maxLen int) error {
	if value == "" {
		return Violate(field, ReasonRequired)
	}
	if len(value) > maxLen {
		return Violate(field, ReasonTooLong)
	}
	if value[0] < 'a' || value[0] > 'z' {
		return Violate(field, ReasonBadCharset)
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return Violate(field, ReasonBadCharset)
		}
	}
	return nil
}

// CheckPositive validates value > 0.
func CheckPositive(field string, value int) error {
	if value <= 0 {
		return Violate(field, ReasonNotPositive)
	}
	return nil
}

// CheckRange validates min <= value <= max.
func CheckRange(field string, value, min, max int64) error {
	if value < min || value > max {
		return Violate(field, ReasonOutOfRange)
	}
	return nil
}

// CheckBasisPoints validates 0 <= value <= 10000.
func CheckBasisPoints(field string, value int) error {
	return CheckRange(field, int64(value), 0, BasisPointsMax)
}

// CheckCount validates 1 <= n <= max for a required list, or n <= max when
// the list is optional.
func CheckCount(field string, n, max int, required bool) error {
	if required && n == 0 {
		return Violate(field, ReasonRequired)
	}
	if n > max {
		return Violate(field, ReasonTooMany)
	}
	return nil
}

// CheckUnique reports a violation when keys contains a duplicate.
func CheckUnique(field string, keys []string) error {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return Violate(field, ReasonDuplicate)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// BasisPointsMax is 100% in basis points.
const BasisPointsMax = 10000

func isIdentifierByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == ':', c == '-':
		return true
	}
	return false
}
