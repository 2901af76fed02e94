package contract

// GlobalCeiling bounds every caller-declared ceiling and hard cap.
const GlobalCeiling = 256

// Length limits shared by all domains.
const (
	MaxIdentifierLen = 64
	MaxMessageRunes  = 256
	MaxCodeLen       = 96
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// SchemaVersion is the per-domain request schema version.
type SchemaVersion uint16

// CheckSchema is the first check of every request.
func CheckSchema(got, want SchemaVersion) error {
	if got != want {
		return Violate("schema_version", ReasonSchemaMismatch)
	}
	return nil
}

// CorrelationID ties every turn of one conversation together.
type CorrelationID string

// Validate checks the identifier charset and length.
func (c CorrelationID) Validate() error {
	return CheckIdentifier("correlation_id", string(c), MaxIdentifierLen)
}

// TurnID identifies a turn within a correlation.
type TurnID uint32

// Validate rejects zero.
func (t TurnID) Validate() error {
	if t == 0 {
		return Violate("turn_id", ReasonNotPositive)
	}
	return nil
}

// CapabilityID names one operation of one domain, in upper snake case.
type CapabilityID string

// Validate checks the upper snake-case form.
func (c CapabilityID) Validate() error {
	s := string(c)
	if s == "" {
		return Violate("capability_id", ReasonRequired)
	}
	if len(s) > MaxIdentifierLen {
		return Violate("capability_id", ReasonTooLong)
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return Violate("capability_id", ReasonBadCharset)
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !(ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_') {
			return Violate("capability_id", ReasonBadCharset)
		}
	}
	return nil
}

// =============================================================================
// CAPS & ENVELOPE
// =============================================================================

// Caps are the domain-specific hard caps on envelope ceilings.
type Caps struct {
	MaxCandidates  int `json:"max_candidates"`
	MaxDiagnostics int `json:"max_diagnostics"`
}

// Validate checks that both caps are positive and within GlobalCeiling.
func (c Caps) Validate() error {
	return First(
		checkCeiling("caps.max_candidates", c.MaxCandidates),
		checkCeiling("caps.max_diagnostics", c.MaxDiagnostics),
	)
}

// Clamp returns min(c, other) field by field, ignoring non-positive values
// in other.
func (c Caps) Clamp(other Caps) Caps {
	out := c
	if other.MaxCandidates > 0 && other.MaxCandidates < out.MaxCandidates {
		out.MaxCandidates = other.MaxCandidates
	}
	if other.MaxDiagnostics > 0 && other.MaxDiagnostics < out.MaxDiagnostics {
		out.MaxDiagnostics = other.MaxDiagnostics
	}
	return out
}

// Envelope is the identity and budget metadata attached to every request.
type Envelope struct {
	CorrelationID  CorrelationID `json:"correlation_id"`
	TurnID         TurnID        `json:"turn_id"`
	MaxCandidates  int           `json:"max_candidates"`
	MaxDiagnostics int           `json:"max_diagnostics"`
}

// NewEnvelopeV1 builds and validates an Envelope.
func NewEnvelopeV1(correlationID CorrelationID, turnID TurnID, maxCandidates, maxDiagnostics int) (Envelope, error) {
	e := Envelope{
		CorrelationID:  correlationID,
		TurnID:         turnID,
		MaxCandidates:  maxCandidates,
		MaxDiagnostics: maxDiagnostics,
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Validate checks identity fields and that ceilings are positive and within
// GlobalCeiling.
func (e Envelope) Validate() error {
	return First(
		e.CorrelationID.Validate(),
		e.TurnID.Validate(),
		checkCeiling("envelope.max_candidates", e.MaxCandidates),
		checkCeiling("envelope.max_diagnostics", e.MaxDiagnostics),
	)
}

// WithinCaps checks the envelope ceilings against a domain's hard caps.
func (e Envelope) WithinCaps(c Caps) error {
	if e.MaxCandidates > c.MaxCandidates {
		return Violate("envelope.max_candidates", ReasonExceedsCap)
	}
	if e.MaxDiagnostics > c.MaxDiagnostics {
		return Violate("envelope.max_diagnostics", ReasonExceedsCap)
	}
	return nil
}

// CheckEnvelope validates e and its caps in one call; request Validate
// methods use it right after the schema check.
func CheckEnvelope(e Envelope, c Caps) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return e.WithinCaps(c)
}

func checkCeiling(field string, v int) error {
	if v <= 0 {
		return Violate(field, ReasonNotPositive)
	}
	if v > GlobalCeiling {
		return Violate(field, ReasonExceedsCap)
	}
	return nil
}
