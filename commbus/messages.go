package commbus

import (
	"time"
)

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	MessageCategoryEvent   MessageCategory = "event"
	MessageCategoryQuery   MessageCategory = "query"
	MessageCategoryCommand MessageCategory = "command"
)

// =============================================================================
// TURN EVENTS
// =============================================================================

// TurnCompleted is published by the kernel after every turn, whatever the
// outcome.
type TurnCompleted struct {
	Domain        string        `json:"domain"`
	CorrelationID string        `json:"correlation_id"`
	TurnID        uint32        `json:"turn_id"`
	Outcome       string        `json:"outcome"`
	ReasonCode    string        `json:"reason_code,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Category implements the Message interface.
func (m *TurnCompleted) Category() string { return string(MessageCategoryEvent) }

// WorkOrderEventCommitted is published when a work-order event reaches the
// event store, including idempotent replays.
type WorkOrderEventCommitted struct {
	CorrelationID  string `json:"correlation_id"`
	WorkOrderID    string `json:"work_order_id"`
	Sequence       int    `json:"sequence"`
	Kind           string `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`
	Duplicate      bool   `json:"duplicate"`
}

// Category implements the Message interface.
func (m *WorkOrderEventCommitted) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// QUERIES
// =============================================================================

// GetTurnStats asks for per-domain turn counters. An empty Domain means all.
type GetTurnStats struct {
	Domain string `json:"domain,omitempty"`
}

// Category implements the Message interface.
func (m *GetTurnStats) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements the Query interface.
func (m *GetTurnStats) IsQuery() {}

// TurnStatsResponse maps domain to outcome to count.
type TurnStatsResponse struct {
	Turns map[string]map[string]int `json:"turns"`
}

// =============================================================================
// COMMANDS
// =============================================================================

// ResetTenantWindow clears a tenant's rate-limit windows.
type ResetTenantWindow struct {
	TenantID string `json:"tenant_id"`
}

// Category implements the Message interface.
func (m *ResetTenantWindow) Category() string { return string(MessageCategoryCommand) }

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// TypedMessage is implemented by messages that name their own type.
type TypedMessage interface {
	Message
	MessageType() string
}

// GetMessageType returns the routing name of a message.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	switch msg.(type) {
	case *TurnCompleted:
		return "TurnCompleted"
	case *WorkOrderEventCommitted:
		return "WorkOrderEventCommitted"
	case *GetTurnStats:
		return "GetTurnStats"
	case *ResetTenantWindow:
		return "ResetTenantWindow"
	default:
		return "Unknown"
	}
}
