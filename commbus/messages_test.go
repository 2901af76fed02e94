package commbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

type namedMessage struct{}

func (namedMessage) Category() string    { return string(MessageCategoryEvent) }
func (namedMessage) MessageType() string { return "Custom" }

func TestMessageCategories(t *testing.T) {
	tests := []struct {
		msg  Message
		want MessageCategory
		name string
	}{
		{&TurnCompleted{}, MessageCategoryEvent, "TurnCompleted"},
		{&WorkOrderEventCommitted{}, MessageCategoryEvent, "WorkOrderEventCommitted"},
		{&GetTurnStats{}, MessageCategoryQuery, "GetTurnStats"},
		{&ResetTenantWindow{}, MessageCategoryCommand, "ResetTenantWindow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, string(tt.want), tt.msg.Category())
			assert.Equal(t, tt.name, GetMessageType(tt.msg))
		})
	}
}

func TestGetMessageTypePrefersTypedMessage(t *testing.T) {
	assert.Equal(t, "Custom", GetMessageType(namedMessage{}))
}
