package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wireFields(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	return fields
}

func TestProcessingUpdateWireFormat(t *testing.T) {
	update := NewProcessingUpdate(42, ProcessingInProgress, "ocr", 140, "extracting text")
	assert.Equal(t, 100, update.Progress, "progress is clamped to 100")

	fields := wireFields(t, update)
	assert.Equal(t, "processing_update", fields["type"])
	assert.Equal(t, float64(42), fields["conversation_id"])
	assert.Equal(t, "processing", fields["status"])
	assert.Equal(t, "ocr", fields["stage"])
	assert.Contains(t, fields, "timestamp")
}

func TestApprovalUpdateWireFormat(t *testing.T) {
	fields := wireFields(t, NewApprovalUpdate(7, "pending", "rejected", "reviewer-3"))
	assert.Equal(t, "approval_update", fields["type"])
	assert.Equal(t, float64(7), fields["temp_example_id"])
	assert.Equal(t, "pending", fields["previous_status"])
	assert.Equal(t, "rejected", fields["new_status"])
	assert.Equal(t, "reviewer-3", fields["reviewer_id"])
}

func TestConnectionStatusWireFormat(t *testing.T) {
	info := &ConnectionInfo{
		UserID:      "user1",
		RoomID:      "conv_42",
		Permissions: NewPermissionSet(PermissionWrite, PermissionRead),
	}
	fields := wireFields(t, NewConnectionStatus(info, 3))
	assert.Equal(t, "connection_status", fields["type"])
	assert.Equal(t, "user1", fields["user_id"])
	assert.Equal(t, "conv_42", fields["room_id"])
	assert.Equal(t, "connected", fields["status"])
	assert.Equal(t, float64(3), fields["user_count"])
	assert.Equal(t, []any{"read", "write"}, fields["permissions"], "permissions serialize in stable order")
}

func TestPermissionValidation(t *testing.T) {
	assert.True(t, PermissionProcessingRead.Valid())
	assert.True(t, PermissionAdmin.Valid())
	assert.False(t, Permission("root").Valid())
	assert.False(t, Permission("").Valid())
}
