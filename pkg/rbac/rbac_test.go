package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleUser, PermissionSyncMail))
	assert.False(t, HasPermission(RoleUser, PermissionReplayOutbox))
	assert.True(t, HasPermission(RoleAdmin, PermissionReplayOutbox))
	assert.False(t, HasPermission("ghost", PermissionReplayOutbox))
	assert.True(t, HasPermission("", PermissionManageTask))
}

func TestCheckPermission(t *testing.T) {
	err := CheckPermission(7, RoleUser, PermissionReplayOutbox)
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
	assert.Equal(t, 7, denied.UserID)
	assert.NoError(t, CheckPermission(7, RoleAdmin, PermissionReplayOutbox))
}
