package rbac

// 权限常量
const (
	PermissionSyncMail      = "mail:sync"
	PermissionManageEmail   = "email:manage"
	PermissionManageTask    = "task:manage"
	PermissionReplayOutbox  = "outbox:replay"
	PermissionViewAllEmails = "email:read_all"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionSyncMail,
		PermissionManageEmail,
		PermissionManageTask,
	},
	RoleAdmin: {
		PermissionSyncMail,
		PermissionManageEmail,
		PermissionManageTask,
		PermissionReplayOutbox,
		PermissionViewAllEmails,
	},
}

// NormalizeRole 未知角色按 user 处理
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleUser
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[NormalizeRole(role)] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 返回错误而不是布尔值，便于 handler 处理
func CheckPermission(userID int, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
