package auth

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermDeviceRead    Permission = "device:read"
	PermDeviceOperate Permission = "device:operate"
	PermDeviceRemove  Permission = "device:remove"
	PermPairingRead   Permission = "pairing:read"
	PermPairingManage Permission = "pairing:manage"
	PermSystemAdmin   Permission = "system:admin"
)

// rolePermissions is the single source of truth for authorisation.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermDeviceRead,
		PermPairingRead,
	},
	RoleOperator: {
		PermDeviceRead,
		PermDeviceOperate,
		PermPairingRead,
		PermPairingManage,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceOperate,
		PermDeviceRemove,
		PermPairingRead,
		PermPairingManage,
		PermSystemAdmin,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
