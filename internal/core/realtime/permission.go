package realtime

import "sort"

// Permission is a named capability granted to a connection at admission time.
// Broadcasts may be gated on a permission so that a connection only receives
// the event kinds it was granted.
type Permission string

// The closed set of capabilities the registry accepts. Connect rejects
// anything outside this set.
const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"

	PermissionProcessingRead  Permission = "processing:read"
	PermissionProcessingWrite Permission = "processing:write"
	PermissionApprovalRead    Permission = "approval:read"
	PermissionApprovalWrite   Permission = "approval:write"
)

var knownPermissions = map[Permission]struct{}{
	PermissionRead:            {},
	PermissionWrite:           {},
	PermissionAdmin:           {},
	PermissionProcessingRead:  {},
	PermissionProcessingWrite: {},
	PermissionApprovalRead:    {},
	PermissionApprovalWrite:   {},
}

// Valid reports whether p is one of the known capabilities.
func (p Permission) Valid() bool {
	_, ok := knownPermissions[p]
	return ok
}

// PermissionSet is the capability snapshot carried by a connection.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains p.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Slice returns the permissions in stable order, for envelopes and logs.
func (s PermissionSet) Slice() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}
