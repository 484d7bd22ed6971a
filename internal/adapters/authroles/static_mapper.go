// Package authroles maps identities returned by an IdP to application roles.
package authroles

import (
	"slices"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/ports"
)

// StaticRoleMapper grants admin to members of AdminGroup and user to everyone else.
type StaticRoleMapper struct {
	AdminGroup string
}

var _ ports.RoleMapper = StaticRoleMapper{}

func (m StaticRoleMapper) Map(id domainauth.Identity) domainauth.Role {
	if m.AdminGroup != "" && slices.Contains(id.Groups, m.AdminGroup) {
		return domainauth.RoleAdmin
	}
	return domainauth.RoleUser
}
