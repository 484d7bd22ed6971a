package authroles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
)

func TestStaticRoleMapper(t *testing.T) {
	m := StaticRoleMapper{AdminGroup: "jobqueue-admins"}

	assert.Equal(t, domainauth.RoleAdmin, m.Map(domainauth.Identity{Groups: []string{"staff", "jobqueue-admins"}}))
	assert.Equal(t, domainauth.RoleUser, m.Map(domainauth.Identity{Groups: []string{"staff"}}))
	assert.Equal(t, domainauth.RoleUser, m.Map(domainauth.Identity{}))
	assert.Equal(t, domainauth.RoleUser, StaticRoleMapper{}.Map(domainauth.Identity{Groups: []string{""}}),
		"an unset admin group never matches")
}

func TestExpressionMapper(t *testing.T) {
	tests := []struct {
		name string
		expr string
		id   domainauth.Identity
		want domainauth.Role
	}{
		{
			name: "boolean true grants admin",
			expr: "contains(groups, 'jobqueue-admins')",
			id:   domainauth.Identity{Groups: []string{"jobqueue-admins"}},
			want: domainauth.RoleAdmin,
		},
		{
			name: "boolean false is user",
			expr: "contains(groups, 'jobqueue-admins')",
			id:   domainauth.Identity{Groups: []string{"staff"}},
			want: domainauth.RoleUser,
		},
		{
			name: "string result names the role",
			expr: "department == 'platform' && 'admin' || 'user'",
			id:   domainauth.Identity{Claims: map[string]any{"department": "platform"}},
			want: domainauth.RoleAdmin,
		},
		{
			name: "email comparison",
			expr: "email == 'root@example.com'",
			id:   domainauth.Identity{Email: "root@example.com"},
			want: domainauth.RoleAdmin,
		},
		{
			name: "unknown string falls back",
			expr: "'superuser'",
			id:   domainauth.Identity{Groups: []string{"ops"}},
			want: domainauth.RoleAdmin,
		},
		{
			name: "null falls back",
			expr: "missing_claim",
			id:   domainauth.Identity{},
			want: domainauth.RoleUser,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewExpressionMapper(tt.expr, StaticRoleMapper{AdminGroup: "ops"}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Map(tt.id))
		})
	}
}

func TestNewExpressionMapper_Invalid(t *testing.T) {
	_, err := NewExpressionMapper("", nil, nil)
	require.Error(t, err)

	_, err = NewExpressionMapper("contains(groups,", nil, nil)
	require.Error(t, err)
}
