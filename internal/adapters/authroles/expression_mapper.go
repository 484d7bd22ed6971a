package authroles

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/ports"
)

// ExpressionMapper evaluates a JMESPath expression over the identity's claims.
// The expression sees the raw token claims plus sub, email, name and groups.
// A result of "admin" or true yields admin; any other result, or an evaluation
// error, falls back to Fallback.
//
// Example: contains(groups, 'jobqueue-admins') || email == 'root@example.com'.
type ExpressionMapper struct {
	expr     string
	fallback ports.RoleMapper
	logger   *slog.Logger
}

var _ ports.RoleMapper = (*ExpressionMapper)(nil)

// NewExpressionMapper compiles expr. fallback defaults to a StaticRoleMapper with no admin group.
func NewExpressionMapper(expr string, fallback ports.RoleMapper, logger *slog.Logger) (*ExpressionMapper, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("role expression is required")
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile role expression: %w", err)
	}
	if fallback == nil {
		fallback = StaticRoleMapper{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpressionMapper{expr: expr, fallback: fallback, logger: logger.With("component", "role_mapper")}, nil
}

func (m *ExpressionMapper) Map(id domainauth.Identity) domainauth.Role {
	data, err := claimsDocument(id)
	if err != nil {
		m.logger.Warn("role expression input invalid", "subject", id.Subject, "error", err)
		return m.fallback.Map(id)
	}

	out, err := jmespath.Search(m.expr, data)
	if err != nil {
		m.logger.Warn("role expression failed", "subject", id.Subject, "error", err)
		return m.fallback.Map(id)
	}

	switch v := out.(type) {
	case bool:
		if v {
			return domainauth.RoleAdmin
		}
		return domainauth.RoleUser
	case string:
		if role, perr := domainauth.ParseRole(v); perr == nil {
			return role
		}
	}
	return m.fallback.Map(id)
}

// claimsDocument builds the JSON-shaped document the expression runs against.
// A JSON round trip normalises typed slices and maps into []any and map[string]any.
func claimsDocument(id domainauth.Identity) (any, error) {
	doc := make(map[string]any, len(id.Claims)+4)
	for k, v := range id.Claims {
		doc[k] = v
	}
	doc["sub"] = id.Subject
	doc["email"] = id.Email
	doc["name"] = id.Name
	groups := id.Groups
	if groups == nil {
		groups = []string{}
	}
	doc["groups"] = groups

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var normalised any
	if err := json.Unmarshal(raw, &normalised); err != nil {
		return nil, err
	}
	return normalised, nil
}
