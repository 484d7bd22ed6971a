package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
)

// ErrUserNotFound is returned when a user lookup matches nothing.
var ErrUserNotFound = model.ErrUserNotFound

const userColumns = `id::text, email, name, password_hash, role, created_at`

// UserRepo provides database operations for user accounts.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB, cfg RepoConfig) *UserRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepo{DB: db, timeProvider: tp, logger: logger.With("component", "user_repo")}
}

type userRowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row userRowScanner) (*model.User, error) {
	var (
		u    model.User
		hash sql.NullString
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &hash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	if hash.Valid {
		h := hash.String
		u.PasswordHash = &h
	}
	u.Role = domainauth.Role(role)
	return &u, nil
}

// Create inserts a user. A duplicate email surfaces as a unique violation from the driver.
func (r *UserRepo) Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	role := req.Role
	if role == "" {
		role = domainauth.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		uuid.NewString(), email, strings.TrimSpace(req.Name), req.PasswordHash, string(role), r.timeProvider.Now(),
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetByID returns a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, ErrUserNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns a user by case-insensitive email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, model.NormalizeEmail(email))
}

// UpsertFederated inserts an SSO user or refreshes their name. The stored role is only
// ever raised by SSO, so an admin promoted locally keeps admin.
func (r *UserRepo) UpsertFederated(ctx context.Context, req model.UpsertFederatedUserRequest) (*model.User, error) {
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	role := req.Role
	if !role.Valid() {
		role = domainauth.RoleUser
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (id, email, name, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ((lower(email))) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
		    role = CASE WHEN EXCLUDED.role = 'admin' THEN 'admin' ELSE users.role END
		RETURNING `+userColumns,
		uuid.NewString(), email, strings.TrimSpace(req.Name), string(role), r.timeProvider.Now(),
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert federated user: %w", err)
	}
	return u, nil
}

// SetRole changes a user's role by email.
func (r *UserRepo) SetRole(ctx context.Context, email string, role domainauth.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	u, err := r.getOne(ctx, `
		UPDATE users SET role = $2
		WHERE lower(email) = $1
		RETURNING `+userColumns, model.NormalizeEmail(email), string(role))
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "user role changed", "user_id", u.ID, "role", role)
	return u, nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
