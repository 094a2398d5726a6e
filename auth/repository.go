package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
)

var (
	// ErrUserNotFound signals that the user does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already exists")
)

// Repository stores members, stewards and admins.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
}

type CreateUserParams struct {
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository on PostgreSQL. Emails are stored and
// looked up in lower case.
type PGRepository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q}
}

const userColumns = `id, email, full_name, password_hash, phone, local_id, role, created_at, updated_at`

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *PGRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	role := params.Role
	if role == "" {
		role = RoleMember
	}
	user, err := scanUser(r.q.QueryRow(ctx,
		`INSERT INTO users (email, full_name, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		normalizeEmail(params.Email), strings.TrimSpace(params.FullName), params.PasswordHash, role))
	switch {
	case err == nil:
		return user, nil
	case db.IsUniqueViolation(err):
		return User{}, ErrDuplicateEmail
	default:
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}
}

func (r *PGRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return r.getUser(ctx, "email", normalizeEmail(email))
}

func (r *PGRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	return r.getUser(ctx, "id", userID)
}

// getUser looks a user up by one of its unique columns. A malformed id is
// reported as a missing user.
func (r *PGRepository) getUser(ctx context.Context, column, value string) (User, error) {
	user, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value))
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows), db.IsInvalidText(err):
		return User{}, ErrUserNotFound
	default:
		return User{}, fmt.Errorf("auth: get user by %s: %w", column, err)
	}
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.Phone,
		&user.LocalID,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}
