// Package users is the authoritative user store backing login and the
// identity lookups made by the session layer.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/minus-twelve/taskauth"
	"github.com/minus-twelve/taskauth/internal/users/migrations"
	"github.com/minus-twelve/taskauth/types"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"
)

var (
	ErrUsernameTaken      = errors.New("users: username already exists")
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)

type NewUser struct {
	Username    string
	Email       string
	Password    string
	IsStaff     bool
	IsSuperuser bool
}

type Store struct {
	db   *sql.DB
	cost int
	// dummyHash is compared against for unknown usernames. It is generated
	// at the store's cost so both failure paths take the same time.
	dummyHash []byte
}

type Option func(*Store)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// Open connects to the SQLite database at dsn and applies pending migrations.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}

	s.dummyHash, err = bcrypt.GenerateFromPassword([]byte("taskauth-dummy-password"), s.cost)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("users: dummy hash: %w", err)
	}

	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("users: migrate: %w", err)
	}
	return s, nil
}

// ApplyMigrations runs the embedded schema migrations.
func (s *Store) ApplyMigrations() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Create(ctx context.Context, u NewUser) (types.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), s.cost)
	if err != nil {
		return types.Identity{}, fmt.Errorf("users: hash password: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, u.Username).Scan(&exists)
	if err == nil {
		return types.Identity{}, ErrUsernameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Identity{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_active, is_staff, is_superuser)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		u.Username, u.Email, string(hash), u.IsStaff, u.IsSuperuser,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return types.Identity{}, ErrUsernameTaken
		}
		return types.Identity{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return types.Identity{}, err
	}
	return types.Identity{
		UserID:      id,
		Username:    u.Username,
		Email:       u.Email,
		IsActive:    true,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}, nil
}

const selectUser = `SELECT id, username, email, password_hash, is_active, is_staff, is_superuser FROM users`

func scanUser(row *sql.Row) (types.Identity, string, error) {
	var (
		u    types.Identity
		hash string
	)
	err := row.Scan(&u.UserID, &u.Username, &u.Email, &hash, &u.IsActive, &u.IsStaff, &u.IsSuperuser)
	return u, hash, err
}

// Authenticate checks a username/password pair. Inactive users are refused.
func (s *Store) Authenticate(ctx context.Context, username, password string) (types.Identity, error) {
	u, hash, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return types.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return types.Identity{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return types.Identity{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return types.Identity{}, ErrInvalidCredentials
	}
	return u, nil
}

// LookupUser implements taskauth.UserLookup.
func (s *Store) LookupUser(ctx context.Context, userID int64) (types.Identity, error) {
	u, _, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Identity{}, taskauth.ErrUserNotFound
	}
	return u, err
}

func (s *Store) SetActive(ctx context.Context, userID int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) Delete(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return taskauth.ErrUserNotFound
	}
	return nil
}
