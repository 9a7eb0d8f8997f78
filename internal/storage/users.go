package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/findosh/coinwatch/internal/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var _ CredentialStore = (*UserRepository)(nil)

// UserRepository is the SQLite CredentialStore. The watchlist is stored as a
// JSON column so a user is still written as one row, one document.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, name, watchlist, reset_token_hash, reset_token_expires_at, version, created_at, updated_at`

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	watchlist, err := encodeWatchlist(user.Watchlist)
	if err != nil {
		return err
	}
	resetHash, resetExpiry := resetColumns(user.Reset)

	user.Email = models.NormalizeEmail(user.Email)
	user.Version = 1

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.Name,
		watchlist,
		resetHash,
		resetExpiry,
		user.Version,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by ID
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id.String()))
}

// FindByEmail retrieves a user by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
}

// FindByResetTokenHash retrieves the user holding the given reset hash
func (r *UserRepository) FindByResetTokenHash(ctx context.Context, hash string) (*models.User, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token_hash = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, hash))
}

// Update writes the user back if the stored version still matches
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	watchlist, err := encodeWatchlist(user.Watchlist)
	if err != nil {
		return err
	}
	resetHash, resetExpiry := resetColumns(user.Reset)
	email := models.NormalizeEmail(user.Email)

	query := `
		UPDATE users SET email = ?, password_hash = ?, name = ?, watchlist = ?,
			reset_token_hash = ?, reset_token_expires_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		email,
		user.PasswordHash,
		user.Name,
		watchlist,
		resetHash,
		resetExpiry,
		user.UpdatedAt,
		user.ID.String(),
		user.Version,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return r.missOrConflict(ctx, user.ID)
	}

	user.Email = email
	user.Version++
	return nil
}

// ExpiredResets lists users whose reset token expired before now
func (r *UserRepository) ExpiredResets(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM users WHERE reset_token_hash IS NOT NULL AND reset_token_expires_at <= ?`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired resets: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt user id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database
func (r *UserRepository) Close() error {
	return r.db.Close()
}

func (r *UserRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	return ErrVersionConflict
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var id, watchlist string
	var resetHash sql.NullString
	var resetExpiry sql.NullTime

	err := row.Scan(
		&id,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&watchlist,
		&resetHash,
		&resetExpiry,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(watchlist), &user.Watchlist); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist: %w", err)
	}
	if user.Watchlist == nil {
		user.Watchlist = []models.WatchItem{}
	}
	if resetHash.Valid && resetHash.String != "" {
		user.Reset = &models.ResetToken{Hash: resetHash.String}
		if resetExpiry.Valid {
			user.Reset.ExpiresAt = resetExpiry.Time
		}
	}

	return &user, nil
}

func encodeWatchlist(items []models.WatchItem) (string, error) {
	if items == nil {
		items = []models.WatchItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode watchlist: %w", err)
	}
	return string(b), nil
}

func resetColumns(t *models.ResetToken) (sql.NullString, sql.NullTime) {
	if t == nil || t.Hash == "" {
		return sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: t.Hash, Valid: true}, sql.NullTime{Time: t.ExpiresAt.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
