package storage

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	testStore(t, func(t *testing.T) CredentialStore {
		db, err := New(filepath.Join(t.TempDir(), "coinwatch.db"))
		require.NoError(t, err)
		require.NoError(t, db.Migrate(context.Background()))

		r := NewUserRepository(db)
		t.Cleanup(func() { r.Close() })
		return r
	})
}

func TestUserRepository_UpdateConflict(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	r := NewUserRepository(&DB{sqlDB})
	u := models.NewUser("mock@example.com", "", "h")
	u.Version = 3

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE id = ?")).
		WithArgs(u.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	err = r.Update(context.Background(), u)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(3), u.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateMissingRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	r := NewUserRepository(&DB{sqlDB})
	u := models.NewUser("gone@example.com", "", "h")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	assert.ErrorIs(t, r.Update(context.Background(), u), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateBumpsVersion(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	r := NewUserRepository(&DB{sqlDB})
	u := models.NewUser("ok@example.com", "", "h")
	u.Version = 1

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Update(context.Background(), u))
	assert.Equal(t, int64(2), u.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
