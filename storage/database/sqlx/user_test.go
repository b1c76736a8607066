package sqlxrepos

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/user"
)

var userCols = []string{"id", "name", "email", "role", "is_active", "password_hash", "created_at", "updated_at", "last_login"}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestUserRepository_GetUserByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(userCols).
			AddRow("u-1", "Bu Guru", "guru@test.id", "guru", true, []byte("hash"), now, now, nil)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs("u-1").WillReturnRows(rows)

		usr, err := repo.GetUserByID(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "Bu Guru", usr.Name)
		assert.Equal(t, auth.RoleGuru, usr.Role)
		assert.True(t, usr.IsActive)
		assert.False(t, usr.LastLogin.Valid)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetUserByID(ctx, "nope")
		assert.Equal(t, user.ErrNotFound, err)
		assert.True(t, core.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_CheckEmailUniqueness(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE email = \$1$`).
		WithArgs("admin@test.id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	assert.Equal(t, user.ErrEmailExists, repo.CheckEmailUniqueness(ctx, "admin@test.id"))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE email = \$1 AND id NOT IN \(\$2\)`).
		WithArgs("admin@test.id", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	assert.NoError(t, repo.CheckEmailUniqueness(ctx, "admin@test.id", user.User{ID: "u-1"}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	usr := user.User{ID: "u-1", Name: "Admin", Email: "admin@test.id", Role: auth.RoleAdmin, IsActive: true, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("u-1", "Admin", "admin@test.id", "admin", true, sqlmock.AnyArg(), now, now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	created, err := repo.CreateUser(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, created.ID)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: uniqueViolation})
	_, err = repo.CreateUser(ctx, usr)
	assert.Equal(t, user.ErrEmailExists, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FilterUsers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	active := true

	mock.ExpectQuery(
		`SELECT (.+) FROM users WHERE \(name ILIKE \$1 OR email ILIKE \$1\) AND role = ANY\(\$2\) AND is_active = \$3 ` +
			`ORDER BY name ASC, created_at DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("%bu%", sqlmock.AnyArg(), true, 10, 20).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u-2", "Bu Ani", "ani@test.id", "guru", true, []byte("h"), now, now, now))

	users, err := repo.FilterUsers(ctx,
		user.QueryFilter{Search: "bu", Roles: []auth.Role{auth.RoleGuru}, IsActive: &active},
		[]core.DBOrdering{{Field: "name", Ascending: true}, {Field: "password_hash"}, {Field: "created_at"}},
		core.Pagination{Limit: 10, Offset: 20},
	)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].LastLogin.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	inactive := false

	mock.ExpectQuery(`UPDATE users SET name = \$2, email = \$3, updated_at = \$4, role = \$5, is_active = \$6 WHERE id = \$1 RETURNING`).
		WithArgs("u-1", "New", "new@test.id", now, "guru", false).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u-1", "New", "new@test.id", "guru", false, []byte("h"), now, now, nil))

	usr, err := repo.UpdateUser(ctx, user.User{ID: "u-1", Name: "New", Email: "new@test.id", Role: auth.RoleGuru, UpdatedAt: now}, &inactive)
	require.NoError(t, err)
	assert.False(t, usr.IsActive)

	mock.ExpectQuery(`UPDATE users SET`).WillReturnError(sql.ErrNoRows)
	_, err = repo.UpdateUser(ctx, user.User{ID: "u-9", UpdatedAt: now}, nil)
	assert.Equal(t, user.ErrNotFound, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_DeleteUsersByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`DELETE FROM users WHERE id IN \(\$1, \$2\)`).
		WithArgs("u-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.DeleteUsersByID(context.Background(), "u-1", "u-2"))
	require.NoError(t, repo.DeleteUsersByID(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
