package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/connectin/internal/model"
)

var identityRowColumns = []string{"id", "user_id", "provider", "provider_user_id", "created_at"}

func TestPostgresIdentityRepo_FindByProviderAndProviderUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresIdentityRepo(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(identityRowColumns).AddRow("id-1", "user-1", "github", "42", time.Now())
		mock.ExpectQuery("SELECT (.+) FROM identities WHERE provider").WithArgs("github", "42").WillReturnRows(rows)

		got, err := repo.FindByProviderAndProviderUserID(ctx, "github", "42")

		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM identities WHERE provider").WithArgs("google", "x").WillReturnError(sql.ErrNoRows)

		got, err := repo.FindByProviderAndProviderUserID(ctx, "google", "x")

		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIdentityRepo_ListByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresIdentityRepo(db)

	now := time.Now()
	rows := sqlmock.NewRows(identityRowColumns).
		AddRow("id-1", "user-1", model.ProviderGoogle, "g-1", now).
		AddRow("id-2", "user-1", model.ProviderGitHub, "42", now.Add(time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM identities WHERE user_id = (.+) ORDER BY created_at").
		WithArgs("user-1").WillReturnRows(rows)

	got, err := repo.ListByUserID(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ProviderGitHub, got[1].Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIdentityRepo_ListByUserID_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresIdentityRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM identities").WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows(identityRowColumns))

	got, err := repo.ListByUserID(context.Background(), "user-2")

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPostgresIdentityRepo_Link(t *testing.T) {
	identity := &model.Identity{ID: "id-1", UserID: "user-1", Provider: model.ProviderGitHub, ProviderUserID: "42", CreatedAt: time.Now()}

	tests := []struct {
		name       string
		result     sql.Result
		err        error
		wantLinked bool
		wantErr    bool
	}{
		{name: "inserted", result: sqlmock.NewResult(0, 1), wantLinked: true},
		{name: "already linked", result: sqlmock.NewResult(0, 0), wantLinked: false},
		{name: "db error", err: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewPostgresIdentityRepo(db)

			exp := mock.ExpectExec("INSERT INTO identities (.+) ON CONFLICT DO NOTHING").
				WithArgs(identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(tt.result)
			}

			linked, err := repo.Link(context.Background(), identity)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLinked, linked)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
