package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/earn-hire/internal/errs"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestStore_QueryByField_Found(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewStore(db)
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`SELECT id, owner_id, data, updated_at FROM documents WHERE collection = \$1 AND data->>\$2 = \$3`).
		WithArgs("insights", "userId", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "data", "updated_at"}).
			AddRow(id, "u1", []byte(`{"userId":"u1","count":2}`), now))

	doc, err := s.QueryByField(context.Background(), "insights", "userId", "u1")
	require.NoError(t, err)
	require.Equal(t, id.String(), doc.ID)
	require.Equal(t, "u1", doc.OwnerID)
	require.EqualValues(t, 2, doc.Data["count"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryByField_NotFoundAndError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, owner_id, data, updated_at FROM documents`).
		WithArgs("insights", "userId", "nobody").
		WillReturnError(pgx.ErrNoRows)
	_, err := s.QueryByField(ctx, "insights", "userId", "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(`SELECT id, owner_id, data, updated_at FROM documents`).
		WithArgs("insights", "userId", "u1").
		WillReturnError(boom)
	_, err = s.QueryByField(ctx, "insights", "userId", "u1")
	require.ErrorIs(t, err, boom)
}

func TestStore_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO documents \(collection, id, owner_id, data\) VALUES \(\$1, \$2, \$3, \$4\) RETURNING updated_at`).
		WithArgs("crypto_rewards", pgxmock.AnyArg(), "u1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	doc, err := s.Create(ctx, "crypto_rewards", map[string]any{"userId": "u1", "points": 0}, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.Equal(t, "u1", doc.Data["userId"])

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("crypto_rewards", pgxmock.AnyArg(), "u1", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err = s.Create(ctx, "crypto_rewards", map[string]any{"userId": "u1"}, "u1")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestStore_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewStore(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`UPDATE documents SET data = data \|\| \$3::jsonb, updated_at = now\(\) WHERE collection = \$1 AND id = \$2 RETURNING owner_id, data, updated_at`).
		WithArgs("insights", id, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"owner_id", "data", "updated_at"}).
			AddRow("u1", []byte(`{"userId":"u1","plan":"pro"}`), time.Now()))
	doc, err := s.Update(ctx, "insights", id.String(), map[string]any{"plan": "pro"})
	require.NoError(t, err)
	require.Equal(t, "pro", doc.Data["plan"])

	mock.ExpectQuery(`UPDATE documents`).
		WithArgs("insights", id, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Update(ctx, "insights", id.String(), map[string]any{"plan": "pro"})
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.Update(ctx, "insights", "not-a-uuid", map[string]any{})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
