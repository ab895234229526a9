package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/and161185/earn-hire/internal/model"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	row   *model.RateLimitRecord
	qrErr error

	lastExecSQL  string
	lastExecArgs []any
	execTag      pgconn.CommandTag
	execErr      error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL = sql
	f.lastExecArgs = args
	return f.execTag, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if !strings.Contains(sql, "FROM claim_limiter") {
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
	return fakeRow{scan: func(dest ...any) error {
		if f.qrErr != nil {
			return f.qrErr
		}
		if f.row == nil {
			return pgx.ErrNoRows
		}
		*(dest[0].(*int)) = f.row.Attempts
		*(dest[1].(*int)) = f.row.Violations
		*(dest[2].(*int64)) = f.row.LastAttempt
		*(dest[3].(*int64)) = f.row.CooldownUntil
		*(dest[4].(*bool)) = f.row.NeedsCaptcha
		return nil
	}}
}

func TestPGStore_LoadNoRow(t *testing.T) {
	s := NewPGWithQuerier(&fakePool{}, time.Hour)
	_, ok, err := s.Load(context.Background(), wallet)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPGStore_LoadRow(t *testing.T) {
	want := model.RateLimitRecord{Attempts: 2, Violations: 1, LastAttempt: 10, CooldownUntil: 20, NeedsCaptcha: true}
	s := NewPGWithQuerier(&fakePool{row: &want}, time.Hour)
	got, ok, err := s.Load(context.Background(), wallet)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestPGStore_LoadErrorPropagates(t *testing.T) {
	s := NewPGWithQuerier(&fakePool{qrErr: errors.New("db boom")}, time.Hour)
	_, _, err := s.Load(context.Background(), wallet)
	require.Error(t, err)
}

func TestPGStore_SaveUpserts(t *testing.T) {
	fp := &fakePool{}
	s := NewPGWithQuerier(fp, time.Hour)
	rec := model.RateLimitRecord{Attempts: 1, LastAttempt: 5}
	require.NoError(t, s.Save(context.Background(), wallet, rec))
	require.Contains(t, fp.lastExecSQL, "INSERT INTO claim_limiter")
	require.Contains(t, fp.lastExecSQL, "ON CONFLICT (identifier)")
	require.Equal(t, []any{wallet, 1, 0, int64(5), int64(0), false}, fp.lastExecArgs)

	fp.execErr = errors.New("exec fail")
	require.Error(t, s.Save(context.Background(), wallet, rec))
}

func TestPGStore_Sweep(t *testing.T) {
	fp := &fakePool{execTag: pgconn.NewCommandTag("DELETE 3")}
	s := NewPGWithQuerier(fp, 35*time.Minute)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	n, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.Contains(t, fp.lastExecSQL, "DELETE FROM claim_limiter")
	require.Equal(t, []any{now.Add(-35 * time.Minute).UnixMilli(), now.UnixMilli()}, fp.lastExecArgs)
}

func TestLimiter_OverPGStoreFailsOpen(t *testing.T) {
	l := New(NewPGWithQuerier(&fakePool{qrErr: errors.New("db down")}, time.Hour), Config{}, nil)
	require.True(t, l.CheckAttempt(context.Background(), wallet).Allowed)
}
