package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/dualstore/changelog"
)

func newSink(t *testing.T, table string) (*Sink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := New(Config{DB: db, Table: table})
	require.NoError(t, err)
	return s, mock
}

func TestAppendInsertsRow(t *testing.T) {
	s, mock := newSink(t, "")
	r, err := changelog.NewInsert("payouts", "mid_m1_po_p1", map[string]any{"payout_id": "p1"})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv_changelog (id, entity, op, shard_key, payload)")).
		WithArgs(r.ID.String(), "payouts", "insert", "mid_m1_po_p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Append(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCustomTable(t *testing.T) {
	s, mock := newSink(t, "payout_changes")
	r, err := changelog.NewUpdate("payouts", "k", map[string]any{"a": 1}, "recurring_update", map[string]any{"recurring": true})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payout_changes")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Append(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRejectsInvalidRecord(t *testing.T) {
	s, mock := newSink(t, "")
	err := s.Append(context.Background(), changelog.Record{Op: changelog.OpInsert})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendPropagatesDBError(t *testing.T) {
	s, mock := newSink(t, "")
	r, err := changelog.NewInsert("payouts", "k", map[string]any{"payout_id": "p1"})
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO kv_changelog").WillReturnError(boom)

	assert.ErrorIs(t, s.Append(context.Background(), r), boom)
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
