package changelog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type newThing struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

type attemptUpdate struct {
	AttemptCount int `json:"attempt_count"`
}

func TestNewInsertCarriesInsertable(t *testing.T) {
	r, err := NewInsert("payouts", "mid_m1_po_p1", newThing{ID: "p1", Amount: 500})
	require.NoError(t, err)

	assert.Equal(t, OpInsert, r.Op)
	assert.Equal(t, "payouts", r.Entity)
	assert.Equal(t, "mid_m1_po_p1", r.ShardKey)
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.JSONEq(t, `{"id":"p1","amount":500}`, string(r.Insertable))
	assert.Empty(t, r.Orig)
	assert.NoError(t, r.Validate())
}

func TestNewUpdateCarriesOrigAndChange(t *testing.T) {
	orig := newThing{ID: "p1", Amount: 500}
	r, err := NewUpdate("payouts", "mid_m1_po_p1", orig, "attempt_count_update", attemptUpdate{AttemptCount: 1})
	require.NoError(t, err)

	assert.Equal(t, OpUpdate, r.Op)
	assert.Equal(t, "attempt_count_update", r.Variant)
	assert.JSONEq(t, `{"id":"p1","amount":500}`, string(r.Orig))
	assert.JSONEq(t, `{"attempt_count":1}`, string(r.UpdateData))
	assert.NoError(t, r.Validate())
}

func TestRecordIDsAreUnique(t *testing.T) {
	a, err := NewInsert("payouts", "k", newThing{ID: "p1"})
	require.NoError(t, err)
	b, err := NewInsert("payouts", "k", newThing{ID: "p1"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewInsertEncodeFailure(t *testing.T) {
	_, err := NewInsert("payouts", "k", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	var ute *json.UnsupportedTypeError
	assert.True(t, errors.As(err, &ute))
}

func TestValidateRejectsIncompleteRecords(t *testing.T) {
	assert.Error(t, Record{Op: OpInsert, Entity: "payouts", ShardKey: "k"}.Validate())
	assert.Error(t, Record{Op: OpUpdate, Entity: "payouts", ShardKey: "k", Orig: json.RawMessage(`{}`)}.Validate())
	assert.Error(t, Record{Op: "delete", Entity: "payouts", ShardKey: "k"}.Validate())
	assert.Error(t, Record{Op: OpInsert, Insertable: json.RawMessage(`{}`)}.Validate())
}

func TestMemorySinkKeepsOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"p1", "p2", "p3"} {
		r, err := NewInsert("payouts", "mid_m1_po_"+id, newThing{ID: id})
		require.NoError(t, err)
		require.NoError(t, m.Append(ctx, r))
	}
	got := m.Records()
	require.Len(t, got, 3)
	assert.Equal(t, "mid_m1_po_p1", got[0].ShardKey)
	assert.Equal(t, "mid_m1_po_p3", got[2].ShardKey)

	drained := m.Drain()
	assert.Len(t, drained, 3)
	assert.Empty(t, m.Records())
}

func TestMemorySinkHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemory().Append(ctx, Record{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStructCodecRoundTrip(t *testing.T) {
	r, err := NewUpdate("payouts", "mid_m1_po_p1", newThing{ID: "p1", Amount: 500}, "attempt_count_update", attemptUpdate{AttemptCount: 2})
	require.NoError(t, err)

	c := NewStructCodec()
	b, err := c.Encode(r)
	require.NoError(t, err)
	out, err := c.Decode(b)
	require.NoError(t, err)

	assert.Equal(t, r.ID, out.ID)
	assert.Equal(t, r.Op, out.Op)
	assert.Equal(t, r.Variant, out.Variant)
	assert.Equal(t, r.ShardKey, out.ShardKey)
	assert.JSONEq(t, string(r.Orig), string(out.Orig))
	assert.JSONEq(t, string(r.UpdateData), string(out.UpdateData))
}

func TestJSONCodecRoundTrip(t *testing.T) {
	r, err := NewInsert("payouts", "mid_m1_po_p1", newThing{ID: "p1", Amount: 500})
	require.NoError(t, err)
	b, err := JSONCodec.Encode(r)
	require.NoError(t, err)
	out, err := JSONCodec.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, r, out)
}
