package report

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlukman/inventory-tag/inventory"
	"github.com/phlukman/inventory-tag/lock"
	"github.com/phlukman/inventory-tag/store"
)

func newWriter(t *testing.T) (*Writer, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	locker := lock.New(st, lock.Config{})
	return NewWriter(st, locker, nil), st
}

func readRows(t *testing.T, st *store.MemoryStore, key string) [][]string {
	t.Helper()
	body, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	key := ObjectKey("cidb-2.0", at)
	assert.Equal(t, "cidb-2.0/2026/august/august-29-20262908.csv", key)
}

func TestWriter_CreatesReportWithHeader(t *testing.T) {
	w, st := newWriter(t)

	err := w.Write(context.Background(), "reports/run.csv", []inventory.Record{
		{ID: "arn:p1", AccountID: "111111111111", Region: "us-east-1", Service: "iam-policies", Tags: map[string]string{"Team": "infra"}},
	})
	require.NoError(t, err)

	rows := readRows(t, st, "reports/run.csv")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"service", "resource_id", "account_id", "region", "tags"}, rows[0])
	assert.Equal(t, "iam-policies", rows[1][0])
	assert.Equal(t, "arn:p1", rows[1][1])
	assert.JSONEq(t, `{"Team":"infra"}`, rows[1][4])
}

func TestWriter_MergesWithExistingRows(t *testing.T) {
	w, st := newWriter(t)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, "reports/run.csv", []inventory.Record{
		{ID: "arn:p1", Service: "iam-policies"},
	}))
	require.NoError(t, w.Write(ctx, "reports/run.csv", []inventory.Record{
		{ID: "key-1", Service: "kms-keys"},
	}))

	rows := readRows(t, st, "reports/run.csv")
	require.Len(t, rows, 3, "header plus both batches")
	assert.Equal(t, "arn:p1", rows[1][1])
	assert.Equal(t, "key-1", rows[2][1])
}

func TestWriter_UntaggedRecordGetsEmptyTagObject(t *testing.T) {
	w, st := newWriter(t)

	require.NoError(t, w.Write(context.Background(), "reports/run.csv", []inventory.Record{
		{ID: "ami-1", Service: "ec2-images"},
	}))

	rows := readRows(t, st, "reports/run.csv")
	assert.Equal(t, "{}", rows[1][4])
}

func TestWriter_NoRecordsIsNoOp(t *testing.T) {
	w, st := newWriter(t)

	require.NoError(t, w.Write(context.Background(), "reports/run.csv", nil))

	_, err := st.Get(context.Background(), "reports/run.csv")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWriter_ReleasesLockAfterWrite(t *testing.T) {
	w, st := newWriter(t)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, "reports/run.csv", []inventory.Record{{ID: "r-1"}}))

	_, err := st.Get(ctx, "reports/run.csv"+lock.Suffix)
	assert.ErrorIs(t, err, store.ErrNotFound, "lock object must be gone after the write")
}
