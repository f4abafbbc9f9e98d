// Package report renders collected inventory records to CSV and
// merges them into a shared, date-partitioned report object. Writes
// go through the advisory lock so concurrent runs never clobber each
// other's rows.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phlukman/inventory-tag/inventory"
	"github.com/phlukman/inventory-tag/lock"
	"github.com/phlukman/inventory-tag/observe"
	"github.com/phlukman/inventory-tag/store"
)

var header = []string{"service", "resource_id", "account_id", "region", "tags"}

// ObjectKey builds the date-partitioned key for a report written at t:
// <prefix>/<year>/<month>/<month>-<day>-<stamp>.csv, with the month
// name lowercased.
func ObjectKey(prefix string, t time.Time) string {
	year := t.Format("2006")
	month := strings.ToLower(t.Format("January"))
	day := t.Format("02")
	stamp := t.Format("20060201")
	return fmt.Sprintf("%s/%s/%s/%s-%s-%s.csv", prefix, year, month, month, day, stamp)
}

// Writer merges record batches into a CSV object under the advisory
// lock.
type Writer struct {
	store  store.ObjectStore
	locker *lock.Locker
	log    observe.Logger
}

// NewWriter returns a Writer over the given store and locker.
func NewWriter(st store.ObjectStore, locker *lock.Locker, log observe.Logger) *Writer {
	if log == nil {
		log = observe.NewNop()
	}
	return &Writer{store: st, locker: locker, log: log}
}

// Write appends the records to the CSV object at key, creating it with
// a header row when absent. The read-merge-write runs while holding
// the lock on key.
func (w *Writer) Write(ctx context.Context, key string, records []inventory.Record) error {
	if len(records) == 0 {
		return nil
	}

	return w.locker.WithLock(ctx, key, func(ctx context.Context, lockID string) error {
		rows, err := w.existingRows(ctx, key)
		if err != nil {
			return err
		}

		for _, rec := range records {
			row, err := encodeRow(rec)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}

		body, err := renderCSV(rows)
		if err != nil {
			return err
		}
		if err := w.store.Put(ctx, key, body); err != nil {
			return err
		}

		w.log.Info(ctx, "report written",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "appended", Value: len(records)},
			observe.Field{Key: "rows", Value: len(rows)},
		)
		return nil
	})
}

// existingRows loads and parses the current report body. A missing
// object yields no rows.
func (w *Writer) existingRows(ctx context.Context, key string) ([][]string, error) {
	body, err := w.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(body))
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse report %s: %w", key, err)
	}
	if len(all) <= 1 {
		return nil, nil
	}
	return all[1:], nil
}

func encodeRow(rec inventory.Record) ([]string, error) {
	tags := "{}"
	if len(rec.Tags) > 0 {
		b, err := json.Marshal(rec.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags for %s: %w", rec.ID, err)
		}
		tags = string(b)
	}
	return []string{rec.Service, rec.ID, rec.AccountID, rec.Region, tags}, nil
}

func renderCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
