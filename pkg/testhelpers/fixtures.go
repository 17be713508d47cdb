// Package testhelpers provides source databases and fixtures for lineqa tests.
package testhelpers

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// Measurement is one fixture row of a source measurements table.
type Measurement struct {
	TraceCode string
	RefName   string
	Weight    float64
	Status    string
	Timestamp time.Time
}

// FixtureStart is the timestamp of the first sample measurement.
var FixtureStart = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// SampleMeasurements returns five rows, TC-1..TC-5, one hour apart.
// line only changes Status so rows from different lines are distinguishable.
func SampleMeasurements(line string) []Measurement {
	out := make([]Measurement, 5)
	for i := range out {
		ref := "Widget-A"
		if i%2 == 1 {
			ref = "Widget-B"
		}
		out[i] = Measurement{
			TraceCode: fmt.Sprintf("TC-%d", i+1),
			RefName:   ref,
			Weight:    10 + float64(i),
			Status:    "OK-" + line,
			Timestamp: FixtureStart.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

// NewSQLiteSource writes rows to a measurements table in a fresh SQLite file
// under t.TempDir() and returns its path. Timestamps are stored as RFC 3339 text.
func NewSQLiteSource(t *testing.T, name string, rows []Measurement) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite source: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE measurements (
		TraceCode TEXT,
		RefName   TEXT,
		Weight    REAL,
		Status    TEXT,
		timestamp TEXT,
		Date      TEXT
	)`); err != nil {
		t.Fatalf("create measurements: %v", err)
	}
	for _, m := range rows {
		ts := m.Timestamp.UTC().Format(time.RFC3339)
		if _, err := db.Exec(
			`INSERT INTO measurements (TraceCode, RefName, Weight, Status, timestamp, Date) VALUES (?, ?, ?, ?, ?, ?)`,
			m.TraceCode, m.RefName, m.Weight, m.Status, ts, ts,
		); err != nil {
			t.Fatalf("insert measurement: %v", err)
		}
	}
	return path
}
