package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// DatasetRepository stores combined dataset metadata, keyed by name.
type DatasetRepository interface {
	// Upsert registers metadata, replacing any earlier run under the same name.
	// runs are the per-source outcomes of that combination run.
	Upsert(ctx context.Context, meta *models.DatasetMetadata, runs []models.SourceStatus) error

	// Get returns the metadata for a dataset name.
	Get(ctx context.Context, name string) (*models.DatasetMetadata, error)

	// List returns every dataset, newest first.
	List(ctx context.Context) ([]*models.DatasetMetadata, error)

	// FetchRuns returns the per-source outcomes recorded for a dataset.
	FetchRuns(ctx context.Context, name string) ([]models.SourceStatus, error)

	// Delete removes a dataset's metadata.
	Delete(ctx context.Context, name string) error
}

// datasetRepository implements DatasetRepository on SQLite.
type datasetRepository struct {
	db *sql.DB
}

// NewDatasetRepository creates a dataset repository over a migrated database.
func NewDatasetRepository(db *sql.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

const datasetColumns = `id, name, lines, initial_count, final_count, duplicates_removed,
	unique_identifier, requested_strategy, strategy, timestamp_column,
	line_distribution, columns, data_file, created_at`

func (r *datasetRepository) Upsert(ctx context.Context, meta *models.DatasetMetadata, runs []models.SourceStatus) error {
	lines, err := json.Marshal(nonNil(meta.Lines))
	if err != nil {
		return fmt.Errorf("failed to encode lines: %w", err)
	}
	dist, err := json.Marshal(nonNil(meta.LineDistribution))
	if err != nil {
		return fmt.Errorf("failed to encode line distribution: %w", err)
	}
	cols, err := json.Marshal(nonNil(meta.Columns))
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var previousID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT id FROM datasets WHERE name = ?`, meta.Name).Scan(&previousID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up dataset: %w", err)
	}
	if previousID.Valid {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fetch_runs WHERE dataset_id = ?`, previousID.String); err != nil {
			return fmt.Errorf("failed to clear previous fetch runs: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			id = excluded.id,
			lines = excluded.lines,
			initial_count = excluded.initial_count,
			final_count = excluded.final_count,
			duplicates_removed = excluded.duplicates_removed,
			unique_identifier = excluded.unique_identifier,
			requested_strategy = excluded.requested_strategy,
			strategy = excluded.strategy,
			timestamp_column = excluded.timestamp_column,
			line_distribution = excluded.line_distribution,
			columns = excluded.columns,
			data_file = excluded.data_file,
			created_at = excluded.created_at`,
		meta.ID.String(), meta.Name, string(lines), meta.InitialCount, meta.FinalCount, meta.DuplicatesRemoved,
		meta.Dedup.UniqueIdentifier, meta.Dedup.RequestedStrategy, meta.Dedup.Strategy, nullString(meta.Dedup.TimestampColumn),
		string(dist), string(cols), meta.Path, meta.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dataset: %w", err)
	}

	for _, run := range runs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fetch_runs (dataset_id, source, status, row_count, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			meta.ID.String(), run.Source, run.Status, run.Rows, nullIfEmpty(run.Error), run.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to record fetch run for %s: %w", run.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}
	return nil
}

func (r *datasetRepository) Get(ctx context.Context, name string) (*models.DatasetMetadata, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE name = ?`, name)
	meta, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", name, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *datasetRepository) List(ctx context.Context) ([]*models.DatasetMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var out []*models.DatasetMetadata
	for rows.Next() {
		meta, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate datasets: %w", err)
	}
	return out, nil
}

func (r *datasetRepository) FetchRuns(ctx context.Context, name string) ([]models.SourceStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.source, f.status, f.row_count, f.error, f.duration_ms
		FROM fetch_runs f JOIN datasets d ON d.id = f.dataset_id
		WHERE d.name = ?
		ORDER BY f.source`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetch runs: %w", err)
	}
	defer rows.Close()

	var out []models.SourceStatus
	for rows.Next() {
		var (
			st     models.SourceStatus
			errMsg sql.NullString
			ms     int64
		)
		if err := rows.Scan(&st.Source, &st.Status, &st.Rows, &errMsg, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan fetch run: %w", err)
		}
		st.Error = errMsg.String
		st.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fetch runs: %w", err)
	}
	return out, nil
}

func (r *datasetRepository) Delete(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM fetch_runs WHERE dataset_id IN (SELECT id FROM datasets WHERE name = ?)`, name); err != nil {
		return fmt.Errorf("failed to delete fetch runs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %s: %w", name, apperrors.ErrNotFound)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*models.DatasetMetadata, error) {
	var (
		meta              models.DatasetMetadata
		id, createdAt     string
		lines, dist, cols string
		tsColumn          sql.NullString
	)
	err := row.Scan(&id, &meta.Name, &lines, &meta.InitialCount, &meta.FinalCount, &meta.DuplicatesRemoved,
		&meta.Dedup.UniqueIdentifier, &meta.Dedup.RequestedStrategy, &meta.Dedup.Strategy, &tsColumn,
		&dist, &cols, &meta.Path, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}

	if meta.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("dataset %s has invalid id: %w", meta.Name, err)
	}
	if meta.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("dataset %s has invalid created_at: %w", meta.Name, err)
	}
	if tsColumn.Valid {
		meta.Dedup.TimestampColumn = &tsColumn.String
	}
	if err := json.Unmarshal([]byte(lines), &meta.Lines); err != nil {
		return nil, fmt.Errorf("dataset %s has invalid lines: %w", meta.Name, err)
	}
	if err := json.Unmarshal([]byte(dist), &meta.LineDistribution); err != nil {
		return nil, fmt.Errorf("dataset %s has invalid line distribution: %w", meta.Name, err)
	}
	if err := json.Unmarshal([]byte(cols), &meta.Columns); err != nil {
		return nil, fmt.Errorf("dataset %s has invalid columns: %w", meta.Name, err)
	}
	return &meta, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
