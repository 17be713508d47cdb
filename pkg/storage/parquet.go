// Package storage keeps combined datasets as Parquet files, one file per
// dataset name under the data directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

const fileExt = ".parquet"

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// DatasetStore saves and loads dataset tables by name.
type DatasetStore interface {
	Save(ctx context.Context, name string, t *models.Table) (string, error)
	Load(ctx context.Context, name string) (*models.Table, error)
	Delete(ctx context.Context, name string) error
}

// ValidName reports whether name can be used as a dataset file name.
func ValidName(name string) bool {
	return nameRegex.MatchString(name) && len(name) <= 128
}

// ParquetStore is a DatasetStore backed by Parquet files.
type ParquetStore struct {
	dir    string
	alloc  memory.Allocator
	logger *zap.Logger
}

// NewParquetStore creates dir if needed.
func NewParquetStore(dir string, logger *zap.Logger) (*ParquetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &ParquetStore{dir: dir, alloc: memory.DefaultAllocator, logger: logger.Named("dataset-store")}, nil
}

// Path is the file a dataset is stored in.
func (s *ParquetStore) Path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

func checkName(name string) error {
	if !ValidName(name) {
		return apperrors.Invalid(apperrors.ErrInvalidIdentifier, name, "dataset names use letters, digits, '_', '-' and '.'")
	}
	return nil
}

// Save writes t under name, replacing any previous file atomically.
func (s *ParquetStore) Save(ctx context.Context, name string, t *models.Table) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if len(t.Columns()) == 0 {
		return "", fmt.Errorf("dataset %s has no columns", name)
	}

	rec := s.toRecord(t)
	defer rec.Release()

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(rec.Schema(), tmp, props, pqarrow.DefaultWriterProps())
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write dataset %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to finish dataset %s: %w", name, err)
	}
	_ = tmp.Close() // usually already closed by the writer

	path := s.Path(name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move dataset into place: %w", err)
	}

	s.logger.Info("Saved dataset",
		zap.String("name", name),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns())),
		zap.String("path", path),
	)
	return path, nil
}

// Load reads a dataset. A dataset that was never saved is ErrNotFound.
func (s *ParquetStore) Load(ctx context.Context, name string) (*models.Table, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	path := s.Path(name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("dataset %s: %w", name, apperrors.ErrNotFound)
	}
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", name, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, s.alloc)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	defer tbl.Release()

	return fromArrowTable(tbl)
}

// Delete removes a dataset file. Deleting a missing dataset is ErrNotFound.
func (s *ParquetStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("dataset %s: %w", name, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to delete dataset %s: %w", name, err)
	}
	return nil
}

var _ DatasetStore = (*ParquetStore)(nil)

// timestampType is used for every time column; values are stored in UTC.
var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

func fromArrowTable(tbl arrow.Table) (*models.Table, error) {
	schema := tbl.Schema()
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}

	n := int(tbl.NumRows())
	cols := make([][]any, len(names))
	for c := range names {
		values := make([]any, 0, n)
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			vs, err := arrayValues(chunk)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", names[c], err)
			}
			values = append(values, vs...)
		}
		cols[c] = values
	}

	out := models.NewTable(names)
	row := make([]any, len(names))
	for r := 0; r < n; r++ {
		for c := range names {
			row[c] = cols[c][r]
		}
		if err := out.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func arrayValues(arr arrow.Array) ([]any, error) {
	out := make([]any, arr.Len())
	for i := range out {
		if arr.IsNull(i) {
			continue
		}
		switch a := arr.(type) {
		case *array.Int64:
			out[i] = a.Value(i)
		case *array.Int32:
			out[i] = int64(a.Value(i))
		case *array.Float64:
			out[i] = a.Value(i)
		case *array.Float32:
			out[i] = float64(a.Value(i))
		case *array.Boolean:
			out[i] = a.Value(i)
		case *array.String:
			out[i] = a.Value(i)
		case *array.LargeString:
			out[i] = a.Value(i)
		case *array.Binary:
			out[i] = append([]byte(nil), a.Value(i)...)
		case *array.Timestamp:
			unit := a.DataType().(*arrow.TimestampType).Unit
			out[i] = a.Value(i).ToTime(unit).UTC()
		default:
			return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
		}
	}
	return out, nil
}

// columnKind picks the narrowest arrow type that holds every non-nil cell.
func columnKind(values []any) arrow.DataType {
	var ints, floats, bools, times, bins, other int
	for _, v := range values {
		switch v.(type) {
		case nil:
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		case []byte:
			bins++
		default:
			other++
		}
	}
	total := ints + floats + bools + times + bins + other
	switch {
	case total == 0 || other > 0:
		return arrow.BinaryTypes.String
	case ints == total:
		return arrow.PrimitiveTypes.Int64
	case ints+floats == total:
		return arrow.PrimitiveTypes.Float64
	case bools == total:
		return arrow.FixedWidthTypes.Boolean
	case times == total:
		return timestampType
	case bins == total:
		return arrow.BinaryTypes.Binary
	}
	return arrow.BinaryTypes.String
}

func (s *ParquetStore) toRecord(t *models.Table) arrow.Record {
	names := t.Columns()
	fields := make([]arrow.Field, len(names))
	cols := make([][]any, len(names))
	for i, name := range names {
		cols[i], _ = t.Column(name)
		fields[i] = arrow.Field{Name: name, Type: columnKind(cols[i]), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(s.alloc, schema)
	defer b.Release()

	for i, values := range cols {
		fb := b.Field(i)
		for _, v := range values {
			if v == nil {
				fb.AppendNull()
				continue
			}
			switch bb := fb.(type) {
			case *array.Int64Builder:
				bb.Append(v.(int64))
			case *array.Float64Builder:
				if n, ok := v.(int64); ok {
					bb.Append(float64(n))
				} else {
					bb.Append(v.(float64))
				}
			case *array.BooleanBuilder:
				bb.Append(v.(bool))
			case *array.TimestampBuilder:
				bb.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
			case *array.BinaryBuilder:
				bb.Append(v.([]byte))
			case *array.StringBuilder:
				bb.Append(models.ToString(v))
			}
		}
	}
	return b.NewRecord()
}
