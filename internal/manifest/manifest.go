package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jye-lim/wav2vec2-asr/internal/fileutil"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// Well-known column names.
const (
	ColumnFilename      = "filename"
	ColumnGeneratedText = "generated_text"
	ColumnDuration      = "duration"
	ColumnAge           = "age"
	ColumnGender        = "gender"
	ColumnAccent        = "accent"
)

// Manifest is an in-memory CSV table.
type Manifest struct {
	header  []string
	columns map[string]int
	rows    [][]string
}

// Record is a view of one row. Writes go through to the manifest.
type Record struct {
	m   *Manifest
	row int
}

// New builds an empty manifest with header.
func New(header []string) (*Manifest, error) {
	m := &Manifest{columns: make(map[string]int, len(header))}
	for _, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, services.Wrap(services.ErrValidation, "manifest", "header", "empty column name", nil)
		}
		if _, dup := m.columns[name]; dup {
			return nil, services.Wrap(services.ErrValidation, "manifest", "header", fmt.Sprintf("duplicate column %q", name), nil)
		}
		m.columns[name] = len(m.header)
		m.header = append(m.header, name)
	}
	return m, nil
}

// Load reads a manifest from path. A missing file is services.ErrFileNotFound.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrFileNotFound, "manifest", "load", path, err)
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Read parses CSV from r. Rows shorter than the header are padded with
// absent cells; longer rows are rejected.
func Read(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, services.Wrap(services.ErrValidation, "manifest", "read", "manifest has no header", nil)
		}
		return nil, services.Wrap(services.ErrValidation, "manifest", "read", "header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	m, err := New(header)
	if err != nil {
		return nil, err
	}

	for line := 2; ; line++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "manifest", "read", fmt.Sprintf("line %d", line), err)
		}
		if len(cells) > len(m.header) {
			return nil, services.Wrap(services.ErrValidation, "manifest", "read",
				fmt.Sprintf("line %d has %d cells, header has %d", line, len(cells), len(m.header)), nil)
		}
		row := make([]string, len(m.header))
		copy(row, cells)
		m.rows = append(m.rows, row)
	}
	return m, nil
}

// Save writes the manifest to path atomically.
func (m *Manifest) Save(path string) error {
	return fileutil.WriteFileAtomic(path, 0o644, m.Write)
}

// Write renders the manifest as CSV.
func (m *Manifest) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(m.header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writer.WriteAll(m.rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Header returns a copy of the column names in order.
func (m *Manifest) Header() []string {
	return append([]string(nil), m.header...)
}

// Has reports whether column exists.
func (m *Manifest) Has(column string) bool {
	_, ok := m.columns[column]
	return ok
}

// Require fails with services.ErrValidation unless every column exists.
func (m *Manifest) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !m.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrValidation, "manifest", "columns",
			"missing required column(s): "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// EnsureColumn appends column when it is not already present.
func (m *Manifest) EnsureColumn(column string) {
	if m.Has(column) {
		return
	}
	m.columns[column] = len(m.header)
	m.header = append(m.header, column)
	for i := range m.rows {
		m.rows[i] = append(m.rows[i], "")
	}
}

// ResetColumn ensures column exists and clears it on every row.
func (m *Manifest) ResetColumn(column string) {
	m.EnsureColumn(column)
	idx := m.columns[column]
	for i := range m.rows {
		m.rows[i][idx] = ""
	}
}

// Len returns the number of data rows.
func (m *Manifest) Len() int {
	return len(m.rows)
}

// Record returns row i.
func (m *Manifest) Record(i int) Record {
	return Record{m: m, row: i}
}

// Records returns every row in order.
func (m *Manifest) Records() []Record {
	out := make([]Record, len(m.rows))
	for i := range m.rows {
		out[i] = Record{m: m, row: i}
	}
	return out
}

// Filter keeps rows for which keep returns true.
func (m *Manifest) Filter(keep func(Record) bool) int {
	kept := m.rows[:0]
	dropped := 0
	for i := range m.rows {
		if keep(Record{m: m, row: i}) {
			kept = append(kept, m.rows[i])
		} else {
			dropped++
		}
	}
	for i := len(kept); i < len(m.rows); i++ {
		m.rows[i] = nil
	}
	m.rows = kept
	return dropped
}

// Index is the zero-based row number.
func (r Record) Index() int {
	return r.row
}

// Get returns the value of column and whether it is present (non-empty).
func (r Record) Get(column string) (string, bool) {
	idx, ok := r.m.columns[column]
	if !ok {
		return "", false
	}
	v := r.m.rows[r.row][idx]
	return v, strings.TrimSpace(v) != ""
}

// Value returns the value of column or "" when absent.
func (r Record) Value(column string) string {
	v, _ := r.Get(column)
	return v
}

// Set stores value in column, adding the column if needed.
func (r Record) Set(column, value string) {
	r.m.EnsureColumn(column)
	r.m.rows[r.row][r.m.columns[column]] = value
}

// Filename returns the key column.
func (r Record) Filename() string {
	return strings.TrimSpace(r.Value(ColumnFilename))
}

// Float parses column as a float64.
func (r Record) Float(column string) (float64, bool) {
	v, ok := r.Get(column)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// UpdatedPath returns <outputDir>/<stem>_updated<ext> for manifestPath. An
// empty outputDir means the manifest's own directory.
func UpdatedPath(manifestPath, outputDir string) string {
	name := filepath.Base(manifestPath)
	ext := filepath.Ext(name)
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Dir(manifestPath)
	}
	return filepath.Join(outputDir, strings.TrimSuffix(name, ext)+"_updated"+ext)
}
