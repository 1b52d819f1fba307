// Package extract reads the externally produced flat-file extracts, one per
// entity, into raw records for cleaning. Extracts are JSON arrays of objects
// or delimited text with a header row; a missing file means the entity has
// nothing to load this run, not an error.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Reader resolves and parses one extract per entity from a directory.
// Files are named <entity>.json or <entity>.csv; when both exist the JSON
// extract wins.
type Reader struct {
	dir string
}

// NewReader creates a Reader over the given extract directory.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Path returns the extract file path for an entity, or "" when no extract
// file exists.
func (r *Reader) Path(entity string) string {
	for _, ext := range []string{".json", ".csv"} {
		p := filepath.Join(r.dir, entity+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Read parses the entity's extract into raw records. The second return is
// false when no extract file exists for the entity.
func (r *Reader) Read(entity string) ([]map[string]any, bool, error) {
	path := r.Path(entity)
	if path == "" {
		return nil, false, nil
	}

	var (
		records []map[string]any
		err     error
	)
	switch filepath.Ext(path) {
	case ".json":
		records, err = readJSON(path)
	case ".csv":
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, true, fmt.Errorf("reading extract %s: %w", path, err)
	}
	return records, true, nil
}

func readJSON(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing JSON array: %w", err)
	}
	return records, nil
}

func readCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1 // ragged rows surface as short records, not errors

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}

	var records []map[string]any
	for {
		row, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reading row: %w", err)
		}
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
