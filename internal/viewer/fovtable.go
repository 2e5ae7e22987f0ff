// Package viewer pages through analysis results one field of view at a time.
//
// A results table lists, per field of view, the spot file and the
// segmentation mask produced by the analysis; a SpaceTx codebook tells which
// channel each target was decoded from. The package loads both and drives a
// line-based terminal session over them.
package viewer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bft-labs/insitu/internal/domain"
)

// FOVEntry locates the analysis outputs of one field of view.
type FOVEntry struct {
	Name     string
	SpotFile string
	MaskFile string
}

var requiredColumns = []string{"fov_name", "spot_file", "mask_file"}

// LoadFOVTable parses a results table. The columns fov_name, spot_file and
// mask_file are required, in any order; other columns, including a leading
// unnamed index, are ignored.
func LoadFOVTable(r io.Reader) ([]FOVEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: results table is empty", domain.ErrConfiguration)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read results header: %w", domain.ErrIO, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	idx := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		c, ok := col[name]
		if !ok {
			return nil, fmt.Errorf("%w: results table has no %q column", domain.ErrConfiguration, name)
		}
		idx[i] = c
	}

	var entries []FOVEntry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read results line %d: %w", domain.ErrIO, line, err)
		}
		field := func(i int) (string, error) {
			if idx[i] >= len(rec) {
				return "", fmt.Errorf("%w: results line %d has no %s", domain.ErrConfiguration, line, requiredColumns[i])
			}
			return rec[idx[i]], nil
		}
		var e FOVEntry
		if e.Name, err = field(0); err != nil {
			return nil, err
		}
		if e.SpotFile, err = field(1); err != nil {
			return nil, err
		}
		if e.MaskFile, err = field(2); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: results table lists no fields of view", domain.ErrConfiguration)
	}
	return entries, nil
}

// LoadFOVTableFile opens and parses the results table at path.
func LoadFOVTableFile(path string) ([]FOVEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open results table: %w", domain.ErrIO, err)
	}
	defer f.Close()
	return LoadFOVTable(f)
}
