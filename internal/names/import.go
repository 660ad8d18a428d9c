package names

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// ParseCSV reads scientific_name,common_name rows into NFC form. A header row naming
// scientific_name is skipped, as are blank names. Later rows win over
// earlier ones for the same scientific name.
func ParseCSV(r io.Reader) ([]BirdName, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	index := make(map[string]int)
	var out []BirdName
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.New(fmt.Errorf("invalid CSV: %w", err)).
				Component("names").
				Category(errors.CategoryValidation).
				Context("line", line).
				Build()
		}
		if len(record) < 2 {
			return nil, errors.Newf("line %d: expected scientific_name,common_name", line).
				Component("names").
				Category(errors.CategoryValidation).
				Build()
		}

		sci := norm.NFC.String(strings.TrimSpace(record[0]))
		common := norm.NFC.String(strings.TrimSpace(record[1]))
		if line == 1 && strings.EqualFold(sci, "scientific_name") {
			continue
		}
		if sci == "" || common == "" {
			continue
		}

		if i, ok := index[sci]; ok {
			out[i].CommonName = common
			continue
		}
		index[sci] = len(out)
		out = append(out, BirdName{ScientificName: sci, CommonName: common})
	}
	return out, nil
}

// Import parses CSV from r and upserts every row. It returns the number of
// names written.
func (r *Resolver) Import(ctx context.Context, src io.Reader) (int, error) {
	rows, err := ParseCSV(src)
	if err != nil {
		return 0, err
	}
	if err := r.Upsert(ctx, rows); err != nil {
		return 0, err
	}
	GetLogger().Info("imported common names", logger.Int("count", len(rows)))
	return len(rows), nil
}
