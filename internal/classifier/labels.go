package classifier

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

// Label names one model output class.
type Label struct {
	Name    string
	Display string
}

// LoadLabels reads a label file. See ParseLabels for the accepted formats.
func LoadLabels(path string) ([]Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("opening label file: %w", err)).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	labels, err := ParseLabels(f)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Context("path", path).
			Build()
	}
	return labels, nil
}

// ParseLabels accepts either
//   - CSV lines "index,name[,display]" (a leading "id,name" header is
//     skipped and indexes must be unique), or
//   - one name per line, indexed by position.
//
// The format is decided by the first non-empty line. Display defaults to
// Name when absent.
func ParseLabels(r io.Reader) ([]Label, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("label file is empty")
	}

	if isIndexedHeader(lines[0]) {
		return parseIndexed(lines[1:])
	}
	if _, err := strconv.Atoi(strings.SplitN(lines[0], ",", 2)[0]); err == nil && strings.Contains(lines[0], ",") {
		return parseIndexed(lines)
	}

	labels := make([]Label, len(lines))
	for i, line := range lines {
		labels[i] = Label{Name: line, Display: line}
	}
	return labels, nil
}

func isIndexedHeader(line string) bool {
	head := strings.ToLower(strings.SplitN(line, ",", 2)[0])
	return head == "id" || head == "index"
}

func parseIndexed(lines []string) ([]Label, error) {
	byIndex := make(map[int]Label, len(lines))
	maxIndex := -1
	for n, line := range lines {
		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("line %d: expected index,name", n+1)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("line %d: invalid index %q", n+1, parts[0])
		}
		if _, dup := byIndex[idx]; dup {
			return nil, fmt.Errorf("line %d: duplicate index %d", n+1, idx)
		}
		name := strings.TrimSpace(parts[1])
		display := name
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			display = strings.TrimSpace(parts[2])
		}
		byIndex[idx] = Label{Name: name, Display: display}
		maxIndex = max(maxIndex, idx)
	}

	labels := make([]Label, maxIndex+1)
	for idx, l := range byIndex {
		labels[idx] = l
	}
	return labels, nil
}
