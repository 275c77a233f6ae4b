package http

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/campus-finance/tuition-hub/internal/application/command"
)

var requiredColumns = []string{"studentno", "term", "amount"}

// csvRowSource adapts a CSV stream with a studentNo,term,amount header to
// command.RowSource. Header names are case-insensitive and may appear in any
// order; extra columns are ignored.
type csvRowSource struct {
	r   *csv.Reader
	col map[string]int
}

func newCSVRowSource(body io.Reader) (*csvRowSource, error) {
	r := csv.NewReader(body)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid CSV header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := col[name]; !dup {
			col[name] = i
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing CSV columns: %s", strings.Join(missing, ", "))
	}

	return &csvRowSource{r: r, col: col}, nil
}

// Next returns the next non-blank row.
func (s *csvRowSource) Next() (command.BatchRow, error) {
	for {
		rec, err := s.r.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return command.BatchRow{}, &command.MalformedRowError{Err: perr.Err}
			}
			return command.BatchRow{}, err
		}
		if blank(rec) {
			continue
		}
		return command.BatchRow{
			StudentNo: s.cell(rec, "studentno"),
			Term:      s.cell(rec, "term"),
			Amount:    s.cell(rec, "amount"),
		}, nil
	}
}

func (s *csvRowSource) cell(rec []string, name string) string {
	i := s.col[name]
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
