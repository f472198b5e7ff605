package library

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"librarylog/internal/metrics"
	"librarylog/internal/model"
)

var (
	ErrSeedEmpty     = errors.New("seed file has no data rows")
	ErrSeedBadHeader = errors.New("seed file header must include name and id_code")
)

// SeedRow is one person read from the seed file. Line is 1-based and counts
// the header.
type SeedRow struct {
	Line   int
	Name   string
	IDCode string
}

// SeedResult summarises a seed run.
type SeedResult struct {
	Inserted int `json:"inserted"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

// Seeder loads known people from a CSV or XLSX file.
type Seeder struct {
	repo    *Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewSeeder(repo *Repository, m *metrics.Metrics, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{repo: repo, metrics: m, logger: logger}
}

// SeedFile inserts every person in path whose id_code is not yet known.
// Bad rows are logged and skipped; the returned error is only for problems
// with the file as a whole.
func (s *Seeder) SeedFile(ctx context.Context, path string) (SeedResult, error) {
	rows, err := ReadSeedFile(path)
	if err != nil {
		return SeedResult{}, err
	}
	return s.Seed(ctx, rows), nil
}

// Seed inserts rows one at a time so a failure only loses that row.
func (s *Seeder) Seed(ctx context.Context, rows []SeedRow) SeedResult {
	var res SeedResult
	for _, row := range rows {
		if row.IDCode == "" || row.Name == "" {
			s.logger.Warn("seed row missing name or id_code", zap.Int("line", row.Line))
			res.Failed++
			s.metrics.SeedRow("failed")
			continue
		}
		inserted, err := s.repo.EnsurePerson(ctx, model.Person{ID: row.IDCode, Name: row.Name})
		switch {
		case err != nil:
			s.logger.Warn("seed row failed", zap.Int("line", row.Line), zap.String("id_code", row.IDCode), zap.Error(err))
			res.Failed++
			s.metrics.SeedRow("failed")
		case inserted:
			res.Inserted++
			s.metrics.SeedRow("inserted")
		default:
			res.Existing++
			s.metrics.SeedRow("existing")
		}
	}
	s.logger.Info("seed finished",
		zap.Int("inserted", res.Inserted), zap.Int("existing", res.Existing), zap.Int("failed", res.Failed))
	return res
}

// ReadSeedFile parses a seed file, choosing the format by extension.
func ReadSeedFile(path string) ([]SeedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ParseSeedXLSX(f)
	}
	return ParseSeedCSV(f)
}

// ParseSeedCSV reads comma-separated rows with a header line.
func ParseSeedCSV(r io.Reader) ([]SeedRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse seed csv: %w", err)
	}
	return seedRows(records)
}

// ParseSeedXLSX reads the first sheet of a workbook.
func ParseSeedXLSX(r io.Reader) ([]SeedRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse seed xlsx: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read seed sheet: %w", err)
	}
	return seedRows(records)
}

func seedRows(records [][]string) ([]SeedRow, error) {
	if len(records) < 2 {
		return nil, ErrSeedEmpty
	}
	nameIdx, idIdx := seedHeader(records[0])
	if nameIdx < 0 || idIdx < 0 {
		return nil, ErrSeedBadHeader
	}

	var rows []SeedRow
	for i, rec := range records[1:] {
		row := SeedRow{Line: i + 2}
		if nameIdx < len(rec) {
			row.Name = strings.TrimSpace(rec[nameIdx])
		}
		if idIdx < len(rec) {
			row.IDCode = normalizeIDCode(rec[idIdx])
		}
		if row.Name == "" && row.IDCode == "" {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrSeedEmpty
	}
	return rows, nil
}

func seedHeader(header []string) (nameIdx, idIdx int) {
	nameIdx, idIdx = -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "name":
			nameIdx = i
		case "id_code":
			idIdx = i
		}
	}
	return nameIdx, idIdx
}

// normalizeIDCode undoes spreadsheet number formatting, so 10022.0 is 10022.
func normalizeIDCode(s string) string {
	s = strings.TrimSpace(s)
	if whole, frac, ok := strings.Cut(s, "."); ok && whole != "" && strings.Trim(frac, "0") == "" {
		return whole
	}
	return s
}
