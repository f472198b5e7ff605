package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var ErrExportFailed = errors.New("could not generate report")

const (
	reportSheet  = "Visits"
	reportLayout = "2006-01-02 15:04:05"
)

// ExportLogs writes the visits matching f to an XLSX workbook. People still
// signed in are flagged so the report shows who was present at export time.
func (s *Service) ExportLogs(ctx context.Context, f Filter) (*bytes.Buffer, string, error) {
	page, err := s.Logs(ctx, f)
	if err != nil {
		return nil, "", err
	}

	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName(x.GetSheetName(0), reportSheet); err != nil {
		s.logger.Error("rename report sheet failed", zap.Error(err))
		return nil, "", ErrExportFailed
	}
	x.SetColWidth(reportSheet, "A", "A", 10)
	x.SetColWidth(reportSheet, "B", "B", 28)
	x.SetColWidth(reportSheet, "C", "C", 14)
	x.SetColWidth(reportSheet, "D", "E", 22)
	x.SetColWidth(reportSheet, "F", "F", 16)

	headerStyle, _ := x.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	headers := []string{"Visit", "Name", "ID Code", "Time In", "Time Out", "Still Signed In"}
	for i, h := range headers {
		x.SetCellValue(reportSheet, cell(i, 1), h)
	}
	x.SetCellStyle(reportSheet, cell(0, 1), cell(len(headers)-1, 1), headerStyle)

	row := 2
	for _, v := range page.Logs {
		x.SetCellValue(reportSheet, cell(0, row), v.ID)
		x.SetCellValue(reportSheet, cell(1, row), v.Person.Name)
		x.SetCellValue(reportSheet, cell(2, row), v.PersonID)
		x.SetCellValue(reportSheet, cell(3, row), v.TimeIn.In(s.loc).Format(reportLayout))
		if v.TimeOut != nil {
			x.SetCellValue(reportSheet, cell(4, row), v.TimeOut.In(s.loc).Format(reportLayout))
			x.SetCellValue(reportSheet, cell(5, row), "no")
		} else {
			x.SetCellValue(reportSheet, cell(5, row), "yes")
		}
		row++
	}

	row++
	x.SetCellValue(reportSheet, cell(0, row), "Signed in now")
	x.SetCellValue(reportSheet, cell(2, row), page.SignedInCount)
	if page.MaxCapacity > 0 {
		row++
		x.SetCellValue(reportSheet, cell(0, row), "Max capacity")
		x.SetCellValue(reportSheet, cell(2, row), page.MaxCapacity)
	}

	buf := new(bytes.Buffer)
	if err := x.Write(buf); err != nil {
		s.logger.Error("write report failed", zap.Error(err))
		return nil, "", ErrExportFailed
	}

	label := page.Date
	if label == "" {
		label = "all"
	}
	return buf, fmt.Sprintf("library_visits_%s.xlsx", label), nil
}

// cell converts a zero-based column and one-based row to an A1 reference.
func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}
