package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// sheetWriter appends rows to the sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	styles       map[string]int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile(), styles: map[string]int{}}
}

// AddSheet adds a new sheet and makes it current.
func (w *sheetWriter) AddSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers.
func (w *sheetWriter) WriteHeader(columns []string) error {
	if err := w.writeCells(columns2row(columns)); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, start, end, style)
	}

	w.currentRow++
	return nil
}

// WriteRow writes a data row, optionally filling it with a background color.
func (w *sheetWriter) WriteRow(row []any, fill string) error {
	if err := w.writeCells(row); err != nil {
		return err
	}

	if fill != "" && len(row) > 0 {
		style, err := w.fillStyle(fill)
		if err != nil {
			return err
		}
		start, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		end, _ := excelize.CoordinatesToCellName(len(row), w.currentRow)
		if err := w.file.SetCellStyle(w.currentSheet, start, end, style); err != nil {
			return err
		}
	}

	w.currentRow++
	return nil
}

func (w *sheetWriter) writeCells(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	return nil
}

func (w *sheetWriter) fillStyle(color string) (int, error) {
	if id, ok := w.styles[color]; ok {
		return id, nil
	}
	id, err := w.file.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
	})
	if err != nil {
		return 0, err
	}
	w.styles[color] = id
	return id, nil
}

func (w *sheetWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *sheetWriter) Close() error {
	return w.file.Close()
}

func columns2row(columns []string) []any {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	return row
}
