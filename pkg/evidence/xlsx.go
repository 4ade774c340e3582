package evidence

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX flattens every sheet row by row, tab-separated, and records
// non-empty cells with their A1-style references for highlighting.
func extractXLSX(content []byte) (string, []Cell, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var text strings.Builder
	var cells []Cell

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if text.Len() > 0 {
			text.WriteByte('\n')
		}
		fmt.Fprintf(&text, "[sheet: %s]", sheet)

		for rowIdx, row := range rows {
			text.WriteByte('\n')
			text.WriteString(strings.Join(row, "\t"))
			for colIdx, value := range row {
				if strings.TrimSpace(value) == "" {
					continue
				}
				ref, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if err != nil {
					continue
				}
				cells = append(cells, Cell{Sheet: sheet, Ref: ref, Text: value})
			}
		}
	}
	return text.String(), cells, nil
}
