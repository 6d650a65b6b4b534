// Package export renders a finalized requisition as a downloadable document.
package export

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Line is one printable row of the document. Description comes from the
// catalog at export time; items the ERP no longer knows print "---".
type Line struct {
	SKU          string
	Description  string
	OnHand       string
	RequestedQty int64
	BusinessUnit string
}

// Document is the metadata plus line table handed to the writers.
type Document struct {
	DocumentNumber string
	RequestedBy    string
	Description    string
	CreatedAt      string
	Lines          []Line
}

var lineHeaders = []string{"SKU", "Description", "On Hand", "Requested Qty", "Business Unit"}

func (d Document) rows() [][]string {
	rows := make([][]string, 0, len(d.Lines))
	for _, l := range d.Lines {
		rows = append(rows, []string{
			l.SKU, l.Description, l.OnHand,
			strconv.FormatInt(l.RequestedQty, 10), l.BusinessUnit,
		})
	}
	return rows
}

// WriteCSV writes the requisition as CSV, metadata rows first.
func WriteCSV(w http.ResponseWriter, doc Document) {
	filename := "requisition_" + doc.DocumentNumber + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	meta := [][]string{
		{"Document Number", doc.DocumentNumber},
		{"Requested By", doc.RequestedBy},
		{"Date", doc.CreatedAt},
		{"Description", doc.Description},
		{},
	}
	for _, row := range meta {
		if err := writer.Write(row); err != nil {
			http.Error(w, "Failed to write CSV", 500)
			return
		}
	}
	if err := writer.Write(lineHeaders); err != nil {
		http.Error(w, "Failed to write CSV headers", 500)
		return
	}
	for _, row := range doc.rows() {
		if err := writer.Write(row); err != nil {
			http.Error(w, "Failed to write CSV row", 500)
			return
		}
	}
}

// WriteXLSX writes the requisition as an Excel workbook with a metadata
// block above the line table.
func WriteXLSX(w http.ResponseWriter, doc Document) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Requisition"
	index, err := f.NewSheet(sheet)
	if err != nil {
		http.Error(w, "Failed to create Excel sheet", 500)
		return
	}
	f.SetActiveSheet(index)

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		http.Error(w, "Failed to create style", 500)
		return
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		http.Error(w, "Failed to create header style", 500)
		return
	}

	meta := [][2]string{
		{"Document Number", doc.DocumentNumber},
		{"Requested By", doc.RequestedBy},
		{"Date", doc.CreatedAt},
		{"Description", doc.Description},
	}
	for i, kv := range meta {
		keyCell := fmt.Sprintf("A%d", i+1)
		f.SetCellValue(sheet, keyCell, kv[0])
		f.SetCellStyle(sheet, keyCell, keyCell, boldStyle)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", i+1), kv[1])
	}

	headerRow := len(meta) + 2
	for i, header := range lineHeaders {
		cell := fmt.Sprintf("%s%d", string(rune('A'+i)), headerRow)
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for rowIdx, row := range doc.rows() {
		for colIdx, value := range row {
			cell := fmt.Sprintf("%s%d", string(rune('A'+colIdx)), headerRow+1+rowIdx)
			f.SetCellValue(sheet, cell, value)
		}
	}

	for i := range lineHeaders {
		col := string(rune('A' + i))
		f.SetColWidth(sheet, col, col, 18)
	}
	f.DeleteSheet("Sheet1")

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=requisition_%s.xlsx", doc.DocumentNumber))

	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write Excel file", 500)
		return
	}
}
