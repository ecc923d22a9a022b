package order

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// DocumentWriter renders purchase orders as spreadsheets for sending to
// vendors.
type DocumentWriter struct {
	outputDir string
	logger    *zap.Logger
}

// NewDocumentWriter creates a new document writer
func NewDocumentWriter(outputDir string, logger *zap.Logger) *DocumentWriter {
	return &DocumentWriter{
		outputDir: outputDir,
		logger:    logger,
	}
}

// Write renders the order into an .xlsx file named after its PO number
// and returns the file path.
func (w *DocumentWriter) Write(order *entity.PurchaseOrder) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Purchase Order"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("failed to drop default sheet: %w", err)
	}

	w.setCell(f, sheet, "A1", "Purchase Order")
	w.setCell(f, sheet, "A2", "PO Number")
	w.setCell(f, sheet, "B2", order.PONumber)
	w.setCell(f, sheet, "A3", "Vendor")
	w.setCell(f, sheet, "B3", order.Vendor)
	if order.VendorContact != "" {
		w.setCell(f, sheet, "A4", "Vendor Contact")
		w.setCell(f, sheet, "B4", order.VendorContact)
	}
	w.setCell(f, sheet, "A5", "Date")
	w.setCell(f, sheet, "B5", order.CreatedAt.Format("2006-01-02"))
	w.setCell(f, sheet, "A6", "Reference")
	w.setCell(f, sheet, "B6", order.Metadata.RequestDetails.Title)
	if order.Metadata.PaymentTerms != "" {
		w.setCell(f, sheet, "A7", "Payment Terms")
		w.setCell(f, sheet, "B7", order.Metadata.PaymentTerms)
	}

	// Item table
	headerRow := 9
	w.setCell(f, sheet, fmt.Sprintf("A%d", headerRow), "Item")
	w.setCell(f, sheet, fmt.Sprintf("B%d", headerRow), "Quantity")
	w.setCell(f, sheet, fmt.Sprintf("C%d", headerRow), "Unit")
	w.setCell(f, sheet, fmt.Sprintf("D%d", headerRow), "Unit Price")
	w.setCell(f, sheet, fmt.Sprintf("E%d", headerRow), "Line Total")

	row := headerRow + 1
	for _, item := range order.Metadata.Items {
		w.setCell(f, sheet, fmt.Sprintf("A%d", row), item.Name)
		w.setCell(f, sheet, fmt.Sprintf("B%d", row), item.Quantity)
		w.setCell(f, sheet, fmt.Sprintf("C%d", row), item.UnitOfMeasure)
		w.setCell(f, sheet, fmt.Sprintf("D%d", row), item.UnitPrice)
		w.setCell(f, sheet, fmt.Sprintf("E%d", row), item.LineTotal)
		row++
	}

	w.setCell(f, sheet, fmt.Sprintf("D%d", row+1), "Total")
	w.setCell(f, sheet, fmt.Sprintf("E%d", row+1), order.Total.String())

	outputPath := filepath.Join(w.outputDir, order.PONumber+".xlsx")
	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save spreadsheet: %w", err)
	}

	w.logger.Info("Order document written",
		zap.String("po_number", order.PONumber),
		zap.String("path", outputPath))
	return outputPath, nil
}

func (w *DocumentWriter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
