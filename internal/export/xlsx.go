// Package export renders read-only projections of the engine into
// spreadsheets for finance teams.
package export

import (
	"fmt"
	"io"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ApprovalsExporter writes a company approvals feed as an XLSX workbook.
type ApprovalsExporter struct {
	logger *zap.Logger
}

// NewApprovalsExporter creates a new exporter
func NewApprovalsExporter(logger *zap.Logger) *ApprovalsExporter {
	return &ApprovalsExporter{logger: logger}
}

// SheetName is the single sheet the exporter writes.
const SheetName = "Approvals"

var headerRow = []string{"Request ID", "Expense ID", "Approver ID", "Step", "Status", "Comment", "Decided At", "Created At"}

// Write renders the requests into w as an XLSX workbook.
func (e *ApprovalsExporter) Write(w io.Writer, requests []*entity.ApprovalRequest) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for col, title := range headerRow {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, title); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, req := range requests {
		decidedAt := ""
		if req.DecidedAt != nil {
			decidedAt = req.DecidedAt.Format("2006-01-02 15:04:05")
		}
		values := []interface{}{
			req.ID,
			req.ExpenseID,
			req.ApproverID,
			req.StepOrder,
			req.Status,
			req.Comment,
			decidedAt,
			req.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to build cell: %w", err)
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Approvals feed exported", zap.Int("rows", len(requests)))
	return nil
}
