package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestApprovalsExporter_Write(t *testing.T) {
	decided := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	requests := []*entity.ApprovalRequest{
		{
			ID:         1,
			ExpenseID:  10,
			ApproverID: 20,
			StepOrder:  1,
			Status:     entity.RequestStatusApproved,
			Comment:    "ok",
			DecidedAt:  &decided,
			CreatedAt:  decided.Add(-time.Hour),
		},
		{
			ID:         2,
			ExpenseID:  10,
			ApproverID: 30,
			StepOrder:  2,
			Status:     entity.RequestStatusPending,
			CreatedAt:  decided.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	exporter := NewApprovalsExporter(zap.NewNop())
	require.NoError(t, exporter.Write(&buf, requests))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, headerRow, rows[0])

	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "10", rows[1][1])
	assert.Equal(t, "APPROVED", rows[1][4])
	assert.Equal(t, "ok", rows[1][5])
	assert.Equal(t, "2025-03-14 09:30:00", rows[1][6])

	assert.Equal(t, "2", rows[2][0])
	assert.Equal(t, "PENDING", rows[2][4])
}

func TestApprovalsExporter_EmptyFeed(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewApprovalsExporter(zap.NewNop())
	require.NoError(t, exporter.Write(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	// Only the single approvals sheet with its header row.
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, headerRow, rows[0])
}
