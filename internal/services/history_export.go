package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
)

const historySheet = "Sessions"

var historyHeaders = []string{"Session ID", "Trip ID", "Status", "Source", "Start (UTC)", "End (UTC)", "Hours", "Cancel reason"}

// ExportHistory renders the driver's filtered session history as an XLSX workbook.
func (m *WorkSessionManager) ExportHistory(ctx context.Context, driverID string, filter models.SessionHistoryFilter) ([]byte, error) {
	filter.Page = 1
	filter.PageSize = storage.MaxPageSize
	first, err := m.GetHistory(ctx, driverID, filter)
	if err != nil {
		return nil, err
	}
	sessions := first.Items
	for int64(len(sessions)) < first.Total {
		filter.Page++
		page, err := m.store.ListSessionHistory(ctx, driverID, filter)
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}
		sessions = append(sessions, page.Items...)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(historySheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	if err := writeHistorySheet(f, historySheet, sessions); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHistorySheet(f *excelize.File, sheet string, sessions []*models.WorkSession) error {
	header := make([]interface{}, len(historyHeaders))
	for i, h := range historyHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, s := range sessions {
		row := []interface{}{s.ID, s.TripID, string(s.Status), string(s.Source), s.StartTime.UTC().Format(time.RFC3339), "", "", s.CancelReason}
		if s.EndTime != nil {
			row[5] = s.EndTime.UTC().Format(time.RFC3339)
			row[6] = s.DurationHours(*s.EndTime)
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("write session %s: %w", s.ID, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 38); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "E", "F", 22); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}
