package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zapiskibot/zapiski/internal/analytics"
	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/users"
)

const timestampLayout = "2006-01-02 15:04:05"

// UsersWorkbook renders the joined user listing as a single-sheet workbook.
func UsersWorkbook(rows []users.ListedUser) (*bytes.Buffer, error) {
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	headers := []string{"ID", "Username", "Role", "Notes", "Referrals", "Registered", "Last activity", "Status"}
	if err := writeHeader(book, sheet, headers); err != nil {
		return nil, err
	}

	for i, row := range rows {
		status := "active"
		if row.Blocked {
			status = "blocked"
		}
		lastActivity := ""
		if row.LastActivity != nil {
			lastActivity = row.LastActivity.UTC().Format(timestampLayout)
		}
		values := []interface{}{
			row.UserID, row.Username, row.Role, row.NotesCount, row.Referrals,
			row.RegisteredAt.UTC().Format(timestampLayout), lastActivity, status,
		}
		if err := writeRow(book, sheet, i+2, values); err != nil {
			return nil, err
		}
	}
	return book.WriteToBuffer()
}

// NotesWorkbook renders notes as a single-sheet workbook.
func NotesWorkbook(rows []notes.Note) (*bytes.Buffer, error) {
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	if err := writeHeader(book, sheet, []string{"ID", "User ID", "Text", "Created"}); err != nil {
		return nil, err
	}
	for i, row := range rows {
		values := []interface{}{
			row.ID, row.UserID, row.Text, row.CreatedAt.UTC().Format(timestampLayout),
		}
		if err := writeRow(book, sheet, i+2, values); err != nil {
			return nil, err
		}
	}
	return book.WriteToBuffer()
}

// EventsWorkbook renders the audit trail as a single-sheet workbook.
func EventsWorkbook(rows []events.Event) (*bytes.Buffer, error) {
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	if err := writeHeader(book, sheet, []string{"ID", "Type", "Description", "User ID", "Severity", "Created"}); err != nil {
		return nil, err
	}
	for i, row := range rows {
		userID := ""
		if row.UserID != nil {
			userID = fmt.Sprintf("%d", *row.UserID)
		}
		values := []interface{}{
			row.ID, row.Type, row.Description, userID, row.Severity,
			row.CreatedAt.UTC().Format(timestampLayout),
		}
		if err := writeRow(book, sheet, i+2, values); err != nil {
			return nil, err
		}
	}
	return book.WriteToBuffer()
}

// AnalyticsWorkbook renders the console charts as one sheet per series.
func AnalyticsWorkbook(
	activity []analytics.ActivityPoint,
	noteSeries []analytics.DayPoint,
	roles map[string]int64,
	buckets []analytics.HourBucket,
	top []analytics.TopUser,
) (*bytes.Buffer, error) {
	book := excelize.NewFile()
	defer book.Close()

	activitySheet := book.GetSheetName(0)
	if err := book.SetSheetName(activitySheet, "Activity"); err != nil {
		return nil, err
	}
	if err := writeHeader(book, "Activity", []string{"Day", "New users", "Active users"}); err != nil {
		return nil, err
	}
	for i, point := range activity {
		values := []interface{}{point.Day.Format("2006-01-02"), point.NewUsers, point.ActiveUsers}
		if err := writeRow(book, "Activity", i+2, values); err != nil {
			return nil, err
		}
	}

	if _, err := book.NewSheet("Notes"); err != nil {
		return nil, err
	}
	if err := writeHeader(book, "Notes", []string{"Day", "Notes"}); err != nil {
		return nil, err
	}
	for i, point := range noteSeries {
		values := []interface{}{point.Day.Format("2006-01-02"), point.Count}
		if err := writeRow(book, "Notes", i+2, values); err != nil {
			return nil, err
		}
	}

	if _, err := book.NewSheet("Roles"); err != nil {
		return nil, err
	}
	if err := writeHeader(book, "Roles", []string{"Role", "Users"}); err != nil {
		return nil, err
	}
	for i, role := range []string{users.RoleUser, users.RoleAdmin, users.RoleOwner} {
		if err := writeRow(book, "Roles", i+2, []interface{}{role, roles[role]}); err != nil {
			return nil, err
		}
	}

	if _, err := book.NewSheet("Time of day"); err != nil {
		return nil, err
	}
	if err := writeHeader(book, "Time of day", []string{"Window", "Notes"}); err != nil {
		return nil, err
	}
	for i, bucket := range buckets {
		if err := writeRow(book, "Time of day", i+2, []interface{}{bucket.Label, bucket.Notes}); err != nil {
			return nil, err
		}
	}

	if _, err := book.NewSheet("Top users"); err != nil {
		return nil, err
	}
	if err := writeHeader(book, "Top users", []string{"ID", "Username", "Notes"}); err != nil {
		return nil, err
	}
	for i, row := range top {
		if err := writeRow(book, "Top users", i+2, []interface{}{row.UserID, row.Username, row.Notes}); err != nil {
			return nil, err
		}
	}

	return book.WriteToBuffer()
}

// Filename builds a timestamped attachment name like "users_20250601_120000.xlsx".
func Filename(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", prefix, at.UTC().Format("20060102_150405"))
}

func writeHeader(book *excelize.File, sheet string, headers []string) error {
	return writeRow(book, sheet, 1, toInterfaces(headers))
}

func writeRow(book *excelize.File, sheet string, rowIndex int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIndex)
	if err != nil {
		return err
	}
	return book.SetSheetRow(sheet, cell, &values)
}

func toInterfaces(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, value := range values {
		result[i] = value
	}
	return result
}
