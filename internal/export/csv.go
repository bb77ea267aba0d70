package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zapiskibot/zapiski/internal/users"
)

// ImportedUser is one parsed row of a user import file.
type ImportedUser struct {
	UserID   int64
	Username string
	Role     string
	Blocked  bool
}

// ImportReport summarizes one import run.
type ImportReport struct {
	Created int
	Updated int
	Skipped int
	Errors  []string
}

// ErrEmptyImport is returned when the file has a header but no data rows.
var ErrEmptyImport = errors.New("export: import file has no rows")

var importHeader = []string{"ID", "Username", "Role", "Status"}

// ParseUsersCSV reads an import file with the columns ID, Username, Role,
// Status. Status "1" means active, anything else means blocked. Malformed
// rows are collected, not fatal.
func ParseUsersCSV(r io.Reader) ([]ImportedUser, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrEmptyImport
	}
	if err != nil {
		return nil, nil, err
	}
	if !headerMatches(header) {
		return nil, nil, fmt.Errorf("export: unexpected header %v, want %v", header, importHeader)
	}

	var (
		rows     []ImportedUser
		problems []string
		line     = 1
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			problems = append(problems, fmt.Sprintf("строка %d: %v", line, err))
			continue
		}
		if len(record) < len(importHeader) {
			problems = append(problems, fmt.Sprintf("строка %d: ожидается %d колонки", line, len(importHeader)))
			continue
		}

		userID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil || userID <= 0 {
			problems = append(problems, fmt.Sprintf("строка %d: некорректный ID %q", line, record[0]))
			continue
		}
		role := strings.ToLower(strings.TrimSpace(record[2]))
		if role == "" {
			role = users.RoleUser
		}
		if !users.ValidRole(role) {
			problems = append(problems, fmt.Sprintf("строка %d: неизвестная роль %q", line, record[2]))
			continue
		}

		rows = append(rows, ImportedUser{
			UserID:   userID,
			Username: strings.TrimSpace(record[1]),
			Role:     role,
			Blocked:  strings.TrimSpace(record[3]) != "1",
		})
	}

	if len(rows) == 0 && len(problems) == 0 {
		return nil, nil, ErrEmptyImport
	}
	return rows, problems, nil
}

// ImportUsers applies parsed rows to the directory. Existing users are
// skipped unless updateExisting is set.
func ImportUsers(directory *users.Directory, rows []ImportedUser, updateExisting bool) (ImportReport, error) {
	report := ImportReport{}
	for _, row := range rows {
		exists, err := directory.Exists(row.UserID)
		if err != nil {
			return report, err
		}
		switch {
		case exists && !updateExisting:
			report.Skipped++
		case exists:
			if err := directory.UpdateUser(row.UserID, row.Username, row.Role, row.Blocked); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("пользователь %d: %v", row.UserID, err))
				continue
			}
			report.Updated++
		default:
			if err := directory.CreateUser(row.UserID, row.Username, row.Role, row.Blocked); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("пользователь %d: %v", row.UserID, err))
				continue
			}
			report.Created++
		}
	}
	return report, nil
}

func headerMatches(header []string) bool {
	if len(header) < len(importHeader) {
		return false
	}
	for i, want := range importHeader {
		got := strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
		if !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}
