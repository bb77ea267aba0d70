package export

import (
	"errors"
	"strings"
	"testing"

	"github.com/zapiskibot/zapiski/internal/users"
)

func TestParseUsersCSV(t *testing.T) {
	input := strings.Join([]string{
		"ID,Username,Role,Status",
		"101,alice,user,1",
		"102,bob,admin,0",
		"103,,user,1",
	}, "\n")

	rows, problems, err := ParseUsersCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].UserID != 101 || rows[0].Username != "alice" || rows[0].Blocked {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Role != users.RoleAdmin || !rows[1].Blocked {
		t.Fatalf("expected blocked admin, got %+v", rows[1])
	}
}

func TestParseUsersCSVCollectsProblems(t *testing.T) {
	input := strings.Join([]string{
		"ID,Username,Role,Status",
		"abc,broken,user,1",
		"104,ok,overlord,1",
		"105,fine,user,1",
	}, "\n")

	rows, problems, err := ParseUsersCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0].UserID != 105 {
		t.Fatalf("expected the one valid row to survive, got %+v", rows)
	}
	if len(problems) != 2 {
		t.Fatalf("expected 2 collected problems, got %v", problems)
	}
}

func TestParseUsersCSVRejectsWrongHeader(t *testing.T) {
	_, _, err := ParseUsersCSV(strings.NewReader("Who,What\n1,2\n"))
	if err == nil {
		t.Fatal("expected header mismatch error")
	}
}

func TestParseUsersCSVEmptyFile(t *testing.T) {
	if _, _, err := ParseUsersCSV(strings.NewReader("")); !errors.Is(err, ErrEmptyImport) {
		t.Fatalf("expected ErrEmptyImport, got %v", err)
	}
	_, _, err := ParseUsersCSV(strings.NewReader("ID,Username,Role,Status\n"))
	if !errors.Is(err, ErrEmptyImport) {
		t.Fatalf("expected ErrEmptyImport for header-only file, got %v", err)
	}
}

func TestParseUsersCSVMissingRoleDefaultsToUser(t *testing.T) {
	rows, _, err := ParseUsersCSV(strings.NewReader("ID,Username,Role,Status\n106,carol,,1\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0].Role != users.RoleUser {
		t.Fatalf("expected default role, got %+v", rows)
	}
}
