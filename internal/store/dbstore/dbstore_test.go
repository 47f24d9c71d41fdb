package dbstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestSplitStatements_TrimsAndDropsEmpty(t *testing.T) {
	ddl := "CREATE TABLE a (id INT);\n\n  ; ALTER TABLE a ADD COLUMN b INT;"
	got := splitStatements(ddl)
	want := []string{"CREATE TABLE a (id INT)", "ALTER TABLE a ADD COLUMN b INT"}
	if len(got) != len(want) {
		t.Fatalf("got %d statements, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsTolerableMigrationError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"dup fieldname", &mysql.MySQLError{Number: mysqlErDupFieldname, Message: "Duplicate column name"}, true},
		{"dup keyname", &mysql.MySQLError{Number: mysqlErDupKeyname, Message: "Duplicate key name"}, true},
		{"table exists", &mysql.MySQLError{Number: mysqlErTableExistsErr, Message: "Table already exists"}, true},
		{"unrelated mysql error", &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}, false},
		{"non-mysql error", errors.New("boom"), false},
		{"wrapped mysql error", fmt.Errorf("exec: %w", &mysql.MySQLError{Number: mysqlErDupKeyname}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTolerableMigrationError(tc.err); got != tc.want {
				t.Errorf("isTolerableMigrationError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
