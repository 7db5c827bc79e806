package migrations

import (
	"strings"
	"testing"
)

func TestReadMigrations_Embedded(t *testing.T) {
	tests := []struct {
		dir    string
		tables []string
	}{
		{dir: "postgres", tables: []string{"instruments", "trade_stats"}},
		{dir: "clickhouse", tables: []string{"position_series", "quantile_summaries"}},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			fsys := PostgresFS
			if tt.dir == "clickhouse" {
				fsys = ClickhouseFS
			}

			files, err := readMigrations(fsys, tt.dir)
			if err != nil {
				t.Fatalf("readMigrations failed: %v", err)
			}
			if len(files) != len(tt.tables) {
				t.Fatalf("expected %d files, got %d", len(tt.tables), len(files))
			}
			for i, f := range files {
				if i > 0 && files[i-1].Name >= f.Name {
					t.Errorf("files not in lexical order: %s before %s", files[i-1].Name, f.Name)
				}
				if !strings.Contains(f.SQL, "CREATE TABLE IF NOT EXISTS "+tt.tables[i]) {
					t.Errorf("%s does not create %s", f.Name, tt.tables[i])
				}
			}
		})
	}
}

func TestClickhouseMigrations_SplitCleanly(t *testing.T) {
	files, err := readMigrations(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("readMigrations failed: %v", err)
	}

	for _, f := range files {
		if err := validateNoSemicolonInStrings(f.SQL); err != nil {
			t.Errorf("%s: %v", f.Name, err)
		}
		stmts := splitStatements(f.SQL)
		if len(stmts) != 1 {
			t.Errorf("%s: expected 1 statement, got %d", f.Name, len(stmts))
		}
	}
}

func TestSplitStatements(t *testing.T) {
	input := `
-- leading comment; with semicolon
CREATE TABLE a (x Int32) ENGINE = Memory;

-- another
CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(input)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") || !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Errorf("unexpected statements: %q", stmts)
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings(`SELECT 'it''s fine'; SELECT 1;`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateNoSemicolonInStrings(`SELECT 'a;b'`); err == nil {
		t.Error("expected error for semicolon inside string")
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/trades")
	if err != nil {
		t.Fatalf("databaseFromDSN failed: %v", err)
	}
	if db != "trades" {
		t.Errorf("expected trades, got %s", db)
	}

	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for DSN without database")
	}
}
