package storage

import (
	"testing"
	"testing/fstest"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "single statement",
			sql:      "CREATE TABLE test (id INT)",
			expected: []string{"CREATE TABLE test (id INT)"},
		},
		{
			name:     "multiple statements",
			sql:      "CREATE TABLE a (id INT); CREATE TABLE b (id INT)",
			expected: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name:     "semicolon in string",
			sql:      "INSERT INTO t VALUES ('hello; world')",
			expected: []string{"INSERT INTO t VALUES ('hello; world')"},
		},
		{
			name:     "empty string",
			sql:      "",
			expected: nil,
		},
		{
			name:     "trailing semicolon",
			sql:      "CREATE TABLE test (id INT);",
			expected: []string{"CREATE TABLE test (id INT)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitStatements(tt.sql)
			if len(result) != len(tt.expected) {
				t.Fatalf("splitStatements() = %q, want %q", result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("statement[%d] = %q, want %q", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestIsCommentOnly(t *testing.T) {
	if !isCommentOnly("-- one\n  -- two\n") {
		t.Error("comment block not detected")
	}
	if isCommentOnly("-- header\nCREATE TABLE a (id INT)") {
		t.Error("statement with header comment treated as comment")
	}
}

func TestLoadMigrationsEmbedded(t *testing.T) {
	migrations, err := loadMigrations(migrationFiles)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations")
	}
	if migrations[0].Version != 1 || migrations[0].Name != "create_audit_events" {
		t.Errorf("first migration = %d %q", migrations[0].Version, migrations[0].Name)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations not sorted at %d", i)
		}
	}
}

func TestLoadMigrationsSkipsUnversioned(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 10")},
		"migrations/002_second.sql": {Data: []byte("SELECT 2")},
		"migrations/notes.sql":      {Data: []byte("SELECT 0")},
		"migrations/README.md":      {Data: []byte("docs")},
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("loaded %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 2 || migrations[1].Version != 10 {
		t.Errorf("versions = %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[1].Name != "later" {
		t.Errorf("name = %q, want later", migrations[1].Name)
	}
}
