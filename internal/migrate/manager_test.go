package migrate

import (
	"testing"
	"testing/fstest"
)

func TestCollectSQLOrdersByName(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_second.up.sql":   {Data: []byte("select 2;")},
		"migrations/0001_first.up.sql":    {Data: []byte("select 1;")},
		"migrations/0001_first.down.sql":  {Data: []byte("select 0;")},
		"migrations/seeds/0001_seed.sql":  {Data: []byte("select 3;")},
		"migrations/README.md":            {Data: []byte("notes")},
	}
	files, err := collectSQL(fsys, "migrations", ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 up migrations, got %d", len(files))
	}
	if files[0].Base != "0001_first.up.sql" || files[1].Base != "0002_second.up.sql" {
		t.Fatalf("unexpected order: %+v", files)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(fstest.MapFS{}, "nowhere", ".sql")
	if err != nil {
		t.Fatalf("missing dir must not error, got %v", err)
	}
	if files != nil {
		t.Fatalf("expected no files, got %v", files)
	}
}

func TestSplitStatementsRespectsStrings(t *testing.T) {
	stmts := splitStatements(`insert into t values ('a;b'); select 1;`)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(stmts), stmts)
	}
}
