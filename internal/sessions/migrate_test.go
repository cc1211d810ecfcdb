package sessions

import "testing"

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].ID != "0001_init" {
		t.Fatalf("expected migration 0001_init, got %q", migrations[0].ID)
	}
	if migrations[1].ID != "0002_branches" {
		t.Fatalf("expected migration 0002_branches, got %q", migrations[1].ID)
	}
	for _, m := range migrations {
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("expected both up and down SQL to be embedded for %q", m.ID)
		}
	}
}
