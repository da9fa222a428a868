package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshotsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_report_snapshots.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no report snapshots migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS report_snapshots",
		"payload JSONB NOT NULL",
		"CHECK (window_start <= window_end)",
		"CREATE INDEX IF NOT EXISTS idx_report_snapshots_window",
		"DROP TABLE IF EXISTS report_snapshots",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
