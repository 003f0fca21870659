package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestKarmaLedgerMigrationBlocksUpdates(t *testing.T) {
	sqlText := readMigration(t, "0002_karma_ledger_immutability.up.sql")
	for _, snippet := range []string{
		"karma_immutable_guard",
		"RAISE EXCEPTION",
		"CREATE TRIGGER trg_karma_block_update",
		"BEFORE UPDATE ON karma",
	} {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "BEFORE DELETE") {
		t.Fatal("karma rows must still cascade when their owner is deleted")
	}
}

func TestTaskSearchMigrationIndexesContent(t *testing.T) {
	sqlText := readMigration(t, "0003_task_search.up.sql")
	if !strings.Contains(sqlText, "GENERATED ALWAYS AS") || !strings.Contains(sqlText, "USING GIN (fts)") {
		t.Fatalf("expected generated fts column with GIN index, got:\n%s", sqlText)
	}
}

func readMigration(t *testing.T, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(migrationsDir, name))
	if err != nil {
		t.Fatalf("read migration %s: %v", name, err)
	}
	return string(raw)
}
