package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var testMigrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(testMigrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
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

func TestProgressHistoryMigrationUsesBlockingTriggers(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join(testMigrationsDir, "0002_progress_history_immutability.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	for _, snippet := range []string{
		"progress_update_history_immutable",
		"RAISE EXCEPTION",
		"CREATE TRIGGER trg_progress_history_block_update",
		"CREATE TRIGGER trg_progress_history_block_delete",
	} {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "DO INSTEAD NOTHING") {
		t.Fatalf("expected hard-fail guard, found silent DO INSTEAD NOTHING rule")
	}
}

func TestSchemaMigrationUsesSequenceIDs(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join(testMigrationsDir, "0001_scorecard_schema.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)
	for _, seq := range idSequences {
		if !strings.Contains(sqlText, "nextval('"+seq.sequence+"')") {
			t.Fatalf("expected %s id default to use %s", seq.table, seq.sequence)
		}
	}
}

func TestIDDefaultsKeepEveryDigit(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join(testMigrationsDir, "0003_id_width_and_function_index.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)
	if !strings.Contains(sqlText, "GREATEST(3, LENGTH(n::text))") {
		t.Fatal("expected id pad width to grow with the sequence value")
	}
	for _, seq := range idSequences {
		want := "ALTER TABLE " + string(seq.table) + " ALTER COLUMN id SET DEFAULT scorecard_id("
		if !strings.Contains(sqlText, want) || !strings.Contains(sqlText, "nextval('"+seq.sequence+"')") {
			t.Fatalf("expected %s id default to use scorecard_id over %s", seq.table, seq.sequence)
		}
	}
	if !strings.Contains(sqlText, "LOWER(function_name)") {
		t.Fatal("expected a case-insensitive function index")
	}
}
