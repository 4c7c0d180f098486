package clone

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loftdata/backup"
	"loftdata/config"
	"loftdata/internal"
	"loftdata/safety"
	"loftdata/store"
	"loftdata/store/memstore"
)

func testEnv(name string) config.Environment {
	return config.Environment{
		ID:          "env-" + name,
		Name:        name,
		Type:        config.EnvTest,
		Backend:     "postgres",
		Host:        "localhost",
		Port:        5432,
		Database:    "lofts_" + name,
		User:        "loftdata",
		AnonKey:     "anon",
		ServiceKey:  "service",
		AllowWrites: true,
		Status:      config.StatusActive,
	}
}

func prodEnv() config.Environment {
	env := testEnv("production")
	env.Type = config.EnvProduction
	env.IsProduction = true
	env.AllowWrites = false
	env.Status = config.StatusReadOnly
	return env
}

func newTestCloner() (*Cloner, *memstore.Store, *memstore.Store) {
	src := memstore.New()
	dst := memstore.New()
	c := NewWithStores(testEnv("source"), testEnv("target"), src, dst)
	return c, src, dst
}

func TestCloneSingleTable(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-1", "name": "Loft rentals"})
	dst.CreateTable("categories", "id", "name")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got errors %v", result.Errors)
	}
	if len(result.Tables) != 1 || result.Tables[0].Status != StatusSuccess {
		t.Fatalf("Expected one successful table, got %+v", result.Tables)
	}
	if result.Statistics.RecordsCloned != 1 {
		t.Errorf("Expected 1 record cloned, got %d", result.Statistics.RecordsCloned)
	}

	rows := dst.Rows("categories")
	if len(rows) != 1 || rows[0]["id"] != "cat-1" {
		t.Errorf("Expected the seeded row on the target, got %v", rows)
	}
	if result.OperationID == "" {
		t.Error("Expected an operation id")
	}
}

func TestProductionTargetRefusedBeforeAnyAccess(t *testing.T) {
	src := memstore.New()
	dst := memstore.New()
	src.Seed("categories", store.Row{"id": "cat-1"})
	dst.CreateTable("categories", "id")

	c := NewWithStores(testEnv("source"), prodEnv(), src, dst)
	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}})

	if err == nil {
		t.Fatal("Expected a safety violation")
	}
	if !safety.IsViolation(err) {
		t.Errorf("Expected a ViolationError, got %T", err)
	}
	if result.Success {
		t.Error("Result must report failure")
	}
	if len(src.FetchCalls) != 0 {
		t.Errorf("No source reads may happen after a violation, got %v", src.FetchCalls)
	}
	if len(dst.UpsertCalls) != 0 || len(dst.Rows("categories")) != 0 {
		t.Error("No target writes may happen after a violation")
	}
}

func TestWritableProductionSourceRefused(t *testing.T) {
	misconfigured := prodEnv()
	misconfigured.AllowWrites = true

	c := NewWithStores(misconfigured, testEnv("target"), memstore.New(), memstore.New())
	_, err := c.Clone(context.Background(), Options{})
	if err == nil || !safety.IsViolation(err) {
		t.Fatalf("Expected a violation for writable production source, got %v", err)
	}
}

func TestPaginationStopsAtShortPage(t *testing.T) {
	c, src, dst := newTestCloner()
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		src.Seed("categories", store.Row{"id": id, "name": "n-" + id})
	}
	dst.CreateTable("categories", "id", "name")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}, PageSize: 2})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if result.Statistics.RecordsCloned != 5 {
		t.Errorf("Expected 5 records cloned, got %d", result.Statistics.RecordsCloned)
	}
	// Two full pages plus the short final page.
	if calls := src.FetchCalls["categories"]; calls != 3 {
		t.Errorf("Expected exactly 3 page fetches, got %d", calls)
	}
	if len(dst.Rows("categories")) != 5 {
		t.Errorf("Expected 5 rows on target, got %d", len(dst.Rows("categories")))
	}
}

func TestMissingTableIsSkippedNotFatal(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-1"})
	src.Seed("payment_methods", store.Row{"id": "pm-1"})
	// Target only has categories.
	dst.CreateTable("categories", "id")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"payment_methods", "categories"}})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("A missing table must not fail the clone, got %v", result.Errors)
	}

	byTable := make(map[string]TableResult)
	for _, tr := range result.Tables {
		byTable[tr.Table] = tr
	}
	if byTable["payment_methods"].Status != StatusEmpty {
		t.Errorf("Expected payment_methods marked empty, got %v", byTable["payment_methods"].Status)
	}
	if byTable["categories"].Status != StatusSuccess {
		t.Errorf("Expected categories cloned after the skip, got %v", byTable["categories"].Status)
	}
}

func TestDryRunCountsWithoutWriting(t *testing.T) {
	c, src, dst := newTestCloner()
	for i := 0; i < 10; i++ {
		src.Seed("categories", store.Row{"id": string(rune('a' + i))})
	}
	dst.CreateTable("categories", "id")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}, DryRun: true, Truncate: true})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if len(result.Tables) != 1 || result.Tables[0].Status != StatusDryRun {
		t.Fatalf("Expected a dry-run table result, got %+v", result.Tables)
	}
	if result.Tables[0].Records != 10 {
		t.Errorf("Expected 10 would-be records, got %d", result.Tables[0].Records)
	}
	if len(dst.UpsertCalls) != 0 || len(dst.Rows("categories")) != 0 {
		t.Error("Dry run must not write to the target")
	}
}

func TestCloneIsIdempotent(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-1", "name": "first"}, store.Row{"id": "cat-2", "name": "second"})
	dst.CreateTable("categories", "id", "name")

	opts := Options{Tables: []string{"categories"}}
	if _, err := c.Clone(context.Background(), opts); err != nil {
		t.Fatalf("First clone failed: %v", err)
	}
	if _, err := c.Clone(context.Background(), opts); err != nil {
		t.Fatalf("Second clone failed: %v", err)
	}

	if rows := dst.Rows("categories"); len(rows) != 2 {
		t.Errorf("Re-running the clone must not duplicate rows, got %d", len(rows))
	}
}

func TestPartialFailureContinuesWithRemainingTables(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-1"})
	src.Seed("payment_methods", store.Row{"id": "pm-1"})
	dst.CreateTable("categories", "id")
	dst.CreateTable("payment_methods", "id")

	broken := errors.New("disk full")
	dst.FailUpsert["categories"] = broken
	dst.FailInsert["categories"] = broken

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories", "payment_methods"}})
	if err != nil {
		t.Fatalf("A table failure must not abort the run, got %v", err)
	}
	if result.Success {
		t.Error("Aggregate success must reflect the failed table")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Expected exactly one error, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "categories") {
		t.Errorf("Error should name the failed table, got %q", result.Errors[0])
	}

	success, errored, _ := result.Counts()
	if success != 1 || errored != 1 {
		t.Errorf("Expected 1 success and 1 error, got %d/%d", success, errored)
	}
	if len(dst.Rows("payment_methods")) != 1 {
		t.Error("Tables after the failure must still be cloned")
	}
}

func TestUpsertFallsBackToInsert(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-1"})
	dst.CreateTable("categories", "id")
	dst.FailUpsert["categories"] = errors.New("no unique constraint")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Insert fallback should have succeeded, got %v", result.Errors)
	}
	if len(dst.Rows("categories")) != 1 {
		t.Error("Expected the row written via the insert fallback")
	}
}

func TestTruncateClearsStaleTargetRows(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-new"})
	dst.Seed("categories", store.Row{"id": "cat-stale"})

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}, Truncate: true})
	if err != nil || !result.Success {
		t.Fatalf("Clone failed: err=%v errors=%v", err, result.Errors)
	}

	rows := dst.Rows("categories")
	if len(rows) != 1 || rows[0]["id"] != "cat-new" {
		t.Errorf("Expected stale rows replaced, got %v", rows)
	}
}

func TestBackupRunsBeforeTruncate(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-new"})
	dst.Seed("categories", store.Row{"id": "cat-stale"})

	dir := t.TempDir()
	result, err := c.Clone(context.Background(), Options{
		Tables:       []string{"categories"},
		Truncate:     true,
		CreateBackup: true,
		BackupStore:  &backup.LocalStore{Dir: dir},
	})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if result.BackupID != "backup-"+result.OperationID {
		t.Errorf("Expected backup id derived from the operation id, got %q", result.BackupID)
	}

	data, err := os.ReadFile(filepath.Join(dir, result.BackupID, "categories.json"))
	if err != nil {
		t.Fatalf("Expected a backup file: %v", err)
	}
	if !strings.Contains(string(data), "cat-stale") {
		t.Error("Backup must capture the pre-truncate target rows")
	}
	if !strings.Contains(string(data), "checksum") {
		t.Error("Backup object should carry a checksum")
	}
}

type failingBackupStore struct{}

func (failingBackupStore) Put(ctx context.Context, key string, data []byte) error {
	return errors.New("bucket unavailable")
}

func TestBackupFailureAbortsBeforeDestruction(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-new"})
	dst.Seed("categories", store.Row{"id": "cat-stale"})

	result, err := c.Clone(context.Background(), Options{
		Tables:       []string{"categories"},
		Truncate:     true,
		CreateBackup: true,
		BackupStore:  failingBackupStore{},
	})
	if err == nil {
		t.Fatal("Expected the backup failure to abort the clone")
	}
	if result.BackupID == "" {
		t.Error("Backup id must be recorded even when the backup fails")
	}

	rows := dst.Rows("categories")
	if len(rows) != 1 || rows[0]["id"] != "cat-stale" {
		t.Errorf("Target must be untouched after a failed backup, got %v", rows)
	}
}

func TestAnonymizationDuringClone(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("profiles",
		store.Row{"id": "user-abc123", "email": "real@example.com", "full_name": "Real Person", "role": "admin"})
	dst.CreateTable("profiles", "id", "email", "full_name", "role")

	result, err := c.Clone(context.Background(), Options{
		Tables:            []string{"profiles"},
		Anonymize:         true,
		PreserveUserRoles: true,
	})
	if err != nil || !result.Success {
		t.Fatalf("Clone failed: err=%v errors=%v", err, result.Errors)
	}
	if result.Statistics.RecordsAnonymized != 1 {
		t.Errorf("Expected 1 anonymized record, got %d", result.Statistics.RecordsAnonymized)
	}

	row := dst.Rows("profiles")[0]
	email, _ := row["email"].(string)
	if !strings.HasSuffix(email, "@target.local") {
		t.Errorf("Expected a synthetic address for the target env, got %q", email)
	}
	if row["role"] != "admin" {
		t.Errorf("Roles should be preserved when requested, got %v", row["role"])
	}

	// Source rows stay pristine.
	if src.Rows("profiles")[0]["email"] != "real@example.com" {
		t.Error("Anonymization must never touch the source")
	}
}

func TestRoleDemotionDoesNotLeakAcrossRuns(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("profiles", store.Row{"id": "user-1", "email": "a@b.com", "role": "admin"})
	dst.CreateTable("profiles", "id", "email", "role")

	// First run demotes roles.
	if _, err := c.Clone(context.Background(), Options{
		Tables:    []string{"profiles"},
		Anonymize: true,
	}); err != nil {
		t.Fatalf("First clone failed: %v", err)
	}
	if role := dst.Rows("profiles")[0]["role"]; role != "user" {
		t.Fatalf("Expected role demoted on the first run, got %v", role)
	}

	// A later run on the same cloner that preserves roles must not inherit
	// the demotion.
	if _, err := c.Clone(context.Background(), Options{
		Tables:            []string{"profiles"},
		Anonymize:         true,
		PreserveUserRoles: true,
	}); err != nil {
		t.Fatalf("Second clone failed: %v", err)
	}
	if role := dst.Rows("profiles")[0]["role"]; role != "admin" {
		t.Errorf("Expected the preserved role on the second run, got %v", role)
	}
}

func TestCloneUnderVerboseMode(t *testing.T) {
	originalVerboseMode := internal.VerboseMode
	internal.VerboseMode = true
	defer func() { internal.VerboseMode = originalVerboseMode }()

	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-1"})
	dst.CreateTable("categories", "id")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}})
	if err != nil || !result.Success {
		t.Fatalf("Clone failed under verbose mode: err=%v errors=%v", err, result.Errors)
	}
	if len(dst.Rows("categories")) != 1 {
		t.Error("Expected the row cloned with progress output suppressed")
	}
}

func TestRoleDemotionDuringClone(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("profiles", store.Row{"id": "user-1", "email": "a@b.com", "role": "admin"})
	dst.CreateTable("profiles", "id", "email", "role")

	result, err := c.Clone(context.Background(), Options{
		Tables:    []string{"profiles"},
		Anonymize: true,
	})
	if err != nil || !result.Success {
		t.Fatalf("Clone failed: err=%v errors=%v", err, result.Errors)
	}
	if role := dst.Rows("profiles")[0]["role"]; role != "user" {
		t.Errorf("Expected role demoted to user, got %v", role)
	}
}

func TestColumnIntersectionShaping(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "cat-1", "name": "a", "legacy_column": "dropme"})
	dst.CreateTable("categories", "id", "name")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories"}})
	if err != nil || !result.Success {
		t.Fatalf("Clone failed: err=%v errors=%v", err, result.Errors)
	}

	row := dst.Rows("categories")[0]
	if _, ok := row["legacy_column"]; ok {
		t.Error("Columns absent from the target schema must be dropped")
	}
	if row["name"] != "a" {
		t.Errorf("Shared columns must survive shaping, got %v", row)
	}
}

func TestValidateAfterCloneFlagsDanglingReferences(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("conversations", store.Row{"id": "conv-1"})
	src.Seed("messages",
		store.Row{"id": "msg-1", "conversation_id": "conv-1", "content": "[message content anonymized]"},
		store.Row{"id": "msg-2", "conversation_id": "conv-ghost", "content": "[message content anonymized]"})
	dst.CreateTable("conversations", "id")
	dst.CreateTable("messages", "id", "conversation_id", "content")

	result, err := c.Clone(context.Background(), Options{
		Tables:             []string{"conversations", "messages"},
		ValidateAfterClone: true,
	})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if result.Integrity == nil {
		t.Fatal("Expected an integrity report")
	}
	if result.Integrity.IsValid {
		t.Error("Expected the dangling conversation reference to be detected")
	}
	if result.Success {
		t.Error("Integrity violations are errors, not warnings")
	}
}

func TestValidateAfterCloneWarnsOnRemainingPII(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("profiles", store.Row{"id": "u1", "email": "still.real@example.com"})
	dst.CreateTable("profiles", "id", "email")

	result, err := c.Clone(context.Background(), Options{
		Tables:             []string{"profiles"},
		ValidateAfterClone: true,
	})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Anonymization gaps are warnings, got errors %v", result.Errors)
	}
	if result.AnonymizationScan == nil || result.AnonymizationScan.AnonymizationComplete {
		t.Error("Expected the real address to be flagged")
	}
	if len(result.Warnings) == 0 {
		t.Error("Expected a warning about remaining data")
	}
}

func TestUnknownTableWarned(t *testing.T) {
	c, src, dst := newTestCloner()
	src.Seed("categories", store.Row{"id": "c1"})
	dst.CreateTable("categories", "id")

	result, err := c.Clone(context.Background(), Options{Tables: []string{"categories", "widgets"}})
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "widgets") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a warning naming the unknown table, got %v", result.Warnings)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		expectErr bool
	}{
		{name: "defaults", opts: Options{}},
		{name: "backup without store", opts: Options{CreateBackup: true}, expectErr: true},
		{name: "backup with store", opts: Options{CreateBackup: true, BackupStore: &backup.LocalStore{Dir: "/tmp"}}},
		{name: "negative page size", opts: Options{PageSize: -1}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected validation to fail")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected validation to pass, got %v", err)
			}
		})
	}
}

func TestWithDefaults(t *testing.T) {
	opts := (&Options{}).withDefaults()
	if opts.PageSize != DefaultPageSize {
		t.Errorf("Expected default page size %d, got %d", DefaultPageSize, opts.PageSize)
	}
	if opts.BatchSize != DefaultBatchSize {
		t.Errorf("Expected default batch size %d, got %d", DefaultBatchSize, opts.BatchSize)
	}

	opts = (&Options{PageSize: 7, BatchSize: 3}).withDefaults()
	if opts.PageSize != 7 || opts.BatchSize != 3 {
		t.Errorf("Explicit sizes must survive, got %d/%d", opts.PageSize, opts.BatchSize)
	}
}
