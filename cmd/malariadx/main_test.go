package main

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/malariadx/malariadx/internal/config"
	"github.com/malariadx/malariadx/internal/platform/blobstore"
	"github.com/malariadx/malariadx/internal/platform/db"
)

func TestResolveSigningKey_Configured(t *testing.T) {
	cfg := &config.Config{AuthSigningKey: strings.Repeat("ab", 32)}
	key, random, err := resolveSigningKey(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if random {
		t.Error("configured key should not be reported as random")
	}
	if len(key) != 32 || key[0] != 0xab {
		t.Errorf("unexpected key: %x", key)
	}
}

func TestResolveSigningKey_Random(t *testing.T) {
	key, random, err := resolveSigningKey(&config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !random || len(key) != 32 {
		t.Errorf("expected a random 32-byte key, got %d bytes (random=%v)", len(key), random)
	}
}

func TestResolveSigningKey_BadHex(t *testing.T) {
	if _, _, err := resolveSigningKey(&config.Config{AuthSigningKey: "zz"}); err == nil {
		t.Error("expected an error for invalid hex")
	}
}

func TestMigrationSource_Embedded(t *testing.T) {
	names, err := fs.Glob(migrationSource(""), "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Errorf("expected embedded migrations, got %v", names)
	}
}

func TestMigrationSource_Dir(t *testing.T) {
	dir := t.TempDir()
	names, err := fs.Glob(migrationSource(dir), "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("expected an empty directory, got %v", names)
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, "public", []db.MigrationStatus{
		{Version: 1, Name: "init", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "indexes"},
	})

	out := buf.String()
	if !strings.Contains(out, "Migration status for schema: public") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "applied    2024-03-01 09:30:00") {
		t.Errorf("missing applied row: %q", out)
	}
	if !strings.Contains(out, "indexes") || !strings.Contains(out, "pending") {
		t.Errorf("missing pending row: %q", out)
	}
}

func TestNewBlobStore(t *testing.T) {
	s, err := newBlobStore(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*blobstore.MemoryStore); !ok {
		t.Errorf("expected a memory store without STORAGE_DIR, got %T", s)
	}

	s, err = newBlobStore(&config.Config{StorageDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*blobstore.DirStore); !ok {
		t.Errorf("expected a directory store, got %T", s)
	}
}

func TestCommands(t *testing.T) {
	for _, name := range []string{"up", "status"} {
		found := false
		for _, c := range migrateCmd().Commands() {
			if c.Name() == name {
				found = true
				if c.Flags().Lookup("schema").DefValue != "public" {
					t.Errorf("%s: unexpected schema default", name)
				}
			}
		}
		if !found {
			t.Errorf("migrate %s not registered", name)
		}
	}
	if f := detectCmd().Flags().Lookup("patient"); f == nil {
		t.Error("detect --patient flag missing")
	}
}

type writerToFunc func(w io.Writer) (int64, error)

func (f writerToFunc) WriteTo(w io.Writer) (int64, error) { return f(w) }

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Malaria_Report_Jane_Doe_3-1-2024.pdf")
	doc := writerToFunc(func(w io.Writer) (int64, error) {
		n, err := w.Write([]byte("%PDF-1.4"))
		return int64(n), err
	})
	if err := writeReport(path, doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "%PDF-1.4" {
		t.Errorf("unexpected file %q: %v", got, err)
	}
}

func TestWriteReport_Errors(t *testing.T) {
	dir := t.TempDir()
	failing := writerToFunc(func(io.Writer) (int64, error) { return 0, errors.New("disk full") })
	path := filepath.Join(dir, "partial.pdf")
	if err := writeReport(path, failing); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected the write error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected the partial report to be removed, stat: %v", err)
	}

	if err := writeReport(filepath.Join(dir, "missing", "r.pdf"), failing); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
