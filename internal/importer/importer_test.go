package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facturas/internal/core"
	"facturas/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.MemoryPath)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestImportJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := writeFile(t, "facturas_qt.json", `[
		{"fecha": "10/01/2026", "tipo": "Mercado", "descripcion": "arroz", "valor": 12000},
		{"fecha": "11/01/2026", "tipo": "Mascotas", "descripcion": "comida", "valor": "35000.5"},
		{"fecha": "garbage", "tipo": "Otros", "descripcion": "sin fecha", "valor": 100}
	]`)

	count, err := ImportJSON(ctx, s, path)
	if err != nil {
		t.Fatalf("import json: %v", err)
	}
	if count != 3 {
		t.Fatalf("imported %d entries, want 3", count)
	}

	recs, err := s.ListRecords(ctx, "", "")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}

	// Numeric-as-text valor survives, the unknown category was created, and
	// the unparseable date fell back to today.
	today := time.Now().Format(core.DisplayDate)
	var sawMascotas, sawToday bool
	for _, r := range recs {
		if r.Category == "Mascotas" && r.Amount == 35000.5 {
			sawMascotas = true
		}
		if r.Description == "sin fecha" && r.Date == today {
			sawToday = true
		}
	}
	if !sawMascotas {
		t.Error("numeric-as-text entry missing or mangled")
	}
	if !sawToday {
		t.Error("bad-date entry did not fall back to today")
	}
}

func TestImportJSONFileErrorsAbort(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := ImportJSON(ctx, s, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := writeFile(t, "bad.json", `{"not": "an array"`)
	if _, err := ImportJSON(ctx, s, bad); err == nil {
		t.Fatal("expected error for corrupt file")
	}

	if n, _ := s.CountRecords(ctx); n != 0 {
		t.Fatalf("aborted imports left %d records", n)
	}
}

func TestImportCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := writeFile(t, "facturas.csv", strings.Join([]string{
		"fecha,tipo,descripcion,valor",
		"01/02/2026,Transporte,bus,2500",
		"02/02/2026,Mercado,frutas,18000",
	}, "\n"))

	count, err := ImportCSV(ctx, s, path)
	if err != nil {
		t.Fatalf("import csv: %v", err)
	}
	if count != 2 {
		t.Fatalf("imported %d rows, want 2", count)
	}

	missing := writeFile(t, "noheader.csv", "a,b\n1,2\n")
	if _, err := ImportCSV(ctx, s, missing); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestRunStartupImport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "facturas_qt.json")
	if err := os.WriteFile(path, []byte(`[{"fecha":"03/03/2026","tipo":"Ocio","descripcion":"cine","valor":25000}]`), 0644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	count, err := RunStartupImport(ctx, s, path)
	if err != nil {
		t.Fatalf("startup import: %v", err)
	}
	if count != 1 {
		t.Fatalf("imported %d, want 1", count)
	}

	// The source file must have been renamed to a backup.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("legacy file still present after successful import")
	}
	matches, _ := filepath.Glob(path + ".*.bak")
	if len(matches) != 1 {
		t.Fatalf("expected one backup file, got %v", matches)
	}

	// A non-empty store skips the import entirely.
	again := filepath.Join(dir, "again.json")
	if err := os.WriteFile(again, []byte(`[{"fecha":"04/03/2026","tipo":"Ocio","descripcion":"otra","valor":1}]`), 0644); err != nil {
		t.Fatalf("write second file: %v", err)
	}
	count, err = RunStartupImport(ctx, s, again)
	if err != nil {
		t.Fatalf("second startup import: %v", err)
	}
	if count != 0 {
		t.Fatalf("second import processed %d entries, want 0", count)
	}
	if _, err := os.Stat(again); err != nil {
		t.Fatal("skipped import must leave the file untouched")
	}
}

func TestRunStartupImportNoFile(t *testing.T) {
	s := newTestStore(t)
	count, err := RunStartupImport(context.Background(), s, filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || count != 0 {
		t.Fatalf("absent file: count=%d err=%v, want 0, nil", count, err)
	}
}
