// Package importer migrates records from the legacy flat files produced by
// the previous facturas application into the store. Entries carry the
// original Spanish field names (fecha, tipo, descripcion, valor).
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"facturas/internal/core"
	"facturas/internal/storage"
)

// legacyEntry mirrors one element of the legacy JSON array. Valor arrives
// either numeric or as numeric text, so it is decoded through json.Number.
type legacyEntry struct {
	Fecha       string      `json:"fecha"`
	Tipo        string      `json:"tipo"`
	Descripcion string      `json:"descripcion"`
	Valor       json.Number `json:"valor"`
}

// ImportJSON reads a legacy JSON file and inserts every entry through the
// store's write path, so category auto-vivification and the substitute-today
// date policy behave exactly as AddRecord does. A read or parse failure of
// the file itself aborts the whole import; per-entry date problems do not.
// Returns the number of entries imported.
func ImportJSON(ctx context.Context, store *storage.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read legacy file: %w", err)
	}

	var entries []legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse legacy file %s: %w", path, err)
	}

	count := 0
	for i, e := range entries {
		amount, err := e.Valor.Float64()
		if err != nil {
			return count, fmt.Errorf("entry %d: invalid valor %q: %w", i, e.Valor.String(), err)
		}
		if _, err := store.AddRecord(ctx, core.RecordInput{
			Date:        e.Fecha,
			Category:    e.Tipo,
			Description: e.Descripcion,
			Amount:      amount,
		}); err != nil {
			return count, fmt.Errorf("entry %d: %w", i, err)
		}
		count++
	}

	slog.InfoContext(ctx, "Legacy JSON import finished", "path", path, "count", count)
	return count, nil
}

// ImportCSV reads a CSV file with a header row naming at least fecha, tipo,
// descripcion and valor, in any column order, and inserts every row through
// the store's write path. Same abort semantics as ImportJSON.
func ImportCSV(ctx context.Context, store *storage.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"fecha", "tipo", "descripcion", "valor"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("csv header missing column %q", required)
		}
	}

	count := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read csv row: %w", err)
		}

		amount, err := strconv.ParseFloat(strings.TrimSpace(row[col["valor"]]), 64)
		if err != nil {
			return count, fmt.Errorf("row %d: invalid valor %q: %w", count+1, row[col["valor"]], err)
		}
		if _, err := store.AddRecord(ctx, core.RecordInput{
			Date:        strings.TrimSpace(row[col["fecha"]]),
			Category:    strings.TrimSpace(row[col["tipo"]]),
			Description: strings.TrimSpace(row[col["descripcion"]]),
			Amount:      amount,
		}); err != nil {
			return count, fmt.Errorf("row %d: %w", count+1, err)
		}
		count++
	}

	slog.InfoContext(ctx, "CSV import finished", "path", path, "count", count)
	return count, nil
}

// RunStartupImport performs the one-time legacy migration at application
// startup: only when the store holds no records and the legacy file exists.
// After a successful import the source file is renamed to a timestamped
// backup so the migration never runs twice against the same data.
func RunStartupImport(ctx context.Context, store *storage.Store, path string) (int, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("stat legacy file: %w", err)
	}

	n, err := store.CountRecords(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Store already has records, skipping legacy import",
			"path", path, "records", n)
		return 0, nil
	}

	count, err := ImportJSON(ctx, store, path)
	if err != nil {
		return count, err
	}

	backup := path + "." + time.Now().Format("20060102150405") + ".bak"
	if err := os.Rename(path, backup); err != nil {
		// The data is in; a failed rename only risks a duplicate run later.
		slog.WarnContext(ctx, "Could not rename legacy file after import",
			"path", path, "backup", backup, "error", err)
		return count, nil
	}

	slog.InfoContext(ctx, "Legacy file imported and backed up",
		"path", path, "backup", backup, "count", count)
	return count, nil
}
