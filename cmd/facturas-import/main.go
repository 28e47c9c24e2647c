package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"facturas/internal/cli"
	"facturas/internal/importer"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	var (
		dbPath = flag.String("db", "", "database path (defaults to DB_PATH)")
		format = flag.String("format", "", "input format: json or csv (inferred from extension when empty)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file>\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Imports legacy records into the facturas database.")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := cli.LoadAndValidateConfig(logger)
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	f := *format
	if f == "" {
		switch {
		case strings.HasSuffix(path, ".csv"):
			f = "csv"
		default:
			f = "json"
		}
	}

	store := cli.InitStore(logger, cfg.DBPath)
	defer store.Close()

	ctx := context.Background()
	var (
		count int
		err   error
	)
	switch f {
	case "json":
		count, err = importer.ImportJSON(ctx, store, path)
	case "csv":
		count, err = importer.ImportCSV(ctx, store, path)
	default:
		logger.Error("Unknown format", "format", f)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Import failed", "error", err, "path", path, "format", f)
		os.Exit(1)
	}

	logger.Info("Import complete", "records", count, "path", path, "db", cfg.DBPath)
}
