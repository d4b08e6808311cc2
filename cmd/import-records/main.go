package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/workflow"
)

func main() {
	file := flag.String("file", "", "Required: path to the .xlsx workbook")
	kind := flag.String("kind", "records", "records | mappings")
	sheet := flag.String("sheet", "", "Worksheet name (default: first sheet)")
	dryRun := flag.Bool("dry-run", false, "Parse and classify only (no writes)")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "settings: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	logger := config.GetLogger()
	rdb, locker := config.ConnectRedis(ctx, settings.RedisAddress, 1)
	if rdb != nil {
		defer rdb.Close()
	}
	svc, closeDeps, err := workflow.Bootstrap(ctx, settings, logger, rdb, locker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer closeDeps()

	src := models.ImportSource{FileName: filepath.Base(*file), Data: data, Sheet: *sheet}
	opts := workflow.ImportOptions{DryRun: *dryRun}
	actor := models.SystemActor("cli")

	var summary *models.ImportSummary
	switch *kind {
	case "records":
		summary, err = svc.ImportRecords(ctx, actor, src, opts)
	case "mappings":
		summary, err = svc.ImportMappings(ctx, actor, src, opts)
	default:
		fmt.Fprintln(os.Stderr, "--kind must be records or mappings")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}
