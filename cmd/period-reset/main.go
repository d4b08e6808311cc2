package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/workflow"
)

func main() {
	mode := flag.String("mode", "reset", "reset | recompute")
	dryRun := flag.Bool("dry-run", true, "Show counts only (no writes)")
	confirm := flag.String("confirm", "", "Type RESET to proceed when mode=reset and dry-run=false")
	flag.Parse()

	sweepMode := workflow.SweepMode(strings.ToLower(strings.TrimSpace(*mode)))
	if sweepMode == workflow.SweepReset && !*dryRun && strings.TrimSpace(*confirm) != "RESET" {
		fmt.Fprintln(os.Stderr, "set --confirm=RESET to proceed")
		os.Exit(1)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "settings: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	rdb, locker := config.ConnectRedis(ctx, settings.RedisAddress, 1)
	if rdb != nil {
		defer rdb.Close()
	}
	svc, closeDeps, err := workflow.Bootstrap(ctx, settings, config.GetLogger(), rdb, locker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer closeDeps()

	summary, err := svc.RunSweep(ctx, models.SystemActor("cli"), sweepMode, workflow.SweepOptions{DryRun: *dryRun})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", sweepMode, err)
		os.Exit(1)
	}

	verb := "changed"
	if summary.DryRun {
		verb = "would change"
	}
	fmt.Printf("%s %s: %d records, %s %d, failed %d\n", summary.Mode, summary.Period, summary.Total, verb, summary.Changed, summary.Failed)
}
