package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/workflow"
)

func main() {
	productID := flag.Int("product-id", 0, "Optional: product id (default all products)")
	fix := flag.Bool("fix", false, "Write corrected balances; without it drift is only reported")
	flag.Parse()

	db := config.ConnectDatabaseWithRetry()
	logger := config.GetLogger()

	report, err := workflow.RebuildInventory(context.Background(), db, logger, *productID, *fix)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	if len(report.Drifts) > 0 && !*fix {
		// non-zero so a scheduled check surfaces drift
		os.Exit(2)
	}
}
