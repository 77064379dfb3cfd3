package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/mmdatafocus/threepl_backend/workflow"
)

func main() {
	asOfStr := flag.String("as-of", "", "Optional: billing date (YYYY-MM-DD). Defaults to today (UTC).")
	actor := flag.String("actor", "billing-job", "Actor recorded on generated invoices")
	flag.Parse()

	asOf := utils.DateOnly(time.Now().UTC())
	if strings.TrimSpace(*asOfStr) != "" {
		d, err := utils.ParseDate(*asOfStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid as-of date: %v\n", err)
			os.Exit(1)
		}
		asOf = d
	}

	db := config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(3)
	logger := config.GetLogger()

	result, err := workflow.RunBillingCycle(context.Background(), db, logger, asOf, *actor)
	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "billing run finished with errors: %v\n", err)
		os.Exit(1)
	}
}
