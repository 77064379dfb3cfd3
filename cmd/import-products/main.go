package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
)

func main() {
	customerID := flag.Int("customer-id", 0, "Required: owning customer id")
	file := flag.String("file", "", "Required: .csv or .xlsx file")
	encoding := flag.String("encoding", models.ImportEncodingUTF8, "CSV encoding: utf-8, windows-1252, shift_jis")
	sheet := flag.String("sheet", "", "XLSX sheet (default first sheet)")
	continueOnError := flag.Bool("continue-on-error", false, "Store valid rows even when others fail")
	updateExisting := flag.Bool("update-existing", false, "Overwrite products whose SKU already exists")
	flag.Parse()

	if *customerID <= 0 || strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--customer-id and --file are required")
		os.Exit(1)
	}
	policy, err := models.ParsePalletPatternPolicy(config.PalletPatternPolicy())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	var rows []models.ProductImportRow
	if strings.EqualFold(filepath.Ext(*file), ".xlsx") {
		rows, err = models.ReadProductRowsXlsx(f, *sheet)
	} else {
		rows, err = models.ReadProductRowsCSV(f, *encoding)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}

	db := config.ConnectDatabaseWithRetry()
	result, err := models.ImportProducts(context.Background(), db, *customerID, rows, models.ImportOptions{
		ContinueOnError: *continueOnError,
		UpdateExisting:  *updateExisting,
	}, policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	if result.Failed > 0 {
		os.Exit(2)
	}
}
