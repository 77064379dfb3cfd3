package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	asOfStr := flag.String("as-of", "", "Optional: date (YYYY-MM-DD) to compare due dates against. Defaults to today (UTC).")
	actor := flag.String("actor", "overdue-job", "Actor recorded on status changes")
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
	logger := config.GetLogger()

	invoices, err := models.MarkOverdueInvoices(context.Background(), db, asOf, *actor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mark overdue failed: %v\n", err)
		os.Exit(1)
	}
	for _, inv := range invoices {
		fmt.Printf("%s\t%s\n", inv.InvoiceNumber, inv.DueDate.Format("2006-01-02"))
	}
	logger.WithFields(logrus.Fields{"as_of": asOf.Format("2006-01-02"), "count": len(invoices)}).Info("invoice.overdue.done")
}
