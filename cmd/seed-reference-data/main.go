package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
)

func main() {
	migrate := flag.Bool("migrate", true, "Run AutoMigrate before seeding")
	flag.Parse()

	db := config.ConnectDatabaseWithRetry()
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := models.SeedReferenceData(db); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("reference data seeded")
}
