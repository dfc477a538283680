package main

import (
	"fmt"
	"os"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/repository/postgres"
	"github.com/datapolicy/policyscan/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.New(cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to store successfully")

	if err := postgres.RunMigrations(db, migrations.GetFS()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("All migrations completed successfully")
}
