package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/kdimtricp/rollcall/internal/config"
	"github.com/kdimtricp/rollcall/internal/database"
)

func main() {
	var (
		dbType         = flag.String("db", "", "Database type (postgres or sqlite), overrides db.type")
		migrationsPath = flag.String("migrations", "", "Path to migrations directory, overrides migrations_path")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if *dbType != "" {
		cfg.DB.Type = *dbType
	}
	if *migrationsPath != "" {
		cfg.MigrationsPath = *migrationsPath
	}

	db, err := database.NewDB(cfg.DB)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if !*status {
		fmt.Printf("Running migrations from %s...\n", cfg.MigrationsPath)
		if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}
		fmt.Println("Migrations completed successfully!")
		return
	}

	migrator := database.NewMigrator(db.Conn(), cfg.DB.Type)
	statuses, err := migrator.Status(cfg.MigrationsPath)
	if err != nil {
		log.Fatal("Failed to get migration status:", err)
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", s.Version, s.Name, state)
	}
}
