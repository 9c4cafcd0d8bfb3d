package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/wellnesslog/internal/config"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/service"
)

func main() {
	cfg := config.Load()

	var dbPath string
	var file string
	flag.StringVar(&dbPath, "db", cfg.DatabasePath, "sqlite db path")
	flag.StringVar(&file, "file", "config/catalog.yaml", "mission catalog yaml")
	flag.Parse()

	if err := db.Init(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "init db: %v\n", err)
		os.Exit(1)
	}

	catalog := service.NewCatalogService(db.DB)
	result, err := catalog.LoadCatalogFile(context.Background(), file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog %s: %v\n", file, err)
		os.Exit(1)
	}

	fmt.Printf("done: created %d, updated %d mission definitions\n", result.Created, result.Updated)
}
