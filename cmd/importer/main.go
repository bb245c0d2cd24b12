package main

import (
	"context"
	"flag"
	"log"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/faceclient"
	"faceattend/internal/importer"
	"faceattend/internal/store"
)

// Importer walks a dataset of per-student image folders and upserts one
// averaged embedding per student. Standalone counterpart of /update_db.
func main() {
	cfg := config.Load()
	root := flag.String("dataset", cfg.DatasetPath, "dataset root: one folder per roll number")
	flag.Parse()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	sum, err := importer.New(repo, face).Run(context.Background(), *root)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}

	log.Printf("import complete: %d student folder(s), %d imported", sum.Students, sum.Imported)
	for _, e := range sum.Errors {
		log.Printf("  error: %s", e)
	}
}
