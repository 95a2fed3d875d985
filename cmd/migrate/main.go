package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"trafficcam/internal/app"
	"trafficcam/internal/config"
	"trafficcam/internal/repository/sqlite"
)

// migrate creates the database schema and imports cameras from a YAML file.
func main() {
	camerasFile := flag.String("cameras", "cameras.yaml", "YAML file listing cameras")
	dbPath := flag.String("db", "data/traffic.db", "Database path")
	flag.Parse()

	fmt.Printf("Importing cameras from %s into database %s\n", *camerasFile, *dbPath)

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	seeds, err := config.LoadCameraSeeds(*camerasFile)
	if err != nil {
		log.Fatalf("Failed to load cameras: %v", err)
	}
	if len(seeds) == 0 {
		fmt.Println("No cameras found to import")
		return
	}

	cameras := sqlite.NewCameraRepository(db)
	added, err := app.SeedCameras(cameras, seeds)
	if err != nil {
		log.Fatalf("Import stopped after %d cameras: %v", added, err)
	}

	fmt.Printf("Imported %d cameras, %d already registered\n", added, len(seeds)-added)

	all, err := cameras.GetAll(0, -1)
	if err == nil {
		fmt.Printf("\nRegistered cameras:\n")
		for _, cam := range all {
			fmt.Printf("   %d  %-20s %s\n", cam.ID, cam.Name, cam.SourceURL)
		}
	}
}
