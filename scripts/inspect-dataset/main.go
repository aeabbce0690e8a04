package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"gemscope/internal/dataset"
	"gemscope/internal/storage"
	"gemscope/internal/warehouse"
)

func main() {
	var (
		dataPath  = flag.String("data", "data", "Data directory path")
		datasetID = flag.String("dataset", "", "Dataset ID to profile (empty lists all datasets)")
	)
	flag.Parse()

	metaPath := filepath.Join(*dataPath, "meta.db")
	store, err := storage.New(metaPath)
	if err != nil {
		log.Fatalf("Failed to open metadata store: %v", err)
	}
	defer store.Close()

	if *datasetID == "" {
		listDatasets(store)
		return
	}

	record, err := store.GetDataset(*datasetID)
	if err != nil {
		log.Fatalf("Failed to load dataset record: %v", err)
	}

	client, err := warehouse.NewClient(filepath.Join(*dataPath, "warehouse.db"))
	if err != nil {
		log.Fatalf("Failed to open warehouse: %v", err)
	}
	defer client.Close()

	profile, err := dataset.BuildProfile(context.Background(), warehouse.New(client), *datasetID)
	if err != nil {
		log.Fatalf("Failed to profile dataset: %v", err)
	}

	fmt.Printf("Dataset: %s (%s)\n", record.Name, record.ID)
	fmt.Printf("Owner: %s\n", record.OwnerID)
	fmt.Printf("Registered: %s\n", record.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Rows: %d\n", profile.RowCount)
	fmt.Printf("Columns: %v\n", profile.Columns)

	fmt.Println("\nNumeric columns:")
	names := make([]string, 0, len(profile.Numeric))
	for name := range profile.Numeric {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := profile.Numeric[name]
		fmt.Printf("  %-14s min %.3f  mean %.3f  max %.3f\n", name, stats.Min, stats.Mean, stats.Max)
	}

	fmt.Println("\nCategorical columns:")
	for _, name := range []string{"color", "clarity"} {
		levels, ok := profile.Levels[name]
		if !ok {
			continue
		}
		fmt.Printf("  %-14s %d levels %v (mode %s)\n", name, len(levels), levels, profile.Modes[name])
	}

	if profile.SoldRate > 0 {
		fmt.Printf("\nSold rate: %.1f%%\n", 100*profile.SoldRate)
	}
}

func listDatasets(store *storage.Store) {
	records, err := store.ListDatasets("")
	if err != nil {
		log.Fatalf("Failed to list datasets: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No datasets registered.")
		return
	}

	fmt.Printf("%d registered dataset(s):\n", len(records))
	for _, r := range records {
		fmt.Printf("  %s  %-20s %6d rows  owner %s\n", r.ID, r.Name, r.RowCount, r.OwnerID)
	}
}
