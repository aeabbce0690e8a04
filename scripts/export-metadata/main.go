package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gemscope/internal/storage"
)

func main() {
	var (
		dbPath     = flag.String("db", "data/meta.db", "Path to the metadata store")
		outputPath = flag.String("output", "metadata_export.jsonl", "Output JSONL file path")
		kind       = flag.String("kind", "all", "Record kind to export: datasets, models, predictions, all")
		days       = flag.Int("days", 0, "Only export records created in the last N days (0 for all)")
	)
	flag.Parse()

	log.Printf("Exporting %s records from %s to %s", *kind, *dbPath, *outputPath)

	store, err := storage.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open metadata store: %v", err)
	}
	defer store.Close()

	outputFile, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer outputFile.Close()

	var cutoff time.Time
	if *days > 0 {
		cutoff = time.Now().AddDate(0, 0, -*days)
		log.Printf("Cutoff: %s", cutoff.Format("2006-01-02"))
	}

	encoder := json.NewEncoder(outputFile)
	counts := map[string]int{}

	if *kind == "all" || *kind == "datasets" {
		records, err := store.ListDatasets("")
		if err != nil {
			log.Fatalf("Failed to list datasets: %v", err)
		}
		for _, r := range records {
			if !cutoff.IsZero() && r.CreatedAt.Before(cutoff) {
				continue
			}
			writeRecord(encoder, "dataset", r)
			counts["dataset"]++
		}
	}

	if *kind == "all" || *kind == "models" {
		records, err := store.ListModels("")
		if err != nil {
			log.Fatalf("Failed to list models: %v", err)
		}
		for _, r := range records {
			if !cutoff.IsZero() && r.CreatedAt.Before(cutoff) {
				continue
			}
			writeRecord(encoder, "model", r)
			counts["model"]++
		}
	}

	if *kind == "all" || *kind == "predictions" {
		records, err := store.ListPredictions("")
		if err != nil {
			log.Fatalf("Failed to list predictions: %v", err)
		}
		for _, r := range records {
			if !cutoff.IsZero() && r.CreatedAt.Before(cutoff) {
				continue
			}
			writeRecord(encoder, "prediction", r)
			counts["prediction"]++
		}
	}

	total := 0
	for kindName, n := range counts {
		log.Printf("  %s: %d", kindName, n)
		total += n
	}
	if total == 0 {
		log.Println("Warning: no records matched the criteria")
	}
	fmt.Printf("✓ Exported %d records to %s\n", total, *outputPath)
}

// exportLine wraps each record with its kind so one file can carry a
// mixed export.
type exportLine struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

func writeRecord(encoder *json.Encoder, kind string, record any) {
	if err := encoder.Encode(exportLine{Kind: kind, Record: record}); err != nil {
		log.Fatalf("Failed to write %s record: %v", kind, err)
	}
}
