package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"raster-combine/internal/cmbtable"
	"raster-combine/internal/overlay"
	"raster-combine/internal/store"
)

func main() {
	// Define command-line flags
	outputFile := flag.String("output", "combine.csv", "Output CSV file for the combination table")
	idsFile := flag.String("ids", "", "Optional output grid of per-pixel combination IDs")
	varNames := flag.String("var-names", "", "Comma-separated variable names, one per layer (default: layer file names)")
	incr := flag.Float64("incr", 1, "Count increment per pixel")
	hasherName := flag.String("hasher", "combine", "Key hasher: combine or murmur3")
	workers := flag.Int("workers", 0, "Layers read concurrently per row (default: number of CPUs)")
	dbPath := flag.String("db", "", "Optional SQLite database to store a snapshot of the table")
	label := flag.String("label", "", "Snapshot label")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] layer.asc [layer.asc ...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Validate input
	layerPaths := flag.Args()
	if len(layerPaths) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one layer file is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	names, err := parseVarNames(*varNames, len(layerPaths))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	hasher, err := cmbtable.ParseHasher(*hasherName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Raster Combine Tool\n")
	fmt.Printf("===================\n\n")
	fmt.Printf("Layers: %s\n", strings.Join(layerPaths, ", "))
	fmt.Printf("Output file: %s\n", *outputFile)
	fmt.Println()

	// Track start time for elapsed time reporting
	programStart := time.Now()

	// Progress callback that shows elapsed time
	progressCallback := func(msg string) {
		elapsed := time.Since(programStart)
		fmt.Printf("[%s] %s\n", formatElapsed(elapsed), msg)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progressCallback("Loading layers...")
	layers, err := overlay.LoadGrids(layerPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	opts := overlay.Options{
		VarNames:         names,
		Incr:             incr,
		Hasher:           hasher,
		Workers:          *workers,
		ProgressCallback: progressCallback,
		Logger:           logger,
	}

	var idGrid *overlay.GridWriter
	if *idsFile != "" {
		cols, rows := layers[0].Size()
		idGrid, err = overlay.NewGridWriter(*idsFile, cols, rows, layers[0].Bound())
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			os.Exit(1)
		}
		opts.Sink = idGrid
	}

	startTime := time.Now()
	result, err := overlay.Combine(ctx, layers, opts)
	if idGrid != nil {
		if closeErr := idGrid.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
	processingTime := time.Since(startTime)

	// Write output
	progressCallback("Writing output file...")
	frame := result.Table.Export()
	if err := overlay.WriteCSV(frame, *outputFile); err != nil {
		fmt.Fprintf(os.Stderr, "\nError writing output: %v\n", err)
		os.Exit(1)
	}

	snapshotID := ""
	if *dbPath != "" {
		progressCallback("Saving snapshot...")
		snapshotID, err = saveSnapshot(*dbPath, *label, frame)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError saving snapshot: %v\n", err)
			os.Exit(1)
		}
	}

	// Summary
	fmt.Printf("\n✓ Success!\n")
	fmt.Printf("  Pixels combined: %d\n", result.Pixels())
	fmt.Printf("  Unique combinations: %d\n", frame.Len())
	fmt.Printf("  Processing time: %s\n", processingTime.Round(time.Millisecond))
	fmt.Printf("  Output file: %s\n", *outputFile)
	if *idsFile != "" {
		fmt.Printf("  ID grid: %s\n", *idsFile)
	}
	if snapshotID != "" {
		fmt.Printf("  Snapshot: %s\n", snapshotID)
	}
	fmt.Println()
}

// parseVarNames splits a comma-separated name list. An empty list selects
// the layer names.
func parseVarNames(s string, layers int) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	names := strings.Split(s, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
		if names[i] == "" {
			return nil, fmt.Errorf("variable name %d is empty", i+1)
		}
	}
	if len(names) != layers {
		return nil, fmt.Errorf("%d variable names given for %d layers", len(names), layers)
	}
	return names, nil
}

func saveSnapshot(dbPath, label string, frame *cmbtable.Frame) (string, error) {
	db, err := store.InitDB(dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := store.CreateSchema(db); err != nil {
		return "", err
	}
	return store.SaveSnapshot(db, label, frame)
}

// formatElapsed formats a duration into a human-readable elapsed time string
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes > 0 {
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
