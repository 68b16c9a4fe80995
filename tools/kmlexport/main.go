// Package main exports the arrival dispatch log from ClickHouse to KML.
// KML (Keyhole Markup Language) files can be viewed in Google Earth, Google Maps, and
// other mapping applications.
//
// The watch point and zones come from the same configuration the service
// uses (-config and the environment), so the rings match what was tracked.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"time"

	"trackship/internal/config"
	"trackship/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACKSHIP_CONFIG"), "YAML configuration file")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	limit := flag.Int("limit", 1000, "Maximum number of arrivals to export")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	ch, err := storage.OpenClickHouse(ctx, cfg.Storage.ClickHouse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer ch.Close()

	records, err := ch.RecentDispatches(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying dispatches: %v\n", err)
		os.Exit(1)
	}

	// Show stats mode.
	if *showStats {
		total, err := ch.CountDispatches(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting dispatches: %v\n", err)
			os.Exit(1)
		}
		printStats(total, records)
		return
	}

	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "No arrivals logged\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d arrivals to KML\n", len(records))
	}

	kml := generateKML(cfg.Watch, cfg.Zones, records, time.Now())

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

// printStats summarises the sampled records per zone.
func printStats(total uint64, records []storage.DispatchRecord) {
	fmt.Println("Arrival Statistics")
	fmt.Println("──────────────────")
	fmt.Printf("Total arrivals:      %d\n", total)
	if len(records) == 0 {
		return
	}

	var sent, errs uint32
	byZone := make(map[string]int)
	var zones []string
	for _, r := range records {
		sent += r.Sent
		errs += r.Errors
		if _, ok := byZone[r.Zone]; !ok {
			zones = append(zones, r.Zone)
		}
		byZone[r.Zone]++
	}
	newest, oldest := records[0].DispatchedAt, records[len(records)-1].DispatchedAt

	fmt.Printf("Sampled:             %d\n", len(records))
	fmt.Printf("Notifications sent:  %d (%d errors)\n", sent, errs)
	fmt.Printf("Date range:          %s to %s\n", oldest.Format("2006-01-02"), newest.Format("2006-01-02"))

	fmt.Println("\nArrivals per zone:")
	fmt.Printf("%-10s %10s\n", "Zone", "Count")
	for _, z := range zones {
		fmt.Printf("%-10s %10d\n", z, byZone[z])
	}
}
