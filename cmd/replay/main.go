package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/lelanhus/ruckcore/capture"
	"github.com/lelanhus/ruckcore/engine"
	"github.com/lelanhus/ruckcore/maphint"
	"github.com/lelanhus/ruckcore/server"
)

func main() {
	logPath := flag.String("log", "", "Capture log to replay (required)")
	configPath := flag.String("config", "", "Path to YAML parameter file (optional)")
	hintsPath := flag.String("hints", "", "Path to terrain surface-hint sqlite db (optional)")
	csvPath := flag.String("csv", "replay.csv", "Per-second metrics CSV output")
	jsonPath := flag.String("json", "replay.json", "Final snapshot JSON output")
	refPath := flag.String("ref", "", "Reference track CSV (ts,lat,lon) for RMSE comparison (optional)")
	bodyKg := flag.Float64("body", 75, "Body mass in kg")
	loadKg := flag.Float64("load", 0, "Carried load in kg")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("-log is required")
	}

	params, err := engine.LoadParams(*configPath)
	if err != nil {
		log.Fatalf("Failed to load parameters: %v", err)
	}

	reader, err := capture.NewReader(*logPath)
	if err != nil {
		log.Fatalf("Failed to open capture log: %v", err)
	}
	defer reader.Close()

	// Decode the whole log up front; the session clock follows sample
	// timestamps, so replay runs at full speed with live-identical results.
	var samples []engine.Sample
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read capture log: %v", err)
		}
		samples = append(samples, server.DecodeFrames(rec.Data)...)
	}
	if len(samples) == 0 {
		log.Fatal("Capture log contains no samples")
	}
	log.Printf("Replaying %d samples from %s", len(samples), *logPath)

	ctx := engine.SessionContext{
		BodyMassKg:   *bodyKg,
		LoadMassKg:   *loadKg,
		SessionStart: samples[0].When(),
	}

	var opts []engine.SessionOption
	if maphint.Available(*hintsPath) {
		store, err := maphint.Open(*hintsPath)
		if err != nil {
			log.Fatalf("Failed to open hint db: %v", err)
		}
		defer store.Close()
		opts = append(opts, engine.WithMapHints(store))
	}

	session, err := engine.NewSession(ctx, params, opts...)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	csvFile, err := os.Create(*csvPath)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *csvPath, err)
	}
	defer csvFile.Close()
	w := csv.NewWriter(csvFile)
	w.Write([]string{
		"timestamp", "lat", "lon", "altitude_m", "speed_mps", "fix_quality",
		"movement", "grade_pct", "gain_m", "loss_m", "terrain",
		"rate_kcal_min", "cumulative_kcal", "distance_m",
	})

	type trackPoint struct {
		ts       time.Time
		lat, lon float64
	}
	var track []trackPoint
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range session.Snapshots() {
			track = append(track, trackPoint{ts: snap.Timestamp, lat: snap.Latitude, lon: snap.Longitude})
			w.Write([]string{
				snap.Timestamp.Format(time.RFC3339),
				fmt.Sprintf("%.6f", snap.Latitude),
				fmt.Sprintf("%.6f", snap.Longitude),
				fmt.Sprintf("%.1f", snap.Altitude),
				fmt.Sprintf("%.2f", snap.SpeedMps),
				snap.FixQuality,
				snap.Movement,
				fmt.Sprintf("%.1f", snap.GradePct),
				fmt.Sprintf("%.1f", snap.CumulativeGainM),
				fmt.Sprintf("%.1f", snap.CumulativeLossM),
				snap.Terrain,
				fmt.Sprintf("%.3f", snap.RateKcalPerMin),
				fmt.Sprintf("%.1f", snap.CumulativeKcal),
				fmt.Sprintf("%.1f", snap.DistanceM),
			})
		}
	}()

	for _, smp := range samples {
		switch v := smp.(type) {
		case engine.PositionFix:
			session.OnPosition(v)
		case engine.MotionSample:
			session.OnMotion(v)
		case engine.PressureSample:
			session.OnPressure(v)
		case engine.PowerState:
			session.OnPower(v)
		}
	}

	final := session.Stop()
	wg.Wait()
	w.Flush()

	b, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal final snapshot: %v", err)
	}
	if err := os.WriteFile(*jsonPath, b, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *jsonPath, err)
	}
	log.Printf("Session %s: %.1fm, %.1f kcal, gain %.1fm, loss %.1fm over %.0fs",
		final.SessionID, final.DistanceM, final.CumulativeKcal,
		final.CumulativeGainM, final.CumulativeLossM, final.DurationSec)

	if *refPath != "" {
		rmse, n, err := compareReference(*refPath, func(i int) (float64, float64, bool) {
			if i >= len(track) {
				return 0, 0, false
			}
			return track[i].lat, track[i].lon, true
		})
		if err != nil {
			log.Fatalf("Reference comparison failed: %v", err)
		}
		log.Printf("Reference RMSE over %d points: %.2fm", n, rmse)
	}
}

// compareReference computes positional RMSE against a ts,lat,lon CSV,
// matching rows by index.
func compareReference(path string, at func(int) (float64, float64, bool)) (float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return 0, 0, err
	}

	var sumSq float64
	n := 0
	for i, row := range rows {
		if len(row) < 3 {
			continue
		}
		refLat, err1 := strconv.ParseFloat(row[1], 64)
		refLon, err2 := strconv.ParseFloat(row[2], 64)
		if err1 != nil || err2 != nil {
			continue // header or malformed row
		}
		lat, lon, ok := at(i)
		if !ok {
			break
		}
		d := engine.Distance(refLat, refLon, lat, lon)
		sumSq += d * d
		n++
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("no comparable rows in %s", path)
	}
	return math.Sqrt(sumSq / float64(n)), n, nil
}
