// Package main provides an offline analysis tool for raw capture files.
// It replays a capture through the frame decoder and reports interval
// statistics, so a capture taken against noisy hardware can be inspected
// without the daemon.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/interval.report/internal/frame"
	"github.com/banshee-data/interval.report/internal/units"
)

var (
	jsonOutput  = flag.Bool("json", false, "Emit the analysis as JSON instead of text")
	printValues = flag.Bool("values", false, "Print every decoded interval, one per line")
	valueUnits  = flag.String("units", units.Micros, "Units for printed intervals (us, ms, s)")
)

// AnalysisResult holds the results of decoding one capture file.
type AnalysisResult struct {
	CaptureFile   string  `json:"capture_file"`
	SizeBytes     int64   `json:"size_bytes"`
	FramesDecoded uint64  `json:"frames_decoded"`
	FramesDropped uint64  `json:"frames_dropped"`
	MinMicros     float64 `json:"min_micros"`
	MaxMicros     float64 `json:"max_micros"`
	MeanMicros    float64 `json:"mean_micros"`
	StdevMicros   float64 `json:"stdev_micros"`
	SpanSecs      float64 `json:"span_secs"`
	RateHz        float64 `json:"rate_hz"`
	RateCPM       float64 `json:"rate_cpm"`
}

func analyzeCapture(path string) (*AnalysisResult, []uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read capture: %w", err)
	}

	decoder := frame.NewDecoder()
	values := decoder.Feed(data)
	decoded, dropped := decoder.Stats()

	result := &AnalysisResult{
		CaptureFile:   path,
		SizeBytes:     int64(len(data)),
		FramesDecoded: decoded,
		FramesDropped: dropped,
	}
	if len(values) == 0 {
		return result, values, nil
	}

	samples := make([]float64, len(values))
	var span float64
	result.MinMicros = float64(values[0])
	for i, v := range values {
		f := float64(v)
		samples[i] = f
		span += f
		if f < result.MinMicros {
			result.MinMicros = f
		}
		if f > result.MaxMicros {
			result.MaxMicros = f
		}
	}
	result.MeanMicros = stat.Mean(samples, nil)
	if len(samples) > 1 {
		result.StdevMicros = stat.StdDev(samples, nil)
	}
	result.SpanSecs = span / 1e6
	result.RateHz = units.IntervalToHz(result.MeanMicros)
	result.RateCPM = units.HzToCPM(result.RateHz)

	return result, values, nil
}

func printText(result *AnalysisResult) {
	fmt.Printf("Capture:        %s (%d bytes)\n", result.CaptureFile, result.SizeBytes)
	fmt.Printf("Frames decoded: %d\n", result.FramesDecoded)
	fmt.Printf("Frames dropped: %d\n", result.FramesDropped)
	if result.FramesDecoded == 0 {
		return
	}
	fmt.Printf("Interval min:   %.0f us\n", result.MinMicros)
	fmt.Printf("Interval max:   %.0f us\n", result.MaxMicros)
	fmt.Printf("Interval mean:  %.1f us\n", result.MeanMicros)
	fmt.Printf("Interval stdev: %.1f us\n", result.StdevMicros)
	fmt.Printf("Span:           %s\n", time.Duration(result.SpanSecs*float64(time.Second)).Round(time.Millisecond))
	fmt.Printf("Rate:           %.2f Hz (%.1f CPM)\n", result.RateHz, result.RateCPM)
}

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <capture-file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	if !units.IsValid(*valueUnits) {
		log.Fatalf("Invalid units %q (valid units: %s)", *valueUnits, units.GetValidUnitsString())
	}

	result, values, err := analyzeCapture(flag.Arg(0))
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	if *printValues {
		for _, v := range values {
			fmt.Printf("%g\n", units.ConvertInterval(float64(v), *valueUnits))
		}
		return
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal result: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	printText(result)
}
