package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pitchdata/match.report/internal/calib"
	"github.com/pitchdata/match.report/internal/config"
	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/kinematics"
	"github.com/pitchdata/match.report/internal/pipeline"
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/report"
	"github.com/pitchdata/match.report/internal/storage/sqlite"
	"github.com/pitchdata/match.report/internal/tactical"
	"github.com/pitchdata/match.report/internal/track"
	"github.com/pitchdata/match.report/internal/version"
)

var (
	detectionsFile = flag.String("detections", "", "Detection stream: one JSON frame per line")
	configFile     = flag.String("config", "", "Analysis config file (JSON); defaults when omitted")
	calibFile      = flag.String("calib", "", "Camera calibration file (JSON); detections are treated as pitch coordinates when omitted")
	dbFile         = flag.String("db", "", "SQLite database to persist tracks and events into (optional)")
	reportFile     = flag.String("report", "match_report.json", "Path for the match report JSON")
	heatmapFile    = flag.String("heatmap", "", "Path for the occupancy heatmap HTML (optional)")
	plotsDir       = flag.String("plots", "", "Directory for per-player speed profile PNGs (optional)")
	debugLogs      = flag.Bool("debug", false, "Enable diagnostic logging to stderr")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

// calibration is the on-disk calibration format: either a row-major 3x3
// matrix or at least four pixel/pitch correspondences.
type calibration struct {
	Matrix          []float64 `json:"matrix,omitempty"`
	Correspondences []struct {
		Pixel calib.PixelPoint `json:"pixel"`
		Pitch pitch.Point      `json:"pitch"`
	} `json:"correspondences,omitempty"`
}

func loadHomography(path string) (*calib.Homography, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c calibration
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}

	switch {
	case len(c.Matrix) == 9:
		var m [9]float64
		copy(m[:], c.Matrix)
		return calib.FromMatrix(m)
	case len(c.Matrix) > 0:
		return nil, fmt.Errorf("calibration matrix must have 9 elements, got %d", len(c.Matrix))
	case len(c.Correspondences) > 0:
		pairs := make([]calib.Correspondence, len(c.Correspondences))
		for i, p := range c.Correspondences {
			pairs[i] = calib.Correspondence{Pixel: p.Pixel, Pitch: p.Pitch}
		}
		return calib.FromCorrespondences(pairs)
	default:
		return nil, fmt.Errorf("calibration file has neither matrix nor correspondences")
	}
}

func ingest(p *pipeline.Pipeline, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Frames with many detections can exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var frame pipeline.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := p.Enqueue(frame); err != nil {
			// The pipeline closes itself when the stream aborts; stop
			// feeding it and let the run error carry the reason.
			if errors.Is(err, pipeline.ErrClosed) {
				return nil
			}
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("matchreport %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *detectionsFile == "" {
		log.Fatal("a -detections file is required")
	}

	if *debugLogs {
		track.SetLogWriters(os.Stderr, os.Stderr, nil)
		events.SetLogWriters(os.Stderr, os.Stderr, nil)
		pipeline.SetLogWriters(os.Stderr, os.Stderr, nil)
	}

	var cfg *config.AnalysisConfig
	if *configFile != "" {
		loaded, err := config.LoadAnalysisConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load analysis config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.EmptyAnalysisConfig()
	}

	field, err := pitch.New(cfg.GetPitchLengthMeters(), cfg.GetPitchWidthMeters(), cfg.GetGoalWidthMeters())
	if err != nil {
		log.Fatalf("invalid pitch dimensions: %v", err)
	}

	var hom *calib.Homography
	if *calibFile != "" {
		hom, err = loadHomography(*calibFile)
		if err != nil {
			log.Fatalf("failed to load calibration: %v", err)
		}
		log.Printf("Loaded camera calibration from %s", *calibFile)
	} else {
		log.Print("No calibration given; treating detections as pitch coordinates")
	}

	pipeCfg := pipeline.ConfigFromAnalysis(cfg, field)
	if *dbFile != "" {
		db, err := sqlite.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open match database: %v", err)
		}
		defer db.Close()
		pipeCfg.Sink = sqlite.NewMatchStore(db)
		log.Printf("Persisting tracks and events to %s", *dbFile)
	}

	pipe, err := pipeline.New(pipeCfg, hom)
	if err != nil {
		log.Fatalf("failed to create pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- pipe.Run(ctx) }()
	go func() {
		// Unblocks a producer stuck on a full queue after a signal.
		<-ctx.Done()
		pipe.Close()
	}()

	if err := ingest(pipe, *detectionsFile); err != nil {
		log.Fatalf("failed to read detections: %v", err)
	}
	pipe.Close()
	var seqErr *pipeline.SequenceError
	if err := <-runErr; err != nil && err != context.Canceled {
		if !errors.As(err, &seqErr) {
			log.Fatalf("pipeline run: %v", err)
		}
	}
	results := pipe.Finalize()
	if results.Abort != nil {
		log.Printf("Stream aborted at frame %d: %s; reporting the partial stream",
			results.Abort.FrameIndex, results.Abort.Reason)
	}

	stats := results.Stats
	log.Printf("Processed %d frames (%d rejected), %d detections (%d dropped on projection)",
		stats.FramesProcessed, stats.FramesRejected, stats.DetectionsIn, stats.DetectionsDropped)
	log.Printf("Stream produced %d tracks, %d events across %d episodes",
		len(results.Tracks), len(results.Events), len(results.Episodes))

	agg, err := tactical.NewAggregator(tactical.ConfigFromAnalysis(cfg), field)
	if err != nil {
		log.Fatalf("failed to create tactical aggregator: %v", err)
	}
	asm := report.NewAssembler(kinematics.ConfigFromAnalysis(cfg), agg, nil)

	rep := asm.Assemble(report.Input{
		Start:      results.Start,
		End:        results.End,
		Tracks:     results.Tracks,
		Teams:      results.Teams,
		Events:     results.Events,
		Episodes:   results.Episodes,
		Possession: results.Possession,
	})

	out, err := os.Create(*reportFile)
	if err != nil {
		log.Fatalf("failed to create report file: %v", err)
	}
	if err := rep.WriteJSON(out); err != nil {
		out.Close()
		log.Fatalf("failed to write report: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("failed to close report file: %v", err)
	}
	log.Printf("Wrote match report to %s", *reportFile)

	if *heatmapFile != "" {
		hw, err := os.Create(*heatmapFile)
		if err != nil {
			log.Fatalf("failed to create heatmap file: %v", err)
		}
		if err := report.RenderHeatmaps(hw, rep); err != nil {
			hw.Close()
			log.Fatalf("failed to render heatmaps: %v", err)
		}
		if err := hw.Close(); err != nil {
			log.Fatalf("failed to close heatmap file: %v", err)
		}
		log.Printf("Wrote occupancy heatmaps to %s", *heatmapFile)
	}

	if *plotsDir != "" {
		if err := report.WriteSpeedProfiles(*plotsDir, results.Tracks, kinematics.ConfigFromAnalysis(cfg)); err != nil {
			log.Fatalf("failed to write speed profiles: %v", err)
		}
		log.Printf("Wrote speed profiles to %s", *plotsDir)
	}
}
