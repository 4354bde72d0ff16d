package profiler

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"runtime/pprof"
	"sort"
	"time"

	"github.com/google/pprof/profile"
	"github.com/greymass/ramindex/libraries/logger"
)

type Config struct {
	ServiceName string
	Interval    time.Duration // time between profile windows (default 60s)
	Window      time.Duration // CPU profile length (default 10s, capped at Interval)
	TopN        int           // functions listed per summary (default 20)
}

// Run captures a CPU profile window every Interval and logs the hottest
// functions until ctx is done. Only one CPU profile can run per process.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.Window > cfg.Interval {
		cfg.Window = cfg.Interval
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 20
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "unknown"
	}

	logger.Printf("profiler", "Periodic CPU profiling every %v (window %v)", cfg.Interval, cfg.Window)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		summary, err := capture(ctx, cfg.Window)
		switch {
		case err != nil:
			logger.Printf("profiler", "PROFILE ERROR: %v", err)
		case summary == nil:
			logger.Printf("profiler", "PROFILE: no CPU samples captured")
		default:
			logSummary(cfg, summary)
		}

		select {
		case <-ctx.Done():
			logger.Printf("profiler", "Profiler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func capture(ctx context.Context, window time.Duration) (*summary, error) {
	var buf bytes.Buffer
	if err := pprof.StartCPUProfile(&buf); err != nil {
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}

	timer := time.NewTimer(window)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}
	pprof.StopCPUProfile()

	if buf.Len() == 0 {
		return nil, nil
	}
	return parseProfile(&buf)
}

func logSummary(cfg Config, s *summary) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logger.Printf("profiler", "==== %s cpu profile, %.1fs window, samples %.2fs ====",
		cfg.ServiceName, cfg.Window.Seconds(), s.totalDuration)
	logger.Printf("profiler", "Goroutines: %d | Heap: %s | Sys: %s | NumGC: %d",
		runtime.NumGoroutine(), logger.FormatBytes(int64(m.Alloc)), logger.FormatBytes(int64(m.HeapSys)), m.NumGC)
	logger.Printf("profiler", "      flat  flat%%   sum%%")

	var cumSum int64
	for i := 0; i < cfg.TopN && i < len(s.functions); i++ {
		fn := s.functions[i]
		cumSum += fn.flat
		logger.Printf("profiler", "%10s %5.2f%% %5.2f%%  %s",
			formatDuration(fn.flat, s.sampleRate),
			fn.flatPct,
			float64(cumSum)/float64(s.totalSamples)*100,
			fn.name)
	}
}

type summary struct {
	totalSamples  int64
	totalDuration float64 // seconds
	sampleRate    int64   // nanoseconds per sample
	functions     []funcProfile
}

type funcProfile struct {
	name    string
	flat    int64
	flatPct float64
}

func parseProfile(r *bytes.Buffer) (*summary, error) {
	prof, err := profile.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("could not parse profile: %w", err)
	}

	sampleRate := int64(1000000)
	if len(prof.SampleType) > 0 && prof.SampleType[0].Unit == "nanoseconds" && prof.Period > 0 {
		sampleRate = prof.Period
	}

	funcStats := make(map[string]int64)
	var totalSamples int64
	for _, sample := range prof.Sample {
		if len(sample.Value) == 0 {
			continue
		}
		flat := sample.Value[0]
		totalSamples += flat
		if len(sample.Location) > 0 && len(sample.Location[0].Line) > 0 {
			if fn := sample.Location[0].Line[0].Function; fn != nil {
				funcStats[fn.Name] += flat
			}
		}
	}

	functions := make([]funcProfile, 0, len(funcStats))
	for name, flat := range funcStats {
		fp := funcProfile{name: name, flat: flat}
		if totalSamples > 0 {
			fp.flatPct = float64(flat) / float64(totalSamples) * 100
		}
		functions = append(functions, fp)
	}
	sort.Slice(functions, func(i, j int) bool {
		if functions[i].flat != functions[j].flat {
			return functions[i].flat > functions[j].flat
		}
		return functions[i].name < functions[j].name
	})

	return &summary{
		totalSamples:  totalSamples,
		totalDuration: float64(totalSamples*sampleRate) / 1e9,
		sampleRate:    sampleRate,
		functions:     functions,
	}, nil
}

func formatDuration(samples int64, sampleRate int64) string {
	seconds := float64(samples*sampleRate) / 1e9
	switch {
	case seconds >= 1.0:
		return fmt.Sprintf("%.2fs", seconds)
	case seconds >= 0.001:
		return fmt.Sprintf("%.0fms", seconds*1000)
	case seconds >= 0.000001:
		return fmt.Sprintf("%.0fµs", seconds*1e6)
	default:
		return fmt.Sprintf("%.0fns", seconds*1e9)
	}
}
