// Package profiler - Per stage timing statistics for the frame pipeline.
package profiler

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultMaxSamples is the window used when none is configured.
const DefaultMaxSamples = 600

// TimeStats is a snapshot of the timings of one stage.
type TimeStats struct {
	// Count is the number of recorded durations, including evicted ones.
	Count int64
	// Samples is the number of durations in the window.
	Samples int
	Avg     time.Duration
	Min     time.Duration
	Max     time.Duration
}

// String formats the statistics for logs.
func (s TimeStats) String() string {
	return fmt.Sprintf("avg=%v, min=%v, max=%v, count=%d",
		s.Avg.Truncate(time.Microsecond),
		s.Min.Truncate(time.Microsecond),
		s.Max.Truncate(time.Microsecond),
		s.Count)
}

// timeTracker tracks the timing statistics of one stage over a sliding
// window. Min and max cover every recorded duration.
type timeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// StageProfiler records how long each pipeline stage takes. It is safe for
// concurrent use.
type StageProfiler struct {
	mu         sync.RWMutex
	maxSamples int
	stages     map[string]*timeTracker
}

// NewStageProfiler creates a profiler keeping the last maxSamples durations
// of every stage.
//
// Arguments:
// - maxSamples: The window size. Zero or less selects DefaultMaxSamples.
//
// Returns:
// - A profiler with no stage recorded.
func NewStageProfiler(maxSamples int) *StageProfiler {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &StageProfiler{
		maxSamples: maxSamples,
		stages:     make(map[string]*timeTracker),
	}
}

// Time starts timing a stage.
//
// Arguments:
// - stage: The name of the stage to track
//
// Returns:
// - A function to call when the stage completes
//
// @example
// done := p.Time("detect")
// results, err := d.Detect(frame)
// done()
func (p *StageProfiler) Time(stage string) func() {
	start := time.Now()
	return func() {
		p.Track(stage, time.Since(start))
	}
}

// Track records one duration of a stage.
func (p *StageProfiler) Track(stage string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.stages[stage]
	if !exists {
		tracker = &timeTracker{
			durations: make([]time.Duration, 0, p.maxSamples),
			minTime:   duration,
			maxTime:   duration,
		}
		p.stages[stage] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > p.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns the statistics of a stage, or false when it was never
// recorded.
func (p *StageProfiler) Stats(stage string) (TimeStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker, exists := p.stages[stage]
	if !exists {
		return TimeStats{}, false
	}
	return TimeStats{
		Count:   tracker.count,
		Samples: len(tracker.durations),
		Avg:     tracker.totalTime / time.Duration(len(tracker.durations)),
		Min:     tracker.minTime,
		Max:     tracker.maxTime,
	}, true
}

// Stages returns the names of the recorded stages, sorted.
func (p *StageProfiler) Stages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.stages))
	for name := range p.stages {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Reset forgets every recorded stage.
func (p *StageProfiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.stages)
}
