// Package controller - Routes frames through detection and subject tracking.
package controller

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/geometry"
	"github.com/nvr-ai/go-detect/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/tracker"
)

// Profiler stage names.
const (
	StageDetect = "detect"
	StageTrack  = "track"
)

// Frame is the raw network output of a single video frame.
type Frame struct {
	ID        int
	Layers    []detector.LayerOutput
	Timestamp time.Time
}

// Detector is an interface for a detector.
type Detector interface {
	Detect(frame Frame) ([]postprocess.Result, error)
}

// PipelineDetector adapts a decoding pipeline to the Detector interface.
type PipelineDetector struct {
	Pipeline *detector.Pipeline
}

// Detect decodes the layers of the frame.
func (d PipelineDetector) Detect(frame Frame) ([]postprocess.Result, error) {
	return d.Pipeline.Process(frame.Layers)
}

// Subject is the primary subject after a frame.
type Subject struct {
	// ID changes every time the tracker switches to another subject.
	ID uuid.UUID
	// Box is the tracked box.
	Box geometry.Box
	// Detection is the candidate the subject was matched to, or nil when the
	// subject was kept without being detected.
	Detection *postprocess.Result
}

// Decision is the outcome of processing one frame.
type Decision struct {
	FrameID int
	// Detections are the candidates given to the tracker, highest score first.
	Detections []postprocess.Result
	// Subject is nil when no subject is held.
	Subject *Subject
	// Changed reports whether the subject appeared, disappeared or switched.
	Changed bool
}

// Options configures a Controller.
type Options struct {
	// RelevantClasses restricts tracking to these class indices. Empty means
	// every class.
	RelevantClasses []int
	// Profiler receives the stage timings. Optional.
	Profiler *profiler.StageProfiler
	// Logger defaults to the standard logrus logger.
	Logger log.FieldLogger
}

// Controller runs detection and tracking for one video stream. It is not safe
// for concurrent use.
type Controller struct {
	detector Detector
	tracker  *tracker.Tracker
	relevant map[int]struct{}
	profiler *profiler.StageProfiler
	logger   log.FieldLogger

	subjectID uuid.UUID
}

// New creates a controller.
//
// Arguments:
//   - d: The detector producing the candidates of each frame.
//   - t: The tracker. Its precision must match the boxes of d.
//   - opts: Optional settings.
//
// Returns:
//   - *Controller: The controller, holding no subject.
func New(d Detector, t *tracker.Tracker, opts Options) *Controller {
	c := &Controller{
		detector: d,
		tracker:  t,
		profiler: opts.Profiler,
		logger:   opts.Logger,
	}
	if c.logger == nil {
		c.logger = log.StandardLogger()
	}
	if len(opts.RelevantClasses) > 0 {
		c.relevant = make(map[int]struct{}, len(opts.RelevantClasses))
		for _, class := range opts.RelevantClasses {
			c.relevant[class] = struct{}{}
		}
	}
	return c
}

// Process detects the candidates of a frame and updates the subject.
//
// Candidates of irrelevant classes and boxes without area are dropped. When
// more candidates than the tracker capacity remain, the highest scores are
// kept.
//
// Arguments:
//   - frame: The frame to process.
//
// Returns:
//   - Decision: The candidates and the subject after the frame.
//   - error: The detector error. The subject is left untouched.
func (c *Controller) Process(frame Frame) (Decision, error) {
	done := c.time(StageDetect)
	results, err := c.detector.Detect(frame)
	done()
	if err != nil {
		return Decision{}, errors.Wrapf(err, "detecting frame %d", frame.ID)
	}

	done = c.time(StageTrack)
	candidates := c.candidates(results)
	boxes := make([]geometry.Box, len(candidates))
	for i, r := range candidates {
		boxes[i] = r.Box
	}
	if err := c.tracker.StoreCandidates(boxes); err != nil {
		done()
		return Decision{}, errors.Wrapf(err, "tracking frame %d", frame.ID)
	}
	c.tracker.Update()
	changed := c.tracker.ChangedSinceLastQuery()
	done()

	decision := Decision{FrameID: frame.ID, Detections: candidates, Changed: changed}

	if c.tracker.Exists() {
		if changed {
			c.subjectID = uuid.New()
		}
		subject := &Subject{ID: c.subjectID, Box: c.tracker.Box()}
		if idx, ok := c.tracker.SubjectIndex(); ok {
			subject.Detection = &candidates[idx]
		}
		decision.Subject = subject
	} else {
		c.subjectID = uuid.Nil
	}

	c.logDecision(decision)
	return decision, nil
}

// Forget drops the subject. The next detected subject gets a new ID.
func (c *Controller) Forget() {
	c.tracker.Reset()
	c.subjectID = uuid.Nil
	c.logger.Info("subject forgotten")
}

func (c *Controller) candidates(results []postprocess.Result) []postprocess.Result {
	candidates := make([]postprocess.Result, 0, len(results))
	for _, r := range results {
		if c.relevant != nil {
			if _, ok := c.relevant[r.Class]; !ok {
				continue
			}
		}
		if r.Box.Area().N <= 0 {
			continue
		}
		candidates = append(candidates, r)
	}

	slices.SortStableFunc(candidates, func(a, b postprocess.Result) int {
		switch {
		case fp.Gt(a.Score, b.Score):
			return -1
		case fp.Lt(a.Score, b.Score):
			return 1
		default:
			return 0
		}
	})
	if limit := c.tracker.Config().MaxCandidates; len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

func (c *Controller) time(stage string) func() {
	if c.profiler == nil {
		return func() {}
	}
	return c.profiler.Time(stage)
}

func (c *Controller) logDecision(d Decision) {
	entry := c.logger.WithFields(log.Fields{
		"frame":      d.FrameID,
		"candidates": len(d.Detections),
	})

	if c.profiler != nil {
		for _, stage := range []string{StageDetect, StageTrack} {
			if stats, ok := c.profiler.Stats(stage); ok {
				entry = entry.WithField(stage, stats.Avg)
			}
		}
	}
	entry.Debug("frame processed")

	if !d.Changed {
		return
	}
	if d.Subject == nil {
		entry.Info("subject lost")
		return
	}
	entry.WithFields(log.Fields{
		"subject": d.Subject.ID,
		"box":     d.Subject.Box.ToRect(),
	}).Info("subject acquired")
}
