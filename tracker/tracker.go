// Package tracker - Follows a single primary subject across frames.
//
// Every frame the caller stores the detected boxes with StoreCandidates and
// calls Update. The tracker keeps the previous subject unless a challenger is
// clearly larger, or similar in size and closer to the image center, which
// keeps the selection from flickering between competing detections.
//
// A Tracker is not safe for concurrent use.
package tracker

import (
	"github.com/pkg/errors"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
)

var (
	// ErrTooManyCandidates is returned when more boxes than the configured
	// capacity are stored.
	ErrTooManyCandidates = errors.New("tracker: too many candidates")

	// ErrInvalidConfig is returned by New for unusable configurations.
	ErrInvalidConfig = errors.New("tracker: invalid configuration")
)

// Config holds the fixed point parameters of a tracker. Every scalar must use
// the fractional bits of IoUThreshold, which is also the precision of the
// boxes given to the tracker.
type Config struct {
	// IoUThreshold is the overlap at which a candidate is the previous
	// subject.
	IoUThreshold fp.Scalar
	// SimilarityRatio is the relative area difference under which two boxes
	// are considered the same size.
	SimilarityRatio fp.Scalar
	// PreferenceCoef biases the comparison toward the incumbent. It must be
	// positive.
	PreferenceCoef fp.Scalar
	// ImageWidth and ImageHeight are the source image dimensions. Boxes are
	// compared by their distance to the image center.
	ImageWidth  int32
	ImageHeight int32
	// MaxCandidates is the capacity of StoreCandidates.
	MaxCandidates int
}

// FracBits returns the working precision of the tracker.
func (c Config) FracBits() uint8 {
	return c.IoUThreshold.FracBits
}

// Validate checks that the configuration can drive a tracker.
func (c Config) Validate() error {
	fracBits := c.FracBits()
	if c.SimilarityRatio.FracBits != fracBits || c.PreferenceCoef.FracBits != fracBits {
		return errors.Wrapf(ErrInvalidConfig, "fractional bits differ: iou %d, ratio %d, preference %d",
			fracBits, c.SimilarityRatio.FracBits, c.PreferenceCoef.FracBits)
	}
	if c.PreferenceCoef.N <= 0 {
		return errors.Wrap(ErrInvalidConfig, "preference coefficient must be positive")
	}
	if c.MaxCandidates <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "max candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "invalid image size %dx%d", c.ImageWidth, c.ImageHeight)
	}
	// Select takes square roots of distances and scales areas by the
	// preference coefficient. IoU sums two areas.
	if fracBits%2 != 0 {
		return errors.Wrapf(ErrInvalidConfig, "fractional bits must be even, got %d", fracBits)
	}
	scale := max(int64(c.PreferenceCoef.Ceil()), 2)
	limit := geometry.MaxFracBits(int64(c.ImageWidth), int64(c.ImageHeight), scale)
	if fracBits > limit {
		return errors.Wrapf(ErrInvalidConfig, "%d fractional bits overflow a %dx%d image, at most %d",
			fracBits, c.ImageWidth, c.ImageHeight, limit)
	}
	return nil
}

// Tracker is the primary subject state machine.
type Tracker struct {
	cfg   Config
	focus geometry.Point

	candidates []geometry.Box
	// merged is the working list of Update; it holds one more box than the
	// candidates when the previous subject was not detected.
	merged []geometry.Box

	available     bool
	changed       bool
	box           geometry.Box
	detectionSize geometry.Dim
	// subjectIndex is the position of the subject among the stored
	// candidates, or len(candidates) when it is not one of them.
	subjectIndex int

	zero     fp.Scalar
	minusOne fp.Scalar
}

// New returns a tracker holding no subject.
//
// Arguments:
//   - cfg: The tracker configuration.
//
// Returns:
//   - *Tracker: The tracker, with its changed flag set.
//   - error: ErrInvalidConfig when cfg does not validate.
//
// @example
// t, err := tracker.New(tracker.DefaultSettings().Config(10))
// err = t.StoreCandidates(boxes)
// t.Update()
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fracBits := cfg.FracBits()
	image := geometry.IntBox(0, 0, cfg.ImageWidth, cfg.ImageHeight, fracBits)

	t := &Tracker{
		cfg:        cfg,
		focus:      image.Center(),
		candidates: make([]geometry.Box, 0, cfg.MaxCandidates),
		merged:     make([]geometry.Box, 0, cfg.MaxCandidates+1),
		zero:       fp.FromInt(0, fracBits),
		minusOne:   fp.FromInt(-1, fracBits),
	}
	t.Reset()
	return t, nil
}

// Config returns the configuration of the tracker.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Reset forgets the subject and raises the changed flag.
func (t *Tracker) Reset() {
	t.subjectIndex = len(t.candidates)
	t.changed = true
	t.available = false
	t.detectionSize = geometry.Dim{Width: t.minusOne, Height: t.minusOne}
	t.box = geometry.ZeroBox(t.cfg.FracBits())
}

// Exists reports whether a subject is held.
func (t *Tracker) Exists() bool {
	return t.available
}

// Box returns the subject box, or the zero box when no subject is held.
func (t *Tracker) Box() geometry.Box {
	return t.box
}

// UpdateBox replaces the subject box, typically with a tighter box derived
// from landmarks. It does nothing when no subject is held.
func (t *Tracker) UpdateBox(b geometry.Box) {
	if t.available {
		t.box = b
	}
}

// DetectionSize returns the size of the detection last associated with the
// subject. It returns false when the size is unset.
func (t *Tracker) DetectionSize() (geometry.Dim, bool) {
	if fp.Lt(t.detectionSize.Width, t.zero) {
		return geometry.Dim{}, false
	}
	return t.detectionSize, true
}

// SubjectIndex returns the position of the subject among the stored
// candidates. It returns len(candidates) and false when the subject is not
// one of them.
func (t *Tracker) SubjectIndex() (int, bool) {
	return t.subjectIndex, t.subjectIndex < len(t.candidates)
}

// StoreCandidates replaces the candidate list used by the next Update.
func (t *Tracker) StoreCandidates(boxes []geometry.Box) error {
	if len(boxes) > t.cfg.MaxCandidates {
		return errors.Wrapf(ErrTooManyCandidates, "%d / %d", len(boxes), t.cfg.MaxCandidates)
	}
	t.candidates = append(t.candidates[:0], boxes...)
	return nil
}

// Update selects the subject for the stored candidates.
//
// The previous subject, rescaled to its detection size, is looked up among
// the candidates and appended when it was not detected. The selection then
// starts from it. A frame without candidates drops the subject.
//
// The changed flag is overwritten, not accumulated: it is raised when the
// subject appears, disappears or switches to another candidate.
func (t *Tracker) Update() {
	held := t.available
	merged, previous := t.merge()
	n := len(merged)

	selected := Select(merged, previous, t.cfg.PreferenceCoef, t.cfg.SimilarityRatio, t.focus)

	switch {
	case held && selected < n:
		t.changed = previous != selected
	case !held && selected == n:
		t.changed = false
	default:
		t.changed = true
	}

	if t.changed {
		if selected == n {
			t.Reset()
		} else {
			t.box = merged[selected]
		}
	}

	if selected < n {
		t.detectionSize = merged[selected].Dim()
	}

	t.available = selected < n

	if selected < len(t.candidates) {
		t.subjectIndex = selected
	} else {
		t.subjectIndex = len(t.candidates)
	}
}

// merge fills the working list and returns it with the position of the
// previous subject in it, or its length when there is none. The subject is
// only carried over into frames with at least one candidate, so an empty
// frame drops it.
func (t *Tracker) merge() ([]geometry.Box, int) {
	t.merged = append(t.merged[:0], t.candidates...)
	if !t.available || len(t.candidates) == 0 {
		return t.merged, len(t.merged)
	}

	scaled := NormalizeToDetectionScale(t.box, t.detectionSize)
	match := geometry.MatchBox(t.merged, scaled, t.cfg.IoUThreshold)
	if match == len(t.merged) {
		t.merged = append(t.merged, scaled)
	}
	return t.merged, match
}

// ChangedSinceLastQuery returns the changed flag and clears it.
func (t *Tracker) ChangedSinceLastQuery() bool {
	changed := t.changed
	t.changed = false
	return changed
}

// NormalizeToDetectionScale returns a box of the given size sharing the
// center of b. A negative width means the size is unknown and b is returned
// unchanged.
func NormalizeToDetectionScale(b geometry.Box, size geometry.Dim) geometry.Box {
	if size.Width.IsNegative() {
		return b
	}
	return geometry.CenteredOn(b.Center(), size)
}

// Select returns the index of the best subject among boxes.
//
// The search starts from current, or from 0 when current is out of range.
// A challenger replaces the best box so far when its area is within ratio of
// the best area multiplied by preference and it is closer to focus than the
// best distance divided by preference, or when its area exceeds that favored
// area by more than ratio.
//
// Arguments:
//   - boxes: The candidates. Boxes must have a non-zero area.
//   - current: The index of the incumbent.
//   - preference: The incumbent bias, greater than 1 to favor it.
//   - ratio: The relative area difference under which sizes are similar.
//   - focus: The point distances are measured from.
//
// Returns:
//   - int: The selected index, or len(boxes) when boxes is empty.
func Select(boxes []geometry.Box, current int, preference, ratio fp.Scalar, focus geometry.Point) int {
	if len(boxes) == 0 {
		return 0
	}

	best := current
	if best < 0 || best >= len(boxes) {
		best = 0
	}
	bestArea := boxes[best].Area()
	bestDist := geometry.NewVector(boxes[best].Center(), focus).Norm()

	for i, b := range boxes {
		if i == best {
			continue
		}

		area := b.Area()
		dist := geometry.NewVector(b.Center(), focus).Norm()

		favoredArea := fp.Mul(bestArea, preference)
		favoredDist := fp.Div(bestDist, preference)
		relative := fp.Div(fp.Sub(area, favoredArea), favoredArea)

		similar := fp.Lt(fp.Abs(relative), ratio)
		closer := fp.Lt(dist, favoredDist)
		bigger := fp.Gt(relative, ratio)

		if (similar && closer) || bigger {
			best = i
			bestArea = area
			bestDist = dist
		}
	}
	return best
}
