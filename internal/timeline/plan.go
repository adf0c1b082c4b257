package timeline

import (
	"fmt"
	"time"

	"github.com/kikiluvv/quotereel/internal/reel"
)

// Transition window bounds.
const (
	MinTransition = 100 * time.Millisecond
	MaxTransition = 500 * time.Millisecond
)

// Step says what one output frame shows.
type Step struct {
	Frame    int
	Index    int     // image on screen
	Next     int     // image blended in during the window
	InWindow bool    // inside the trailing transition window
	Progress float64 // window progress in [0,1), 0 outside the window
}

// Plan is the frame schedule of an image sequence.
type Plan struct {
	ImageCount       int
	DurationPerImage time.Duration
	FramesPerImage   int
	TransitionFrames int
	TotalFrames      int
}

// TransitionWindow is the blend span at the tail of each image:
// 30% of the display time, kept within [100ms, 500ms].
func TransitionWindow(perImage time.Duration) time.Duration {
	w := perImage * 3 / 10
	return min(MaxTransition, max(MinTransition, w))
}

// NewPlan builds the schedule for count images shown perImage each.
func NewPlan(count int, perImage time.Duration) (Plan, error) {
	if count <= 0 {
		return Plan{}, fmt.Errorf("image count must be positive, got %d", count)
	}
	if perImage <= 0 {
		return Plan{}, fmt.Errorf("duration per image must be positive, got %v", perImage)
	}

	fpi := max(1, framesIn(perImage))
	tf := min(fpi, max(1, framesIn(TransitionWindow(perImage))))
	return Plan{
		ImageCount:       count,
		DurationPerImage: perImage,
		FramesPerImage:   fpi,
		TransitionFrames: tf,
		TotalFrames:      TotalFrames(time.Duration(count) * perImage),
	}, nil
}

// TotalDuration is ImageCount * DurationPerImage.
func (p Plan) TotalDuration() time.Duration {
	return time.Duration(p.ImageCount) * p.DurationPerImage
}

// At resolves frame f.
func (p Plan) At(f int) Step {
	idx := (f / p.FramesPerImage) % p.ImageCount
	inImage := f % p.FramesPerImage
	start := p.FramesPerImage - p.TransitionFrames

	s := Step{Frame: f, Index: idx, Next: (idx + 1) % p.ImageCount}
	if inImage >= start {
		s.InWindow = true
		s.Progress = float64(inImage-start) / float64(p.TransitionFrames)
	}
	return s
}

// AtTime resolves a continuous timestamp with the same rules as At. Times
// past the end wrap around, which suits looping previews.
func (p Plan) AtTime(t time.Duration) Step {
	if t < 0 {
		t = 0
	}
	d := p.DurationPerImage
	idx := int(t/d) % p.ImageCount
	into := t % d
	window := TransitionWindow(d)
	start := d - window

	s := Step{Frame: int(t / reel.FrameInterval), Index: idx, Next: (idx + 1) % p.ImageCount}
	if into >= start {
		s.InWindow = true
		s.Progress = float64(into-start) / float64(window)
	}
	return s
}

// VideoPlan is the frame schedule of a single video source.
type VideoPlan struct {
	Duration    time.Duration
	TotalFrames int
}

// NewVideoPlan builds the schedule for a video of duration d.
func NewVideoPlan(d time.Duration) (VideoPlan, error) {
	if d <= 0 {
		return VideoPlan{}, fmt.Errorf("video duration must be positive, got %v", d)
	}
	return VideoPlan{Duration: d, TotalFrames: TotalFrames(d)}, nil
}

// Timestamp is the source time of frame f.
func (p VideoPlan) Timestamp(f int) time.Duration {
	return time.Duration(f) * time.Second / reel.FrameRate
}

// TotalFrames is ceil(d * FrameRate).
func TotalFrames(d time.Duration) int {
	n := d * reel.FrameRate
	return int((n + time.Second - 1) / time.Second)
}

// framesIn rounds d * FrameRate to the nearest frame.
func framesIn(d time.Duration) int {
	return int((d*reel.FrameRate + time.Second/2) / time.Second)
}
