package core

import (
	"time"

	"github.com/loov/hrtime"
)

/**
 * @brief Frame and game time of the render loop. Flush is called once per
 * frame, before the renderers run.
 */
type TimeStep struct {
	start time.Duration
	last  time.Duration
	frame time.Duration
	game  time.Duration
}

func NewTimeStep() *TimeStep {
	now := hrtime.Now()
	return &TimeStep{start: now, last: now}
}

// Flush samples the clock: the frame time becomes the time since the previous flush.
func (t *TimeStep) Flush() {
	now := hrtime.Now()
	t.frame = now - t.last
	t.game = now - t.start
	t.last = now
}

// Advance moves the step forward by a fixed delta, used by tools that replay frames.
func (t *TimeStep) Advance(delta time.Duration) {
	t.frame = delta
	t.game += delta
	t.last += delta
}

// FrameTime is the duration of the last frame.
func (t *TimeStep) FrameTime() time.Duration {
	return t.frame
}

// GameTime is the time elapsed since the step was created.
func (t *TimeStep) GameTime() time.Duration {
	return t.game
}

// Seconds returns the frame and game time in seconds, the form shaders consume.
func (t *TimeStep) Seconds() (frame, game float32) {
	return float32(t.frame.Seconds()), float32(t.game.Seconds())
}
