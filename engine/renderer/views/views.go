// Package views holds the concrete renderers of the engine, pushed onto the
// renderer manager in the order they record each frame.
package views

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
)

/**
 * DefaultRenderers returns the engine renderers in recording order. The
 * ray tracing renderer is left out on devices without ray tracing.
 */
func DefaultRenderers(b *renderer.Backend) []renderer.Pass {
	passes := []renderer.Pass{
		NewPreRenderer(b),
		NewBasePassRenderer(b),
	}
	rt, err := NewRayTracingRenderer(b)
	if err != nil {
		core.LogWarn("%s", err)
	} else {
		passes = append(passes, rt)
	}
	return append(passes,
		NewParticleRenderer(b),
		NewSlateRenderer(b),
	)
}

// PushDefault pushes DefaultRenderers onto the manager of b.
func PushDefault(b *renderer.Backend) error {
	for _, p := range DefaultRenderers(b) {
		if err := b.Manager.Push(p); err != nil {
			return errors.Wrapf(err, "push %s", p.Base().Name())
		}
	}
	return nil
}
