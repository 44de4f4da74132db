package renderer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
)

/**
 * Describe writes the layout of every renderer of m in frame order: its
 * attachments, its subpasses with their references and the number of
 * dependencies of the pass.
 */
func (m *RendererManager) Describe(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range m.snapshot() {
		r := p.Base()
		rp := r.RenderPass()
		if rp == nil || rp.Draft == nil {
			fmt.Fprintf(tw, "%s\t(no render pass)\n", r.Name())
			continue
		}
		draft := rp.Draft
		fmt.Fprintf(tw, "%s\tpass %s\t%dx%d\tswapchain %t\tdependencies %d\n",
			r.Name(), draft.Name, rp.Extent.Width, rp.Extent.Height, draft.UsesSwapChain(), len(draft.Dependencies()))
		for _, a := range draft.Attachments() {
			fmt.Fprintf(tw, "  attachment %d\t%s\tformat %d\tlayers %d\n", a.Index, a.Name, a.Description.Format, a.Layers)
		}
		for _, sp := range draft.SubPasses() {
			colors := make([]uint32, 0, len(sp.ColorReferences()))
			for _, ref := range sp.ColorReferences() {
				colors = append(colors, ref.Attachment)
			}
			depth := "-"
			if ref, ok := sp.DepthReference(); ok {
				depth = fmt.Sprint(ref.Attachment)
			}
			push := uint32(0)
			if pc, ok := sp.PushConstant(); ok {
				push = pc.Size
			}
			fmt.Fprintf(tw, "  subpass %d\t%s\tcolors %v\tdepth %s\tpush constant %d\tsets %d\n",
				sp.Index, sp.Name, colors, depth, push, len(r.PipelineSets(sp.Name, nil)))
		}
	}
	return errors.Wrap(tw.Flush(), "describe")
}
