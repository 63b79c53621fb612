package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const minMarkdownWrap = 24

// markdownRenderer renders task descriptions. The renderer is rebuilt when
// the wrap width changes and the last output is memoized, since View runs
// on every frame.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer

	lastSource string
	lastWidth  int
	lastOutput string
}

// render returns styled terminal text for markdown wrapped at width. It
// falls back to the raw source when glamour fails.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	wrapWidth := max(width, minMarkdownWrap)
	if markdown == r.lastSource && wrapWidth == r.lastWidth {
		return r.lastOutput
	}

	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	out := strings.Trim(rendered, "\n")
	r.lastSource, r.lastWidth, r.lastOutput = markdown, wrapWidth, out
	return out
}
