package cli

import (
	"fmt"

	"github.com/charmbracelet/glamour"

	"github.com/Ning0612/ipmtool/internal/logger"
)

const summaryWidth = 100

// renderSummary prints a markdown run summary, styled on a terminal
func (a *App) renderSummary(markdown string) {
	if markdown == "" {
		return
	}

	out, err := renderMarkdown(markdown, a.flags.NoColor || !isTerminal(a.out))
	if err != nil {
		logger.Get().Debug("markdown rendering failed", "error", err)
		out = markdown
	}
	fmt.Fprint(a.out, out)
}

func renderMarkdown(markdown string, plain bool) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(summaryWidth)}
	if plain {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return renderer.Render(markdown)
}
