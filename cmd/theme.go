package cmd

import (
	"io"
	"log/slog"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	darkmode "github.com/thiagokokada/dark-mode-go"

	"github.com/thiagokokada/gitrails/internal/config"
)

var detectDarkMode = darkmode.IsDarkMode

// railColors cycle by rail index, like git log --graph.
var railColors = []lipgloss.AdaptiveColor{
	{Light: "#AF0000", Dark: "#FF5F5F"},
	{Light: "#008700", Dark: "#00FF87"},
	{Light: "#AF8700", Dark: "#FFD700"},
	{Light: "#0087AF", Dark: "#00D7FF"},
	{Light: "#8700AF", Dark: "#D787FF"},
	{Light: "#005F87", Dark: "#5FAFD7"},
}

type theme struct {
	color    bool
	dark     bool
	renderer *lipgloss.Renderer
}

func newTheme(mode config.Color, w io.Writer) theme {
	r := lipgloss.NewRenderer(w)
	if (mode == config.ColorLight || mode == config.ColorDark) && r.ColorProfile() == termenv.Ascii {
		// an explicit palette forces colour, even when w is not a terminal
		r.SetColorProfile(termenv.ANSI256)
	}
	t := theme{renderer: r, color: mode != config.ColorNever && r.ColorProfile() != termenv.Ascii}
	switch mode {
	case config.ColorDark:
		t.dark = true
	case config.ColorAuto:
		if t.color && detectDarkMode != nil {
			if dark, err := detectDarkMode(); err == nil {
				t.dark = dark
			} else {
				slog.Debug("detect dark-mode", slog.Any("error", err))
			}
		}
	}
	r.SetHasDarkBackground(t.dark)
	return t
}

func (t theme) rail(i int, s string) string {
	if !t.color {
		return s
	}
	return t.renderer.NewStyle().Foreground(railColors[i%len(railColors)]).Render(s)
}

func (t theme) commit(s string) string {
	if !t.color {
		return s
	}
	return t.renderer.NewStyle().Bold(true).Render(s)
}

func (t theme) id(s string) string {
	if !t.color {
		return s
	}
	return t.renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}).Render(s)
}

func (t theme) label(s string) string {
	if !t.color {
		return s
	}
	return t.renderer.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}).Render(s)
}

func (t theme) muted(s string) string {
	if !t.color {
		return s
	}
	return t.renderer.NewStyle().Faint(true).Render(s)
}

// chromaStyle returns the highlighting style for the palette, or nil when
// output is not coloured.
func (t theme) chromaStyle() *chroma.Style {
	if !t.color {
		return nil
	}
	name := "github"
	if t.dark {
		name = "github-dark"
	}
	if st := styles.Get(name); st != nil {
		return st
	}
	return styles.Fallback
}
