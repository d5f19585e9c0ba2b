// Package ui provides terminal styling for chatsync command output.
package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	colorAccent = lipgloss.Color("#06B6D4")
	colorPass   = lipgloss.Color("#10B981")
	colorWarn   = lipgloss.Color("#F59E0B")
	colorFail   = lipgloss.Color("#EF4444")
	colorMuted  = lipgloss.Color("#6B7280")

	accentStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

var profileOnce sync.Once

// ShouldUseColor reports whether stdout should receive ANSI colors.
// NO_COLOR (any non-empty value) and non-TTY output both disable color.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ColorProfile returns the termenv profile used for rendering.
func ColorProfile() termenv.Profile {
	if !ShouldUseColor() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

func initProfile() {
	profileOnce.Do(func() {
		lipgloss.SetColorProfile(ColorProfile())
	})
}

// DisableColor forces plain output for the rest of the process.
func DisableColor() {
	profileOnce.Do(func() {})
	lipgloss.SetColorProfile(termenv.Ascii)
}

// RenderAccent renders informational markers and headings.
func RenderAccent(s string) string {
	initProfile()
	return accentStyle.Render(s)
}

// RenderPass renders success markers.
func RenderPass(s string) string {
	initProfile()
	return passStyle.Render(s)
}

// RenderWarn renders warnings.
func RenderWarn(s string) string {
	initProfile()
	return warnStyle.Render(s)
}

// RenderFail renders errors and alerts.
func RenderFail(s string) string {
	initProfile()
	return failStyle.Render(s)
}

// RenderMuted renders secondary detail such as ids and timestamps.
func RenderMuted(s string) string {
	initProfile()
	return mutedStyle.Render(s)
}
