package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the console
type ColorScheme struct {
	Title    *color.Color
	Heading  *color.Color
	Value    *color.Color
	Progress *color.Color
	Phase    *color.Color
	Latency  *color.Color
	Dim      *color.Color
	Success  *color.Color
	Warn     *color.Color
	Error    *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:    color.New(color.FgCyan),
		Heading:  color.New(color.Bold),
		Value:    color.New(color.FgCyan),
		Progress: color.New(color.FgGreen),
		Phase:    color.New(color.FgMagenta),
		Latency:  color.New(color.FgBlue),
		Dim:      color.New(color.Faint),
		Success:  color.New(color.FgGreen),
		Warn:     color.New(color.FgYellow),
		Error:    color.New(color.FgRed),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// forceColors enables every color even when stdout is not a terminal.
func (s *ColorScheme) forceColors() {
	for _, c := range s.all() {
		c.EnableColor()
	}
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Heading, s.Value, s.Progress, s.Phase,
		s.Latency, s.Dim, s.Success, s.Warn, s.Error,
	}
}

// rate picks Success, Warn or Error for a failure rate.
func (s *ColorScheme) rate(failureRate float64) *color.Color {
	switch {
	case failureRate > 0.05:
		return s.Error
	case failureRate > 0.01:
		return s.Warn
	default:
		return s.Success
	}
}

// SuccessIcon returns a checkmark symbol with appropriate color
func (s *ColorScheme) SuccessIcon() string {
	return s.Success.Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func (s *ColorScheme) ErrorIcon() string {
	return s.Error.Sprint("✗")
}
