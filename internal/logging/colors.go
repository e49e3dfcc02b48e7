package logging

import "github.com/fatih/color"

// Colors for each level. fatih/color disables itself when the process is not
// attached to a terminal, so plain text ends up in files and pipes.
var (
	stampColor = color.New(color.FgWhite)

	levelColors = map[Level]*color.Color{
		Error: color.New(color.FgRed, color.Bold),
		Warn:  color.New(color.FgRed),
		Info:  color.New(color.Reset),
		Debug: color.New(color.FgGreen),
	}
	traceColor = color.New(color.FgYellow)
)

func (l Level) color() *color.Color {
	if c, ok := levelColors[l]; ok {
		return c
	}
	return traceColor
}
