package cli

import "github.com/fatih/color"

var (
	colorHeader   = color.New(color.Bold)
	colorOK       = color.New(color.FgGreen)
	colorConflict = color.New(color.FgRed, color.Bold)
	colorMuted    = color.New(color.FgWhite, color.Faint)
	colorMakeup   = color.New(color.FgYellow)
)

// DisableColor turns off ANSI colors for every command.
func DisableColor() {
	color.NoColor = true
}
