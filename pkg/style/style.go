// Package style renders terminal output for the solvx CLI: ANSI colours,
// status markers and grouped cobra help.
package style

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

// ANSI color codes
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"

	Red     = "\033[0;31m"
	Green   = "\033[0;32m"
	Yellow  = "\033[1;33m"
	Blue    = "\033[0;34m"
	Magenta = "\033[0;35m"
	Cyan    = "\033[0;36m"
	Gray    = "\033[90m"
)

// NoColor disables colors. It is set when stdout is not a terminal or
// NO_COLOR / SOLVX_NO_COLOR is set.
var NoColor = false

func init() {
	NoColor = colorDisabled(os.Getenv, os.Stdout)
}

func colorDisabled(getenv func(string) string, out *os.File) bool {
	if getenv("NO_COLOR") != "" || getenv("SOLVX_NO_COLOR") != "" {
		return true
	}
	if fi, err := out.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		return true
	}
	return false
}

// C wraps text with color, respecting NoColor setting
func C(color, text string) string {
	if NoColor {
		return text
	}
	return color + text + Reset
}

// B makes text bold
func B(text string) string {
	if NoColor {
		return text
	}
	return Bold + text + Reset
}

// Check is a green tick or a red cross.
func Check(ok bool) string {
	if ok {
		return C(Green, "✓")
	}
	return C(Red, "✗")
}

// Warn is the yellow warning marker.
func Warn() string { return C(Yellow, "⚠") }

// Step is the blue marker that opens a section of output.
func Step() string { return C(Blue, "→") }

// Muted renders secondary text.
func Muted(text string) string { return C(Gray, text) }

// Command groups shown in help output.
const (
	GroupIngest = "ingest"
	GroupSearch = "search"
	GroupSetup  = "setup"
)

// SetupHelp installs the styled help and usage templates on cmd and
// registers the command groups.
func SetupHelp(cmd *cobra.Command) {
	cobra.AddTemplateFunc("styleHeading", styleHeading)
	cobra.AddTemplateFunc("styleCommand", styleCommand)
	cobra.AddTemplateFunc("rpadStyled", rpadStyled)

	cmd.AddGroup(
		&cobra.Group{ID: GroupIngest, Title: "Ingestion:"},
		&cobra.Group{ID: GroupSearch, Title: "Classification and search:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup:"},
	)
	cmd.SetHelpCommandGroupID(GroupSetup)
	cmd.SetCompletionCommandGroupID(GroupSetup)

	cmd.SetUsageTemplate(usageTemplate)
	cmd.SetHelpTemplate(helpTemplate)
}

func styleHeading(s string) string {
	if NoColor {
		return s
	}
	return Bold + Magenta + s + Reset
}

func styleCommand(s string) string {
	if NoColor {
		return s
	}
	return Cyan + s + Reset
}

// rpadStyled pads by the visible width of s, not the escaped length.
func rpadStyled(s string, padding int) string {
	styled := styleCommand(s)
	if n := padding - utf8.RuneCountInString(s); n > 0 {
		return styled + strings.Repeat(" ", n)
	}
	return styled
}

const commandsBlock = `{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}
{{ styleHeading "Commands:" }}{{range $cmds}}{{if .IsAvailableCommand}}
  {{rpadStyled .Name .NamePadding }}  {{.Short}}{{end}}{{end}}
{{else}}{{range $group := .Groups}}
{{ styleHeading $group.Title }}{{range $cmds}}{{if (and (eq .GroupID $group.ID) .IsAvailableCommand)}}
  {{rpadStyled .Name .NamePadding }}  {{.Short}}{{end}}{{end}}
{{end}}{{if not .AllChildCommandsHaveGroup}}
{{ styleHeading "Other commands:" }}{{range $cmds}}{{if (and (eq .GroupID "") .IsAvailableCommand)}}
  {{rpadStyled .Name .NamePadding }}  {{.Short}}{{end}}{{end}}
{{end}}{{end}}{{end}}`

const usageTemplate = `{{ styleHeading "Usage:" }}
  {{ styleCommand .UseLine }}{{if .HasAvailableSubCommands}} [command]{{end}}
` + commandsBlock + `{{if .HasAvailableSubCommands}}
Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

const helpTemplate = `{{if .Long}}{{.Long}}

{{else if .Short}}{{.Short}}

{{end}}{{ styleHeading "Usage:" }}
  {{ styleCommand .UseLine }}{{if .HasAvailableSubCommands}} [command]{{end}}
{{if .HasExample}}
{{ styleHeading "Examples:" }}
{{.Example}}
{{end}}` + commandsBlock + `{{if .HasAvailableLocalFlags}}
{{ styleHeading "Options:" }}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableInheritedFlags}}
{{ styleHeading "Global options:" }}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableSubCommands}}
Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`
