// Package ui renders the chat session to the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"sglang-chat/internal/metrics"
)

const ruleWidth = 70

// CommandHelp is one line of the command list
type CommandHelp struct {
	Name        string
	Description string
}

// Options controls rendering
type Options struct {
	// Markdown renders assistant replies with glamour
	Markdown bool

	// Width is used for word wrapping when Markdown is set
	Width int
}

// Display renders the chat session to a terminal (or any writer)
type Display struct {
	out      io.Writer
	markdown *glamour.TermRenderer

	bold   lipgloss.Style
	blue   lipgloss.Style
	green  lipgloss.Style
	yellow lipgloss.Style
	red    lipgloss.Style
	dimmed lipgloss.Style
}

// NewDisplay creates a display writing to out. Colors are only emitted when
// out is a color-capable terminal.
func NewDisplay(out io.Writer, opts Options) *Display {
	r := lipgloss.NewRenderer(out)

	d := &Display{
		out:    out,
		bold:   r.NewStyle().Bold(true),
		blue:   r.NewStyle().Foreground(lipgloss.Color("12")),
		green:  r.NewStyle().Foreground(lipgloss.Color("10")),
		yellow: r.NewStyle().Foreground(lipgloss.Color("11")),
		red:    r.NewStyle().Foreground(lipgloss.Color("9")),
		dimmed: r.NewStyle().Faint(true),
	}

	if opts.Markdown {
		width := opts.Width
		if width <= 20 {
			width = 80
		}
		// Falls back to plain output if the renderer can't be built
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-10),
		)
		if err == nil {
			d.markdown = renderer
		}
	}

	return d
}

func (d *Display) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

func (d *Display) println(args ...any) {
	fmt.Fprintln(d.out, args...)
}

// PrintRule prints a horizontal rule
func (d *Display) PrintRule() {
	d.println(d.bold.Render(strings.Repeat("=", ruleWidth)))
}

// PrintBanner displays the welcome banner with server address and model
func (d *Display) PrintBanner(address, model string, commands []CommandHelp) {
	d.println()
	d.PrintRule()
	d.println(d.bold.Render("SGLang Interactive Chat"))
	d.PrintRule()
	d.printf("\nServer: %s\n", d.blue.Render(address))
	d.printf("Model:  %s\n", d.blue.Render(model))
	d.println()
	d.PrintCommands(commands)
	d.println()
	d.PrintRule()
	d.println()
}

// PrintCommands prints the static command list
func (d *Display) PrintCommands(commands []CommandHelp) {
	d.println(d.yellow.Render("Commands:"))
	for _, c := range commands {
		d.printf("  %-7s - %s\n", c.Name, c.Description)
	}
}

// PrintPrompt displays the user input prompt
func (d *Display) PrintPrompt() {
	fmt.Fprint(d.out, d.green.Render("You: "))
}

// PrintAssistantReply prints the reply, rendered as markdown when enabled
func (d *Display) PrintAssistantReply(content string) {
	d.printf("\n%s", d.blue.Render("Assistant: "))

	if d.markdown != nil && content != "" {
		rendered, err := d.markdown.Render(content)
		if err == nil {
			d.println()
			d.println(strings.TrimRight(rendered, "\n"))
			return
		}
	}

	d.println(content)
}

// PrintMetrics prints the timing block for one request
func (d *Display) PrintMetrics(m metrics.RequestMetrics) {
	d.printf("\n%s\n", d.yellow.Render("[Metrics]"))
	d.printf("  Time: %.2fs\n", m.Elapsed.Seconds())
	d.printf("  Speed: %.1f tokens/s\n", m.TokensPerSecond())
	if m.Estimated {
		d.printf("  Tokens: %d total (estimated)\n", m.TotalTokens)
	} else {
		d.printf("  Tokens: %d total\n", m.TotalTokens)
	}
	d.println()
}

// PrintModels lists the models served by the endpoint
func (d *Display) PrintModels(models []string) {
	d.println("\nAvailable models:")
	if len(models) == 0 {
		d.println(d.dimmed.Render("  (none reported)"))
	}
	for _, m := range models {
		d.printf("  - %s\n", m)
	}
}

// PrintError displays an error message
func (d *Display) PrintError(err error) {
	d.println(d.red.Render(fmt.Sprintf("✗ Error: %v", err)))
}

// PrintInfo displays an info message
func (d *Display) PrintInfo(msg string) {
	d.println(d.blue.Render("ℹ " + msg))
}

// PrintWarning displays a warning message
func (d *Display) PrintWarning(msg string) {
	d.println(d.yellow.Render("⚠ " + msg))
}

// PrintSuccess displays a success message
func (d *Display) PrintSuccess(msg string) {
	d.println(d.green.Render("✓ " + msg))
}

// PrintFailure displays a failed check without an error value
func (d *Display) PrintFailure(msg string) {
	d.println(d.red.Render("✗ " + msg))
}

// PrintHeading prints a bold section heading
func (d *Display) PrintHeading(msg string) {
	d.println(d.bold.Render(msg))
}

// PrintGoodbye displays the goodbye message
func (d *Display) PrintGoodbye() {
	d.printf("\n%s\n\n", d.blue.Render("Goodbye!"))
}

// Println writes a plain line
func (d *Display) Println(msg string) {
	d.println(msg)
}
