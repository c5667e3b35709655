// Package console is the interactive terminal surface for creating events.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/drewfead/calbot/internal/calendar"
	"github.com/drewfead/calbot/internal/input"
)

// Submitter creates one event.
type Submitter interface {
	Submit(ctx context.Context, req calendar.EventRequest) calendar.Result
}

// Preset holds fields supplied up front as flags. A non-empty field skips
// its prompt. Start and End take a full date-time.
type Preset struct {
	Title       string
	Description string
	Location    string
	Start       string
	End         string
	Repeat      string
}

type styles struct {
	banner  lipgloss.Style
	prompt  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		banner:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		prompt:  r.NewStyle().Foreground(lipgloss.Color("245")),
		success: r.NewStyle().Foreground(lipgloss.Color("46")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

// Console prompts for one event and submits it.
type Console struct {
	in        *bufio.Reader
	out       io.Writer
	parser    *input.Parser
	submitter Submitter
	styles    styles
}

// New builds a console. A *bufio.Reader passed as in is read in place, so
// it can be shared with the console OAuth flow.
func New(in io.Reader, out io.Writer, parser *input.Parser, submitter Submitter) *Console {
	return &Console{
		in:        bufio.NewReader(in),
		out:       out,
		parser:    parser,
		submitter: submitter,
		styles:    newStyles(out),
	}
}

// Run collects the fields, submits and reports. Any parse or validation
// failure aborts before submission; the returned error is what was printed.
func (c *Console) Run(ctx context.Context, preset Preset) error {
	fmt.Fprintln(c.out, c.styles.banner.Render("Create a calendar event"))

	req, err := c.collect(preset)
	if err != nil {
		c.printErr(err)
		return err
	}

	result := c.submitter.Submit(ctx, req)
	if !result.OK() {
		c.printErr(result.Err)
		return result.Err
	}

	fmt.Fprintln(c.out, c.styles.success.Render("Event created: "+result.Link))
	return nil
}

func (c *Console) collect(preset Preset) (calendar.EventRequest, error) {
	var err error
	req := calendar.EventRequest{Recurrence: strings.TrimSpace(preset.Repeat)}

	if req.Title, err = c.field(preset.Title, "Title"); err != nil {
		return req, err
	}
	if req.Description, err = c.field(preset.Description, "Description (optional)"); err != nil {
		return req, err
	}
	if req.Location, err = c.field(preset.Location, "Location (optional)"); err != nil {
		return req, err
	}
	if req.Start, err = c.readTime("start", preset.Start); err != nil {
		return req, err
	}
	if req.End, err = c.readTime("end", preset.End); err != nil {
		return req, err
	}

	return req, req.Validate()
}

func (c *Console) field(preset, label string) (string, error) {
	if preset != "" {
		return strings.TrimSpace(preset), nil
	}
	return c.ask(label)
}

func (c *Console) readTime(field, preset string) (t time.Time, err error) {
	if preset != "" {
		return c.parser.Parse(field, preset)
	}

	date, err := c.ask(fmt.Sprintf("%s date (YYYY-MM-DD)", capitalize(field)))
	if err != nil {
		return t, err
	}
	clock, err := c.ask(fmt.Sprintf("%s time (HH:MM)", capitalize(field)))
	if err != nil {
		return t, err
	}
	return c.parser.ParseDateAndTime(field, date, clock)
}

// ask prints label and reads one line. A closed input with nothing typed
// is an error; a final unterminated line is accepted.
func (c *Console) ask(label string) (string, error) {
	fmt.Fprint(c.out, c.styles.prompt.Render(label+": "))

	line, err := c.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || line == "" {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) printErr(err error) {
	fmt.Fprintln(c.out, c.styles.failure.Render("Error: "+err.Error()))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
