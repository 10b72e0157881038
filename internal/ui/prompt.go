package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/phx/internal/shared"
	"golang.org/x/term"
)

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Prompter asks the user for input on a terminal. Secrets are read without echo when in is a TTY.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	secret func() ([]byte, error)
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && IsTerminal(f) {
		p.secret = func() ([]byte, error) { return term.ReadPassword(int(f.Fd())) }
	}
	return p
}

// Line prints prompt and reads one trimmed line.
func (p *Prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return strings.TrimSpace(line), nil
}

// Secret prints prompt and reads a line without echoing it.
func (p *Prompter) Secret(prompt string) (string, error) {
	if p.secret == nil {
		return p.Line(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := p.secret()
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Choose lists options and returns the zero-based index picked. An empty answer picks the first.
func (p *Prompter) Choose(prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("%w: nothing to choose from", shared.ErrInvalidInput)
	}
	for i, o := range options {
		fmt.Fprintf(p.out, "  %d: %s\n", i, o)
	}
	answer, err := p.Line(prompt)
	if err != nil {
		return 0, err
	}
	if answer == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 0 || n >= len(options) {
		return 0, fmt.Errorf("%w: %q is not one of 0-%d", shared.ErrInvalidInput, answer, len(options)-1)
	}
	return n, nil
}
