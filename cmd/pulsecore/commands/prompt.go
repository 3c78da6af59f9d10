package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var isTerminal = term.IsTerminal

// confirmer asks yes/no questions on a terminal.
type confirmer struct {
	In            io.Reader
	Out           io.Writer
	IsInteractive func() bool
}

func defaultConfirmer() confirmer {
	return confirmer{
		In:  os.Stdin,
		Out: os.Stderr,
		IsInteractive: func() bool {
			return isTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Confirm prints title and message and reads a y/N answer. Without a
// terminal it refuses unless assumeYes is set.
func (c confirmer) Confirm(title, message string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if c.IsInteractive == nil || !c.IsInteractive() {
		return false, fmt.Errorf("%s: confirmation required (use --yes)", title)
	}
	fmt.Fprintf(c.Out, "%s\n%s [y/N]: ", title, message)
	reader := bufio.NewReader(c.In)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
