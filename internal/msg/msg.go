package msg

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Output is where messages go. Tests swap it for a buffer.
var Output io.Writer = color.Output

var exit = os.Exit

func emit(label string, format string, a ...any) {
	fmt.Fprintf(Output, "%s: %s\n", label, fmt.Sprintf(format, a...))
}

func Error(format string, a ...any) {
	emit(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	emit(color.YellowString("warn"), format, a...)
}

func Info(format string, a ...any) {
	emit(color.HiGreenString("info"), format, a...)
}

func Fatal(format string, a ...any) {
	emit(color.RedString("fatal"), format, a...)
	exit(1)
}

// Status prints a right-aligned, highlighted verb followed by a message, e.g. "  Building debug"
func Status(verb, format string, a ...any) {
	fmt.Fprintf(Output, "%s %s\n", color.HiGreenString("%12s", verb), fmt.Sprintf(format, a...))
}

// IndentWriter prefixes every line written through it
type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	buf := make([]byte, 0, len(p)+len(w.Indent))
	for _, c := range p {
		if !w.didIndent {
			buf = append(buf, w.Indent...)
			w.didIndent = true
		}
		buf = append(buf, c)
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	if _, err := w.W.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}
