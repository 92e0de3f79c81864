package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mitchellh/colorstring"

	"github.com/conneroisu/sitepipe/internal/errors"
)

// Notifier prints short, colored status lines for the watch loop. These are
// the user-visible notifications; structured detail goes to the Logger.
type Notifier struct {
	out      io.Writer
	colorize colorstring.Colorize
	mu       sync.Mutex
	now      func() time.Time
}

// NewNotifier creates a notifier writing to out. Colors are stripped when
// color is false.
func NewNotifier(out io.Writer, color bool) *Notifier {
	if out == nil {
		out = os.Stdout
	}

	return &Notifier{
		out: out,
		colorize: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !color,
			Reset:   true,
		},
		now: time.Now,
	}
}

// Success reports a finished rebuild.
func (n *Notifier) Success(task string, d time.Duration) {
	n.print("[green]✓[reset] %s [dark_gray](%s)", task, d.Round(time.Millisecond))
}

// Failure reports a failed rebuild. The watch loop keeps running.
func (n *Notifier) Failure(task string, err error) {
	n.print("[red]✗ %s failed:[reset] %v", task, err)
}

// Reload reports a live-reload push to connected browsers.
func (n *Notifier) Reload(mode string, clients int) {
	n.print("[cyan]↻[reset] %s reload sent to %d client(s)", mode, clients)
}

// NotifyError reports a pipeline error with its code.
func (n *Notifier) NotifyError(_ context.Context, err *errors.PipelineError) error {
	n.print("[red]✗ %s[reset] %s", err.Code, err.Message)
	return nil
}

// Info prints a neutral line.
func (n *Notifier) Info(format string, args ...interface{}) {
	n.print("[blue]•[reset] "+format, args...)
}

func (n *Notifier) print(format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	stamp := n.now().Format("15:04:05")
	line := n.colorize.Color(fmt.Sprintf("[dark_gray][%s][reset] ", stamp) + format)
	fmt.Fprintf(n.out, line+"\n", args...)
}
