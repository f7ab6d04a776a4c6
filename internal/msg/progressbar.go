package msg

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar counts finished jobs out of a known total. Step is safe to
// call from concurrent jobs.
type ProgressBar struct {
	Total  int
	Indent int
	Width  int
	W      io.Writer

	mu         sync.Mutex
	current    int
	start      time.Time
	lastPrint  time.Time
	throbIndex int
}

var throbbers = []rune{'|', '/', '-', '\\'}

func NewProgressBar(total, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total:  total,
		Indent: indent,
		Width:  30,
		W:      w,
		start:  time.Now(),
	}
}

// Step records one finished job labelled label (e.g. "CC main.c")
func (pb *ProgressBar) Step(label string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.current++
	if pb.current >= pb.Total || time.Since(pb.lastPrint) > 40*time.Millisecond {
		pb.print(label, false)
		pb.lastPrint = time.Now()
	}
}

func (pb *ProgressBar) Current() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.current
}

func (pb *ProgressBar) print(label string, finish bool) {
	percent := float64(pb.current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(pb.Width)), pb.Width)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", pb.Width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	// \x1b[K clears what's left of a longer previous label
	fmt.Fprintf(pb.W, "\r%s[%s] %d/%d %c %s\x1b[K",
		strings.Repeat(" ", pb.Indent),
		bar,
		pb.current,
		pb.Total,
		throb,
		label,
	)
}

// Finish draws the completed bar with the elapsed time and ends the line
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.print(fmt.Sprintf("done in %s", time.Since(pb.start).Round(time.Millisecond)), true)
	fmt.Fprintln(pb.W)
}
