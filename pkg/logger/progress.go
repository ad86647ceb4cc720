package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress receives per-item notifications from a long-running loop such as
// the image batch.
type Progress interface {
	Start(total int)
	Step(item string)
	Finish()
}

// NopProgress ignores all notifications
type NopProgress struct{}

func (NopProgress) Start(int)   {}
func (NopProgress) Step(string) {}
func (NopProgress) Finish()     {}

// ProgressTracker logs progress at a fixed interval
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int
	current     int
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// NewProgressTracker creates a log-based progress tracker
func NewProgressTracker(log Logger, operation string, interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ProgressTracker{
		logger:      OrGlobal(log, "progress"),
		operation:   operation,
		logInterval: interval,
	}
}

// Start resets the counters for a new run of total items
func (p *ProgressTracker) Start(total int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.total = total
	p.current = 0
	p.startTime = time.Now()
	p.lastLogTime = p.startTime

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"total":     total,
	}).Info("Starting operation")
}

// Step counts one finished item
func (p *ProgressTracker) Step(item string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	now := time.Now()
	if now.Sub(p.lastLogTime) < p.logInterval && p.current < p.total {
		return
	}
	p.lastLogTime = now

	fields := Fields{
		"operation": p.operation,
		"processed": p.current,
		"item":      item,
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}
	p.logger.WithFields(fields).Info("Progress update")
}

// Finish logs final statistics
func (p *ProgressTracker) Finish() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"total":     p.total,
		"processed": p.current,
		"duration":  time.Since(p.startTime).Round(time.Millisecond).String(),
	}).Info("Operation completed")
}

// Current returns the number of steps seen since Start
func (p *ProgressTracker) Current() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current
}

// BarProgress renders a terminal progress bar
type BarProgress struct {
	out         io.Writer
	description string
	bar         *progressbar.ProgressBar
}

// NewBarProgress creates a progress bar writing to out
func NewBarProgress(out io.Writer, description string) *BarProgress {
	return &BarProgress{out: out, description: description}
}

func (b *BarProgress) Start(total int) {
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionSetDescription(b.description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (b *BarProgress) Step(item string) {
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("%s %s", b.description, item))
	_ = b.bar.Add(1)
}

func (b *BarProgress) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}
