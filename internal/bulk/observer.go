package bulk

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/page"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/utils"
)

const barTemplate = `{{string . "status"}} {{counters . }} {{bar . }} {{string . "pct"}} ETA {{string . "eta"}}`

// BarObserver renders a run on a terminal progress bar
type BarObserver struct {
	once    sync.Once
	bar     *pb.ProgressBar
	out     io.Writer
	strings page.Strings
}

func NewBarObserver(out io.Writer, s page.Strings) *BarObserver {
	return &BarObserver{out: out, strings: s}
}

func (b *BarObserver) start(total int64) {
	b.once.Do(func() {
		b.bar = pb.New64(total)
		b.bar.SetWriter(b.out)
		b.bar.SetWidth(100)
		b.bar.SetTemplateString(barTemplate)
		b.bar.Set("status", b.strings.Processing)
		b.bar.Set("pct", "0%")
		b.bar.Set("eta", "-")
		b.bar.Start()
	})
}

func (b *BarObserver) OnProgress(s State) {
	b.start(s.Total)
	b.bar.Set("pct", fmt.Sprintf("%d%%", s.Percentage))
	b.bar.Set("eta", utils.FormatDuration(s.ETA))
	b.bar.SetCurrent(s.Processed)
}

func (b *BarObserver) OnFinish(r Result) {
	b.start(r.Total)
	b.bar.Set("status", b.strings.For(r.Status))
	b.bar.Set("pct", fmt.Sprintf("%d%%", r.Percentage))
	b.bar.Set("eta", "-")
	b.bar.SetCurrent(r.Processed)
	b.bar.Finish()
}

// LogObserver writes one log entry per batch
type LogObserver struct {
	log logrus.FieldLogger
}

func NewLogObserver(log logrus.FieldLogger) *LogObserver {
	return &LogObserver{log: log}
}

func (l *LogObserver) OnProgress(s State) {
	l.log.WithFields(logrus.Fields{
		"run_id":     s.RunID,
		"batch":      s.Batches,
		"processed":  s.Processed,
		"total":      s.Total,
		"percentage": s.Percentage,
		"eta":        s.ETA.String(),
	}).Info("Bulk progress")
}

func (l *LogObserver) OnFinish(r Result) {
	entry := l.log.WithFields(logrus.Fields{
		"run_id":    r.RunID,
		"status":    r.Status,
		"processed": r.Processed,
		"failed":    r.Failed,
	})
	if r.Err != nil {
		entry.WithError(r.Err).Error("Bulk run failed")
		return
	}
	entry.Info("Bulk run finished")
}

// PrintResult writes the terminal status line of a run
func PrintResult(w io.Writer, r Result, s page.Strings) {
	var paint func(format string, a ...any) string
	switch r.Status {
	case models.RunStatusCompleted:
		paint = color.New(color.FgGreen, color.Bold).Sprintf
	case models.RunStatusCancelled:
		paint = color.New(color.FgYellow, color.Bold).Sprintf
	default:
		paint = color.New(color.FgRed, color.Bold).Sprintf
	}

	fmt.Fprintf(w, "%s %s of %s images processed (%d%%), %s failed, took %s\n",
		paint("%s", s.For(r.Status)),
		utils.FormatCount(r.Processed),
		utils.FormatCount(r.Total),
		r.Percentage,
		utils.FormatCount(r.Failed),
		utils.FormatDuration(r.Elapsed),
	)
	if r.Err != nil {
		fmt.Fprintf(w, "%s\n", paint("%s", r.Message))
	}
}
