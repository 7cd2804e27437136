package cli

import (
	"io"

	"github.com/cheggaaa/pb/v3"

	"github.com/Ning0612/ipmtool/internal/logger"
	"github.com/Ning0612/ipmtool/internal/progress"
)

const barTemplate = `{{ string . "prefix" }} {{ counters . }} {{ bar . "[" "=" ">" " " "]" }} {{ percent . }}`

// reporter is a progress.Reporter that can be finished
type reporter interface {
	progress.Reporter
	Finish()
}

type nullReporter struct{ progress.NullReporter }

func (nullReporter) Finish() {}

// newProgress returns a bar on a terminal and a no-op reporter otherwise
func (a *App) newProgress() reporter {
	if a.flags.JSON || !isTerminal(a.errOut) {
		return nullReporter{}
	}
	return newProgressBar(a.errOut)
}

// progressBar draws extraction progress from a buffered channel so the
// extractor never waits on terminal output. Dropped updates only delay the
// bar; every update carries the completed count.
type progressBar struct {
	*progress.ChannelReporter
	w    io.Writer
	done chan struct{}
}

func newProgressBar(w io.Writer) *progressBar {
	p := &progressBar{
		ChannelReporter: progress.NewChannelReporter(progress.DefaultBufferSize),
		w:               w,
		done:            make(chan struct{}),
	}
	go p.draw()
	return p
}

func (p *progressBar) draw() {
	defer close(p.done)

	var bar *pb.ProgressBar
	for u := range p.Updates() {
		if bar == nil {
			bar = pb.New(u.ArchivesTotal).
				SetWriter(p.w).
				SetTemplateString(barTemplate).
				Set("prefix", "Extracting").
				Start()
		}
		switch u.Type {
		case progress.UpdateArchiveStart:
			bar.Set("prefix", u.ModID)
		case progress.UpdateArchiveDone, progress.UpdateArchiveError:
			bar.SetCurrent(int64(u.ArchivesCompleted))
		}
	}
	if bar != nil {
		bar.Finish()
	}
}

// Finish closes the channel and waits for the bar to drain.
// Call it once, after the run returned.
func (p *progressBar) Finish() {
	p.Close()
	<-p.done
	if n := p.Dropped(); n > 0 {
		logger.Get().Debug("progress updates dropped", "count", n)
	}
}
