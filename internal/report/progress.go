package report

import (
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

const barTemplate = `{{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{string . "file"}}`

// Progress turns comparator progress callbacks into either a live bar on a
// terminal or one log line per file.
type Progress struct {
	mu     sync.Mutex
	w      io.Writer
	live   bool
	logger csvdelta.Logger
	bar    *pb.ProgressBar
}

// NewProgress draws a bar on w when live is true; otherwise it logs through logger.
func NewProgress(w io.Writer, live bool, logger csvdelta.Logger) *Progress {
	return &Progress{w: w, live: live, logger: logger}
}

// Func returns the sink to hand to the comparator.
func (p *Progress) Func() csvdelta.ProgressFunc {
	return p.update
}

func (p *Progress) update(processed, total int, current string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.live {
		if current != "" && p.logger != nil {
			p.logger.Info("[%d/%d] %s", processed, total, current)
		}
		return
	}

	if p.bar == nil {
		p.bar = pb.ProgressBarTemplate(barTemplate).New(total)
		p.bar.SetWriter(p.w)
		p.bar.Start()
	}
	p.bar.SetTotal(int64(total))
	p.bar.SetCurrent(int64(processed))
	p.bar.Set("file", current)
}

// Finish stops the bar so the report can be printed below it.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
