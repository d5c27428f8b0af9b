package commands

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"adoflow/internal/ingest"
)

var phaseLabels = map[ingest.Phase]string{
	ingest.PhaseQuery:     "Querying work items",
	ingest.PhaseDetails:   "Fetching details",
	ingest.PhaseHistory:   "Fetching histories",
	ingest.PhaseNormalize: "Normalizing",
}

// progressRenderer draws ingestion progress on stderr. On a TTY it redraws
// one line in place; piped output gets a line per phase boundary only.
type progressRenderer struct {
	events chan ingest.Event
	tty    bool
	wg     sync.WaitGroup
}

func newProgressRenderer() *progressRenderer {
	return &progressRenderer{
		events: make(chan ingest.Event, 256),
		tty:    isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
}

// Channel returns the channel the ingestion engine writes to.
func (p *progressRenderer) Channel() chan<- ingest.Event { return p.events }

// Start begins consuming events. Stop must be called to flush the last line.
func (p *progressRenderer) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for ev := range p.events {
			p.render(ev)
		}
		if p.tty {
			fmt.Fprintln(os.Stderr)
		}
	}()
}

// Stop closes the event channel and waits for the final redraw.
func (p *progressRenderer) Stop() {
	close(p.events)
	p.wg.Wait()
}

func (p *progressRenderer) render(ev ingest.Event) {
	label := phaseLabels[ev.Phase]
	switch {
	case p.tty && ev.Total > 0:
		fmt.Fprintf(os.Stderr, "\r\033[K%s: %d/%d (%d items)", label, ev.Done, ev.Total, ev.Items)
	case p.tty:
		fmt.Fprintf(os.Stderr, "\r\033[K%s...", label)
	case ev.Finished:
		fmt.Fprintf(os.Stderr, "%s: %d/%d (%d items)\n", label, ev.Done, ev.Total, ev.Items)
	}
}
