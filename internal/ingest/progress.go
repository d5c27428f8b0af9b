package ingest

// Phase names one stage of an ingestion run.
type Phase string

const (
	PhaseQuery     Phase = "query"
	PhaseDetails   Phase = "details"
	PhaseHistory   Phase = "history"
	PhaseNormalize Phase = "normalize"
)

// Event is one progress update. The engine emits an event at every phase
// boundary and on each unit completion inside the fan-out phases; Finished
// marks the phase's last event.
type Event struct {
	Phase    Phase
	Done     int
	Total    int
	Items    int
	Finished bool
}

// notifier delivers events to an optional subscriber channel without ever
// blocking the run: when the subscriber lags, intermediate events are
// dropped and only the latest state matters.
type notifier struct {
	ch chan<- Event
}

func (n notifier) send(ev Event) {
	if n.ch == nil {
		return
	}
	select {
	case n.ch <- ev:
	default:
	}
}

func (n notifier) phase(p Phase, total int) {
	n.send(Event{Phase: p, Total: total})
}

func (n notifier) finish(p Phase, done, total, items int) {
	n.send(Event{Phase: p, Done: done, Total: total, Items: items, Finished: true})
}
