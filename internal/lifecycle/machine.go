package lifecycle

import (
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// HistoryEntry is the audit record of one accepted transition.
type HistoryEntry struct {
	Seq          int64             `json:"seq"`
	BookingID    string            `json:"booking_id"`
	RestaurantID string            `json:"restaurant_id"`
	From         domain.Status     `json:"from"`
	To           domain.Status     `json:"to"`
	Actor        string            `json:"actor"`
	Mode         Mode              `json:"mode"`
	At           time.Time         `json:"at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Event returns the change event announcing this transition.
func (h HistoryEntry) Event() domain.ChangeEvent {
	return domain.ChangeEvent{
		Type:         domain.EventStatusTransitioned,
		RestaurantID: h.RestaurantID,
		BookingID:    h.BookingID,
		OccurredAt:   h.At,
	}
}

// Request describes a requested status change.
type Request struct {
	To       domain.Status
	Actor    string
	Mode     Mode
	Metadata map[string]string
	At       time.Time
}

// ActorExternal marks history observed from the record store rather than
// requested through the engine.
const ActorExternal = "external"

// Machine applies transitions. It holds no per-booking state; the only
// shared state is the sequence used to order history.
type Machine struct {
	seq *Sequence
}

// NewMachine creates a Machine stamping history from seq.
// A nil seq starts a fresh sequence.
func NewMachine(seq *Sequence) *Machine {
	if seq == nil {
		seq = NewSequence()
	}
	return &Machine{seq: seq}
}

// Transition validates req against the selected policy and applies it to b.
//
// On success b.Status is updated, arrival stamps CheckedInAt when absent,
// seating stamps SeatedAt, and the history entry is returned. On failure b
// is left untouched and *InvalidTransitionError is returned.
func (m *Machine) Transition(b *domain.Booking, req Request) (HistoryEntry, error) {
	policy := PolicyFor(req.Mode)
	from := b.Status
	if !policy.Allowed(from, req.To) {
		return HistoryEntry{}, &InvalidTransitionError{
			BookingID: b.ID,
			From:      from,
			To:        req.To,
			Policy:    policy.Name(),
		}
	}

	at := req.At
	switch req.To {
	case domain.StatusArrived:
		if b.CheckedInAt == nil {
			t := at
			b.CheckedInAt = &t
		}
	case domain.StatusSeated:
		t := at
		b.SeatedAt = &t
	}
	b.Status = req.To

	mode := req.Mode
	if mode == "" {
		mode = ModeStrict
	}
	return HistoryEntry{
		Seq:          m.seq.Next(),
		BookingID:    b.ID,
		RestaurantID: b.RestaurantID,
		From:         from,
		To:           req.To,
		Actor:        req.Actor,
		Mode:         mode,
		At:           at,
		Metadata:     copyMetadata(req.Metadata),
	}, nil
}

// Observe validates a status change made outside the engine, as seen
// between two versions of the same booking. The strict graph is tried
// first; changes off the graph are accepted only if the override policy
// permits them, since staff may have corrected the record directly.
// Returns ok=false when the status did not change.
func (m *Machine) Observe(prev, next domain.Booking, at time.Time) (HistoryEntry, bool, error) {
	if prev.Status == next.Status {
		return HistoryEntry{}, false, nil
	}
	req := Request{To: next.Status, Actor: ActorExternal, Mode: ModeStrict, At: at}
	if !(StrictPolicy{}).Allowed(prev.Status, next.Status) {
		req.Mode = ModeOverride
	}
	scratch := prev.Clone()
	entry, err := m.Transition(&scratch, req)
	if err != nil {
		return HistoryEntry{}, false, err
	}
	return entry, true, nil
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
