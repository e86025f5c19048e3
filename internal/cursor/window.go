package cursor

import "encoding/json"

// WindowCapacity bounds the number of remembered message ids
const WindowCapacity = 500

// Window is a bounded FIFO set of message ids. Appending past capacity
// evicts the oldest id.
type Window struct {
	capacity int
	ids      []string
	counts   map[string]int
}

// NewWindow returns a window holding the newest capacity ids of ids
func NewWindow(capacity int, ids ...string) *Window {
	if capacity <= 0 {
		capacity = WindowCapacity
	}
	w := &Window{capacity: capacity, counts: make(map[string]int)}
	w.Add(ids...)
	return w
}

// Add appends ids, oldest first
func (w *Window) Add(ids ...string) {
	for _, id := range ids {
		w.ids = append(w.ids, id)
		w.counts[id]++
		if len(w.ids) > w.capacity {
			evicted := w.ids[0]
			w.ids = w.ids[1:]
			if w.counts[evicted]--; w.counts[evicted] == 0 {
				delete(w.counts, evicted)
			}
		}
	}
}

// Contains reports whether id is remembered
func (w *Window) Contains(id string) bool {
	return w.counts[id] > 0
}

// Len returns the number of remembered ids
func (w *Window) Len() int {
	return len(w.ids)
}

// IDs returns a copy of the remembered ids, oldest first
func (w *Window) IDs() []string {
	out := make([]string, len(w.ids))
	copy(out, w.ids)
	return out
}

// Clone returns an independent copy
func (w *Window) Clone() *Window {
	return NewWindow(w.capacity, w.ids...)
}

func (w *Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.IDs())
}

func (w *Window) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	capacity := w.capacity
	if capacity == 0 {
		capacity = WindowCapacity
	}
	*w = *NewWindow(capacity, ids...)
	return nil
}
