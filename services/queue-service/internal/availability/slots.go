package availability

import "sort"

// Window is a half-open interval [Start, End) in minutes since local midnight.
type Window struct {
	Start int
	End   int
}

// Overlaps uses half-open semantics: [a,b) and [c,d) overlap iff a < d && c < b.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Candidates returns slot windows of slotLength starting at openMinute and stepping by
// slotLength while start+duration still fits before closeMinute. Windows overlapping
// lunch are dropped.
func Candidates(openMinute, closeMinute, duration, slotLength int, lunch *Window) []Window {
	if duration <= 0 || slotLength <= 0 || closeMinute <= openMinute {
		return nil
	}
	var out []Window
	for start := openMinute; start+duration <= closeMinute; start += slotLength {
		w := Window{Start: start, End: start + slotLength}
		if lunch != nil && w.Overlaps(*lunch) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Commitment is time already promised. An empty ServerID competes for any server.
type Commitment struct {
	ServerID string
	Window   Window
}

// Board answers per-slot capacity questions for a fixed set of eligible servers.
type Board struct {
	servers  []string
	busy     map[string][]Window
	pressure []Window
}

// NewBoard indexes commitments by server. Commitments owned by servers outside the
// eligible set are ignored.
func NewBoard(servers []string, commitments []Commitment) *Board {
	b := &Board{
		servers: append([]string(nil), servers...),
		busy:    make(map[string][]Window, len(servers)),
	}
	sort.Strings(b.servers)
	for _, id := range b.servers {
		b.busy[id] = nil
	}
	for _, c := range commitments {
		if c.Window.End <= c.Window.Start {
			continue
		}
		if c.ServerID == "" {
			b.pressure = append(b.pressure, c.Window)
			continue
		}
		if _, ok := b.busy[c.ServerID]; ok {
			b.busy[c.ServerID] = append(b.busy[c.ServerID], c.Window)
		}
	}
	return b
}

func (b *Board) Has(serverID string) bool {
	_, ok := b.busy[serverID]
	return ok
}

func (b *Board) ServerFree(serverID string, w Window) bool {
	busy, ok := b.busy[serverID]
	if !ok {
		return false
	}
	return !overlapsAny(w, busy)
}

// Free counts eligible servers with nothing booked during w.
func (b *Board) Free(w Window) int {
	n := 0
	for _, id := range b.servers {
		if !overlapsAny(w, b.busy[id]) {
			n++
		}
	}
	return n
}

// Pressure counts unassigned commitments overlapping w.
func (b *Board) Pressure(w Window) int {
	n := 0
	for _, p := range b.pressure {
		if w.Overlaps(p) {
			n++
		}
	}
	return n
}

// Available reports whether free servers strictly outnumber unassigned commitments
// during w. With a preferred server, that server must also be free.
func (b *Board) Available(w Window, preferred string) bool {
	if preferred != "" && !b.ServerFree(preferred, w) {
		return false
	}
	return b.Free(w) > b.Pressure(w)
}

func overlapsAny(w Window, busy []Window) bool {
	for _, b := range busy {
		if w.Overlaps(b) {
			return true
		}
	}
	return false
}
