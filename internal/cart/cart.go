package cart

import "sort"

// Session is one customer's in-progress order: a mapping of menu item id to
// quantity. It is ephemeral, never persisted, and owned by exactly one
// conversation, so it carries no synchronization of its own. Stock checks
// live in the service, which can see the live catalog.
type Session struct {
	Tenant       string
	CustomerName string
	lines        map[int]int
}

func New(tenant, customerName string) *Session {
	return &Session{
		Tenant:       tenant,
		CustomerName: customerName,
		lines:        make(map[int]int),
	}
}

func (s *Session) Empty() bool {
	return len(s.lines) == 0
}

func (s *Session) Quantity(itemID int) int {
	return s.lines[itemID]
}

// Add increments the line for itemID by one. The caller is responsible for
// having checked stock first.
func (s *Session) Add(itemID int) {
	s.lines[itemID]++
}

// Remove decrements the line by one, dropping it at zero. Removing an absent
// item is a no-op.
func (s *Session) Remove(itemID int) {
	qty, ok := s.lines[itemID]
	if !ok {
		return
	}
	if qty <= 1 {
		delete(s.lines, itemID)
		return
	}
	s.lines[itemID] = qty - 1
}

// ItemIDs returns the line item ids in ascending order, giving callers a
// deterministic iteration order over the underlying map.
func (s *Session) ItemIDs() []int {
	ids := make([]int, 0, len(s.lines))
	for id := range s.lines {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Lines returns a copy of the line mapping.
func (s *Session) Lines() map[int]int {
	out := make(map[int]int, len(s.lines))
	for id, qty := range s.lines {
		out[id] = qty
	}
	return out
}
