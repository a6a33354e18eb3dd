package realtime

import "sync/atomic"

// Generation orders concurrent refreshes of the same view. Each refresh
// takes a ticket with Next; Apply accepts a result only if no newer ticket
// has already been applied.
type Generation struct {
	issued  atomic.Uint64
	applied atomic.Uint64
}

// Next issues a new, strictly increasing ticket
func (g *Generation) Next() uint64 {
	return g.issued.Add(1)
}

// Apply records ticket as applied and reports whether its result should be
// used. Results older than the newest applied ticket are stale.
func (g *Generation) Apply(ticket uint64) bool {
	for {
		current := g.applied.Load()
		if ticket <= current {
			return false
		}
		if g.applied.CompareAndSwap(current, ticket) {
			return true
		}
	}
}
