package memory

import "time"

// entryKind identifies which table an expiry heap entry points into.
type entryKind uint8

const (
	kindToken entryKind = iota
	kindRefreshToken
	kindAuthorizationCode
)

// expiryEntry schedules one credential for removal. Entries are not removed
// from the heap when the credential is deleted or re-saved early; the sweep
// re-checks the live record before removing anything, so stale entries are
// simply discarded when they surface.
type expiryEntry struct {
	at   time.Time
	kind entryKind
	key  string
}

// expiryHeap is a min-heap ordered by expiry time. It implements
// heap.Interface; one heap replaces the per-entry timers a naive design
// would schedule for every credential.
type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)         { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
