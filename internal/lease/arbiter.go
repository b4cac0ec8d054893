package lease

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

// arbiter serializes every check-and-mutate on one seat.  Locks are striped
// so unrelated seats rarely contend and memory stays bounded; two seats that
// share a stripe simply serialize.
type arbiter struct {
	stripes []sync.Mutex
}

func newArbiter(n int) *arbiter {
	if n <= 0 {
		n = 256
	}
	return &arbiter{stripes: make([]sync.Mutex, n)}
}

func (a *arbiter) stripe(showID int64, seatID string) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d/%s", showID, seatID)
	return int(h.Sum32() % uint32(len(a.stripes)))
}

// lock acquires the stripes of all given seats in ascending stripe order, so
// concurrent batch operations cannot deadlock.  The returned func unlocks.
func (a *arbiter) lock(showID int64, seatIDs ...string) func() {
	idx := make([]int, 0, len(seatIDs))
	seen := make(map[int]bool, len(seatIDs))
	for _, id := range seatIDs {
		s := a.stripe(showID, id)
		if !seen[s] {
			seen[s] = true
			idx = append(idx, s)
		}
	}
	sort.Ints(idx)
	for _, s := range idx {
		a.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			a.stripes[idx[i]].Unlock()
		}
	}
}
