package client

import (
	"context"
	"log"
	"sync"
	"time"
)

// Beaconer sends a fire-and-forget release.
type Beaconer interface {
	Beacon(ctx context.Context, showID int64, seatID string) error
}

// Reaper releases the viewer's holds when the session ends.  It is only an
// optimization: nothing waits for the result and the server TTL still
// guarantees the seats come back.
type Reaper struct {
	API     Beaconer
	Timeout time.Duration
	Enabled bool
}

// Reap sends one beacon per seat in parallel and returns once all of them
// finished or the timeout passed.  It returns the number of beacons sent
// without a transport error.
func (r *Reaper) Reap(showID int64, seatIDs []string) int {
	if !r.Enabled || r.API == nil || len(seatIDs) == 0 {
		return 0
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for _, id := range seatIDs {
		wg.Add(1)
		go func(seatID string) {
			defer wg.Done()
			if err := r.API.Beacon(ctx, showID, seatID); err != nil {
				log.Printf("reaper: beacon for show=%d seat=%s failed: %v", showID, seatID, err)
				return
			}
			mu.Lock()
			sent++
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return sent
}
