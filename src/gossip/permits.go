package gossip

import (
	"golang.org/x/sync/semaphore"
)

// SyncPermits bounds the number of syncs a node accepts concurrently.
type SyncPermits struct {
	sem *semaphore.Weighted
	max int64
}

// NewSyncPermits returns SyncPermits allowing max concurrent syncs.
func NewSyncPermits(max int) *SyncPermits {
	if max < 1 {
		max = 1
	}
	return &SyncPermits{
		sem: semaphore.NewWeighted(int64(max)),
		max: int64(max),
	}
}

// TryAcquire takes a permit if one is available.
func (p *SyncPermits) TryAcquire() bool {
	return p.sem.TryAcquire(1)
}

// Release gives back a permit taken with TryAcquire.
func (p *SyncPermits) Release() {
	p.sem.Release(1)
}

// Max returns the number of permits.
func (p *SyncPermits) Max() int {
	return int(p.max)
}
