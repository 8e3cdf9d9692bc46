package worker

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/copaint/copaint/store"
)

const (
	// Operations older than this are dead weight: they no longer feed
	// presence and snapshots carry the actual content.
	opRetention = 24 * time.Hour

	cleanupCooldown     = 5 * time.Minute
	cleanupBatchSize    = 100
	opportunisticChance = 0.1

	// lastCleanup entries for files nobody touched in this long get dropped
	mapSweepAge = time.Hour
)

// Janitor trims each file's operation log opportunistically: every append
// nudges it through Touch, and it cleans a file when the per-file cooldown
// has elapsed or a small random chance fires. State is per instance, so in
// a multi-instance deployment files get cleaned a bit more often, which is
// harmless since deletion is idempotent.
type Janitor struct {
	TouchCh chan string

	copaintStore  store.CoPaintStore
	sweepInterval time.Duration
	lastCleanup   map[string]time.Time // owned by the Run goroutine
}

func NewJanitor(copaintStore store.CoPaintStore, sweepInterval time.Duration) *Janitor {
	return &Janitor{
		TouchCh:       make(chan string, 256), // buffer to absorb bursts
		copaintStore:  copaintStore,
		sweepInterval: sweepInterval,
		lastCleanup:   make(map[string]time.Time, 64),
	}
}

// Touch never blocks the caller; a dropped nudge just means the next append
// triggers the cleanup instead.
func (j *Janitor) Touch(fileId string) {
	select {
	case j.TouchCh <- fileId:
	default:
	}
}

func (j *Janitor) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(j.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case fileId := <-j.TouchCh:
			if j.shouldClean(fileId) {
				j.cleanFile(shutdownCtx, fileId)
			}

		case <-ticker.C:
			now := time.Now()
			for fileId, last := range j.lastCleanup {
				if now.Sub(last) > mapSweepAge {
					delete(j.lastCleanup, fileId)
				}
			}

		case <-shutdownCtx.Done():
			return
		}
	}
}

func (j *Janitor) shouldClean(fileId string) bool {
	last, ok := j.lastCleanup[fileId]
	if !ok || time.Since(last) > cleanupCooldown {
		return true
	}
	return rand.Float64() < opportunisticChance
}

// cleanFile deletes expired operations in bounded batches, recursing while
// a batch comes back full. Errors are logged and swallowed, cleanup is
// best-effort and the next touch retries.
func (j *Janitor) cleanFile(shutdownCtx context.Context, fileId string) {
	j.lastCleanup[fileId] = time.Now()
	cutoff := time.Now().Add(-opRetention)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		deleted, err := j.copaintStore.DeleteExpiredOperations(ctx, fileId, cutoff, cleanupBatchSize)
		cancel()

		if err != nil {
			log.Printf("Janitor cleanup failed for file %s: %v", fileId, err)
			return
		}
		if deleted < cleanupBatchSize {
			return
		}

		select {
		case <-shutdownCtx.Done():
			return
		default:
		}
	}
}
