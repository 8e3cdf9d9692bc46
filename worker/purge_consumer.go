package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/copaint/copaint/cache"
	"github.com/copaint/copaint/mq"
	"github.com/copaint/copaint/store"
)

// PurgeConsumer drains the purge queue: for each permanently deleted file it
// erases the operation log and permission requests left behind, then drops
// the file's cache entries. Work is retried by SQS redelivery when a step
// fails, everything here is idempotent.
type PurgeConsumer struct {
	purgeQueue   mq.MessageQueue
	copaintStore store.CoPaintStore
	copaintCache cache.CoPaintCache
}

func NewPurgeConsumer(purgeQueue mq.MessageQueue, copaintStore store.CoPaintStore, copaintCache cache.CoPaintCache) *PurgeConsumer {
	return &PurgeConsumer{
		purgeQueue:   purgeQueue,
		copaintStore: copaintStore,
		copaintCache: copaintCache,
	}
}

// Allow up to 5 minutes for the throttled batch deletion of a large op log
const visibilityTimeout = 300

func (p PurgeConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := p.purgeQueue.Receive(shutdownCtx, visibilityTimeout)

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("purgeConsumer receive error: %v", err)
			continue
		}

		if msg == nil {
			continue
		}

		var job mq.PurgeJob
		if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
			continue
		}

		// timeout should be a little less than queue visibility timeout
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)

		err = p.copaintStore.DeleteFileOperations(ctx, job.FileId)
		if err == nil {
			err = p.copaintStore.DeleteFilePermissionRequests(ctx, job.FileId)
		}
		if err == nil {
			if cacheErr := p.copaintCache.InvalidateFiles(ctx, []string{job.FileId}); cacheErr != nil {
				log.Printf("Failed to invalidate cache for purged file %s: %v", job.FileId, cacheErr)
			}
		}
		cancel()

		if err != nil {
			log.Printf("copaintStore purge error for file %s: %v", job.FileId, err)
			continue
		}

		if err := p.purgeQueue.Delete(context.Background(), msg); err != nil {
			log.Printf("purgeConsumer delete error: %v", err)
			continue
		}
	}
}
