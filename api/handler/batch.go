package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricescout/models"
	"github.com/use-agent/pricescout/webhook"
	"golang.org/x/sync/errgroup"
)

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// batchJob is one batch search. Results are written by the worker
// goroutines and read by GET /batch/:id, so access goes through mu.
type batchJob struct {
	mu        sync.Mutex
	id        string
	status    string
	completed int
	results   []*models.PipelineOutcome
	createdAt time.Time
}

func (j *batchJob) record(idx int, out *models.PipelineOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[idx] = out
	j.completed++
}

func (j *batchJob) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	failed := 0
	for _, r := range j.results {
		if r == nil || r.Diagnostic.Terminal() {
			failed++
		}
	}
	switch {
	case failed == len(j.results):
		j.status = BatchFailed
	case failed > 0:
		j.status = BatchPartial
	default:
		j.status = BatchCompleted
	}
}

func (j *batchJob) snapshot() models.BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]*models.PipelineOutcome, len(j.results))
	copy(results, j.results)
	return models.BatchStatusResponse{
		ID:        j.id,
		Status:    j.status,
		Completed: j.completed,
		Total:     len(j.results),
		Results:   results,
	}
}

// BatchStore holds in-flight and completed batch jobs. Jobs older than the
// retention are dropped by a background sweep; Stop ends it.
type BatchStore struct {
	jobs      sync.Map // id (string) -> *batchJob
	retention time.Duration
	done      chan struct{}
}

// NewBatchStore creates a BatchStore keeping jobs for retention.
func NewBatchStore(retention time.Duration) *BatchStore {
	s := &BatchStore{
		retention: retention,
		done:      make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Stop ends the sweep goroutine.
func (s *BatchStore) Stop() {
	close(s.done)
}

func (s *BatchStore) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-s.retention)
			s.jobs.Range(func(key, value any) bool {
				if value.(*batchJob).createdAt.Before(cutoff) {
					s.jobs.Delete(key)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

// BatchRunner executes batch jobs.
type BatchRunner struct {
	searcher    Searcher
	store       *BatchStore
	sender      *webhook.Sender
	concurrency int
}

// NewBatchRunner creates a runner executing at most concurrency searches
// of a job at a time. sender may be nil to disable webhooks.
func NewBatchRunner(s Searcher, store *BatchStore, sender *webhook.Sender, concurrency int) *BatchRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchRunner{
		searcher:    s,
		store:       store,
		sender:      sender,
		concurrency: concurrency,
	}
}

// PostBatch returns a handler for POST /batch/scrape.
// It validates the request, registers the job, and runs it in the
// background.
func (b *BatchRunner) PostBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err.Error())
			return
		}
		for i, q := range req.Queries {
			if strings.TrimSpace(q) == "" {
				invalidInput(c, "queries must not contain blank entries")
				return
			}
			req.Queries[i] = strings.TrimSpace(q)
		}

		job := &batchJob{
			id:        "batch-" + randomID(),
			status:    BatchProcessing,
			results:   make([]*models.PipelineOutcome, len(req.Queries)),
			createdAt: time.Now(),
		}
		b.store.jobs.Store(job.id, job)

		go b.run(job, req)

		c.JSON(http.StatusOK, models.BatchResponse{
			ID:     job.id,
			Status: BatchProcessing,
			Total:  len(req.Queries),
		})
	}
}

// GetBatch returns a handler for GET /batch/:id.
func (b *BatchRunner) GetBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := b.store.jobs.Load(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "batch job not found",
			}})
			return
		}
		c.JSON(http.StatusOK, val.(*batchJob).snapshot())
	}
}

// run searches every query of the job, then fires the completion webhook.
// Runs are detached from the submitting request; each search applies its
// own timeout.
func (b *BatchRunner) run(job *batchJob, req models.BatchRequest) {
	ctx := context.Background()

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for i, q := range req.Queries {
		g.Go(func() error {
			out, err := b.searcher.Search(ctx, q)
			if err != nil {
				out = &models.PipelineOutcome{
					Query:      q,
					Results:    []models.ProductRecord{},
					Error:      err.Error(),
					Diagnostic: &models.Diagnostic{Kind: models.DiagInternal, Message: err.Error()},
				}
			}
			job.record(i, out)
			return nil
		})
	}
	_ = g.Wait()
	job.finish()

	snap := job.snapshot()
	slog.Info("batch job finished",
		"id", snap.ID,
		"status", snap.Status,
		"total", snap.Total,
	)

	if req.WebhookURL != "" && b.sender != nil {
		b.sender.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     snap.ID,
			Timestamp: time.Now().Unix(),
			Data:      snap,
		})
	}
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
