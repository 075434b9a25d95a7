package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricescout/models"
)

func batchRouter(s Searcher) (*gin.Engine, *BatchStore) {
	store := NewBatchStore(time.Hour)
	runner := NewBatchRunner(s, store, nil, 2)
	r := gin.New()
	r.POST("/batch/scrape", runner.PostBatch())
	r.GET("/batch/:id", runner.GetBatch())
	return r, store
}

// waitForBatch polls GET /batch/:id until the job leaves processing.
func waitForBatch(t *testing.T, r *gin.Engine, id string) models.BatchStatusResponse {
	t.Helper()
	var status models.BatchStatusResponse
	require.Eventually(t, func() bool {
		w := serve(r, http.MethodGet, "/batch/"+id, "")
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Status != BatchProcessing
	}, 2*time.Second, 10*time.Millisecond)
	return status
}

func TestBatch_Completed(t *testing.T) {
	s := newFakeSearcher()
	r, store := batchRouter(s)
	defer store.Stop()

	w := serve(r, http.MethodPost, "/batch/scrape", `{"queries":["rtx 4090"," ssd ","ram"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	accepted := decode[models.BatchResponse](t, w)
	assert.Equal(t, BatchProcessing, accepted.Status)
	assert.Equal(t, 3, accepted.Total)

	status := waitForBatch(t, r, accepted.ID)
	assert.Equal(t, BatchCompleted, status.Status)
	assert.Equal(t, 3, status.Completed)
	require.Len(t, status.Results, 3)
	assert.Equal(t, "rtx 4090", status.Results[0].Query)
	assert.Equal(t, "ssd", status.Results[1].Query)
	assert.Equal(t, 1, s.callCount("ssd"))
}

func TestBatch_PartialAndFailed(t *testing.T) {
	s := newFakeSearcher()
	s.outcome = func(query string) *models.PipelineOutcome {
		out := &models.PipelineOutcome{Query: query, Results: []models.ProductRecord{}}
		if query == "blocked" {
			out.Diagnostic = &models.Diagnostic{Kind: models.DiagBlocked}
		}
		return out
	}
	r, store := batchRouter(s)
	defer store.Stop()

	partial := decode[models.BatchResponse](t, serve(r, http.MethodPost, "/batch/scrape", `{"queries":["ok","blocked"]}`))
	assert.Equal(t, BatchPartial, waitForBatch(t, r, partial.ID).Status)

	failed := decode[models.BatchResponse](t, serve(r, http.MethodPost, "/batch/scrape", `{"queries":["blocked"]}`))
	assert.Equal(t, BatchFailed, waitForBatch(t, r, failed.ID).Status)
}

func TestBatch_SearchErrorBecomesInternalOutcome(t *testing.T) {
	s := newFakeSearcher()
	s.err = errors.New("searcher exploded")
	r, store := batchRouter(s)
	defer store.Stop()

	accepted := decode[models.BatchResponse](t, serve(r, http.MethodPost, "/batch/scrape", `{"queries":["x"]}`))
	status := waitForBatch(t, r, accepted.ID)
	assert.Equal(t, BatchFailed, status.Status)
	require.Len(t, status.Results, 1)
	assert.Equal(t, models.DiagInternal, status.Results[0].Diagnostic.Kind)
}

func TestBatch_InvalidRequests(t *testing.T) {
	r, store := batchRouter(newFakeSearcher())
	defer store.Stop()

	for _, body := range []string{
		`{}`,
		`{"queries":[]}`,
		`{"queries":["ok","  "]}`,
		`{"queries":["ok"],"webhook_url":"not a url"}`,
		`not json`,
	} {
		w := serve(r, http.MethodPost, "/batch/scrape", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestBatch_UnknownJob(t *testing.T) {
	r, store := batchRouter(newFakeSearcher())
	defer store.Stop()

	w := serve(r, http.MethodGet, "/batch/batch-missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
