package models

// BatchRequest is the payload for POST /batch/scrape.
type BatchRequest struct {
	// Queries is the list of searches to run. Required.
	Queries []string `json:"queries" binding:"required,min=1,max=20"`

	// WebhookURL receives a "batch.completed" event when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /batch/scrape.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /batch/:id.
type BatchStatusResponse struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
	Results   []*PipelineOutcome `json:"results,omitempty"`
}
