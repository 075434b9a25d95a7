package models

// SearchRequest is the query string of GET /scrape.
type SearchRequest struct {
	// Query is the search string. Required.
	Query string `form:"q" binding:"required,min=1"`

	// MaxAge allows a cached outcome younger than this many milliseconds.
	// 0 uses the server default; caching is skipped when both are 0.
	MaxAge int `form:"max_age" binding:"omitempty,min=0"`
}
