package entity

import "time"

// LlmTrace records token usage, latency and cache behavior for one provider
// call, for cost accounting and the Admin API's trace/cost endpoints.
type LlmTrace struct {
	ID               string
	Agent            string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMS        int64
	CacheHitTokens   int
	CacheReadTokens  int
	CacheWriteTokens int
	Status           string
	Error            string
	Metadata         map[string]interface{}
	CreatedAt        time.Time
}

// ModelCostSummary aggregates usage for one model over a reporting
// window, backing the Admin API's /api/v1/traces/cost endpoint.
type ModelCostSummary struct {
	Provider         string
	Model            string
	Calls            int64
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}
