package chi

import (
	"github.com/wearly/searchd/internal/cache"
	"github.com/wearly/searchd/internal/usecase/chat"
	"github.com/wearly/searchd/internal/usecase/health"
)

// Error codes returned to clients.
const (
	codeBadRequest             = "bad_request"
	codeValidationFailed       = "validation_failed"
	codeNotFound               = "not_found"
	codeSessionNotFound        = "session_not_found"
	codeEmbeddingProviderError = "embedding_provider_error"
	codeRetrievalUnavailable   = "retrieval_unavailable"
	codeLLMUnavailable         = "llm_unavailable"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchRequest struct {
	Query      string   `json:"query"`
	Limit      int      `json:"limit"`
	PriceMin   *float64 `json:"priceMin"`
	PriceMax   *float64 `json:"priceMax"`
	SkipCache  bool     `json:"skipCache"`
	SkipRerank bool     `json:"skipRerank"`
}

type chatMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// feedbackRequest mirrors the frontend payload, including its uneven key
// casing ("messageID" next to "productId").
type feedbackRequest struct {
	SessionID    string   `json:"sessionId"`
	MessageID    string   `json:"messageID"`
	ProductID    string   `json:"productId"`
	Rating       int      `json:"rating"`
	Reason       []string `json:"reason"`
	ReasonText   string   `json:"reason_text"`
	UserQuery    string   `json:"user_query"`
	FeedbackType string   `json:"feedback_type"`
}

type feedbackAck struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId"`
}

type feedbackListResponse struct {
	Feedback []chat.Feedback `json:"feedback"`
	Total    int             `json:"total"`
}

type sessionListResponse struct {
	Sessions []chat.Session `json:"sessions"`
	UserID   string         `json:"userId"`
}

type messageListResponse struct {
	Messages  []chat.Message `json:"messages"`
	SessionID string         `json:"sessionId"`
}

type cacheStatsResponse struct {
	ExpansionCache cache.Stats `json:"expansion_cache"`
	ResultsCache   cache.Stats `json:"results_cache"`
}

type clearCacheResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status        health.Status                 `json:"status"`
	Checks        map[string]health.CheckResult `json:"checks"`
	Collection    string                        `json:"collection"`
	ProductsCount int                           `json:"productsCount"`
	Model         string                        `json:"model"`
	LLM           string                        `json:"llm"`
	SearchMode    string                        `json:"searchMode"`
	Cache         map[string]cache.Stats        `json:"cache"`
}

type rootResponse struct {
	Service    string            `json:"service"`
	Version    string            `json:"version"`
	SearchMode string            `json:"searchMode"`
	LLM        string            `json:"llm"`
	Features   []string          `json:"features"`
	Endpoints  map[string]string `json:"endpoints"`
}
