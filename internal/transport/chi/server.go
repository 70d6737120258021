package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wearly/searchd/internal/cache"
	"github.com/wearly/searchd/internal/domain"
	"github.com/wearly/searchd/internal/usecase/chat"
	"github.com/wearly/searchd/internal/usecase/health"
	"github.com/wearly/searchd/internal/version"
)

const defaultLimit = 10

// SearchService runs the ranking pipeline.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error)
	CacheStats() map[string]cache.Stats
	ClearCaches()
}

// ChatService manages conversations, sessions and feedback.
type ChatService interface {
	HandleMessage(ctx context.Context, userID, sessionID, message string) (chat.Reply, error)
	UserSessions(userID string) []chat.Session
	SessionMessages(sessionID string) ([]chat.Message, error)
	SubmitFeedback(fb chat.Feedback) (string, error)
	AllFeedback() []chat.Feedback
}

// HealthService aggregates component health checks.
type HealthService interface {
	Check(ctx context.Context) health.Report
}

// CatalogCounter reports the number of indexed products.
type CatalogCounter interface {
	Count(ctx context.Context) (int, error)
}

// Info describes the running service for the root and health endpoints.
type Info struct {
	Collection  string
	Model       string
	LLMProvider string
	LLMEnabled  bool
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search pipeline and chat surface over HTTP.
type Server struct {
	search        SearchService
	chat          ChatService
	health        HealthService
	catalog       CatalogCounter
	info          Info
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search SearchService,
	chatSvc ChatService,
	healthSvc HealthService,
	catalog CatalogCounter,
	info Info,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:  search,
		chat:    chatSvc,
		health:  healthSvc,
		catalog: catalog,
		info:    info,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		invalidRequestHandler,
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, codeSessionNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, codeRetrievalUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrLLMUnavailable, http.StatusServiceUnavailable, codeLLMUnavailable),
	}
	return s
}

// Routes mounts all handlers onto the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/search", s.Search)
	r.Get("/health", s.Health)
	r.Get("/", s.Root)
	r.Get("/cache/stats", s.CacheStats)
	r.Delete("/cache", s.ClearCache)
	r.Get("/metrics", s.Metrics)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat/message", s.ChatMessage)
		r.Get("/sessions/user/{userID}", s.UserSessions)
		r.Get("/sessions/messages/{sessionID}", s.SessionMessages)
		r.Post("/feedback/product", s.SubmitFeedback)
		r.Get("/feedback", s.ListFeedback)
	})
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Limit == 0 {
		req.Limit = defaultLimit
	}

	resp, err := s.search.Search(r.Context(), domain.SearchRequest{
		Query:      req.Query,
		Limit:      req.Limit,
		PriceMin:   req.PriceMin,
		PriceMax:   req.PriceMax,
		SkipCache:  req.SkipCache,
		SkipRerank: req.SkipRerank,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	count := 0
	if s.catalog != nil {
		if c, err := s.catalog.Count(r.Context()); err == nil {
			count = c
		}
	}

	httpStatus := http.StatusOK
	if report.Status != health.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:        report.Status,
		Checks:        report.Checks,
		Collection:    s.info.Collection,
		ProductsCount: count,
		Model:         s.info.Model,
		LLM:           s.info.LLMProvider,
		SearchMode:    s.searchMode(),
		Cache:         s.search.CacheStats(),
	})
}

// Root handles GET /. It returns a service descriptor.
func (s *Server) Root(w http.ResponseWriter, r *http.Request) {
	features := []string{
		"Semantic search (Redis)",
		"TTL caching",
	}
	if s.info.LLMEnabled {
		features = []string{
			"Query expansion (LLM)",
			"Semantic search (Redis)",
			"LLM reranking",
			"TTL caching",
			"Final scoring (AI + popularity)",
		}
	}

	writeJSON(w, http.StatusOK, rootResponse{
		Service:    "searchd",
		Version:    version.Version,
		SearchMode: s.searchMode(),
		LLM:        s.info.LLMProvider,
		Features:   features,
		Endpoints: map[string]string{
			"health":      "GET /health",
			"search":      "POST /search",
			"chat":        "POST /api/chat/message",
			"sessions":    "GET /api/sessions/user/{userId}",
			"messages":    "GET /api/sessions/messages/{sessionId}",
			"feedback":    "POST /api/feedback/product",
			"cache_stats": "GET /cache/stats",
			"clear_cache": "DELETE /cache",
		},
	})
}

// CacheStats handles GET /cache/stats.
func (s *Server) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.search.CacheStats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		ExpansionCache: stats["expansion"],
		ResultsCache:   stats["results"],
	})
}

// ClearCache handles DELETE /cache.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	s.search.ClearCaches()
	writeJSON(w, http.StatusOK, clearCacheResponse{
		Status:  "cleared",
		Message: "All caches cleared",
	})
}

// ChatMessage handles POST /api/chat/message.
func (s *Server) ChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	reply, err := s.chat.HandleMessage(r.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// UserSessions handles GET /api/sessions/user/{userID}.
func (s *Server) UserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, sessionListResponse{
		Sessions: s.chat.UserSessions(userID),
		UserID:   userID,
	})
}

// SessionMessages handles GET /api/sessions/messages/{sessionID}.
func (s *Server) SessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	msgs, err := s.chat.SessionMessages(sessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageListResponse{
		Messages:  msgs,
		SessionID: sessionID,
	})
}

// SubmitFeedback handles POST /api/feedback/product.
func (s *Server) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id, err := s.chat.SubmitFeedback(chat.Feedback{
		SessionID:    req.SessionID,
		MessageID:    req.MessageID,
		ProductID:    req.ProductID,
		Rating:       req.Rating,
		Reason:       req.Reason,
		ReasonText:   req.ReasonText,
		UserQuery:    req.UserQuery,
		FeedbackType: req.FeedbackType,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, feedbackAck{Success: true, FeedbackID: id})
}

// ListFeedback handles GET /api/feedback.
func (s *Server) ListFeedback(w http.ResponseWriter, r *http.Request) {
	fb := s.chat.AllFeedback()
	writeJSON(w, http.StatusOK, feedbackListResponse{
		Feedback: fb,
		Total:    len(fb),
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) searchMode() string {
	if s.info.LLMEnabled {
		return string(domain.ModeAdvanced)
	}
	return string(domain.ModeSimple)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrSessionNotFound,
		domain.ErrNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrRetrievalUnavailable,
		domain.ErrLLMUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// invalidRequestHandler exposes the full validation message. Those messages
// are produced by this service and safe to show.
func invalidRequestHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrInvalidRequest) {
		return false
	}
	writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
