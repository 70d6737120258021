// Package chat layers a conversational surface over the search pipeline:
// sessions, message history and product feedback, all kept in memory.
package chat

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wearly/searchd/internal/domain"
)

const (
	chatSearchLimit = 10
	titleLimit      = 50
)

// searcher is the pipeline entry point the chat surface drives.
type searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error)
}

// Session is one conversation thread.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Product is a search result reshaped for the chat frontend.
type Product struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Price           float64 `json:"price"`
	DiscountedPrice float64 `json:"discounted_price"`
	URL             string  `json:"url"`
	Image           string  `json:"image"`
	Description     string  `json:"description"`
	Brand           string  `json:"brand"`
	Category        string  `json:"category"`
	Score           float64 `json:"score"`
	Rank            int     `json:"rank"`
}

// Message is one user turn and its assistant answer.
type Message struct {
	ID               string    `json:"id"`
	UserContent      string    `json:"user_content"`
	AssistantContent string    `json:"assistant_content"`
	Products         []Product `json:"products"`
	CreatedAt        time.Time `json:"created_at"`
}

// Reply is the response to one chat message.
type Reply struct {
	SessionID         string    `json:"sessionId"`
	UserID            string    `json:"userId"`
	MessageID         string    `json:"messageId"`
	AssistantResponse string    `json:"assistantResponse"`
	Products          []Product `json:"products"`
}

// Feedback is a product rating attached to a chat message.
type Feedback struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	MessageID    string    `json:"messageId"`
	ProductID    string    `json:"productId"`
	Rating       int       `json:"rating"`
	Reason       []string  `json:"reason"`
	ReasonText   string    `json:"reason_text,omitempty"`
	UserQuery    string    `json:"user_query,omitempty"`
	FeedbackType string    `json:"feedback_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Service holds chat state. All state is process-local; a restart starts
// with a clean slate.
type Service struct {
	search searcher
	now    func() time.Time

	mu           sync.Mutex
	sessions     map[string]*Session
	messages     map[string][]Message
	userSessions map[string][]string
	feedback     []Feedback
}

// New creates a chat service over the given search pipeline.
func New(search searcher) *Service {
	return &Service{
		search:       search,
		now:          time.Now,
		sessions:     make(map[string]*Session),
		messages:     make(map[string][]Message),
		userSessions: make(map[string][]string),
	}
}

// HandleMessage runs the user's message through search, stores the turn in
// the session and returns the assistant reply. Empty user or session IDs are
// minted on the fly.
func (s *Service) HandleMessage(ctx context.Context, userID, sessionID, message string) (Reply, error) {
	if message == "" {
		return Reply{}, fmt.Errorf("%w: message is required", domain.ErrInvalidRequest)
	}

	if userID == "" {
		userID = uuid.NewString()
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	messageID := uuid.NewString()

	s.ensureSession(userID, sessionID, message)

	resp, err := s.search.Search(ctx, domain.SearchRequest{
		Query: message,
		Limit: chatSearchLimit,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat search: %w", err)
	}

	products := transformProducts(resp.Results)
	assistant := assistantResponse(message, products)

	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], Message{
		ID:               messageID,
		UserContent:      message,
		AssistantContent: assistant,
		Products:         products,
		CreatedAt:        s.now(),
	})
	s.mu.Unlock()

	return Reply{
		SessionID:         sessionID,
		UserID:            userID,
		MessageID:         messageID,
		AssistantResponse: assistant,
		Products:          products,
	}, nil
}

// UserSessions returns the user's sessions, newest first.
func (s *Service) UserSessions(userID string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.userSessions[userID]
	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		sess, ok := s.sessions[id]
		if !ok {
			continue
		}
		out := *sess
		out.MessageCount = len(s.messages[id])
		sessions = append(sessions, out)
	}

	sort.Slice(sessions, func(a, b int) bool {
		return sessions[a].CreatedAt.After(sessions[b].CreatedAt)
	})
	return sessions
}

// SessionMessages returns a session's message history.
func (s *Service) SessionMessages(sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}

	msgs := s.messages[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SubmitFeedback records a product rating and returns the feedback ID.
func (s *Service) SubmitFeedback(fb Feedback) (string, error) {
	if fb.Rating < 1 || fb.Rating > 5 {
		return "", fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidRequest)
	}

	fb.ID = uuid.NewString()
	fb.CreatedAt = s.now()
	if fb.Reason == nil {
		fb.Reason = []string{}
	}

	s.mu.Lock()
	s.feedback = append(s.feedback, fb)
	s.mu.Unlock()

	return fb.ID, nil
}

// AllFeedback returns every recorded feedback entry.
func (s *Service) AllFeedback() []Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Feedback, len(s.feedback))
	copy(out, s.feedback)
	return out
}

func (s *Service) ensureSession(userID, sessionID, firstMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return
	}

	title := firstMessage
	if utf8.RuneCountInString(title) > titleLimit {
		title = string([]rune(title)[:titleLimit]) + "..."
	}

	s.sessions[sessionID] = &Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: s.now(),
		Title:     title,
	}
	s.userSessions[userID] = append(s.userSessions[userID], sessionID)
}

func transformProducts(results []domain.ResultItem) []Product {
	products := make([]Product, 0, len(results))
	for i, r := range results {
		score := r.Score
		if r.RelevanceScore != nil {
			score = *r.RelevanceScore
		}

		desc := r.Description
		if desc == "" {
			desc = r.Headline
		}

		category, _, _ := strings.Cut(r.Tags, "|")

		products = append(products, Product{
			ID:              r.ID,
			Title:           r.Title,
			Price:           r.Price,
			DiscountedPrice: r.Price,
			URL:             r.ProductURL,
			Image:           r.ImageURL,
			Description:     desc,
			Brand:           r.Source,
			Category:        category,
			Score:           score,
			Rank:            i + 1,
		})
	}
	return products
}

// assistantResponse phrases the result set conversationally: result count
// plus the observed price range.
func assistantResponse(query string, products []Product) string {
	if len(products) == 0 {
		return fmt.Sprintf("I couldn't find any products matching '%s'. Could you try a different search or be more specific about what you're looking for?", query)
	}

	count := len(products)

	var minPrice, maxPrice float64
	for _, p := range products {
		if p.Price <= 0 {
			continue
		}
		if minPrice == 0 || p.Price < minPrice {
			minPrice = p.Price
		}
		if p.Price > maxPrice {
			maxPrice = p.Price
		}
	}

	priceInfo := ""
	if minPrice > 0 {
		if minPrice != maxPrice {
			priceInfo = fmt.Sprintf(" ranging from %g to %g", minPrice, maxPrice)
		} else {
			priceInfo = fmt.Sprintf(" at %g", minPrice)
		}
	}

	variants := []string{
		fmt.Sprintf("I found %d great options for you%s! Here are my top recommendations:", count, priceInfo),
		fmt.Sprintf("Here are %d products that match what you're looking for%s:", count, priceInfo),
		fmt.Sprintf("Based on your search, I've found %d items%s that you might love:", count, priceInfo),
		fmt.Sprintf("Great news! I found %d products%s that fit your criteria:", count, priceInfo),
	}
	return variants[rand.Intn(len(variants))]
}
