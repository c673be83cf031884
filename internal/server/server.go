package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"eventrec/recommender/internal/domain"
	"eventrec/recommender/internal/metrics"
	"eventrec/recommender/internal/recommend"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

type Recommender interface {
	Recommend(ctx context.Context, userID string, lat, lon float64) ([]domain.Item, error)
}

// History is the part of the repository the API reads and writes.
type History interface {
	FavoriteItemIDs(ctx context.Context, userID string) (domain.StringSet, error)
	FavoriteItems(ctx context.Context, userID string) ([]domain.Item, error)
	SetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error
	UnsetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error
}

// Server is the HTTP API of the recommender
type Server struct {
	router         *gin.Engine
	recommender    Recommender
	search         recommend.ItemSearch
	history        History
	requestTimeout time.Duration
}

func NewServer(recommender Recommender, search recommend.ItemSearch, history History, requestTimeout time.Duration) *Server {
	s := &Server{
		router:         gin.New(),
		recommender:    recommender,
		search:         search,
		history:        history,
		requestTimeout: requestTimeout,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Handler returns the router for use with an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.GET("/recommendation", s.handleRecommendation)
	v1.GET("/search", s.handleSearch)
	v1.GET("/history", s.handleGetHistory)
	v1.POST("/history", s.handleSetHistory)
	v1.DELETE("/history", s.handleUnsetHistory)
}

// requestLogger tags each request with an id and writes one log entry
// when it completes.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Debug("request served")
	}
}

// itemResponse is an Item as the API shows it to one user.
type itemResponse struct {
	domain.Item
	Favorite bool `json:"favorite"`
}

type historyRequest struct {
	UserID    string   `json:"user_id" binding:"required"`
	Favorites []string `json:"favorite" binding:"required"`
}

// handleRecommendation
// GET /api/v1/recommendation?user_id=&lat=&lon=
func (s *Server) handleRecommendation(c *gin.Context) {
	userID, lat, lon, err := parseLocationQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	items, err := s.recommender.Recommend(ctx, userID, lat, lon)
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues("error").Inc()
		s.abortWithError(c, err)
		return
	}

	if len(items) == 0 {
		metrics.RecommendationsTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.RecommendationsTotal.WithLabelValues("ok").Inc()
	}
	metrics.RecommendedItems.Observe(float64(len(items)))

	// favorites are never recommended
	c.JSON(http.StatusOK, toResponse(items, nil))
}

// handleSearch
// GET /api/v1/search?user_id=&lat=&lon=&term=
func (s *Server) handleSearch(c *gin.Context) {
	userID, lat, lon, err := parseLocationQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	term := c.Query("term")

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	items, err := s.search.SearchItems(ctx, lat, lon, term)
	if err != nil {
		s.abortWithError(c, &recommend.DependencyError{Op: "search", Err: err})
		return
	}

	favorites, err := s.history.FavoriteItemIDs(ctx, userID)
	if err != nil {
		s.abortWithError(c, &recommend.DependencyError{Op: "favorite items", Err: err})
		return
	}

	c.JSON(http.StatusOK, toResponse(items, favorites))
}

// handleGetHistory
// GET /api/v1/history?user_id=
func (s *Server) handleGetHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	items, err := s.history.FavoriteItems(ctx, userID)
	if err != nil {
		s.abortWithError(c, fmt.Errorf("failed to load favorite items: %w", err))
		return
	}

	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, itemResponse{Item: item, Favorite: true})
	}
	c.JSON(http.StatusOK, out)
}

// handleSetHistory
// POST /api/v1/history {"user_id": "...", "favorite": ["..."]}
func (s *Server) handleSetHistory(c *gin.Context) {
	var req historyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	if err := s.history.SetFavoriteItems(ctx, req.UserID, req.Favorites); err != nil {
		s.abortWithError(c, fmt.Errorf("failed to save favorites: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "SUCCESS"})
}

// handleUnsetHistory
// DELETE /api/v1/history {"user_id": "...", "favorite": ["..."]}
func (s *Server) handleUnsetHistory(c *gin.Context) {
	var req historyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	if err := s.history.UnsetFavoriteItems(ctx, req.UserID, req.Favorites); err != nil {
		s.abortWithError(c, fmt.Errorf("failed to delete favorites: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "SUCCESS"})
}

func (s *Server) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

// abortWithError answers 502 when a collaborator failed and 500 otherwise.
func (s *Server) abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var depErr *recommend.DependencyError
	if errors.As(err, &depErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseLocationQuery(c *gin.Context) (userID string, lat, lon float64, err error) {
	userID = c.Query("user_id")
	if userID == "" {
		return "", 0, 0, errors.New("user_id is required")
	}

	lat, err = parseCoordinate(c.Query("lat"), "lat", 90)
	if err != nil {
		return "", 0, 0, err
	}
	lon, err = parseCoordinate(c.Query("lon"), "lon", 180)
	if err != nil {
		return "", 0, 0, err
	}
	return userID, lat, lon, nil
}

func parseCoordinate(raw, name string, limit float64) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	// written so NaN fails too
	if !(v >= -limit && v <= limit) {
		return 0, fmt.Errorf("%s must be within [-%g, %g]", name, limit, limit)
	}
	return v, nil
}

func toResponse(items []domain.Item, favorites domain.StringSet) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, itemResponse{Item: item, Favorite: favorites.Has(item.ID)})
	}
	return out
}
