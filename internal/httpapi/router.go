// Package httpapi wires the gin router: the catalog read endpoints, admin
// login/auth-check, trending updates, search, and the Range-aware streaming
// endpoint (C5). Every handler funnels its error through apierr.StatusCode
// so the mapping from internal error to HTTP status lives in exactly one
// place.
package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reelnn/streamvault/internal/apierr"
	"github.com/reelnn/streamvault/internal/cache"
	"github.com/reelnn/streamvault/internal/catalog"
	"github.com/reelnn/streamvault/internal/streamer"
	"github.com/reelnn/streamvault/internal/tokens"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	store    *catalog.Store
	cache    *cache.Cache
	streamer *streamer.Streamer
	tokens   *tokens.Service
	logger   *zap.Logger

	reqLogMu sync.RWMutex
	reqLogs  []RequestLog
}

// Config supplies Server's dependencies.
type Config struct {
	Store    *catalog.Store
	Cache    *cache.Cache
	Streamer *streamer.Streamer
	Tokens   *tokens.Service
	Logger   *zap.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	return &Server{
		store:    cfg.Store,
		cache:    cfg.Cache,
		streamer: cfg.Streamer,
		tokens:   cfg.Tokens,
		logger:   cfg.Logger,
		reqLogs:  make([]RequestLog, 0, 300),
	}
}

// RequestLog tracks one /api/v1/dl request for the admin diagnostics
// endpoint, a bounded circular buffer of the last 300 requests.
type RequestLog struct {
	Timestamp  time.Time `json:"timestamp"`
	ID         string    `json:"id"`
	ClientIP   string    `json:"client_ip"`
	RangeStart int64     `json:"range_start"`
	RangeEnd   int64     `json:"range_end"`
	FileSize   int64     `json:"file_size"`
	StatusCode int       `json:"status_code"`
	DurationMs int64     `json:"duration_ms"`
}

func (s *Server) addRequestLog(rl RequestLog) {
	s.reqLogMu.Lock()
	defer s.reqLogMu.Unlock()
	if len(s.reqLogs) >= 300 {
		s.reqLogs = s.reqLogs[1:]
	}
	s.reqLogs = append(s.reqLogs, rl)
}

func (s *Server) getRequestLogs() []RequestLog {
	s.reqLogMu.RLock()
	defer s.reqLogMu.RUnlock()
	out := make([]RequestLog, len(s.reqLogs))
	copy(out, s.reqLogs)
	return out
}

// Router builds the full gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/login", s.handleLogin)
		v1.GET("/auth-check", s.handleAuthCheck)

		v1.GET("/heroslider", s.handleHeroSlider)
		v1.GET("/getlatest/:media_type", s.handleGetLatest)
		v1.GET("/getMovieDetails/:mid", s.handleGetMovieDetails)
		v1.GET("/getShowDetails/:sid", s.handleGetShowDetails)
		v1.GET("/paginated/:media_type", s.handlePaginated)
		v1.GET("/trending", s.handleTrending)
		v1.POST("/update_trending", s.adminRequired(), s.handleUpdateTrending)
		v1.GET("/search", s.handleSearch)
		v1.GET("/search/:media_type", s.handleSearchByType)
		v1.GET("/similar", s.handleSimilar)
		v1.GET("/dl/:id", s.handleStream)

		v1.GET("/admin/requests", s.adminRequired(), s.handleAdminRequests)
	}

	return r
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Range, Content-Type")
		c.Next()
	}
}

// adminRequired validates the admin bearer token before letting the request
// reach the handler.
func (s *Server) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := tokens.ExtractToken(c.GetHeader("Authorization"), c.Query("token"))
		if tok == "" {
			s.fail(c, fmt.Errorf("%w: missing token", apierr.ErrAuth))
			c.Abort()
			return
		}
		if _, err := s.tokens.VerifyAdminToken(tok); err != nil {
			s.fail(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// fail writes a JSON error envelope using apierr.StatusCode as the single
// source of truth for the HTTP status.
func (s *Server) fail(c *gin.Context, err error) {
	status := apierr.StatusCode(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleLogin(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	token, err := s.tokens.Authenticate(username, password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleAuthCheck(c *gin.Context) {
	tok := tokens.ExtractToken(c.GetHeader("Authorization"), c.Query("token"))
	claims, err := s.tokens.VerifyAdminToken(tok)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "subject": claims.Subject})
}

func (s *Server) handleHeroSlider(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.GetHeroSlider())
}

func (s *Server) handleGetLatest(c *gin.Context) {
	mediaType := c.Param("media_type")
	if mediaType != "movie" && mediaType != "show" {
		s.fail(c, fmt.Errorf("%w: media_type must be movie or show", apierr.ErrInvalidRequest))
		return
	}
	limit := 21
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	c.JSON(http.StatusOK, s.cache.GetLatest(mediaType, limit))
}

func (s *Server) handleGetMovieDetails(c *gin.Context) {
	rec, err := s.store.FindMovieByID(c.Request.Context(), c.Param("mid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetShowDetails(c *gin.Context) {
	rec, err := s.store.FindShowByID(c.Request.Context(), c.Param("sid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handlePaginated(c *gin.Context) {
	mediaType := c.Param("media_type")
	if mediaType != "movie" && mediaType != "show" {
		s.fail(c, fmt.Errorf("%w: media_type must be movie or show", apierr.ErrInvalidRequest))
		return
	}

	page := queryInt(c, "page", 1)
	itemsPerPage := int64(queryInt(c, "items_per_page", 20))
	sortBy := catalog.NormalizeSortMode(c.Query("sort_by"))
	skip := int64(page-1) * itemsPerPage
	if skip < 0 {
		skip = 0
	}

	var items []catalog.CardRecord
	var total int64
	var err error
	if mediaType == "movie" {
		items, total, err = s.store.FindMoviesPaginated(c.Request.Context(), skip, itemsPerPage, sortBy)
	} else {
		items, total, err = s.store.FindShowsPaginated(c.Request.Context(), skip, itemsPerPage, sortBy)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total_count": total})
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (s *Server) handleTrending(c *gin.Context) {
	movies, shows := s.cache.GetTrending()
	c.JSON(http.StatusOK, gin.H{"movie": movies, "show": shows})
}

func (s *Server) handleUpdateTrending(c *gin.Context) {
	var body struct {
		Movie []string `json:"movie"`
		Show  []string `json:"show"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, fmt.Errorf("%w: %s", apierr.ErrInvalidRequest, err))
		return
	}
	if err := s.store.SaveTrendingConfig(c.Request.Context(), body.Movie, body.Show); err != nil {
		s.fail(c, err)
		return
	}
	s.cache.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if len(query) < 2 {
		s.fail(c, fmt.Errorf("%w: query must be at least 2 characters", apierr.ErrInvalidRequest))
		return
	}
	limit := int64(queryInt(c, "limit", 20))
	if limit > 50 {
		limit = 50
	}
	results, err := s.store.Search(c.Request.Context(), query, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleSearchByType(c *gin.Context) {
	mediaType := c.Param("media_type")
	query := c.Query("query")
	results, err := s.store.SearchSubstring(c.Request.Context(), mediaType, query)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleSimilar(c *gin.Context) {
	mediaType := c.Query("media_type")
	genresParam := c.Query("genres")
	genres := strings.Split(genresParam, ",")
	if len(genres) == 0 || genresParam == "" {
		s.fail(c, fmt.Errorf("%w: at least one genre is required", apierr.ErrInvalidRequest))
		return
	}
	if len(genres) > 2 {
		genres = genres[:2]
	}
	results, err := s.store.FindSimilar(c.Request.Context(), mediaType, genres, 20)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// adminRequestLogView adds a human-readable size alongside the raw byte
// count, for the admin diagnostics page.
type adminRequestLogView struct {
	RequestLog
	FileSizeHuman string `json:"file_size_human"`
}

func (s *Server) handleAdminRequests(c *gin.Context) {
	logs := s.getRequestLogs()
	views := make([]adminRequestLogView, 0, len(logs))
	for _, l := range logs {
		views = append(views, adminRequestLogView{RequestLog: l, FileSizeHuman: humanize.Bytes(uint64(l.FileSize))})
	}
	c.JSON(http.StatusOK, views)
}
