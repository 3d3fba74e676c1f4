// Package web serves the read-only status console: a small JSON API meant
// for an operator LAN, enabled only when a listen address is configured.
package web

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/backend"
	"github.com/go-dtn/dtnntp/internal/config"
	"github.com/go-dtn/dtnntp/internal/database"
)

// Server is the gin-backed status console.
type Server struct {
	cfg     *config.Config
	db      *database.Database
	backend *backend.Backend
	engine  *gin.Engine
	http    *http.Server
}

// NewServer wires the routes. Call Start to begin serving.
func NewServer(cfg *config.Config, db *database.Database, b *backend.Backend) *Server {
	if cfg.Web.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}))

	s := &Server{cfg: cfg, db: db, backend: b, engine: engine}

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.GET("/groups", s.handleGroups)
	api.GET("/groups/:name/articles", s.handleGroupArticles)

	return s
}

// Start serves until Stop is called. Returns immediately; serving happens in
// a background goroutine.
func (s *Server) Start() {
	s.http = &http.Server{Addr: s.cfg.Web.Listen, Handler: s.engine}
	go func() {
		log.Printf("Status console listening on %s", s.cfg.Web.Listen)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Status console failed: %v", err)
		}
	}()
}

// Stop closes the listener.
func (s *Server) Stop() {
	if s.http != nil {
		s.http.Close()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"version": config.AppVersion,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Status())
}

func (s *Server) handleGroups(c *gin.Context) {
	stats, err := s.db.AllGroupStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	groups, err := s.db.GetNewsgroups()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	descriptions := make(map[string]string, len(groups))
	for _, g := range groups {
		descriptions[g.Name] = g.Description
	}

	type row struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Count       int64  `json:"count"`
		Low         int64  `json:"low"`
		High        int64  `json:"high"`
	}
	rows := make([]row, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, row{
			Name:        st.Name,
			Description: descriptions[st.Name],
			Count:       st.Count,
			Low:         st.Low,
			High:        st.High,
		})
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleGroupArticles(c *gin.Context) {
	name := c.Param("name")
	if _, err := s.db.GetNewsgroupByName(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such group"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	articles, err := s.db.GetArticlesInRange(name, 1, int64(1)<<62-1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(articles) > limit {
		articles = articles[len(articles)-limit:]
	}

	type row struct {
		Number    int64  `json:"number"`
		Subject   string `json:"subject"`
		From      string `json:"from"`
		Date      string `json:"date"`
		MessageID string `json:"message_id"`
	}
	rows := make([]row, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, row{
			Number:    a.ID,
			Subject:   a.Subject,
			From:      a.FromHeader,
			Date:      a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			MessageID: a.MessageID,
		})
	}
	c.JSON(http.StatusOK, rows)
}
