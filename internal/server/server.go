// Package server exposes the query pipeline over HTTP.
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"ragserver/internal/rag"
	"ragserver/internal/records"
)

// Server hosts the HTTP API over a query pipeline and record set.
type Server struct {
	pipeline *rag.Pipeline
	records  []records.Record
	addr     string
}

// New creates a server. The record set is only used by the status endpoint.
func New(pipeline *rag.Pipeline, recs []records.Record, addr string) *Server {
	return &Server{
		pipeline: pipeline,
		records:  recs,
		addr:     addr,
	}
}

// response is the uniform envelope every endpoint answers with.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// questionRequest is the body for question and search endpoints.
type questionRequest struct {
	Question string `json:"question"`
}

// answerRequest is the body for the generation-only endpoint: the caller
// supplies the context documents directly.
type answerRequest struct {
	Question string   `json:"question"`
	Context  []string `json:"context"`
}

// questionResponse pairs the generated answer with its retrieval details.
type questionResponse struct {
	Answer  string       `json:"answer"`
	Details *rag.Details `json:"details"`
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api/v1")
	{
		api.POST("/question", s.handleQuestion)
		api.POST("/search", s.handleSearch)
		api.POST("/answer", s.handleAnswer)
		api.GET("/status", s.handleStatus)
	}

	return r
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	log.Info("Starting HTTP server", "addr", s.addr)
	return s.Router().Run(s.addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, response{Success: true, Data: gin.H{"status": "ok"}})
}

// handleQuestion runs the combined flow: retrieval then generation.
func (s *Server) handleQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	details, answer, err := s.pipeline.Ask(c.Request.Context(), req.Question)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, response{Success: true, Data: questionResponse{
		Answer:  answer.Text,
		Details: details,
	}})
}

// handleSearch runs retrieval only.
func (s *Server) handleSearch(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	details, err := s.pipeline.Retrieve(c.Request.Context(), req.Question)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, response{Success: true, Data: details})
}

// handleAnswer runs generation only, over caller-supplied context.
func (s *Server) handleAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.pipeline.Generate(c.Request.Context(), req.Question, req.Context)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, response{Success: true, Data: answer})
}

// handleStatus reports ingestion progress for the loaded record set.
func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.pipeline.Status(c.Request.Context(), s.records)
	if err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	c.JSON(http.StatusOK, response{Success: true, Data: status})
}

// respondPipelineError maps pipeline failures onto HTTP statuses. Every
// failure leaves through the envelope, never as an unhandled fault.
func respondPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rag.ErrNoResults):
		respondError(c, http.StatusNotFound, err.Error())
	case strings.Contains(err.Error(), "cannot be empty"):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		log.Warn("Pipeline request failed", "error", err)
		respondError(c, http.StatusBadGateway, err.Error())
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, response{Success: false, Error: msg})
}
