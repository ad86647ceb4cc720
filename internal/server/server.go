// Package server exposes the invoice pipeline over HTTP for the desktop
// front-end.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/internal/pipeline"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// Config holds the HTTP listener settings
type Config struct {
	Addr           string        `json:"addr" mapstructure:"addr"`
	AllowedOrigins []string      `json:"allowed_origins" mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	// WriteTimeout bounds a whole batch run, so it is generous
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
}

// DefaultConfig listens on :8000 and accepts the desktop shell origins
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8000",
		AllowedOrigins: []string{"http://localhost:34115", "http://wails.localhost:34115"},
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Minute,
	}
}

// Validate checks the server configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin is required")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// Runner executes one pipeline request
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// ProcessResponse is the body of POST /process-invoices. Failed runs report
// success false, zero counts and the error in Message and Detail.
type ProcessResponse struct {
	Success               bool                `json:"success"`
	Message               string              `json:"message"`
	TotalProcessed        int                 `json:"total_processed"`
	SuccessfulExtractions int                 `json:"successful_extractions"`
	FailedExtractions     int                 `json:"failed_extractions"`
	ExcelFilePath         string              `json:"excel_file_path"`
	NewCustomersAdded     []string            `json:"new_customers_added"`
	FuzzyMatchesFound     []models.FuzzyMatch `json:"fuzzy_matches_found"`
	RunID                 string              `json:"run_id,omitempty"`
	Detail                string              `json:"detail,omitempty"`
}

func failureResponse(detail string) ProcessResponse {
	return ProcessResponse{
		Success:           false,
		Message:           detail,
		NewCustomersAdded: []string{},
		FuzzyMatchesFound: []models.FuzzyMatch{},
		Detail:            detail,
	}
}

// Server is the gin HTTP boundary around a Runner
type Server struct {
	config     *Config
	runner     Runner
	version    string
	log        logger.Logger
	router     *gin.Engine
	httpServer *http.Server
}

// New builds the router. A nil config uses DefaultConfig.
func New(config *Config, runner Runner, version string, log logger.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "server", config.Addr, err)
	}

	s := &Server{
		config:  config,
		runner:  runner,
		version: version,
		log:     logger.OrGlobal(log, "server"),
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(s.requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.POST("/process-invoices", s.processInvoices)
	return router
}

// Handler returns the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.WithField("addr", s.config.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NetworkError(errors.CodeConnectionFailed, s.config.Addr, err)
	}
	return nil
}

// Shutdown stops the listener gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Invoice AI Processor API", "version": s.version})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "Invoice AI Processor is running"})
}

func (s *Server) processInvoices(c *gin.Context) {
	log := s.log.WithField("request_id", c.GetString("request_id"))

	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("Rejected malformed request")
		c.JSON(http.StatusBadRequest, failureResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	result, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		log.WithError(err).WithField("status", status).Warn("Processing failed")
		c.JSON(status, failureResponse(detailFor(status, err)))
		return
	}

	batch := result.Batch
	resp := ProcessResponse{
		Success:               true,
		Message:               "Processing completed successfully",
		TotalProcessed:        len(batch.Invoices),
		SuccessfulExtractions: batch.Stats.RecordsReconciled,
		FailedExtractions:     batch.Stats.ImagesFailed + batch.Stats.RecordsSkipped,
		ExcelFilePath:         result.ExcelPath,
		NewCustomersAdded:     nonNil(batch.NewCustomers),
		FuzzyMatchesFound:     batch.FuzzyMatches,
		RunID:                 batch.Stats.RunID,
	}
	if resp.FuzzyMatchesFound == nil {
		resp.FuzzyMatchesFound = []models.FuzzyMatch{}
	}
	c.JSON(http.StatusOK, resp)
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	ie, ok := errors.AsInvoiceError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ie.Code {
	case errors.CodeInputNotFound:
		return http.StatusNotFound
	case errors.CodeNoInvoicesProcessed, errors.CodeNoImagesFound, errors.CodeNoCustomersFound,
		errors.CodeHeaderNotFound, errors.CodeWorksheetNotFound, errors.CodeMissingField:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "Processing failed: " + err.Error()
	}
	return err.Error()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		s.log.WithFields(logger.Fields{
			"request_id":  c.GetString("request_id"),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("HTTP request")
	}
}
