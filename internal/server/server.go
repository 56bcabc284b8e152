package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/config"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/pipeline"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/rules"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/llm"
)

type Server struct {
	Redliner *core.Redliner
	store    *documentStore
	intake   *semaphore.Weighted
	logger   *zap.Logger
}

// NewServer wires the engine from config plus environment overrides.
func NewServer(logger *zap.Logger) (*Server, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	if envProvider := os.Getenv("LLM_PROVIDER"); envProvider != "" {
		cfg.LLM.Provider = envProvider
	}
	if envModel := os.Getenv("LLM_MODEL"); envModel != "" {
		cfg.LLM.Model = envModel
	}
	if envAPIKey := os.Getenv("LLM_API_KEY"); envAPIKey != "" {
		cfg.LLM.APIKey = envAPIKey
	}
	if envBaseURL := os.Getenv("LLM_BASE_URL"); envBaseURL != "" {
		cfg.LLM.BaseURL = envBaseURL
	}
	if envRedis := os.Getenv("REDIS_URL"); envRedis != "" {
		cfg.Cache.RedisURL = envRedis
	}

	llmClient, err := llm.NewClient(context.Background(), cfg.LLM)
	if err != nil {
		return nil, err
	}

	ruleSet, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, err
	}

	var cache pipeline.RecallCache
	if cfg.Cache.RedisURL != "" {
		rc, err := pipeline.NewRedisCache(cfg.Cache.RedisURL, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		if err != nil {
			logger.Warn("similarity cache unavailable, continuing without it", zap.Error(err))
		} else {
			cache = rc
		}
	}

	return &Server{
		Redliner: core.NewRedliner(llmClient, ruleSet, cache, cfg, logger),
		store:    newDocumentStore(),
		intake:   semaphore.NewWeighted(int64(cfg.Server.MaxConcurrentDocuments)),
		logger:   logger,
	}, nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/review", s.Review)
	r.GET("/documents/:id", s.Download)
	r.POST("/documents/:id/export", s.Export)
	r.GET("/health", s.Health)

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Review accepts a .docx upload, runs the full pipeline, and returns the
// edit set plus a download id for the revised document.
func (s *Server) Review(c *gin.Context) {
	file, _, err := c.Request.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'document' file field"})
		return
	}
	defer file.Close()

	docBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}

	ctx := c.Request.Context()
	if err := s.intake.Acquire(ctx, 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy"})
		return
	}
	defer s.intake.Release(1)

	result, err := s.Redliner.ReviewDocument(ctx, docBytes)
	if err != nil {
		s.failStage(c, err)
		return
	}

	rec := s.store.put(docBytes, result)
	c.JSON(http.StatusOK, gin.H{
		"document_id":         rec.ID,
		"edit_set":            result.Review.EditSet,
		"stats":               result.Review.Stats,
		"degraded":            result.Review.Degraded,
		"validation_coverage": result.ValidationCoverage,
		"emit_report":         result.EmitReport,
	})
}

// Download streams the revised document.
func (s *Server) Download(c *gin.Context) {
	rec, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document id"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="redlined.docx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", rec.Result.Revised)
}

type exportRequest struct {
	AcceptedIDs []string `json:"accepted_ids"`
}

// Export re-emits the original document with only the reviewer-accepted
// edits, producing the final clean redline.
func (s *Server) Export(c *gin.Context) {
	rec, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document id"})
		return
	}

	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.Redliner.Export(c.Request.Context(), rec.Original, rec.Result.Review.EditSet, req.AcceptedIDs)
	if err != nil {
		s.failStage(c, err)
		return
	}

	out := s.store.put(rec.Original, result)
	c.JSON(http.StatusOK, gin.H{
		"document_id": out.ID,
		"emit_report": result.EmitReport,
	})
}

// failStage returns the structured failure contract: a specific stage tag
// and cause, never a generic processing error.
func (s *Server) failStage(c *gin.Context, err error) {
	s.logger.Error("document review failed", zap.Error(err))

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		status := http.StatusUnprocessableEntity
		var recallErr *pipeline.RecallError
		if errors.As(err, &recallErr) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"stage": string(stageErr.Stage),
			"error": stageErr.Err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
