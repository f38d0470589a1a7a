package mockbackend

import (
	"hash/fnv"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultTranscripts are returned by completed tasks.
var DefaultTranscripts = []string{
	"I've always been fascinated by cars, especially classic muscle cars from the 60s and 70s. The raw power and beautiful design of those vehicles is just incredible.",
	"Bald eagles are such majestic creatures. I love watching them soar through the sky and dive down to catch fish. Their white heads against the blue sky is a sight I'll never forget.",
	"Deep sea diving opens up a whole new world of exploration. The mysterious creatures and stunning coral reefs you encounter at those depths are unlike anything else on Earth.",
}

// DefaultCategories are the labels a completed task is classified into.
var DefaultCategories = []string{
	"Meeting Notes",
	"Personal Conversation",
	"Technical Discussion",
	"Customer Support Interaction",
	"Other",
}

// Config controls the simulated backend.
type Config struct {
	// Duration is how long a task takes from submission to completion.
	Duration time.Duration
	// FailProviders lists providers whose tasks end in error halfway through.
	FailProviders []string
	Transcripts   []string
	Categories    []string
	// AllowAnonymous accepts requests without identity headers.
	AllowAnonymous bool
}

type task struct {
	id          string
	provider    string
	audioSize   int64
	submittedAt time.Time
}

// Server simulates the transcription backend.
type Server struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	tasks map[string]task
}

func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.Duration <= 0 {
		cfg.Duration = 8 * time.Second
	}
	if len(cfg.Transcripts) == 0 {
		cfg.Transcripts = DefaultTranscripts
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		tasks:  make(map[string]task),
	}
}

// Handler returns a gin engine serving the backend routes.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	s.SetupRoutes(router)
	return router
}

// SetupRoutes configures the backend routes on router.
func (s *Server) SetupRoutes(router *gin.Engine) {
	api := router.Group("/")
	if !s.cfg.AllowAnonymous {
		api.Use(requireIdentity)
	}
	api.POST("/transcribe", s.submit)
	api.GET("/transcribe/status/:task", s.status)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func requireIdentity(c *gin.Context) {
	for _, header := range []string{"X-User-ID", "X-API-Version"} {
		if strings.TrimSpace(c.GetHeader(header)) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing " + header + " header"})
			return
		}
	}
	c.Next()
}

// submit handles POST /transcribe
func (s *Server) submit(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.PostForm("provider")))
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required"})
		return
	}
	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}

	id := strings.TrimSpace(c.PostForm("id"))
	if id == "" {
		id = uuid.NewString()
	}

	t := task{
		id:          id,
		provider:    provider,
		audioSize:   file.Size,
		submittedAt: s.now(),
	}
	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()

	s.logger.Info("task accepted",
		slog.String("task_id", id),
		slog.String("provider", provider),
		slog.Int64("bytes", file.Size),
		slog.String("user", c.GetHeader("X-User-ID")),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"taskId": id,
		"status": "pending",
	})
}

// status handles GET /transcribe/status/:task
func (s *Server) status(c *gin.Context) {
	id := c.Param("task")

	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, s.snapshot(t))
}

// snapshot derives the task state from elapsed time.
func (s *Server) snapshot(t task) gin.H {
	elapsed := s.now().Sub(t.submittedAt)
	fraction := float64(elapsed) / float64(s.cfg.Duration)

	failing := lo.Contains(s.cfg.FailProviders, t.provider)
	switch {
	case failing && fraction >= 0.5:
		return gin.H{
			"status":        "error",
			"progress":      50,
			"transcription": nil,
			"category":      nil,
			"error":         "Transcription failed for provider " + t.provider,
		}
	case fraction >= 1:
		return gin.H{
			"status":        "complete",
			"progress":      100,
			"transcription": s.transcriptFor(t.id),
			"category":      s.categoryFor(t),
		}
	case fraction < 0.1:
		return gin.H{
			"status":        "pending",
			"progress":      0,
			"transcription": nil,
			"category":      nil,
		}
	default:
		return gin.H{
			"status":        "processing",
			"progress":      int(fraction * 100),
			"transcription": nil,
			"category":      nil,
		}
	}
}

func (s *Server) transcriptFor(id string) string {
	return pick(s.cfg.Transcripts, id)
}

// categoryFor is keyed on provider and task id.
func (s *Server) categoryFor(t task) string {
	return pick(s.cfg.Categories, t.provider+"/"+t.id)
}

func pick(values []string, key string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return values[int(h.Sum32()%uint32(len(values)))]
}
