package chat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/analytics-chat/internal/errors"
	"github.com/seanankenbruck/analytics-chat/internal/history"
	"github.com/seanankenbruck/analytics-chat/internal/llm"
	"github.com/seanankenbruck/analytics-chat/internal/observability"
	"github.com/seanankenbruck/analytics-chat/internal/semantic"
)

// AuthMiddleware is an interface for authentication middleware.
// RequirePermission gates a route on an API key scope such as
// "chat:ask"; interactive logins are unaffected by it.
type AuthMiddleware interface {
	Middleware() gin.HandlerFunc
	RequirePermission(permission string) gin.HandlerFunc
}

// BudgetGuard enforces per-user spend limits. CheckBudget runs before a
// chat run starts; RecordCost books the run's actual spend afterwards.
type BudgetGuard interface {
	CheckBudget(userID string, cost float64) error
	RecordCost(userID string, cost float64) error
}

// Server exposes the chat pipeline over HTTP.
type Server struct {
	service       *Service
	resolver      *semantic.Resolver
	store         *history.Store
	usage         *llm.UsageTracker
	healthChecker *observability.HealthChecker
	budget        BudgetGuard
}

// NewServer wires the HTTP layer. The history store may be nil.
func NewServer(service *Service, resolver *semantic.Resolver, store *history.Store, usage *llm.UsageTracker) *Server {
	return &Server{
		service:  service,
		resolver: resolver,
		store:    store,
		usage:    usage,
	}
}

// SetHealthChecker sets the health checker for the server
func (s *Server) SetHealthChecker(healthChecker *observability.HealthChecker) {
	s.healthChecker = healthChecker
}

// SetBudgetGuard enables per-user cost budget enforcement on chat runs.
func (s *Server) SetBudgetGuard(guard BudgetGuard) {
	s.budget = guard
}

// SetupRoutes configures HTTP routes with optional authentication
func (s *Server) SetupRoutes(authMiddleware AuthMiddleware) *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Public health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if s.healthChecker != nil {
			response := s.healthChecker.GetHealthResponse(c.Request.Context())
			statusCode := http.StatusOK
			if response.Status == observability.HealthStatusUnhealthy {
				statusCode = http.StatusServiceUnavailable
			}
			c.JSON(statusCode, response)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
			"service": "analytics-chat",
		})
	})

	// Protected API routes (require authentication)
	api := r.Group("/api/v1")
	requires := func(permission string) gin.HandlerFunc {
		if authMiddleware == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return authMiddleware.RequirePermission(permission)
	}
	if authMiddleware != nil {
		api.Use(authMiddleware.Middleware())
	}
	{
		api.POST("/chat", requires("chat:ask"), s.handleChat)
		api.GET("/chat/stats", s.handleStats)
		api.POST("/chat/stats/reset", s.handleResetStats)
		api.GET("/suggestions", requires("chat:ask"), s.handleSuggestions)
		api.GET("/history", requires("chat:history"), s.handleHistory)
		api.POST("/vocabulary/reload", requires("vocabulary:reload"), s.handleVocabularyReload)
	}

	return r
}

// handleChat runs the full question/answer pipeline. Pipeline failures
// are terminal statuses in a 200 response; only malformed requests get
// an error status code.
func (s *Server) handleChat(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	userID := c.GetString("user_id")
	if s.budget != nil && userID != "" {
		if err := s.budget.CheckBudget(userID, 0); err != nil {
			budgetErr := errors.NewBudgetExceededError(userID, "current")
			c.JSON(getErrorStatusCode(budgetErr), formatErrorResponse(budgetErr))
			return
		}
	}

	outcome := s.service.Ask(c.Request.Context(), &req)

	if s.budget != nil && userID != "" && outcome.Usage.CostEstimateUSD > 0 {
		if err := s.budget.RecordCost(userID, outcome.Usage.CostEstimateUSD); err != nil {
			observability.GetGlobalMetrics().Inc(observability.MetricChatBudgetRejection, nil)
		}
	}

	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleStats(c *gin.Context) {
	response := gin.H{"runs": s.service.Stats()}
	if s.usage != nil {
		response["usage"] = s.usage.Snapshot()
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleResetStats(c *gin.Context) {
	s.service.ResetStats()
	if s.usage != nil {
		s.usage.Reset()
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleSuggestions returns example questions from the vocabulary so a
// client can offer starting points. With ?q= set, previously answered
// questions similar to the draft are ranked first.
func (s *Server) handleSuggestions(c *gin.Context) {
	var suggestions []string
	seen := make(map[string]bool)

	if draft := c.Query("q"); draft != "" && s.store != nil {
		similar, err := s.store.FindSimilarQuestions(c.Request.Context(), llm.QuestionEmbedding(draft))
		if err == nil {
			for _, sq := range similar {
				if !seen[sq.Question] {
					seen[sq.Question] = true
					suggestions = append(suggestions, sq.Question)
				}
			}
		}
	}

	for _, ex := range s.resolver.FewShotExamples(10) {
		if !seen[ex.Question] {
			seen[ex.Question] = true
			suggestions = append(suggestions, ex.Question)
		}
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []history.Record{}, "count": 0})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	runs, err := s.store.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, formatErrorResponse(err))
		return
	}
	if runs == nil {
		runs = []history.Record{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// handleVocabularyReload swaps in the vocabulary document from disk.
// The previous document stays active if the reload fails.
func (s *Server) handleVocabularyReload(c *gin.Context) {
	if err := s.resolver.Reload(c.Request.Context()); err != nil {
		observability.GetGlobalMetrics().Inc(observability.MetricVocabularyReloadErrors, nil)
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	observability.GetGlobalMetrics().Inc(observability.MetricVocabularyReloads, nil)
	c.JSON(http.StatusOK, gin.H{
		"status": "reloaded",
		"table":  s.resolver.Table(),
	})
}

// formatErrorResponse formats an error into a user-friendly response
func formatErrorResponse(err error) gin.H {
	if enhancedErr, ok := err.(*errors.EnhancedError); ok {
		response := gin.H{
			"error": gin.H{
				"code":    enhancedErr.Code,
				"message": enhancedErr.Message,
			},
		}

		if enhancedErr.Details != "" {
			response["error"].(gin.H)["details"] = enhancedErr.Details
		}

		if enhancedErr.Suggestion != "" {
			response["error"].(gin.H)["suggestion"] = enhancedErr.Suggestion
		}

		if len(enhancedErr.Metadata) > 0 {
			response["error"].(gin.H)["metadata"] = enhancedErr.Metadata
		}

		return response
	}

	// Fallback for regular errors
	return gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	}
}

// getErrorStatusCode returns the appropriate HTTP status code for an error
func getErrorStatusCode(err error) int {
	if enhancedErr, ok := err.(*errors.EnhancedError); ok {
		switch enhancedErr.Code {
		case errors.ErrCodeInvalidInput, errors.ErrCodeMissingRequired, errors.ErrCodeSQLValidation:
			return http.StatusBadRequest
		case errors.ErrCodeInvalidCredentials, errors.ErrCodeNotAuthenticated:
			return http.StatusUnauthorized
		case errors.ErrCodeInsufficientPerms, errors.ErrCodeBudgetExceeded:
			return http.StatusForbidden
		case errors.ErrCodeLLMRateLimited:
			return http.StatusTooManyRequests
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
