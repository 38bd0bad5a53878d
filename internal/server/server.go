package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BDNK1/plugrun/internal/runstate"
	"github.com/BDNK1/plugrun/runtime"
)

// APIResponse is the envelope of every response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func sendSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func sendError(c *gin.Context, statusCode int, errorMsg string) {
	c.JSON(statusCode, APIResponse{Success: false, Error: errorMsg})
}

// PlugSummary describes a registered plug.
type PlugSummary struct {
	Provider    string              `json:"provider"`
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	RunEveryMs  int64               `json:"run_every_ms"`
	TotalRuns   int                 `json:"total_runs"`
	Fields      []runtime.FieldSpec `json:"fields"`
}

func summarize(p *runtime.Plug) PlugSummary {
	def := p.Definition
	fields := make([]runtime.FieldSpec, 0, len(def.Fields()))
	for _, f := range def.Fields() {
		fields = append(fields, f.Spec())
	}
	return PlugSummary{
		Provider:    p.ProviderID,
		ID:          p.ID(),
		Title:       def.Title(),
		Description: def.Description(),
		RunEveryMs:  def.RunEvery().Milliseconds(),
		TotalRuns:   def.TotalRuns(),
		Fields:      fields,
	}
}

// ValidateRequest carries the user-supplied field values.
type ValidateRequest struct {
	Values map[string]any `json:"values"`
}

// EligibilityRequest carries a plug's run history. When LastRun is omitted
// and IntegrationID is set, the history is read from the run state store.
type EligibilityRequest struct {
	LastRun        *time.Time `json:"last_run"`
	ExecutionCount int        `json:"execution_count" binding:"gte=0"`
	IntegrationID  string     `json:"integration_id"`
}

// ExecuteRequest describes one invocation.
type ExecuteRequest struct {
	IntegrationID string         `json:"integration_id" binding:"required"`
	AccessToken   string         `json:"access_token"`
	PostID        string         `json:"post_id"`
	Data          map[string]any `json:"data"`
	Values        map[string]any `json:"values"`
}

// Server exposes the registry and executor over HTTP.
type Server struct {
	registry *runtime.Registry
	executor *runtime.Executor
	store    runstate.Store // optional
	l        *slog.Logger
	now      func() time.Time
}

func New(registry *runtime.Registry, executor *runtime.Executor, store runstate.Store, l *slog.Logger) *Server {
	if l == nil {
		l = slog.Default()
	}
	return &Server{
		registry: registry,
		executor: executor,
		store:    store,
		l:        l,
		now:      time.Now,
	}
}

// Router builds the gin engine with routes and middleware. mode is a gin
// mode: debug, release or test.
func (s *Server) Router(mode string) *gin.Engine {
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.l))

	r.GET("/health", s.handleHealth)

	plugs := r.Group("/plugs")
	plugs.GET("", s.handleList)

	plug := plugs.Group("/:provider/:plug", s.resolvePlug)
	plug.GET("", s.handleGet)
	plug.POST("/validate", s.handleValidate)
	plug.POST("/eligibility", s.handleEligibility)
	plug.POST("/execute", s.handleExecute)
	plug.GET("/runs", s.handleRuns)

	return r
}

const plugKey = "plug"

func (s *Server) resolvePlug(c *gin.Context) {
	p, ok := s.registry.Lookup(c.Param("provider"), c.Param("plug"))
	if !ok {
		sendError(c, http.StatusNotFound, "plug not registered: "+c.Param("provider")+"."+c.Param("plug"))
		c.Abort()
		return
	}
	c.Set(plugKey, p)
	c.Next()
}

func currentPlug(c *gin.Context) *runtime.Plug {
	return c.MustGet(plugKey).(*runtime.Plug)
}

func (s *Server) handleHealth(c *gin.Context) {
	sendSuccess(c, gin.H{"status": "healthy", "providers": s.registry.Providers()})
}

func (s *Server) handleList(c *gin.Context) {
	plugs := s.registry.Plugs()
	out := make([]PlugSummary, 0, len(plugs))
	for _, p := range plugs {
		out = append(out, summarize(p))
	}
	sendSuccess(c, out)
}

func (s *Server) handleGet(c *gin.Context) {
	sendSuccess(c, summarize(currentPlug(c)))
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	res := currentPlug(c).Definition.Validate(req.Values)
	sendSuccess(c, gin.H{"valid": res.IsValid(), "errors": res.Errors})
}

func (s *Server) handleEligibility(c *gin.Context) {
	var req EligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	p := currentPlug(c)
	if req.LastRun == nil && req.IntegrationID != "" && s.store != nil {
		state, err := s.store.Get(c.Request.Context(), runstate.Key{Provider: p.ProviderID, Plug: p.ID(), Integration: req.IntegrationID})
		if err != nil {
			s.l.ErrorContext(c.Request.Context(), "Failed to load run state", "plug", p.Key(), "error", err)
			sendError(c, http.StatusInternalServerError, "failed to load run state")
			return
		}
		req.LastRun, req.ExecutionCount = state.LastRunAt, state.ExecutionCount
	}

	now := s.now()
	data := gin.H{
		"eligible":        runtime.ShouldExecuteAt(p.Definition, req.LastRun, req.ExecutionCount, now),
		"last_run":        req.LastRun,
		"execution_count": req.ExecutionCount,
	}
	if req.LastRun != nil {
		data["next_eligible"] = runtime.NextEligible(p.Definition, *req.LastRun)
	}
	sendSuccess(c, data)
}

// handleExecute validates the values first and only invokes the plug when
// they pass. With a store configured the run is recorded.
func (s *Server) handleExecute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	p := currentPlug(c)
	if v := p.Definition.Validate(req.Values); !v.IsValid() {
		c.JSON(http.StatusUnprocessableEntity, APIResponse{
			Success: false,
			Data:    gin.H{"errors": v.Errors},
			Error:   "field validation failed",
		})
		return
	}

	ctx := c.Request.Context()
	now := s.now()
	exec := runtime.NewExecution(req.IntegrationID, req.AccessToken, now)
	if req.PostID != "" {
		exec = exec.WithPost(req.PostID)
	}
	for k, v := range req.Data {
		exec.AddValue(k, v)
	}

	res := s.executor.Run(ctx, p, exec, req.Values)

	data := gin.H{"execution_id": exec.ID, "result": res}
	if s.store != nil {
		state, err := s.store.Record(ctx, runstate.Key{Provider: p.ProviderID, Plug: p.ID(), Integration: req.IntegrationID}, res, now)
		if err != nil {
			s.l.ErrorContext(ctx, "Failed to record plug run", "plug", p.Key(), "error", err)
		} else {
			data["state"] = state
		}
	}

	sendSuccess(c, data)
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.store == nil {
		sendError(c, http.StatusNotImplemented, "run state store is not configured")
		return
	}

	integration := c.Query("integration_id")
	if integration == "" {
		sendError(c, http.StatusBadRequest, "integration_id query parameter is required")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "limit must be a number")
		return
	}

	p := currentPlug(c)
	runs, err := s.store.ListRuns(c.Request.Context(), runstate.Key{Provider: p.ProviderID, Plug: p.ID(), Integration: integration}, limit)
	if err != nil {
		s.l.ErrorContext(c.Request.Context(), "Failed to list runs", "plug", p.Key(), "error", err)
		sendError(c, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []runstate.Run{}
	}
	sendSuccess(c, runs)
}

// requestLogger logs every request through slog.
func requestLogger(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		l.InfoContext(c.Request.Context(), "HTTP request", attrs...)
	}
}
