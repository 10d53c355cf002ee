// Package devserver is a self-contained, in-memory control plane implementing
// the REST and websocket surface the console consumes. It exists for local
// development, demos, and end-to-end tests; nothing survives a restart.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ayman-m/yaragent/internal/domain"
)

// Server is the development control plane.
type Server struct {
	echo   *echo.Echo
	policy *policyEngine

	setupToken  string
	pushTimeout time.Duration
	staleAfter  time.Duration
	now         func() time.Time

	mu          sync.Mutex
	initialized bool
	username    string
	password    string
	settings    domain.SetupSettings
	tokens      map[string]string
	rules       map[string]*storedRule
	agents      map[string]*agentRecord
}

// Option configures a Server.
type Option func(*Server)

// WithSetupToken requires the given token during first-run setup.
func WithSetupToken(token string) Option {
	return func(s *Server) { s.setupToken = token }
}

// WithPushTimeout overrides how long a rule push waits for the agent's
// compile result.
func WithPushTimeout(d time.Duration) Option {
	return func(s *Server) { s.pushTimeout = d }
}

// WithStaleAfter overrides the heartbeat age after which a connected agent is
// reported stale.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Server) { s.staleAfter = d }
}

// New creates a development control plane.
func New(ctx context.Context, opts ...Option) (*Server, error) {
	engine, err := newPolicyEngine(ctx, DefaultPushPolicy)
	if err != nil {
		return nil, err
	}

	s := &Server{
		policy:      engine,
		pushTimeout: 15 * time.Second,
		staleAfter:  90 * time.Second,
		now:         time.Now,
		tokens:      make(map[string]string),
		rules:       make(map[string]*storedRule),
		agents:      make(map[string]*agentRecord),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	s.registerRoutes(e)
	s.echo = e
	return s, nil
}

// Handler exposes the server as an http.Handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/setup/status", s.handleSetupStatus)
	e.POST("/auth/setup", s.handleSetup)
	e.POST("/auth/login", s.handleLogin)
	e.GET("/agent/ws", s.handleAgentWS)

	authed := e.Group("", s.authMiddleware)
	authed.GET("/agents", s.handleListAgents)
	authed.GET("/agents/:id/profile", s.handleAgentProfile)
	authed.POST("/push_rule", s.handlePushRule)
	authed.GET("/yara/rules", s.handleListRules)
	authed.GET("/yara/rules/:name", s.handleGetRule)
	authed.POST("/yara/rules", s.handleCreateRule)
	authed.PUT("/yara/rules/:name", s.handleUpdateRule)
	authed.DELETE("/yara/rules/:name", s.handleDeleteRule)
	authed.POST("/yara/validate", s.handleValidate)
	authed.POST("/yara/assistant", s.handleAssistant)
}

func detail(c echo.Context, status int, format string, args ...interface{}) error {
	return c.JSON(status, map[string]string{"detail": fmt.Sprintf(format, args...)})
}

func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return detail(c, http.StatusUnauthorized, "missing bearer token")
		}
		s.mu.Lock()
		user, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			return detail(c, http.StatusUnauthorized, "Invalid or expired token")
		}
		c.Set("user", user)
		return next(c)
	}
}

func (s *Server) handleSetupStatus(c echo.Context) error {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	return c.JSON(http.StatusOK, domain.SetupStatus{
		Initialized:        initialized,
		SetupTokenRequired: s.setupToken != "",
	})
}

type setupRequest struct {
	Username   string               `json:"username"`
	Password   string               `json:"password"`
	Settings   domain.SetupSettings `json:"settings"`
	SetupToken string               `json:"setup_token"`
}

func (s *Server) handleSetup(c echo.Context) error {
	var req setupRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return detail(c, http.StatusBadRequest, "username and password are required")
	}
	if s.setupToken != "" && req.SetupToken != s.setupToken {
		return detail(c, http.StatusUnauthorized, "invalid setup token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return detail(c, http.StatusConflict, "already initialized")
	}
	s.initialized = true
	s.username = req.Username
	s.password = req.Password
	s.settings = req.Settings
	token := newToken()
	s.tokens[token] = req.Username
	return c.JSON(http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return detail(c, http.StatusPreconditionFailed, "setup required")
	}
	if req.Username != s.username || req.Password != s.password {
		return detail(c, http.StatusUnauthorized, "invalid credentials")
	}
	token := newToken()
	s.tokens[token] = req.Username
	return c.JSON(http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleListAgents(c echo.Context) error {
	now := s.now()
	s.mu.Lock()
	out := make([]domain.Agent, 0, len(s.agents))
	for _, rec := range s.agents {
		out = append(out, rec.toAgent(now, s.staleAfter))
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleAgentProfile(c echo.Context) error {
	s.mu.Lock()
	rec, ok := s.agents[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		return detail(c, http.StatusNotFound, "agent not found")
	}
	return c.JSON(http.StatusOK, rec.toProfile())
}

func (s *Server) handleListRules(c echo.Context) error {
	s.mu.Lock()
	out := make([]domain.RuleFile, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.meta)
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetRule(c echo.Context) error {
	name := c.Param("name")
	if !domain.ValidRuleName(name) {
		return detail(c, http.StatusBadRequest, "invalid rule name; expected <name>.yar")
	}
	s.mu.Lock()
	r, ok := s.rules[name]
	s.mu.Unlock()
	if !ok {
		return detail(c, http.StatusNotFound, "rule not found")
	}
	return c.JSON(http.StatusOK, domain.RuleContent{RuleFile: r.meta, Content: r.content})
}

type ruleWriteRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (s *Server) validateRuleBody(c echo.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return detail(c, http.StatusBadRequest, "rule content must not be empty")
	}
	if len(content) > domain.MaxRuleSize {
		return detail(c, http.StatusBadRequest, "rule content exceeds 1MB limit")
	}
	return nil
}

func (s *Server) storeRule(name, content, actor string, existing *storedRule) *storedRule {
	now := s.now().UTC()
	data := []byte(content)
	meta := domain.RuleFile{
		Name:      name,
		TenantID:  "default",
		ObjectKey: "tenants/default/yara/" + name,
		ETag:      newToken(),
		SHA256:    sha256Hex(data),
		SizeBytes: int64(len(data)),
		UpdatedAt: &now,
		UpdatedBy: &actor,
	}
	if existing != nil {
		meta.CreatedAt = existing.meta.CreatedAt
		meta.CreatedBy = existing.meta.CreatedBy
	} else {
		meta.CreatedAt = &now
		meta.CreatedBy = &actor
	}
	return &storedRule{meta: meta, content: content}
}

func (s *Server) handleCreateRule(c echo.Context) error {
	var req ruleWriteRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if !domain.ValidRuleName(req.Name) {
		return detail(c, http.StatusBadRequest, "invalid rule name; expected <name>.yar")
	}
	if err := s.validateRuleBody(c, req.Content); err != nil {
		return err
	}
	actor, _ := c.Get("user").(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[req.Name]; exists {
		return detail(c, http.StatusConflict, "rule already exists")
	}
	r := s.storeRule(req.Name, req.Content, actor, nil)
	s.rules[req.Name] = r
	return c.JSON(http.StatusCreated, r.meta)
}

func (s *Server) handleUpdateRule(c echo.Context) error {
	name := c.Param("name")
	if !domain.ValidRuleName(name) {
		return detail(c, http.StatusBadRequest, "invalid rule name; expected <name>.yar")
	}
	var req ruleWriteRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := s.validateRuleBody(c, req.Content); err != nil {
		return err
	}
	actor, _ := c.Get("user").(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[name]
	if !ok {
		return detail(c, http.StatusNotFound, "rule not found")
	}
	r := s.storeRule(name, req.Content, actor, existing)
	s.rules[name] = r
	return c.JSON(http.StatusOK, r.meta)
}

func (s *Server) handleDeleteRule(c echo.Context) error {
	name := c.Param("name")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[name]; !ok {
		return detail(c, http.StatusNotFound, "rule not found")
	}
	delete(s.rules, name)
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "name": name})
}

func (s *Server) handleValidate(c echo.Context) error {
	var req ruleWriteRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := s.validateRuleBody(c, req.Content); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, checkRule(req.Content))
}

type assistantRequest struct {
	RuleName    string               `json:"rule_name"`
	RuleContent string               `json:"rule_content"`
	Message     string               `json:"message"`
	History     []domain.ChatMessage `json:"history"`
}

func (s *Server) handleAssistant(c echo.Context) error {
	var req assistantRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return detail(c, http.StatusBadRequest, "message is required")
	}
	name := req.RuleName
	if name == "" {
		name = "rule.yar"
	}
	reply := fmt.Sprintf(
		"[devserver] Reviewing %s (%d prior messages): the rule is structurally reviewable. Request was: %s",
		name, len(req.History), req.Message,
	)
	return c.JSON(http.StatusOK, map[string]string{"reply": reply})
}
