// Package apiclient is the typed REST client for the yaragent control plane.
//
// Every authenticated call carries the session store's bearer token. A 401
// from any endpoint clears the whole session before the error propagates, so
// a stale token cannot linger and fail repeatedly.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayman-m/yaragent/internal/domain"
	"github.com/ayman-m/yaragent/internal/session"
)

// historyWindow caps how many prior transcript messages are forwarded to the
// assistant.
const historyWindow = 10

// Client is the control-plane API client.
type Client struct {
	baseURL    string
	store      *session.Store
	httpClient *http.Client
}

// NewClient creates a new control-plane client bound to a session store.
func NewClient(baseURL string, store *session.Store, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		store:   store,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Session exposes the underlying session store.
func (c *Client) Session() *session.Store {
	return c.store
}

// do executes a request and decodes a 2xx JSON response into out (when out is
// non-nil). Non-2xx responses become *RepositoryError; a 401 additionally
// clears the session.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	token := ""
	if authed {
		token = c.store.Token()
		if token == "" {
			return ErrNotAuthenticated
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized && authed {
			// A single unauthorized response invalidates the whole
			// session, not just the failing call.
			_ = c.store.Clear()
		}
		return &RepositoryError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// CheckSetupStatus reports whether the control plane has an administrator.
// Anonymous; no token required.
func (c *Client) CheckSetupStatus(ctx context.Context) (*domain.SetupStatus, error) {
	var status domain.SetupStatus
	if err := c.do(ctx, http.MethodGet, "/setup/status", nil, &status, false); err != nil {
		return nil, fmt.Errorf("failed to check setup status: %w", err)
	}
	return &status, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (c *Client) authenticate(ctx context.Context, path string, body interface{}) error {
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, path, body, &tok, false)
	if err != nil {
		var repoErr *RepositoryError
		if errors.As(err, &repoErr) {
			return &AuthError{Status: repoErr.Status, Body: repoErr.Body}
		}
		return err
	}
	if err := c.store.SetToken(tok.AccessToken); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}
	return nil
}

// Login exchanges credentials for a session token and stores it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

// SetupAdmin creates the first administrator and stores the resulting token.
// setupToken may be empty when the control plane does not require one.
func (c *Client) SetupAdmin(ctx context.Context, username, password string, settings domain.SetupSettings, setupToken string) error {
	return c.authenticate(ctx, "/auth/setup", map[string]interface{}{
		"username":    username,
		"password":    password,
		"settings":    settings,
		"setup_token": setupToken,
	})
}

// Logout clears the session. Idempotent; purely client-side.
func (c *Client) Logout() error {
	return c.store.Clear()
}

// ListAgents returns the fleet inventory.
func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var agents []domain.Agent
	if err := c.do(ctx, http.MethodGet, "/agents", nil, &agents, true); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// GetAgentProfile returns one agent's detail view.
func (c *Client) GetAgentProfile(ctx context.Context, agentID string) (*domain.AgentProfile, error) {
	var profile domain.AgentProfile
	path := "/agents/" + url.PathEscape(agentID) + "/profile"
	if err := c.do(ctx, http.MethodGet, path, nil, &profile, true); err != nil {
		return nil, fmt.Errorf("failed to get agent profile: %w", err)
	}
	return &profile, nil
}

// PushRule sends rule text to a connected agent and waits for its compile
// acknowledgement.
func (c *Client) PushRule(ctx context.Context, agentID, ruleText string) (*domain.PushResult, error) {
	var result domain.PushResult
	body := map[string]string{"agent_id": agentID, "rule_text": ruleText}
	if err := c.do(ctx, http.MethodPost, "/push_rule", body, &result, true); err != nil {
		return nil, fmt.Errorf("failed to push rule: %w", err)
	}
	return &result, nil
}

// ListRules returns the metadata of every stored rule file.
func (c *Client) ListRules(ctx context.Context) ([]domain.RuleFile, error) {
	var rules []domain.RuleFile
	if err := c.do(ctx, http.MethodGet, "/yara/rules", nil, &rules, true); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// GetRule fetches one rule file with its content.
func (c *Client) GetRule(ctx context.Context, name string) (*domain.RuleContent, error) {
	if name == "" {
		return nil, ErrInvalidRuleName
	}
	var rule domain.RuleContent
	err := c.do(ctx, http.MethodGet, "/yara/rules/"+url.PathEscape(name), nil, &rule, true)
	if err != nil {
		var repoErr *RepositoryError
		if errors.As(err, &repoErr) && repoErr.Status == http.StatusNotFound {
			return nil, &NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// CreateRule stores a new rule file. The mutation response carries metadata
// only, so the authoritative content is re-fetched before returning.
func (c *Client) CreateRule(ctx context.Context, name, content string) (*domain.RuleContent, error) {
	if !domain.ValidRuleName(name) {
		return nil, ErrInvalidRuleName
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	var created domain.RuleFile
	body := map[string]string{"name": name, "content": content}
	if err := c.do(ctx, http.MethodPost, "/yara/rules", body, &created, true); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	if created.Name != "" {
		name = created.Name
	}
	return c.GetRule(ctx, name)
}

// UpdateRule replaces an existing rule file's content, then re-fetches the
// authoritative view.
func (c *Client) UpdateRule(ctx context.Context, name, content string) (*domain.RuleContent, error) {
	if !domain.ValidRuleName(name) {
		return nil, ErrInvalidRuleName
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	var updated domain.RuleFile
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, "/yara/rules/"+url.PathEscape(name), body, &updated, true); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	if updated.Name != "" {
		name = updated.Name
	}
	return c.GetRule(ctx, name)
}

// DeleteRule removes a stored rule file.
func (c *Client) DeleteRule(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidRuleName
	}
	if err := c.do(ctx, http.MethodDelete, "/yara/rules/"+url.PathEscape(name), nil, nil, true); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// ValidateRule checks rule content against the remote validator. It never
// returns an error: validation runs automatically in the background, so
// transport failures are folded into a Valid=false result instead of forcing
// every caller to handle a non-critical advisory check.
func (c *Client) ValidateRule(ctx context.Context, name, content string) domain.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return domain.ValidationResult{Valid: false, Message: "rule content is empty"}
	}
	var result domain.ValidationResult
	body := map[string]string{"name": name, "content": content}
	if err := c.do(ctx, http.MethodPost, "/yara/validate", body, &result, true); err != nil {
		return domain.ValidationResult{Valid: false, Message: err.Error()}
	}
	return result
}

type assistantRequest struct {
	RuleName    string               `json:"rule_name"`
	RuleContent string               `json:"rule_content"`
	Message     string               `json:"message"`
	History     []domain.ChatMessage `json:"history"`
}

type assistantResponse struct {
	Reply string `json:"reply"`
}

// Assistant forwards the current draft plus the most recent history window to
// the remote rule assistant and returns its reply. The assistant wire format
// uses "model" for assistant-role history entries.
func (c *Client) Assistant(ctx context.Context, ruleName, ruleContent, message string, history []domain.ChatMessage) (string, error) {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	wire := make([]domain.ChatMessage, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role == domain.ChatRoleAssistant {
			role = "model"
		}
		wire = append(wire, domain.ChatMessage{Role: role, Content: m.Content})
	}

	var resp assistantResponse
	req := assistantRequest{
		RuleName:    ruleName,
		RuleContent: ruleContent,
		Message:     message,
		History:     wire,
	}
	if err := c.do(ctx, http.MethodPost, "/yara/assistant", req, &resp, true); err != nil {
		return "", fmt.Errorf("assistant request failed: %w", err)
	}
	return resp.Reply, nil
}
