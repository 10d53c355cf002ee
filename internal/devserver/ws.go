package devserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ayman-m/yaragent/internal/domain"
	"github.com/ayman-m/yaragent/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// agentMessage is the envelope agents send over the websocket.
type agentMessage struct {
	Type          string          `json:"type"`
	ID            string          `json:"id,omitempty"`
	TenantID      string          `json:"tenant_id,omitempty"`
	Capabilities  json.RawMessage `json:"capabilities,omitempty"`
	AssetProfile  json.RawMessage `json:"asset_profile,omitempty"`
	SBOM          json.RawMessage `json:"sbom,omitempty"`
	CVEs          json.RawMessage `json:"cves,omitempty"`
	FindingsCount *int            `json:"findings_count,omitempty"`
	InstanceID    string          `json:"instance_id,omitempty"`
	Runtime       string          `json:"runtime,omitempty"`
	Ephemeral     bool            `json:"ephemeral,omitempty"`
	Success       bool            `json:"success,omitempty"`
	Diagnostics   string          `json:"diagnostics,omitempty"`
}

// handleAgentWS registers a fleet agent over websocket and pumps its
// heartbeat and compile-result messages.
func (s *Server) handleAgentWS(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logging.Warnf("websocket upgrade failed: %v", err)
		return err
	}

	agentID := c.QueryParam("agent_id")
	if agentID == "" {
		agentID = uuid.NewString()
	}
	now := s.now().UTC()

	s.mu.Lock()
	if prev, ok := s.agents[agentID]; ok && prev.conn != nil && prev.conn != ws {
		prev.conn.Close()
	}
	rec := &agentRecord{
		id:          agentID,
		tenantID:    "default",
		conn:        ws,
		connectedAt: &now,
		lastSeen:    &now,
		pending:     make(map[string]chan domain.PushResult),
	}
	s.agents[agentID] = rec
	s.mu.Unlock()

	logging.Infof("agent connected: %s", agentID)
	if err := rec.send(map[string]string{"type": "agent.registered", "id": agentID}); err != nil {
		logging.Warnf("failed to greet agent %s: %v", agentID, err)
	}

	defer func() {
		ws.Close()
		s.mu.Lock()
		// Ignore stale disconnects when a newer socket replaced this agent id.
		if current, ok := s.agents[agentID]; ok && current.conn == ws {
			current.conn = nil
			seen := s.now().UTC()
			current.lastSeen = &seen
		}
		s.mu.Unlock()
		logging.Infof("agent disconnected: %s", agentID)
	}()

	for {
		var msg agentMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return nil
		}
		seen := s.now().UTC()

		s.mu.Lock()
		rec.lastSeen = &seen
		switch msg.Type {
		case "agent.heartbeat":
			rec.lastHeartbeat = &seen
			if msg.Capabilities != nil {
				rec.capabilities = msg.Capabilities
			}
			if msg.AssetProfile != nil {
				rec.assetProfile = msg.AssetProfile
			}
			if msg.SBOM != nil {
				rec.sbom = msg.SBOM
			}
			if msg.CVEs != nil {
				rec.cves = msg.CVEs
			}
			if msg.FindingsCount != nil && *msg.FindingsCount >= 0 {
				rec.findingsCount = *msg.FindingsCount
			}
			if msg.TenantID != "" {
				rec.tenantID = msg.TenantID
			}
			if msg.InstanceID != "" {
				rec.instanceID = msg.InstanceID
			}
			if msg.Runtime != "" {
				rec.runtimeKind = msg.Runtime
			}
			if msg.Ephemeral {
				rec.isEphemeral = true
			}
		case "rule.compile.result":
			if ch, ok := rec.pending[msg.ID]; ok {
				delete(rec.pending, msg.ID)
				ch <- domain.PushResult{
					Type:        msg.Type,
					ID:          msg.ID,
					Success:     msg.Success,
					Diagnostics: msg.Diagnostics,
				}
			}
		}
		s.mu.Unlock()
	}
}

type pushRequest struct {
	AgentID  string `json:"agent_id"`
	ID       string `json:"id"`
	RuleText string `json:"rule_text"`
}

// handlePushRule forwards rule text to a connected agent and waits for its
// compile acknowledgement. The OPA push policy gates the send.
func (s *Server) handlePushRule(c echo.Context) error {
	var req pushRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" || req.RuleText == "" {
		return detail(c, http.StatusBadRequest, "missing agent_id or rule_text")
	}

	now := s.now()
	s.mu.Lock()
	rec, ok := s.agents[req.AgentID]
	if !ok || rec.conn == nil {
		s.mu.Unlock()
		return detail(c, http.StatusNotFound, "agent not connected")
	}
	status := rec.status(now, s.staleAfter)
	s.mu.Unlock()

	decision, err := s.policy.Evaluate(c.Request().Context(), map[string]interface{}{
		"agent_id":     req.AgentID,
		"agent_status": string(status),
		"rule_size":    len(req.RuleText),
	})
	if err != nil {
		return detail(c, http.StatusInternalServerError, "policy evaluation failed: %v", err)
	}
	if decision != "allow" {
		return detail(c, http.StatusForbidden, "push blocked by policy")
	}

	jobID := req.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	resultCh := make(chan domain.PushResult, 1)

	s.mu.Lock()
	rec.pending[jobID] = resultCh
	s.mu.Unlock()

	msg := map[string]string{
		"type":    "rule.push",
		"id":      jobID,
		"payload": base64.StdEncoding.EncodeToString([]byte(req.RuleText)),
	}
	if err := rec.send(msg); err != nil {
		s.mu.Lock()
		delete(rec.pending, jobID)
		s.mu.Unlock()
		return detail(c, http.StatusBadGateway, "failed to send rule to agent: %v", err)
	}

	select {
	case result := <-resultCh:
		return c.JSON(http.StatusOK, result)
	case <-time.After(s.pushTimeout):
		s.mu.Lock()
		delete(rec.pending, jobID)
		s.mu.Unlock()
		return detail(c, http.StatusGatewayTimeout, "agent did not respond in time")
	case <-c.Request().Context().Done():
		s.mu.Lock()
		delete(rec.pending, jobID)
		s.mu.Unlock()
		return c.Request().Context().Err()
	}
}
