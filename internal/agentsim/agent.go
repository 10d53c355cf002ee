// Package agentsim is a simulated fleet agent: it connects to the control
// plane's agent websocket, heartbeats with a canned asset profile, and
// acknowledges rule pushes. Used by the agentsim command and the end-to-end
// tests.
package agentsim

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayman-m/yaragent/internal/logging"
)

// Agent is one simulated agent connection.
type Agent struct {
	id   string
	conn *websocket.Conn

	heartbeatEvery time.Duration
	writeMu        sync.Mutex
}

type inboundMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Connect dials the control plane's agent websocket. wsURL is the full
// endpoint, e.g. ws://localhost:8080/agent/ws.
func Connect(wsURL, agentID string, heartbeatEvery time.Duration) (*Agent, error) {
	u := wsURL
	if agentID != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "agent_id=" + agentID
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Agent{
		id:             agentID,
		conn:           conn,
		heartbeatEvery: heartbeatEvery,
	}, nil
}

// ID returns the agent id assigned locally or by the server greeting.
func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) send(v interface{}) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteJSON(v)
}

// Heartbeat sends one heartbeat with the canned inventory.
func (a *Agent) Heartbeat() error {
	return a.send(map[string]interface{}{
		"type":      "agent.heartbeat",
		"tenant_id": "default",
		"capabilities": map[string]interface{}{
			"runtime": "simulated",
			"scan":    true,
		},
		"asset_profile": map[string]interface{}{
			"hostname": "sim-" + a.id,
			"os":       "linux",
		},
		"sbom": []map[string]string{
			{"name": "openssl", "version": "3.0.13"},
			{"name": "zlib", "version": "1.3.1"},
		},
		"cves":           []map[string]string{},
		"findings_count": 0,
	})
}

// Run pumps heartbeats and answers rule pushes until the context is done or
// the connection drops.
func (a *Agent) Run(ctx context.Context) error {
	defer a.conn.Close()

	if err := a.Heartbeat(); err != nil {
		return fmt.Errorf("initial heartbeat: %w", err)
	}

	go func() {
		ticker := time.NewTicker(a.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				a.conn.Close()
				return
			case <-ticker.C:
				if err := a.Heartbeat(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg inboundMessage
		if err := a.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Type {
		case "agent.registered":
			if a.id == "" {
				a.id = msg.ID
			}
			logging.Infof("registered as agent %s", a.id)
		case "rule.push":
			a.handlePush(msg)
		}
	}
}

// handlePush simulates a compile of the pushed rule and acks the job.
func (a *Agent) handlePush(msg inboundMessage) {
	decoded, err := base64.StdEncoding.DecodeString(msg.Payload)
	result := map[string]interface{}{
		"type": "rule.compile.result",
		"id":   msg.ID,
	}
	switch {
	case err != nil:
		result["success"] = false
		result["diagnostics"] = "payload is not valid base64"
	case !strings.Contains(string(decoded), "condition"):
		result["success"] = false
		result["diagnostics"] = "rule has no condition section"
	default:
		result["success"] = true
	}
	if err := a.send(result); err != nil {
		logging.Warnf("failed to ack rule push: %v", err)
		return
	}
	pretty, _ := json.Marshal(result)
	logging.Debugf("compile result sent: %s", pretty)
}
