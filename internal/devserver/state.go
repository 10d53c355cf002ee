package devserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ayman-m/yaragent/internal/domain"
)

// storedRule is one rule file held in memory.
type storedRule struct {
	meta    domain.RuleFile
	content string
}

// agentRecord tracks one agent, connected or not. A nil conn means the agent
// has disconnected but its last known state is still served.
type agentRecord struct {
	id            string
	tenantID      string
	conn          *websocket.Conn
	writeMu       sync.Mutex
	connectedAt   *time.Time
	lastSeen      *time.Time
	lastHeartbeat *time.Time
	capabilities  json.RawMessage
	assetProfile  json.RawMessage
	sbom          json.RawMessage
	cves          json.RawMessage
	findingsCount int
	isEphemeral   bool
	instanceID    string
	runtimeKind   string

	// pending push jobs awaiting a compile result, keyed by job id
	pending map[string]chan domain.PushResult
}

func (a *agentRecord) send(v interface{}) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteJSON(v)
}

// status derives the reported agent status at time now.
func (a *agentRecord) status(now time.Time, staleAfter time.Duration) domain.AgentStatus {
	if a.conn == nil {
		return domain.AgentStatusDisconnected
	}
	freshness := a.lastHeartbeat
	if freshness == nil {
		freshness = a.lastSeen
	}
	if freshness == nil {
		freshness = a.connectedAt
	}
	if freshness != nil && now.Sub(*freshness) > staleAfter {
		return domain.AgentStatusStale
	}
	return domain.AgentStatusConnected
}

func (a *agentRecord) toAgent(now time.Time, staleAfter time.Duration) domain.Agent {
	return domain.Agent{
		ID:            a.id,
		Status:        a.status(now, staleAfter),
		TenantID:      a.tenantID,
		ConnectedAt:   a.connectedAt,
		LastSeen:      a.lastSeen,
		LastHeartbeat: a.lastHeartbeat,
		Capabilities:  a.capabilities,
		IsEphemeral:   a.isEphemeral,
		InstanceID:    a.instanceID,
		RuntimeKind:   a.runtimeKind,
		FindingsCount: a.findingsCount,
		AssetProfile:  a.assetProfile,
	}
}

func (a *agentRecord) toProfile() domain.AgentProfile {
	return domain.AgentProfile{
		AgentID:       a.id,
		TenantID:      a.tenantID,
		ConnectedAt:   a.connectedAt,
		LastSeen:      a.lastSeen,
		LastHeartbeat: a.lastHeartbeat,
		AssetProfile:  a.assetProfile,
		SBOM:          a.sbom,
		CVEs:          a.cves,
		FindingsCount: a.findingsCount,
	}
}

func newToken() string {
	return uuid.NewString()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
