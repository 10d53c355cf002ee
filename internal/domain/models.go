// Package domain defines the core domain models shared by the console client,
// the editor workflow, and the development control plane.
package domain

import (
	"encoding/json"
	"time"
)

// AgentStatus represents the reported status of a fleet agent.
type AgentStatus string

const (
	AgentStatusConnected    AgentStatus = "connected"
	AgentStatusStale        AgentStatus = "stale"
	AgentStatusDisconnected AgentStatus = "disconnected"
	AgentStatusError        AgentStatus = "error"
)

// Agent is one row of the fleet inventory.
type Agent struct {
	ID             string          `json:"id"`
	Status         AgentStatus     `json:"status"`
	TenantID       string          `json:"tenant_id,omitempty"`
	ConnectedAt    *time.Time      `json:"connected_at"`
	LastSeen       *time.Time      `json:"last_seen"`
	LastHeartbeat  *time.Time      `json:"last_heartbeat"`
	Capabilities   json.RawMessage `json:"capabilities,omitempty"`
	IsEphemeral    bool            `json:"is_ephemeral"`
	InstanceID     string          `json:"instance_id,omitempty"`
	RuntimeKind    string          `json:"runtime_kind,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at"`
	FindingsCount  int             `json:"findings_count"`
	AssetProfile   json.RawMessage `json:"asset_profile,omitempty"`
}

// AgentProfile is the detailed view of a single agent, including its
// software inventory and known vulnerabilities.
type AgentProfile struct {
	AgentID       string          `json:"agent_id"`
	TenantID      string          `json:"tenant_id"`
	ConnectedAt   *time.Time      `json:"connected_at"`
	LastSeen      *time.Time      `json:"last_seen"`
	LastHeartbeat *time.Time      `json:"last_heartbeat"`
	AssetProfile  json.RawMessage `json:"asset_profile,omitempty"`
	SBOM          json.RawMessage `json:"sbom,omitempty"`
	CVEs          json.RawMessage `json:"cves,omitempty"`
	FindingsCount int             `json:"findings_count"`
}

// RuleFile is the metadata of a stored detection rule file. Content is
// fetched separately; the list endpoint returns metadata only.
type RuleFile struct {
	Name      string     `json:"name"`
	TenantID  string     `json:"tenant_id"`
	ObjectKey string     `json:"object_key"`
	ETag      string     `json:"etag"`
	SHA256    string     `json:"sha256"`
	SizeBytes int64      `json:"size_bytes"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	CreatedBy *string    `json:"created_by"`
	UpdatedBy *string    `json:"updated_by"`
}

// RuleContent is a rule file with its full body.
type RuleContent struct {
	RuleFile
	Content string `json:"content"`
}

// ValidationIssue is a single compiler diagnostic. Line is nil when the
// diagnostic carries no position.
type ValidationIssue struct {
	Line    *int   `json:"line"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of a rule validation pass. It is advisory
// data, never an error: transport failures are folded into Valid=false.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Message string            `json:"message"`
	Errors  []ValidationIssue `json:"errors"`
}

// Chat roles for the assistant transcript.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry of the assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SetupStatus reports whether the control plane has an administrator yet.
type SetupStatus struct {
	Initialized        bool `json:"initialized"`
	SetupTokenRequired bool `json:"setup_token_required"`
}

// SetupSettings is the flat configuration record supplied during first-run
// setup. No semantic validation beyond non-empty.
type SetupSettings struct {
	OrgName              string `json:"org_name"`
	Environment          string `json:"environment"`
	DefaultRuleNamespace string `json:"default_rule_namespace"`
}

// PushResult is the agent's compile acknowledgement for a pushed rule.
type PushResult struct {
	Type        string `json:"type,omitempty"`
	ID          string `json:"id,omitempty"`
	Success     bool   `json:"success"`
	Diagnostics string `json:"diagnostics,omitempty"`
}
