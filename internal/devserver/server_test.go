package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayman-m/yaragent/internal/agentsim"
	"github.com/ayman-m/yaragent/internal/apiclient"
	"github.com/ayman-m/yaragent/internal/domain"
	"github.com/ayman-m/yaragent/internal/session"
)

const testRule = "rule test { condition: true }"

func newTestEnv(t *testing.T, opts ...Option) (*httptest.Server, *apiclient.Client) {
	t.Helper()
	s, err := New(context.Background(), opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, apiclient.NewClient(ts.URL, session.OpenEphemeral(), 5*time.Second)
}

func bootstrap(t *testing.T, client *apiclient.Client) {
	t.Helper()
	err := client.SetupAdmin(context.Background(), "admin", "hunter2", domain.SetupSettings{
		OrgName:              "acme",
		Environment:          "test",
		DefaultRuleNamespace: "default",
	}, "")
	require.NoError(t, err)
	require.NotEmpty(t, client.Session().Token())
}

func TestSetupBeforeLoginOrdering(t *testing.T) {
	ts, client := newTestEnv(t)
	ctx := context.Background()

	status, err := client.CheckSetupStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Initialized)
	assert.False(t, status.SetupTokenRequired)

	// Login before setup must be rejected with a precondition failure.
	err = client.Login(ctx, "admin", "hunter2")
	var authErr *apiclient.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusPreconditionFailed, authErr.Status)

	bootstrap(t, client)

	status, err = client.CheckSetupStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Initialized)

	// Setup is one-shot.
	second := apiclient.NewClient(ts.URL, session.OpenEphemeral(), 5*time.Second)
	err = second.SetupAdmin(ctx, "other", "pw", domain.SetupSettings{}, "")
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusConflict, authErr.Status)

	err = second.Login(ctx, "admin", "wrong")
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Empty(t, second.Session().Token())

	require.NoError(t, second.Login(ctx, "admin", "hunter2"))
	assert.NotEmpty(t, second.Session().Token())
}

func TestSetupTokenEnforced(t *testing.T) {
	_, client := newTestEnv(t, WithSetupToken("sekrit"))
	ctx := context.Background()

	status, err := client.CheckSetupStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.SetupTokenRequired)

	err = client.SetupAdmin(ctx, "admin", "pw", domain.SetupSettings{}, "wrong")
	var authErr *apiclient.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)

	require.NoError(t, client.SetupAdmin(ctx, "admin", "pw", domain.SetupSettings{}, "sekrit"))
}

func TestRuleLifecycle(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	bootstrap(t, client)

	created, err := client.CreateRule(ctx, "test.yar", testRule)
	require.NoError(t, err)
	assert.Equal(t, "test.yar", created.Name)
	assert.Equal(t, testRule, created.Content, "create re-fetches the stored content")
	assert.NotEmpty(t, created.SHA256)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "admin", *created.CreatedBy)

	rules, err := client.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "test.yar", rules[0].Name)
	assert.Equal(t, int64(len(testRule)), rules[0].SizeBytes)

	// Duplicate create conflicts.
	_, err = client.CreateRule(ctx, "test.yar", testRule)
	var repoErr *apiclient.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusConflict, repoErr.Status)

	updatedContent := "rule test { condition: false }"
	updated, err := client.UpdateRule(ctx, "test.yar", updatedContent)
	require.NoError(t, err)
	assert.Equal(t, updatedContent, updated.Content)
	assert.NotEqual(t, created.ETag, updated.ETag, "update rotates the etag")

	require.NoError(t, client.DeleteRule(ctx, "test.yar"))

	_, err = client.GetRule(ctx, "test.yar")
	var notFound *apiclient.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "test.yar", notFound.Name)

	err = client.DeleteRule(ctx, "test.yar")
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusNotFound, repoErr.Status)
}

func TestServerSideWriteValidation(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	bootstrap(t, client)

	// The name gate fires server-side too, for callers bypassing this client.
	_, err := client.GetRule(ctx, "evil.txt")
	var repoErr *apiclient.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusBadRequest, repoErr.Status)
	assert.Contains(t, repoErr.Body, "detail")

	oversized := strings.Repeat("a", domain.MaxRuleSize+1)
	_, err = client.CreateRule(ctx, "big.yar", oversized)
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusBadRequest, repoErr.Status)
	assert.Contains(t, repoErr.Body, "1MB")
}

func TestValidateEndpoint(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	bootstrap(t, client)

	result := client.ValidateRule(ctx, "test.yar", testRule)
	assert.True(t, result.Valid)
	assert.Equal(t, "compilation succeeded", result.Message)
	assert.Empty(t, result.Errors)

	result = client.ValidateRule(ctx, "broken.yar", "rule broken {")
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	for _, issue := range result.Errors {
		require.NotNil(t, issue.Line)
		assert.Positive(t, *issue.Line)
	}
	assert.Equal(t, result.Errors[0].Message, result.Message)
}

func TestAssistantEndpoint(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	bootstrap(t, client)

	history := []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Content: "earlier question"},
		{Role: domain.ChatRoleAssistant, Content: "earlier answer"},
	}
	reply, err := client.Assistant(ctx, "test.yar", testRule, "tighten the condition", history)
	require.NoError(t, err)
	assert.Contains(t, reply, "test.yar")
	assert.Contains(t, reply, "2 prior messages")
}

func TestInvalidTokenClearsSession(t *testing.T) {
	_, client := newTestEnv(t)

	store := client.Session()
	require.NoError(t, store.SetToken("bogus"))

	_, err := client.ListRules(context.Background())
	var repoErr *apiclient.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusUnauthorized, repoErr.Status)
	assert.Empty(t, store.Token(), "a rejected token is purged from the session")
}

func TestPushRuleEndToEnd(t *testing.T) {
	ts, client := newTestEnv(t, WithPushTimeout(2*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bootstrap(t, client)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/agent/ws"
	agent, err := agentsim.Connect(wsURL, "sim-1", 50*time.Millisecond)
	require.NoError(t, err)
	go agent.Run(ctx)

	require.Eventually(t, func() bool {
		agents, err := client.ListAgents(ctx)
		if err != nil {
			return false
		}
		for _, a := range agents {
			if a.ID == "sim-1" && a.Status == domain.AgentStatusConnected {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond, "agent never showed up connected")

	profile, err := client.GetAgentProfile(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, "sim-1", profile.AgentID)
	assert.NotEmpty(t, profile.SBOM, "heartbeat inventory reaches the profile")

	result, err := client.PushRule(ctx, "sim-1", testRule)
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = client.PushRule(ctx, "sim-1", "rule broken { }")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Diagnostics)

	_, err = client.PushRule(ctx, "ghost", testRule)
	var repoErr *apiclient.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusNotFound, repoErr.Status)
}

func TestPushPolicyBlocksOversizedRule(t *testing.T) {
	ts, client := newTestEnv(t, WithPushTimeout(2*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bootstrap(t, client)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/agent/ws"
	agent, err := agentsim.Connect(wsURL, "sim-2", 50*time.Millisecond)
	require.NoError(t, err)
	go agent.Run(ctx)

	require.Eventually(t, func() bool {
		agents, err := client.ListAgents(ctx)
		return err == nil && len(agents) == 1
	}, 5*time.Second, 50*time.Millisecond)

	oversized := strings.Repeat("a", domain.MaxRuleSize+1)
	_, err = client.PushRule(ctx, "sim-2", oversized)
	var repoErr *apiclient.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusForbidden, repoErr.Status)
	assert.Contains(t, repoErr.Body, "policy")
}

func TestCheckRuleDiagnostics(t *testing.T) {
	result := checkRule("text without any structure")
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "expected rule declaration", result.Errors[0].Message)

	result = checkRule("rule x {\n  condition:\n    true\n}\n}")
	assert.False(t, result.Valid)
	assert.Equal(t, "unexpected closing brace", result.Errors[0].Message)
	require.NotNil(t, result.Errors[0].Line)
	assert.Equal(t, 5, *result.Errors[0].Line)

	result = checkRule("rule x {\n  condition:\n    true\n}")
	assert.True(t, result.Valid)
}
