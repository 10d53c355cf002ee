package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayman-m/yaragent/internal/domain"
	"github.com/ayman-m/yaragent/internal/session"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(serverURL, session.OpenEphemeral(), time.Second)
}

func TestLoginStoresToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "admin", body["username"])
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","token_type":"bearer"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Login(context.Background(), "admin", "secret"))
	assert.Equal(t, "tok-1", client.Session().Token())
}

func TestLoginRejectedIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"invalid credentials"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Login(context.Background(), "admin", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Empty(t, client.Session().Token())
}

func TestUnauthorizedClearsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Invalid or expired token"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("stale"))

	_, err := client.ListRules(context.Background())
	var repoErr *RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusUnauthorized, repoErr.Status)
	assert.Empty(t, client.Session().Token(), "a 401 from any call must invalidate the whole session")
}

func TestRepositoryCallsRequireToken(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ListRules(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, atomic.LoadInt32(&hits), "no network call without a token")
}

func TestListRules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"name":"a.yar","tenant_id":"default","object_key":"tenants/default/yara/a.yar","etag":"e1","sha256":"s1","size_bytes":12,"created_at":null,"updated_at":null,"created_by":null,"updated_by":null}]`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	rules, err := client.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "a.yar", rules[0].Name)
	assert.EqualValues(t, 12, rules[0].SizeBytes)
}

func TestGetRuleNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"rule not found"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	_, err := client.GetRule(context.Background(), "missing.yar")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing.yar", notFound.Name)
}

func TestCreateRuleRefetchesContent(t *testing.T) {
	var creates, gets int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/yara/rules":
			atomic.AddInt32(&creates, 1)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"name":"t.yar","etag":"e1","sha256":"s1","size_bytes":20}`)
		case r.Method == http.MethodGet && r.URL.Path == "/yara/rules/t.yar":
			atomic.AddInt32(&gets, 1)
			fmt.Fprint(w, `{"name":"t.yar","etag":"e1","sha256":"s1","size_bytes":20,"content":"normalized content"}`)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	rule, err := client.CreateRule(context.Background(), "t.yar", "rule t { condition: true }")
	require.NoError(t, err)
	assert.Equal(t, "normalized content", rule.Content, "mutations carry metadata only; content is re-fetched")
	assert.EqualValues(t, 1, atomic.LoadInt32(&creates))
	assert.EqualValues(t, 1, atomic.LoadInt32(&gets))
}

func TestWriteGuardsSkipNetwork(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))
	ctx := context.Background()

	_, err := client.CreateRule(ctx, "bad.txt", "rule x { condition: true }")
	assert.ErrorIs(t, err, ErrInvalidRuleName)

	_, err = client.CreateRule(ctx, "ok.yar", "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = client.UpdateRule(ctx, "bad txt", "rule x { condition: true }")
	assert.ErrorIs(t, err, ErrInvalidRuleName)

	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestValidateEmptyContentShortCircuits(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	result := client.ValidateRule(context.Background(), "x.yar", "   \n ")
	assert.False(t, result.Valid)
	assert.Equal(t, "rule content is empty", result.Message)
	assert.Zero(t, atomic.LoadInt32(&hits), "empty content never issues a network call")
}

func TestValidateTransportFailureIsData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "validator unavailable")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	result := client.ValidateRule(context.Background(), "x.yar", "rule x { condition: true }")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "502")
}

func TestValidateResultRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"valid":false,"message":"syntax error","errors":[{"line":3,"message":"unexpected token"},{"line":null,"message":"general"}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	result := client.ValidateRule(context.Background(), "x.yar", "rule x {")
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
	require.NotNil(t, result.Errors[0].Line)
	assert.Equal(t, 3, *result.Errors[0].Line)
	assert.Nil(t, result.Errors[1].Line)
}

func TestAssistantCapsHistoryAndMapsRoles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req assistantRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.History, 10, "only the last 10 messages are forwarded")
		assert.Equal(t, "m5", req.History[0].Content)
		for _, m := range req.History {
			assert.Contains(t, []string{"user", "model"}, m.Role)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"reply":"sure"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	var history []domain.ChatMessage
	for i := 0; i < 15; i++ {
		role := domain.ChatRoleUser
		if i%2 == 1 {
			role = domain.ChatRoleAssistant
		}
		history = append(history, domain.ChatMessage{Role: role, Content: fmt.Sprintf("m%d", i)})
	}

	reply, err := client.Assistant(context.Background(), "x.yar", "rule x { condition: true }", "help", history)
	require.NoError(t, err)
	assert.Equal(t, "sure", reply)
}

func TestPushRule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "agent-1", body["agent_id"])
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"type":"rule.compile.result","id":"j1","success":true}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	result, err := client.PushRule(context.Background(), "agent-1", "rule x { condition: true }")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRepositoryErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"detail":"rule already exists"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Session().SetToken("tok"))

	_, err := client.CreateRule(context.Background(), "dup.yar", "rule d { condition: true }")
	var repoErr *RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.Equal(t, http.StatusConflict, repoErr.Status)
	assert.Contains(t, repoErr.Body, "already exists")
}
