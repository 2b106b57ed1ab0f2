package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wikicampus/wikicampus/internal/logging"
	"github.com/wikicampus/wikicampus/internal/server/actions"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
	"github.com/wikicampus/wikicampus/internal/server/sessioncache"
	"github.com/wikicampus/wikicampus/internal/server/sessions"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

// remoteFake backs both service interfaces for handler tests. The query
// side serves the login entity lookup and claim listings; the editing side
// records mutations.
type remoteFake struct {
	mu sync.Mutex

	created    []wikibase.Claim
	createErr  error
	removed    []string
	removeErr  map[string]error
	groups     []string
	selectRows []map[string]string
	claims     map[string][]wikibase.Claim
	loginErr   error
}

func newRemoteFake() *remoteFake {
	return &remoteFake{
		removeErr:  map[string]error{},
		claims:     map[string][]wikibase.Claim{},
		selectRows: []map[string]string{{"user": "Q7"}},
	}
}

func (f *remoteFake) CreateClaim(ctx context.Context, claim wikibase.Claim) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, claim)
	return "Q$new", nil
}

func (f *remoteFake) UpdateClaimValue(ctx context.Context, guid, newValue string) error {
	return nil
}

func (f *remoteFake) RemoveClaim(ctx context.Context, guid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeErr[guid]; err != nil {
		return err
	}
	f.removed = append(f.removed, guid)
	return nil
}

func (f *remoteFake) UserGroups(ctx context.Context, username string) ([]string, error) {
	return f.groups, nil
}

func (f *remoteFake) Select(ctx context.Context, query string) ([]map[string]string, error) {
	return f.selectRows, nil
}

func (f *remoteFake) Entity(ctx context.Context, id string) (*wikibase.Entity, error) {
	return &wikibase.Entity{ID: id}, nil
}

func (f *remoteFake) EntityClaims(ctx context.Context, entityID, property string) ([]wikibase.Claim, error) {
	return f.claims[entityID+"|"+property], nil
}

func (f *remoteFake) ClaimByProperty(ctx context.Context, entityID, property string) (*wikibase.Claim, error) {
	claims := f.claims[entityID+"|"+property]
	if len(claims) == 0 {
		return nil, nil
	}
	return &claims[0], nil
}

func newTestAPI(t *testing.T, fake *remoteFake) (*API, *audit.InMemoryRepository) {
	t.Helper()

	editing := sessioncache.New("editing", func(ctx context.Context, cred permissions.Credential) (wikibase.EditingService, error) {
		if fake.loginErr != nil {
			return nil, fake.loginErr
		}
		return fake, nil
	})
	query := sessioncache.New("query", func(ctx context.Context, cred permissions.Credential) (wikibase.QueryService, error) {
		return fake, nil
	})

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo := audit.NewInMemoryRepository()
	exec := actions.NewExecutor(editing, query, repo, log)
	sm := sessions.NewManager(editing, query, []byte("test-secret"), time.Hour, log)
	return New(sm, exec, repo, log), repo
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "pw",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t, newRemoteFake())
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestLoginRejected(t *testing.T) {
	fake := newRemoteFake()
	fake.loginErr = errors.New("login failed: WrongPass")
	api, _ := newTestAPI(t, fake)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "bad",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	api, _ := newTestAPI(t, newRemoteFake())
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "alice",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteRequiresSession(t *testing.T) {
	api, _ := newTestAPI(t, newRemoteFake())
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", "", map[string]any{
		"kind": "create", "entity_id": "Q7", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", "garbage", map[string]any{
		"kind": "create", "entity_id": "Q7", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExecuteCreateOnOwnEntity(t *testing.T) {
	fake := newRemoteFake()
	api, repo := newTestAPI(t, fake)
	token := login(t, api.Handler())

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "create", "entity_id": "Q7", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, fake.created, 1)

	recs, err := repo.ListByActor(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestExecuteDeniedOnForeignEntity(t *testing.T) {
	fake := newRemoteFake()
	api, _ := newTestAPI(t, fake)
	token := login(t, api.Handler())

	// After login the membership probe must find nothing.
	fake.selectRows = nil

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "create", "entity_id": "Q99", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, fake.created)
}

func TestExecuteStudentSuggestionFlagged(t *testing.T) {
	fake := newRemoteFake()
	api, repo := newTestAPI(t, fake)
	token := login(t, api.Handler())

	// The membership probe confirms Q99 is course content.
	fake.selectRows = []map[string]string{{"course": "Q200"}}

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "create", "entity_id": "Q99", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"student_suggestion":true`)

	recs, err := repo.ListByActor(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.True(t, recs[0].StudentSuggestion)
}

func TestExecuteValidation(t *testing.T) {
	api, _ := newTestAPI(t, newRemoteFake())
	token := login(t, api.Handler())

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "create", "entity_id": "Q7", "property": "bogus", "value": "Q5",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "merge", "entity_id": "Q7",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveByGUIDAuthorizesGUIDEntity(t *testing.T) {
	fake := newRemoteFake()
	api, _ := newTestAPI(t, fake)
	token := login(t, api.Handler())

	// After login the membership probe must find nothing.
	fake.selectRows = nil

	// Naming the actor's own entity does not launder a foreign GUID.
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "remove", "entity_id": "Q7", "guid": "Q99$foreign",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, fake.removed)

	// With only a GUID, the GUID's entity is what gets authorized.
	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "remove", "guid": "Q99$foreign",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, fake.removed)

	// Removing a statement on the actor's own entity still works.
	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "remove", "guid": "Q7$own",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{"Q7$own"}, fake.removed)
}

func TestExecuteRemoteFailureIsBadGateway(t *testing.T) {
	fake := newRemoteFake()
	api, _ := newTestAPI(t, fake)
	token := login(t, api.Handler())

	fake.createErr = errors.New("failed-save")
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "create", "entity_id": "Q7", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestToggle(t *testing.T) {
	fake := newRemoteFake()
	fake.claims["Q7|P710"] = []wikibase.Claim{{GUID: "Q7$a", Value: "Q100"}}
	api, _ := newTestAPI(t, fake)
	token := login(t, api.Handler())

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/relations/toggle", token, map[string]any{
		"property": "P710", "should_be_set": true, "targets": []string{"Q100", "Q101"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"mutations":1`)
	require.Len(t, fake.created, 1)
}

func TestMoveRollbackFailureIsLoud(t *testing.T) {
	fake := newRemoteFake()
	fake.groups = []string{"sysop"}
	fake.claims["Q8|P31"] = []wikibase.Claim{{GUID: "Q8$src", Value: "Q5"}}
	fake.removeErr["Q8$src"] = errors.New("protectedpage")
	fake.removeErr["Q$new"] = errors.New("ratelimited")
	api, _ := newTestAPI(t, fake)
	token := login(t, api.Handler())

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/move", token, map[string]any{
		"from_entity_id": "Q8", "to_entity_id": "Q9", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"needs_manual_cleanup":true`)
	require.Contains(t, rec.Body.String(), "Q9")
}

func TestMove(t *testing.T) {
	fake := newRemoteFake()
	fake.groups = []string{"sysop"}
	fake.claims["Q8|P31"] = []wikibase.Claim{{GUID: "Q8$src", Value: "Q5"}}
	api, _ := newTestAPI(t, fake)
	token := login(t, api.Handler())

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/move", token, map[string]any{
		"from_entity_id": "Q8", "to_entity_id": "Q9", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "moved")
	require.Equal(t, []string{"Q8$src"}, fake.removed)
}

func TestSuggestionsListing(t *testing.T) {
	fake := newRemoteFake()
	api, repo := newTestAPI(t, fake)
	token := login(t, api.Handler())

	require.NoError(t, repo.Append(context.Background(), &audit.Record{
		Actor: "bob", Kind: audit.KindCreate, EntityID: "Q99",
		StudentSuggestion: true, Outcome: audit.OutcomeOK,
	}))
	require.NoError(t, repo.Append(context.Background(), &audit.Record{
		Actor: "bob", Kind: audit.KindCreate, EntityID: "Q98", Outcome: audit.OutcomeOK,
	}))

	rec := doJSON(t, api.Handler(), http.MethodGet, "/v1/suggestions?limit=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Q99")
	require.NotContains(t, rec.Body.String(), "Q98")
}

func TestLogoutInvalidatesToken(t *testing.T) {
	api, _ := newTestAPI(t, newRemoteFake())
	token := login(t, api.Handler())

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/claims/execute", token, map[string]any{
		"kind": "create", "entity_id": "Q7", "property": "P31", "value": "Q5",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	api, _ := newTestAPI(t, newRemoteFake())
	rec := doJSON(t, api.Handler(), http.MethodGet, "/v1/auth/login", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
