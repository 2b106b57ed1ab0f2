package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/logging"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
	"github.com/wikicampus/wikicampus/internal/server/sessioncache"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

// ---- fakes ----

// fakeEditing implements wikibase.EditingService and records every call.
type fakeEditing struct {
	mu sync.Mutex

	created    []wikibase.Claim
	createGUID string
	createErr  error

	updated   map[string]string // guid -> new value
	updateErr error

	removed   []string
	removeErr map[string]error // guid -> error

	groups []string
}

func newFakeEditing() *fakeEditing {
	return &fakeEditing{
		createGUID: "Q42$guid-1",
		updated:    map[string]string{},
		removeErr:  map[string]error{},
	}
}

func (f *fakeEditing) CreateClaim(ctx context.Context, claim wikibase.Claim) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, claim)
	return f.createGUID, nil
}

func (f *fakeEditing) UpdateClaimValue(ctx context.Context, guid, newValue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[guid] = newValue
	return nil
}

func (f *fakeEditing) RemoveClaim(ctx context.Context, guid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeErr[guid]; err != nil {
		return err
	}
	f.removed = append(f.removed, guid)
	return nil
}

func (f *fakeEditing) UserGroups(ctx context.Context, username string) ([]string, error) {
	return f.groups, nil
}

func (f *fakeEditing) createdClaims() []wikibase.Claim {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wikibase.Claim(nil), f.created...)
}

func (f *fakeEditing) removedGUIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// fakeQuery implements wikibase.QueryService over fixed data.
type fakeQuery struct {
	claims     map[string][]wikibase.Claim // entityID|property -> claims
	selectRows []map[string]string
	selectErr  error
	claimsErr  error
	queries    []string
}

func newFakeQuery() *fakeQuery {
	return &fakeQuery{claims: map[string][]wikibase.Claim{}}
}

func (f *fakeQuery) setClaims(entityID, property string, claims ...wikibase.Claim) {
	f.claims[entityID+"|"+property] = claims
}

func (f *fakeQuery) Select(ctx context.Context, query string) ([]map[string]string, error) {
	f.queries = append(f.queries, query)
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.selectRows, nil
}

func (f *fakeQuery) Entity(ctx context.Context, id string) (*wikibase.Entity, error) {
	return &wikibase.Entity{ID: id}, nil
}

func (f *fakeQuery) EntityClaims(ctx context.Context, entityID, property string) ([]wikibase.Claim, error) {
	if f.claimsErr != nil {
		return nil, f.claimsErr
	}
	return f.claims[entityID+"|"+property], nil
}

func (f *fakeQuery) ClaimByProperty(ctx context.Context, entityID, property string) (*wikibase.Claim, error) {
	claims, err := f.EntityClaims(ctx, entityID, property)
	if err != nil || len(claims) == 0 {
		return nil, err
	}
	return &claims[0], nil
}

// ---- helpers ----

var testCred = permissions.Credential{Username: "alice", Password: "pw"}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestExecutor(fe *fakeEditing, fq *fakeQuery) (*Executor, *audit.InMemoryRepository) {
	editing := sessioncache.New("editing", func(ctx context.Context, cred permissions.Credential) (wikibase.EditingService, error) {
		return fe, nil
	})
	query := sessioncache.New("query", func(ctx context.Context, cred permissions.Credential) (wikibase.QueryService, error) {
		return fq, nil
	})
	repo := audit.NewInMemoryRepository()
	return NewExecutor(editing, query, repo, testLogger()), repo
}

// ---- Execute ----

func TestExecute_Create(t *testing.T) {
	fe := newFakeEditing()
	exec, repo := newTestExecutor(fe, newFakeQuery())

	got, err := exec.Execute(context.Background(), Create{
		EntityID: "Q42", Property: "P31", Value: "Q5",
	}, testCred, Attribution{ActorEntityID: "Q7"})
	require.NoError(t, err)
	require.Contains(t, got, "Q42")
	require.Contains(t, got, "P31")

	created := fe.createdClaims()
	require.Len(t, created, 1)
	require.Equal(t, "Q42", created[0].EntityID)

	recs, err := repo.ListByActor(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, audit.KindCreate, recs[0].Kind)
	require.Equal(t, audit.OutcomeOK, recs[0].Outcome)
}

func TestExecute_Unauthenticated(t *testing.T) {
	fe := newFakeEditing()
	exec, _ := newTestExecutor(fe, newFakeQuery())

	_, err := exec.Execute(context.Background(), Create{EntityID: "Q42", Property: "P31", Value: "Q5"},
		permissions.Credential{Username: "alice"}, Attribution{})
	require.ErrorIs(t, err, common.ErrorAuthenticationRequired)
	require.Empty(t, fe.createdClaims(), "no remote call on auth failure")
}

func TestExecute_DemoAccountDenied(t *testing.T) {
	fe := newFakeEditing()
	exec, _ := newTestExecutor(fe, newFakeQuery())

	_, err := exec.Execute(context.Background(), Create{EntityID: "Q42", Property: "P31", Value: "Q5"},
		permissions.Credential{Username: common.DemoUsername, Password: "pw"}, Attribution{})
	require.ErrorIs(t, err, common.ErrorAuthorizationDenied)
	require.Empty(t, fe.createdClaims())
}

func TestExecute_ValidationBeforeRemoteCall(t *testing.T) {
	fe := newFakeEditing()
	exec, _ := newTestExecutor(fe, newFakeQuery())

	tests := []Action{
		Create{EntityID: "bogus", Property: "P31", Value: "Q5"},
		Create{EntityID: "Q42", Property: "Q31", Value: "Q5"}, // Q where P expected
		Create{EntityID: "Q123456", Property: "P31", Value: "Q5"},
		Create{EntityID: "Q42", Property: "P31", Value: "Q5", Rank: "best"},
		Create{EntityID: "Q42", Property: "P31", Value: "Q5", Qualifiers: map[string]string{"x": "y"}},
		Update{EntityID: "Q42", Property: "p31", OldValue: "a", NewValue: "b"},
		Remove{EntityID: "Q42", Property: "P31"},
	}
	for _, action := range tests {
		_, err := exec.Execute(context.Background(), action, testCred, Attribution{})
		require.ErrorIs(t, err, common.ErrorValidation, "%+v", action)
	}
	require.Empty(t, fe.createdClaims(), "validation failures must not reach the remote")
}

func TestExecute_RemoteFailure(t *testing.T) {
	fe := newFakeEditing()
	fe.createErr = errors.New("wbcreateclaim: The save has failed (failed-save)")
	exec, repo := newTestExecutor(fe, newFakeQuery())

	_, err := exec.Execute(context.Background(), Create{EntityID: "Q42", Property: "P31", Value: "Q5"},
		testCred, Attribution{})

	var me *MutationError
	require.ErrorAs(t, err, &me)
	require.Contains(t, me.Message, "failed-save")

	recs, err := repo.ListByActor(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, audit.OutcomeError, recs[0].Outcome)
}

func TestExecute_UpdateResolvesGUID(t *testing.T) {
	fe := newFakeEditing()
	fq := newFakeQuery()
	fq.setClaims("Q42", "P31",
		wikibase.Claim{GUID: "Q42$a", EntityID: "Q42", Property: "P31", Value: "old"},
		wikibase.Claim{GUID: "Q42$b", EntityID: "Q42", Property: "P31", Value: "other"})
	exec, _ := newTestExecutor(fe, fq)

	_, err := exec.Execute(context.Background(),
		Update{EntityID: "Q42", Property: "P31", OldValue: "old", NewValue: "new"},
		testCred, Attribution{})
	require.NoError(t, err)
	require.Equal(t, "new", fe.updated["Q42$a"])
}

func TestExecute_UpdateNoMatchingClaim(t *testing.T) {
	exec, _ := newTestExecutor(newFakeEditing(), newFakeQuery())

	_, err := exec.Execute(context.Background(),
		Update{EntityID: "Q42", Property: "P31", OldValue: "missing", NewValue: "new"},
		testCred, Attribution{})

	var me *MutationError
	require.ErrorAs(t, err, &me)
}

func TestExecute_RemoveGUIDMustBelongToEntity(t *testing.T) {
	fe := newFakeEditing()
	exec, _ := newTestExecutor(fe, newFakeQuery())

	// A GUID naming a different entity than the one the caller was
	// authorized for is rejected before any remote call.
	_, err := exec.Execute(context.Background(),
		Remove{EntityID: "Q7", GUID: "Q99$foreign"}, testCred, Attribution{})
	require.ErrorIs(t, err, common.ErrorValidation)

	_, err = exec.Execute(context.Background(),
		Remove{GUID: "no-entity-prefix"}, testCred, Attribution{})
	require.ErrorIs(t, err, common.ErrorValidation)

	require.Empty(t, fe.removedGUIDs())
}

func TestExecute_RemoveByGUIDSkipsQuery(t *testing.T) {
	fe := newFakeEditing()
	fq := newFakeQuery()
	fq.claimsErr = errors.New("query service down")
	exec, _ := newTestExecutor(fe, fq)

	_, err := exec.Execute(context.Background(), Remove{GUID: "Q42$a"}, testCred, Attribution{})
	require.NoError(t, err)
	require.Equal(t, []string{"Q42$a"}, fe.removedGUIDs())
}

func TestExecute_RemoveByTriple(t *testing.T) {
	fe := newFakeEditing()
	fq := newFakeQuery()
	fq.setClaims("Q42", "P31", wikibase.Claim{GUID: "Q42$a", Value: "Q5"})
	exec, _ := newTestExecutor(fe, fq)

	_, err := exec.Execute(context.Background(),
		Remove{EntityID: "Q42", Property: "P31", Value: "Q5"}, testCred, Attribution{})
	require.NoError(t, err)
	require.Equal(t, []string{"Q42$a"}, fe.removedGUIDs())
}

func TestExecute_QueryFailureIsTyped(t *testing.T) {
	fq := newFakeQuery()
	fq.claimsErr = errors.New("sparql: http-503")
	exec, _ := newTestExecutor(newFakeEditing(), fq)

	_, err := exec.Execute(context.Background(),
		Update{EntityID: "Q42", Property: "P31", OldValue: "a", NewValue: "b"},
		testCred, Attribution{})

	var qe *QueryError
	require.ErrorAs(t, err, &qe)
}

func TestExecute_SessionConstructionFailurePropagates(t *testing.T) {
	editing := sessioncache.New("editing", func(ctx context.Context, cred permissions.Credential) (wikibase.EditingService, error) {
		return nil, errors.New("login rejected")
	})
	query := sessioncache.New("query", func(ctx context.Context, cred permissions.Credential) (wikibase.QueryService, error) {
		return newFakeQuery(), nil
	})
	exec := NewExecutor(editing, query, audit.NewInMemoryRepository(), testLogger())

	_, err := exec.Execute(context.Background(), Create{EntityID: "Q42", Property: "P31", Value: "Q5"},
		testCred, Attribution{})

	var me *MutationError
	require.ErrorAs(t, err, &me)
	require.Contains(t, me.Message, "login rejected")
}
