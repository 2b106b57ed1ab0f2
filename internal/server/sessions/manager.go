package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/logging"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/server/sessioncache"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

// accountProperty links a person entity to its wiki account name, so the
// actor's own entity can be found from the username.
const accountProperty = "P553"

// Session is one live authenticated session.
type Session struct {
	Credential permissions.Credential
	Rights     *permissions.Rights
	CreatedAt  time.Time
}

// Manager authenticates users and keeps a registry of live sessions keyed
// by session id. The session id travels to the client as a signed JWT.
type Manager struct {
	editing *sessioncache.Cache[wikibase.EditingService]
	query   *sessioncache.Cache[wikibase.QueryService]

	secretKey []byte
	validity  time.Duration
	log       logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(
	editing *sessioncache.Cache[wikibase.EditingService],
	query *sessioncache.Cache[wikibase.QueryService],
	secretKey []byte,
	validity time.Duration,
	log logging.Logger,
) *Manager {
	return &Manager{
		editing:   editing,
		query:     query,
		secretKey: secretKey,
		validity:  validity,
		log:       log.With("module", "sessions"),
		sessions:  map[string]*Session{},
	}
}

// Login authenticates the credential against the remote instance and
// returns a signed session token. Constructing the editing handle doubles
// as the login probe: a rejected password fails handle construction. On
// success the user's groups decide the admin flag and the query service
// resolves the actor's own entity id; an account without a linked entity
// logs in with an empty SelfEntityID.
func (m *Manager) Login(ctx context.Context, username, password string) (string, error) {
	cred := permissions.Credential{Username: username, Password: password}
	if !cred.IsAuthenticated() {
		return "", common.ErrorAuthenticationRequired
	}

	handle, err := m.editing.Get(ctx, cred)
	if err != nil {
		cred.Clear()
		return "", fmt.Errorf("%w: %s", common.ErrorAuthenticationRequired, err.Error())
	}

	groups, err := handle.UserGroups(ctx, username)
	if err != nil {
		m.discardLogin(&cred)
		return "", fmt.Errorf("fetching user groups: %w", err)
	}
	isAdmin := permissions.AdminFromGroups(groups)

	selfEntityID, err := m.resolveSelfEntity(ctx, cred)
	if err != nil {
		m.discardLogin(&cred)
		return "", err
	}

	sessionID := uuid.NewString()
	token, err := GenerateToken(sessionID, m.secretKey, m.validity)
	if err != nil {
		m.discardLogin(&cred)
		return "", fmt.Errorf("signing session token: %w", err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = &Session{
		Credential: cred,
		Rights:     permissions.NewRights(isAdmin, selfEntityID),
		CreatedAt:  time.Now(),
	}
	m.mu.Unlock()

	m.log.Info(ctx, "login", "user", username, "admin", isAdmin, "entity", selfEntityID)
	return token, nil
}

// Resolve maps a session token to the live session behind it.
func (m *Manager) Resolve(token string) (*Session, error) {
	sessionID, err := GetSessionIDFromToken(token, m.secretKey)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidToken, err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, common.ErrInvalidToken
	}
	return s, nil
}

// Logout tears the session down: the registry entry goes away, both cached
// remote handles for the credential are dropped, and the credential fields
// are cleared.
func (m *Manager) Logout(ctx context.Context, token string) error {
	sessionID, err := GetSessionIDFromToken(token, m.secretKey)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrInvalidToken, err.Error())
	}

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return common.ErrInvalidToken
	}

	m.editing.Remove(s.Credential)
	m.query.Remove(s.Credential)
	user := s.Credential.Username
	s.Credential.Clear()

	m.log.Info(ctx, "logout", "user", user)
	return nil
}

// discardLogin undoes a partially completed login: any remote handles
// already cached for the credential are dropped and the credential fields
// are wiped. Handles must go before Clear, which destroys the cache key.
func (m *Manager) discardLogin(cred *permissions.Credential) {
	m.editing.Remove(*cred)
	m.query.Remove(*cred)
	cred.Clear()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) resolveSelfEntity(ctx context.Context, cred permissions.Credential) (string, error) {
	q, err := m.query.Get(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("query handle: %w", err)
	}
	query := fmt.Sprintf(`SELECT ?user WHERE { ?user wdt:%s %q . } LIMIT 1`,
		accountProperty, cred.Username)
	rows, err := q.Select(ctx, query)
	if err != nil {
		return "", fmt.Errorf("resolving user entity: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0]["user"], nil
}
