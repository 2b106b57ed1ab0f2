// Package wikibase contains the narrow clients for the two remote
// collaborators of the server: the wiki editing API (api.php) and the
// SPARQL query endpoint. Both are treated as black boxes; the clients only
// translate calls to HTTP requests and remote failures to typed errors.
package wikibase

import "context"

// Session describes how to reach one wiki instance on behalf of one user.
// Editing handles constructed from a Session are authenticated and expensive
// to build; query handles are cheap but still cached per credential.
type Session struct {
	// InstanceURL is the base URL of the wiki, e.g. "https://campus.example.org".
	InstanceURL string
	// SPARQLEndpoint is the query service URL, e.g. ".../sparql".
	SPARQLEndpoint string
	Username       string
	Password       string
	// UserAgent identifies this deployment on every outbound call. The
	// query service rejects anonymous clients, so it must never be empty.
	UserAgent string
	// MaxLag is the replication-lag tolerance in seconds passed to the
	// editing API. Writes are retried while the remote reports lag above it.
	MaxLag int
}

// Claim is an (entity, property, value) assertion, optionally with
// qualifiers and a rank.
type Claim struct {
	// GUID identifies one concrete statement, e.g. "Q42$8f1a...". Empty on
	// claims that have not been written yet.
	GUID       string
	EntityID   string
	Property   string
	Value      string
	Rank       string
	Qualifiers map[string]string
}

// Claim ranks accepted by the editing API.
const (
	RankPreferred  = "preferred"
	RankNormal     = "normal"
	RankDeprecated = "deprecated"
)

// Entity is the minimal projection of a graph entity used by the server.
type Entity struct {
	ID     string
	Labels map[string]string
}

// EditingService is the mutation surface of the wiki API. Implementations
// may retry transient failures internally; callers never retry.
type EditingService interface {
	// CreateClaim writes a new claim, including its qualifiers, and returns
	// the GUID of the created statement.
	CreateClaim(ctx context.Context, claim Claim) (string, error)
	// UpdateClaimValue replaces the main value of an existing statement.
	UpdateClaimValue(ctx context.Context, guid, newValue string) error
	// RemoveClaim deletes the statement with the given GUID.
	RemoveClaim(ctx context.Context, guid string) error
	// UserGroups returns the wiki group names of a username.
	UserGroups(ctx context.Context, username string) ([]string, error)
}

// QueryService is the read-only surface of the graph query endpoint.
type QueryService interface {
	// Select runs a parameterized read-only query and returns one map per
	// result row, keyed by variable name.
	Select(ctx context.Context, query string) ([]map[string]string, error)
	// Entity fetches an entity projection by id.
	Entity(ctx context.Context, id string) (*Entity, error)
	// EntityClaims returns the claims of entityID for one property.
	EntityClaims(ctx context.Context, entityID, property string) ([]Claim, error)
	// ClaimByProperty returns the first claim of entityID for property, or
	// nil when the entity has none.
	ClaimByProperty(ctx context.Context, entityID, property string) (*Claim, error)
}
