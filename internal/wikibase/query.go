package wikibase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query is the read-only client for the SPARQL endpoint and entity data of
// one wiki instance.
type Query struct {
	session Session
	http    *http.Client
}

var _ QueryService = (*Query)(nil)

// NewQuery builds a query handle for the session's instance.
func NewQuery(session Session) *Query {
	return &Query{
		session: session,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Select runs a SPARQL query and flattens the JSON result bindings into one
// map per row, keyed by variable name.
func (q *Query) Select(ctx context.Context, query string) ([]map[string]string, error) {
	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.session.SPARQLEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	// The query service refuses requests without a client identity.
	req.Header.Set("User-Agent", q.session.UserAgent)
	req.Header.Set("Api-User-Agent", q.session.UserAgent)

	resp, err := q.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: "sparql", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "sparql", Code: "http-" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}

	var body struct {
		Results struct {
			Bindings []map[string]struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"bindings"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &RemoteError{Op: "sparql", Message: "malformed response: " + err.Error()}
	}

	rows := make([]map[string]string, 0, len(body.Results.Bindings))
	for _, b := range body.Results.Bindings {
		row := make(map[string]string, len(b))
		for name, cell := range b {
			row[name] = localName(cell.Value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Entity fetches the labels of an entity through the instance's entity data
// endpoint.
func (q *Query) Entity(ctx context.Context, id string) (*Entity, error) {
	u := strings.TrimRight(q.session.InstanceURL, "/") + "/wiki/Special:EntityData/" + id + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", q.session.UserAgent)
	req.Header.Set("Api-User-Agent", q.session.UserAgent)

	resp, err := q.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: "entitydata", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "entitydata", Code: "http-" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}

	var body struct {
		Entities map[string]struct {
			Labels map[string]struct {
				Value string `json:"value"`
			} `json:"labels"`
		} `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &RemoteError{Op: "entitydata", Message: "malformed response: " + err.Error()}
	}

	raw, ok := body.Entities[id]
	if !ok {
		return nil, &RemoteError{Op: "entitydata", Code: "missing", Message: "entity " + id + " not in response"}
	}
	labels := make(map[string]string, len(raw.Labels))
	for lang, l := range raw.Labels {
		labels[lang] = l.Value
	}
	return &Entity{ID: id, Labels: labels}, nil
}

// EntityClaims returns all claims of entityID for one property, with
// statement GUIDs recovered from the statement URIs.
func (q *Query) EntityClaims(ctx context.Context, entityID, property string) ([]Claim, error) {
	query := fmt.Sprintf(
		`SELECT ?stmt ?value WHERE { wd:%s p:%s ?stmt . ?stmt ps:%s ?value . }`,
		entityID, property, property)
	rows, err := q.Select(ctx, query)
	if err != nil {
		return nil, err
	}

	claims := make([]Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, Claim{
			GUID:     statementGUID(entityID, row["stmt"]),
			EntityID: entityID,
			Property: property,
			Value:    row["value"],
		})
	}
	return claims, nil
}

// ClaimByProperty returns the first claim of entityID for property, or nil
// when none exists.
func (q *Query) ClaimByProperty(ctx context.Context, entityID, property string) (*Claim, error) {
	claims, err := q.EntityClaims(ctx, entityID, property)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, nil
	}
	return &claims[0], nil
}

// localName strips the URI prefix from an RDF term, turning entity URIs into
// plain ids. Literal values pass through unchanged.
func localName(v string) string {
	if i := strings.LastIndexAny(v, "/#"); i >= 0 && strings.Contains(v, "://") {
		return v[i+1:]
	}
	return v
}

// statementGUID converts a statement local name like "Q42-8f1a..." back into
// the claim GUID form "Q42$8f1a..." used by the editing API.
func statementGUID(entityID, stmt string) string {
	if strings.HasPrefix(stmt, entityID+"-") {
		return entityID + "$" + stmt[len(entityID)+1:]
	}
	return stmt
}

// WithTimeout derives a context with a default deadline for one remote call.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
