package wikibase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	apiPath        = "/w/api.php"
	defaultTimeout = 30 * time.Second
	retryBase      = 500 * time.Millisecond
	maxRetries     = 3
)

// Editing is the authenticated mutation client for one wiki instance and one
// user. Construction performs the full login handshake (login token, login,
// CSRF token), which is why instances are cached per credential and reused.
type Editing struct {
	session   Session
	http      *http.Client
	csrfToken string
}

var _ EditingService = (*Editing)(nil)

// NewEditing builds an authenticated editing handle. The returned client
// holds the session cookies and CSRF token for all subsequent mutations.
func NewEditing(ctx context.Context, session Session) (*Editing, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	e := &Editing{
		session: session,
		http:    &http.Client{Jar: jar, Timeout: defaultTimeout},
	}
	if err := e.login(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Editing) login(ctx context.Context) error {
	var tokenResp apiResponse
	if err := e.call(ctx, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"login"},
	}, &tokenResp); err != nil {
		return fmt.Errorf("fetch login token: %w", err)
	}
	loginToken := tokenResp.token("logintoken")
	if loginToken == "" {
		return &RemoteError{Op: "login", Message: "no login token in response"}
	}

	var loginResp apiResponse
	if err := e.call(ctx, url.Values{
		"action":     {"login"},
		"lgname":     {e.session.Username},
		"lgpassword": {e.session.Password},
		"lgtoken":    {loginToken},
	}, &loginResp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if loginResp.Login == nil || loginResp.Login.Result != "Success" {
		result := "unknown"
		if loginResp.Login != nil {
			result = loginResp.Login.Result
		}
		return &RemoteError{Op: "login", Code: result, Message: "login rejected"}
	}

	var csrfResp apiResponse
	if err := e.call(ctx, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
	}, &csrfResp); err != nil {
		return fmt.Errorf("fetch csrf token: %w", err)
	}
	e.csrfToken = csrfResp.token("csrftoken")
	if e.csrfToken == "" {
		return &RemoteError{Op: "login", Message: "no csrf token in response"}
	}
	return nil
}

// CreateClaim writes the claim and its qualifiers, returning the new
// statement GUID. Qualifiers are written in property order so repeated runs
// issue identical request sequences.
func (e *Editing) CreateClaim(ctx context.Context, claim Claim) (string, error) {
	var resp apiResponse
	err := e.call(ctx, url.Values{
		"action":   {"wbcreateclaim"},
		"entity":   {claim.EntityID},
		"property": {claim.Property},
		"snaktype": {"value"},
		"value":    {encodeValue(claim.Value)},
		"token":    {e.csrfToken},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Claim == nil || resp.Claim.ID == "" {
		return "", &RemoteError{Op: "wbcreateclaim", Message: "no claim id in response"}
	}
	guid := resp.Claim.ID

	props := make([]string, 0, len(claim.Qualifiers))
	for p := range claim.Qualifiers {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		var qresp apiResponse
		err := e.call(ctx, url.Values{
			"action":   {"wbsetqualifier"},
			"claim":    {guid},
			"property": {p},
			"snaktype": {"value"},
			"value":    {encodeValue(claim.Qualifiers[p])},
			"token":    {e.csrfToken},
		}, &qresp)
		if err != nil {
			return guid, err
		}
	}
	return guid, nil
}

// UpdateClaimValue replaces the main value of the statement with guid.
func (e *Editing) UpdateClaimValue(ctx context.Context, guid, newValue string) error {
	var resp apiResponse
	return e.call(ctx, url.Values{
		"action":   {"wbsetclaimvalue"},
		"claim":    {guid},
		"snaktype": {"value"},
		"value":    {encodeValue(newValue)},
		"token":    {e.csrfToken},
	}, &resp)
}

// RemoveClaim deletes the statement with guid.
func (e *Editing) RemoveClaim(ctx context.Context, guid string) error {
	var resp apiResponse
	return e.call(ctx, url.Values{
		"action": {"wbremoveclaims"},
		"claim":  {guid},
		"token":  {e.csrfToken},
	}, &resp)
}

// UserGroups returns the wiki group names of username. Unknown users get an
// empty set, not an error.
func (e *Editing) UserGroups(ctx context.Context, username string) ([]string, error) {
	var resp apiResponse
	err := e.call(ctx, url.Values{
		"action":  {"query"},
		"list":    {"users"},
		"ususers": {username},
		"usprop":  {"groups"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Query == nil || len(resp.Query.Users) == 0 {
		return nil, nil
	}
	return resp.Query.Users[0].Groups, nil
}

// call issues one API request, retrying transient failures (replication lag,
// rate limiting, 5xx) with fibonacci backoff. Permanent failures and context
// cancellation return immediately.
func (e *Editing) call(ctx context.Context, params url.Values, out *apiResponse) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.once(ctx, params, out)
		var re *RemoteError
		if errors.As(err, &re) && re.retryable() {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (e *Editing) once(ctx context.Context, params url.Values, out *apiResponse) error {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("format", "json")
	if e.session.MaxLag > 0 {
		form.Set("maxlag", strconv.Itoa(e.session.MaxLag))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(e.session.InstanceURL, "/")+apiPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", e.session.UserAgent)
	req.Header.Set("Api-User-Agent", e.session.UserAgent)

	op := params.Get("action")
	resp, err := e.http.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &RemoteError{Op: op, Code: "http-" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}

	*out = apiResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Op: op, Message: "malformed response: " + err.Error()}
	}
	if out.Error != nil {
		return &RemoteError{Op: op, Code: out.Error.Code, Message: out.Error.Info}
	}
	return nil
}

// apiResponse covers the handful of api.php response shapes this client
// reads. Fields not relevant to a call stay nil.
type apiResponse struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Login *struct {
		Result string `json:"result"`
	} `json:"login"`
	Claim *struct {
		ID string `json:"id"`
	} `json:"claim"`
	Query *struct {
		Tokens map[string]string `json:"tokens"`
		Users  []struct {
			Name   string   `json:"name"`
			Groups []string `json:"groups"`
		} `json:"users"`
	} `json:"query"`
}

func (r *apiResponse) token(name string) string {
	if r.Query == nil {
		return ""
	}
	return r.Query.Tokens[name]
}

// encodeValue renders a claim value the way the editing API expects it:
// entity ids become item references, anything else a JSON string.
func encodeValue(v string) string {
	if strings.HasPrefix(v, "Q") {
		if n, err := strconv.Atoi(v[1:]); err == nil {
			return fmt.Sprintf(`{"entity-type":"item","numeric-id":%d}`, n)
		}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
