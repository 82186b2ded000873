package core

import (
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// AuthState tracks where a session is in the login lifecycle. Failed
// is terminal, callers must construct a fresh session after it.
type AuthState int

const (
	Anonymous AuthState = iota
	TokenAcquired
	CredentialsSubmitted
	Redirected
	AgeVerified
	Authenticated
	Failed
)

func (s AuthState) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case TokenAcquired:
		return "token_acquired"
	case CredentialsSubmitted:
		return "credentials_submitted"
	case Redirected:
		return "redirected"
	case AgeVerified:
		return "age_verified"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Session is the mutable authentication state threaded through every
// call. It is not safe for concurrent use; one session, one caller.
//
// The cookie field holds the site's last Set-Cookie response verbatim
// instead of a per-name cookie jar. Replacing the whole set on every
// response matches the site's observed behavior; a real jar with
// per-cookie domain/path merging changes which cookies later requests
// carry. Known limitation, kept on purpose.
type Session struct {
	cookie      string
	csrfToken   string
	xsrfToken   string
	state       AuthState
	redirectURL string
}

func NewSession() *Session {
	return &Session{state: Anonymous}
}

func (s *Session) State() AuthState { return s.state }

func (s *Session) Authenticated() bool { return s.state == Authenticated }

func (s *Session) setState(state AuthState) {
	if s.state == Failed {
		return
	}
	s.state = state
}

func (s *Session) fail() { s.state = Failed }

// ReplaceCookies overwrites the session cookie set with the response's
// Set-Cookie headers. Multiple values in one response are joined with
// "; " rather than merged per name. A response without Set-Cookie
// leaves the current set untouched.
func (s *Session) ReplaceCookies(res *resty.Response) {
	values := res.Header().Values("Set-Cookie")
	if len(values) == 0 {
		return
	}
	s.cookie = strings.Join(values, "; ")
}

// AuthHeaders are the session-derived request headers, keyed lowercase.
func (s *Session) AuthHeaders() map[string]string {
	headers := map[string]string{}
	if s.cookie != "" {
		headers["cookie"] = s.cookie
	}
	if s.xsrfToken != "" {
		headers["x-xsrf-token"] = s.xsrfToken
	}
	return headers
}

// Snapshot captures the session for persistence across process runs.
type Snapshot struct {
	Cookie    string    `json:"cookie"`
	CSRFToken string    `json:"csrf_token"`
	XSRFToken string    `json:"xsrf_token"`
	State     AuthState `json:"state"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Cookie:    s.cookie,
		CSRFToken: s.csrfToken,
		XSRFToken: s.xsrfToken,
		State:     s.state,
	}
}

func Restore(snapshot Snapshot) *Session {
	return &Session{
		cookie:    snapshot.Cookie,
		csrfToken: snapshot.CSRFToken,
		xsrfToken: snapshot.XSRFToken,
		state:     snapshot.State,
	}
}
