// Package authflow drives the OAuth implicit-grant dance for one
// provider. The grant returns the access token in the redirect URL's
// fragment, which never reaches a server, so the local callback page
// relays the fragment back over a second request and then strips it from
// the visible URL. The flow is a two-phase protocol: building and opening
// the authorization URL, then completing with whatever the callback
// produced: a token, a provider error, or nothing at all.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/plannerkit/planner-sync/internal/provider"
)

// Authorization endpoints per provider.
const (
	boxAuthEndpoint      = "https://account.box.com/api/oauth2/authorize"
	oneDriveAuthEndpoint = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	gdriveAuthEndpoint   = "https://accounts.google.com/o/oauth2/v2/auth"
)

// Endpoint returns the authorization endpoint for a provider.
func Endpoint(id provider.ID) string {
	switch id {
	case provider.Box:
		return boxAuthEndpoint
	case provider.OneDrive:
		return oneDriveAuthEndpoint
	case provider.GoogleDrive:
		return gdriveAuthEndpoint
	default:
		return ""
	}
}

// ErrAuthDenied is returned when the provider reported an error in the
// callback instead of a token (the user declined, bad client config).
var ErrAuthDenied = errors.New("authflow: provider denied authorization")

// Status is the tri-state result of completing an authentication.
type Status int

const (
	// StatusNoCallback means no callback data was present at all.
	StatusNoCallback Status = iota
	// StatusTokenObtained means the fragment carried an access token.
	StatusTokenObtained
	// StatusProviderError means the provider reported an error.
	StatusProviderError
)

// Outcome is what the callback fragment parsed into.
type Outcome struct {
	Status      Status
	AccessToken string
	ExpiresIn   time.Duration
	ErrorCode   string
}

// ParseFragment decodes a query-string-encoded redirect fragment, like
// "access_token=XYZ&expires_in=3600" or "error=access_denied".
func ParseFragment(fragment string) Outcome {
	if fragment == "" {
		return Outcome{Status: StatusNoCallback}
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return Outcome{Status: StatusNoCallback}
	}

	if errCode := values.Get("error"); errCode != "" {
		return Outcome{Status: StatusProviderError, ErrorCode: errCode}
	}

	token := values.Get("access_token")
	if token == "" {
		return Outcome{Status: StatusNoCallback}
	}

	out := Outcome{Status: StatusTokenObtained, AccessToken: token}
	if raw := values.Get("expires_in"); raw != "" {
		if secs, convErr := strconv.Atoi(raw); convErr == nil && secs > 0 {
			out.ExpiresIn = time.Duration(secs) * time.Second
		}
	}

	return out
}

// TokenSaver is the slice of the token store the flow needs.
// *tokenstore.Store satisfies it.
type TokenSaver interface {
	Save(name, accessToken string, expiresIn time.Duration) error
}

// Config holds the per-provider OAuth client settings.
type Config struct {
	ClientID     string
	Scope        string
	RedirectPort int
	// AuthEndpoint overrides the provider's default endpoint. Tests use it.
	AuthEndpoint string
}

// Flow runs the implicit grant for one provider.
type Flow struct {
	id     provider.ID
	cfg    Config
	tokens TokenSaver
	logger *slog.Logger
}

// New builds a flow for the provider using its OAuth client settings.
func New(id provider.ID, cfg Config, tokens TokenSaver, logger *slog.Logger) *Flow {
	if cfg.AuthEndpoint == "" {
		cfg.AuthEndpoint = Endpoint(id)
	}
	return &Flow{id: id, cfg: cfg, tokens: tokens, logger: logger}
}

func (f *Flow) redirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", f.cfg.RedirectPort)
}

// AuthURL builds the provider authorization URL the user's browser must
// visit. response_type=token selects the implicit grant.
func (f *Flow) AuthURL() string {
	q := url.Values{}
	q.Set("response_type", "token")
	q.Set("client_id", f.cfg.ClientID)
	q.Set("redirect_uri", f.redirectURI())
	if f.cfg.Scope != "" {
		q.Set("scope", f.cfg.Scope)
	}

	return f.cfg.AuthEndpoint + "?" + q.Encode()
}

// Complete applies a parsed callback outcome: a token is stored with its
// expiry, a provider error becomes ErrAuthDenied, and an empty callback
// is a no-op so startup can call this unconditionally.
func (f *Flow) Complete(outcome Outcome) error {
	switch outcome.Status {
	case StatusTokenObtained:
		if err := f.tokens.Save(string(f.id), outcome.AccessToken, outcome.ExpiresIn); err != nil {
			return fmt.Errorf("authflow: storing token for %s: %w", f.id, err)
		}
		f.logger.Info("authentication complete",
			slog.String("provider", string(f.id)),
			slog.Duration("expires_in", outcome.ExpiresIn),
		)
		return nil
	case StatusProviderError:
		return fmt.Errorf("%w: %s", ErrAuthDenied, outcome.ErrorCode)
	default:
		return nil
	}
}

// Run listens for the browser redirect, waits for the relayed fragment,
// and completes the flow. notify receives the authorization URL once the
// listener is up, so the caller can print it or open a browser. Run
// returns when a callback arrives, the context expires, or the listener
// fails.
func (f *Flow) Run(ctx context.Context, notify func(authURL string)) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(f.cfg.RedirectPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("authflow: listening on %s: %w", addr, err)
	}
	defer ln.Close()

	results := make(chan Outcome, 1)
	srv := &http.Server{Handler: f.handler(results)}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			f.logger.Error("callback server failed", slog.Any("error", serveErr))
		}
	}()
	defer srv.Close()

	f.logger.Info("waiting for authorization callback",
		slog.String("provider", string(f.id)),
		slog.String("redirect_uri", f.redirectURI()),
	)
	notify(f.AuthURL())

	select {
	case outcome := <-results:
		return f.Complete(outcome)
	case <-ctx.Done():
		return fmt.Errorf("authflow: waiting for callback: %w", ctx.Err())
	}
}

// callbackPage relays the URL fragment to /token, then rewrites the
// location so the token never lingers in the visible URL or history.
const callbackPage = `<!DOCTYPE html>
<html>
<body>
<p>Completing sign-in&hellip;</p>
<script>
var frag = window.location.hash.replace(/^#/, "");
fetch("/token?" + frag).then(function () {
	history.replaceState(null, "", window.location.pathname);
	document.body.textContent = "Signed in. You can close this window.";
}).catch(function () {
	document.body.textContent = "Sign-in failed. You can close this window.";
});
</script>
</body>
</html>
`

// handler serves the two callback routes: /callback renders the relay
// page, /token receives the fragment re-encoded as a query string and
// delivers the parsed outcome. Only the first outcome counts.
func (f *Flow) handler(results chan<- Outcome) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(callbackPage))
	})

	mux.HandleFunc("GET /token", func(w http.ResponseWriter, r *http.Request) {
		outcome := ParseFragment(r.URL.RawQuery)
		select {
		case results <- outcome:
		default:
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}
