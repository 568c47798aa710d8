package twitch_widget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// cleanup closes the HTTP server
func cleanup(server *http.Server) {
	if server == nil {
		return
	}
	// give the browser a moment to receive the response before the listener goes away
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		_ = server.Close()
	}
}

func (a *AuthClient) finish(record *TokenRecord, err error) {
	select {
	case a.results <- authResult{record: record, err: err}:
	default:
	}
}

func (a *AuthClient) loopBackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if reason := query.Get("error"); reason != "" {
		err := fmt.Errorf("authorization denied: %s: %s", reason, query.Get("error_description"))
		Log.Error(err)
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, err.Error())
		a.finish(nil, err)
		return
	}

	if query.Get("state") != a.Aconfig.State {
		Log.Error("Url Param 'state' does not match")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, ErrStateMismatch.Error())
		a.finish(nil, ErrStateMismatch)
		return
	}

	// get the authorization code
	code := query.Get("code")
	if code == "" {
		Log.Error("Url Param 'code' is missing")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, ErrCodeNotFound.Error())
		a.finish(nil, ErrCodeNotFound)
		return
	}

	// trade the authorization code and the code verifier for a token
	record, err := a.getAccessToken(r.Context(), code)
	if err != nil {
		Log.Error("could not get access token")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, ErrAccessTokenNotFound.Error())
		a.finish(nil, err)
		return
	}

	// return an indication of success to the caller
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, a.WelcomeHtml)
	Log.WithField("login", record.Login).Info("Successfully authorized twitch-tmux-widget.")
	a.finish(record, nil)
}

// StartLoopbackService listens on the redirect URI, sends the user to
// authorizationURL and blocks until the callback has been handled or ctx is done.
func (a *AuthClient) StartLoopbackService(ctx context.Context, authorizationURL string) (*TokenRecord, error) {
	// parse the redirect URL for the port number and callback path
	u, err := url.Parse(a.Aconfig.RedirectUri)
	if err != nil {
		Log.Errorf("bad redirect URL: %s", err)
		return nil, err
	}

	if a.results == nil {
		a.results = make(chan authResult, 1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(u.Path, a.loopBackHandler)
	a.loopBackServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	// set up a listener on the redirect port
	addr := net.JoinHostPort(u.Hostname(), u.Port())
	l, err := net.Listen("tcp", addr)
	if err != nil {
		Log.Errorf("can't listen to %s: %s", addr, err)
		return nil, err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.loopBackServer.Serve(l)
	}()
	defer cleanup(a.loopBackServer)

	// open a browser window to the authorizationURL
	if err := a.OpenBrowser(authorizationURL); err != nil {
		Log.Warnf("can't open browser: %s", err)
		fmt.Fprintf(os.Stderr, "Open this URL to authorize the widget:\n%s\n", authorizationURL)
	}

	select {
	case res := <-a.results:
		return res.record, res.err
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = ErrAccessTokenNotFound
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
