package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const callbackPath = "/oauth2callback"

// Authorizer runs the interactive part of the OAuth flow and returns a
// freshly exchanged token.
type Authorizer interface {
	Authorize(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error)
}

// LocalServerAuthorizer opens the consent page in a browser and receives the
// authorization code on a loopback redirect listener.
type LocalServerAuthorizer struct {
	// Port to listen on; 0 picks a free port.
	Port        int
	OpenBrowser bool
}

func (a *LocalServerAuthorizer) Authorize(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}

	// Redirect to whatever port we actually got, without touching the
	// caller's config.
	cfg := *config
	cfg.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)
	state := uuid.NewString()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{Handler: mux}

	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Error: state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			sendErr(errCh, fmt.Errorf("authorization denied: %s", e))
			fmt.Fprintf(w, "Authorization failed: %s", e)
			return
		}
		code := q.Get("code")
		if code == "" {
			sendErr(errCh, fmt.Errorf("no authorization code received"))
			fmt.Fprintf(w, "Error: No authorization code received")
			return
		}

		select {
		case codeCh <- code:
		default:
		}
		fmt.Fprintf(w, "Authorization successful! You can close this window and return to the terminal.")
	})

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sendErr(errCh, fmt.Errorf("local server failed: %w", err))
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)

	slog.Info("waiting for Google authorization", "redirect", cfg.RedirectURL)
	slog.Info("if the browser doesn't open automatically, visit this URL", "url", authURL)
	if a.OpenBrowser {
		if err := openBrowser(authURL); err != nil {
			slog.Warn("failed to open browser automatically", "error", err)
		}
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}
	return tok, nil
}

// ConsoleAuthorizer prints the consent URL and reads the authorization code
// (or the whole redirected URL) from the console. When In is a *bufio.Reader
// it is read in place, one line only, so a caller sharing it keeps the rest.
type ConsoleAuthorizer struct {
	In  io.Reader
	Out io.Writer
}

func (a *ConsoleAuthorizer) Authorize(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	state := uuid.NewString()
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	fmt.Fprintf(a.Out, "Go to the following link in your browser, then paste the authorization code\n"+
		"(or the full URL you were redirected to):\n\n%s\n\nCode: ", authURL)

	line, err := readLine(a.In)
	if err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	code, err := extractCode(line, state)
	if err != nil {
		return nil, err
	}

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}
	return tok, nil
}

func readLine(in io.Reader) (string, error) {
	r, ok := in.(*bufio.Reader)
	if !ok {
		r = bufio.NewReader(in)
	}
	line, err := r.ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && strings.TrimSpace(line) != "":
	case errors.Is(err, io.EOF):
		return "", io.ErrUnexpectedEOF
	default:
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// extractCode accepts either a bare code or a redirect URL carrying code and
// state query parameters.
func extractCode(input, state string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("empty authorization code")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("unable to parse redirect URL: %w", err)
	}
	q := u.Query()
	if got := q.Get("state"); got != "" && got != state {
		return "", fmt.Errorf("state mismatch in redirect URL")
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL has no code parameter")
	}
	return code, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// openBrowser opens the specified URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}
