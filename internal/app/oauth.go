package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

type OAuthLogger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// GoogleOAuthService walks an operator through Drive consent once, so the
// gdrive remote can run unattended on the printed refresh token.
type GoogleOAuthService struct {
	config *oauth2.Config
	logger OAuthLogger
	state  string
	server *http.Server
}

func NewGoogleOAuthService(logger OAuthLogger, clientSecretPath string) (*GoogleOAuthService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if clientSecretPath == "" {
		return nil, errors.New("remote.client_secret_file is required")
	}

	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return &GoogleOAuthService{
		config: cfg,
		logger: logger,
		state:  uuid.NewString(),
	}, nil
}

// SetRedirectURL overrides the first redirect URI of the client secret.
func (s *GoogleOAuthService) SetRedirectURL(u string) {
	s.config.RedirectURL = u
}

func (s *GoogleOAuthService) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		authURL := s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != s.state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := s.config.Exchange(r.Context(), code)
		if err != nil {
			s.logger.Errorf("Token exchange failed: %v", err)
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusBadGateway)
			return
		}

		if token.RefreshToken == "" {
			fmt.Fprintln(w, "⚠️ No refresh token returned. Revoke app access & re-authorize.")
			return
		}

		tokenJSON, err := json.MarshalIndent(token, "", "  ")
		if err != nil {
			http.Error(w, "failed to marshal token", http.StatusInternalServerError)
			return
		}

		s.logger.Infof("Refresh token issued; set remote.refresh_token to use it")
		fmt.Fprintf(w, "✅ Refresh Token:\n%s\n\nFull Token JSON:\n%s", token.RefreshToken, tokenJSON)
	})

	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *GoogleOAuthService) Serve(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Google Drive OAuth helper listening on %s, open /auth/google/drive", addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("OAuth server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	s.logger.Infof("OAuth server stopped")
	return nil
}
