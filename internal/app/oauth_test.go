package app

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
)

func writeClientSecret(t *testing.T, tokenURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client_secret.json")
	secret := `{"installed":{"client_id":"wpfleet-test.apps.googleusercontent.com","client_secret":"s3cret",` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"` + tokenURL + `",` +
		`"redirect_uris":["http://localhost:8085/auth/google/callback"]}}`
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGoogleOAuthService(t *testing.T) {
	Convey("Given an OAuth helper backed by a fake token endpoint", t, func() {
		refresh := "1//refresh-token"
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"ya29.access","token_type":"Bearer","expires_in":3600,"refresh_token":"` + refresh + `"}`))
		}))
		defer tokenServer.Close()

		svc, err := NewGoogleOAuthService(zap.NewNop().Sugar(), writeClientSecret(t, tokenServer.URL))
		So(err, ShouldBeNil)
		handler := svc.Handler()

		Convey("The start page redirects to Google with offline access", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/drive", nil))
			So(rec.Code, ShouldEqual, http.StatusTemporaryRedirect)

			loc, err := url.Parse(rec.Header().Get("Location"))
			So(err, ShouldBeNil)
			So(loc.Host, ShouldEqual, "accounts.google.com")
			So(loc.Query().Get("access_type"), ShouldEqual, "offline")
			So(loc.Query().Get("client_id"), ShouldEqual, "wpfleet-test.apps.googleusercontent.com")
			So(loc.Query().Get("state"), ShouldEqual, svc.state)
		})

		Convey("The callback exchanges the code and shows the refresh token", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+svc.state, nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, refresh)
		})

		Convey("A callback with a foreign state is rejected", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=forged", nil))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A callback without a code is rejected", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?state="+svc.state, nil))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("A missing client secret path is an error", t, func() {
		_, err := NewGoogleOAuthService(zap.NewNop().Sugar(), "")
		So(err, ShouldNotBeNil)

		_, err = NewGoogleOAuthService(zap.NewNop().Sugar(), filepath.Join(t.TempDir(), "absent.json"))
		So(err, ShouldNotBeNil)
	})
}
