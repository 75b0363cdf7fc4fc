package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/voicedeck/voicedeck/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:          "release",
		Secret:        "test-secret",
		LiveKitURL:    "wss://media.example",
		LiveKitKey:    "devkey",
		LiveKitSecret: "devsecret-devsecret-devsecret-32",
		Channels: []config.Channel{
			{ID: "general-voice", Name: "General Voice"},
			{ID: "gaming-lounge", Name: "Gaming Lounge"},
		},
	}
}

func doGet(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConnectionDetailsRequiresParams(t *testing.T) {
	r := SetupRouter(testConfig())

	for _, path := range []string{
		"/api/connection-details",
		"/api/connection-details?roomName=a",
		"/api/connection-details?participantName=me",
	} {
		if w := doGet(t, r, path); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestConnectionDetailsMintsToken(t *testing.T) {
	cfg := testConfig()
	r := SetupRouter(cfg)

	w := doGet(t, r, "/api/connection-details?roomName=general-voice&participantName=User1234&region=eu")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var details ConnectionDetails
	if err := json.Unmarshal(w.Body.Bytes(), &details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.ServerURL != cfg.LiveKitURL {
		t.Errorf("serverUrl = %q, want %q", details.ServerURL, cfg.LiveKitURL)
	}
	if parts := strings.Split(details.ParticipantToken, "."); len(parts) != 3 {
		t.Errorf("participantToken is not a JWT: %q", details.ParticipantToken)
	}
}

func TestRoomsListsConfiguredChannels(t *testing.T) {
	r := SetupRouter(testConfig())

	w := doGet(t, r, "/api/rooms")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var rooms []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != "general-voice" || rooms[1].Name != "Gaming Lounge" {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestClientTokenCookieIssuedOnce(t *testing.T) {
	r := SetupRouter(testConfig())

	w := doGet(t, r, "/api/rooms")
	var issued *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" {
			issued = c
		}
	}
	if issued == nil || issued.Value == "" {
		t.Fatal("no client token cookie issued")
	}

	// A request carrying the cookie must not get a fresh one.
	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.AddCookie(issued)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	for _, c := range w2.Result().Cookies() {
		if c.Name == "ct" {
			t.Errorf("cookie reissued: %q", c.Value)
		}
	}
}
