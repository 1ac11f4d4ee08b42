package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(serverURL string) *HelixClient {
	ts := &TokenSource{ClientID: "test-client-id", ClientSecret: "test-secret"}
	// Pre-seed the token to avoid OAuth calls
	ts.SetToken("test-token", time.Now().Add(1*time.Hour))
	return &HelixClient{
		AppTokenSource: ts,
		ClientID:       "test-client-id",
		HTTPClient: &http.Client{
			Transport: &rewriteTransport{
				Transport: http.DefaultTransport,
				host:      serverURL,
			},
		},
	}
}

func TestHelixClient_GetUserID(t *testing.T) {
	tests := []struct {
		response    interface{}
		name        string
		login       string
		wantUserID  string
		errContains string
		statusCode  int
		wantErr     bool
	}{
		{
			name:  "successful user lookup",
			login: "testuser",
			response: map[string]interface{}{
				"data": []map[string]string{
					{"id": "12345", "login": "testuser"},
				},
			},
			statusCode: http.StatusOK,
			wantUserID: "12345",
		},
		{
			name:  "user not found",
			login: "nonexistent",
			response: map[string]interface{}{
				"data": []map[string]string{},
			},
			statusCode:  http.StatusOK,
			wantErr:     true,
			errContains: "user not found",
		},
		{
			name:        "empty login",
			login:       "",
			wantErr:     true,
			errContains: "login empty",
		},
		{
			name:        "server error",
			login:       "testuser",
			statusCode:  http.StatusInternalServerError,
			wantErr:     true,
			errContains: "status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Client-Id") != "test-client-id" {
					t.Errorf("missing or wrong Client-Id header")
				}
				if r.Header.Get("Authorization") != "Bearer test-token" {
					t.Errorf("missing or wrong Authorization header")
				}
				if r.URL.Path != "/helix/users" {
					t.Errorf("path = %s, want /helix/users", r.URL.Path)
				}
				if tt.login != "" && r.URL.Query().Get("login") != tt.login {
					t.Errorf("login query param = %s, want %s", r.URL.Query().Get("login"), tt.login)
				}

				w.WriteHeader(tt.statusCode)
				if tt.response != nil {
					json.NewEncoder(w).Encode(tt.response)
				}
			}))
			defer server.Close()

			userID, err := newTestClient(server.URL).GetUserID(context.Background(), tt.login)

			if tt.wantErr {
				if err == nil {
					t.Errorf("GetUserID() error = nil, want error containing %q", tt.errContains)
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("GetUserID() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetUserID() unexpected error = %v", err)
			}
			if userID != tt.wantUserID {
				t.Errorf("GetUserID() = %s, want %s", userID, tt.wantUserID)
			}
		})
	}
}

func TestHelixClient_GetUserIDNotFoundIsSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetUserID(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
}

func TestHelixClient_GetStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("user_id"); got != "4242" {
			t.Errorf("user_id=%q want 4242", got)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{
				"id":         "s1",
				"user_id":    "4242",
				"user_login": "livechannel",
				"type":       "live",
				"title":      "Live Now",
				"started_at": "2024-10-15T14:30:00Z",
			}},
		})
	}))
	defer server.Close()

	streams, err := newTestClient(server.URL).GetStreams(context.Background(), "4242")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	if streams[0].Title != "Live Now" {
		t.Errorf("stream title=%q want Live Now", streams[0].Title)
	}
	want := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)
	if !streams[0].StartedAt.Equal(want) {
		t.Errorf("started_at=%v want %v", streams[0].StartedAt, want)
	}
}

func TestHelixClient_GetStreamsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[],"pagination":{}}`))
	}))
	defer server.Close()

	streams, err := newTestClient(server.URL).GetStreams(context.Background(), "4242")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no streams while offline, got %d", len(streams))
	}
}

func TestHelixClient_GetStreamsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"Too Many Requests"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetStreams(context.Background(), "4242")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Endpoint != "/streams" {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
	if !strings.Contains(apiErr.Body, "Too Many Requests") {
		t.Errorf("body = %q", apiErr.Body)
	}
}

func TestHelixClient_GetStreamsEmptyUserID(t *testing.T) {
	if _, err := (&HelixClient{}).GetStreams(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestHelixClient_ListVideos(t *testing.T) {
	tests := []struct {
		name       string
		after      string
		first      int
		wantFirst  string
		wantCursor string
		wantVideos int
	}{
		{name: "first page", first: 5, wantFirst: "5", wantCursor: "next", wantVideos: 2},
		{name: "default first", first: 0, wantFirst: "20", wantCursor: "next", wantVideos: 2},
		{name: "last page", after: "next", first: 5, wantFirst: "5", wantVideos: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("type") != "archive" {
					t.Errorf("type=%q want archive", q.Get("type"))
				}
				if q.Get("first") != tt.wantFirst {
					t.Errorf("first=%q want %q", q.Get("first"), tt.wantFirst)
				}
				if q.Get("after") != tt.after {
					t.Errorf("after=%q want %q", q.Get("after"), tt.after)
				}
				if q.Get("after") == "next" {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"data": []map[string]string{
							{"id": "v3", "url": "https://www.twitch.tv/videos/v3"},
						},
						"pagination": map[string]string{},
					})
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"data": []map[string]string{
						{"id": "v1", "title": "Newest", "url": "https://www.twitch.tv/videos/v1", "duration": "1h2m3s"},
						{"id": "v2", "title": "Older", "url": "https://www.twitch.tv/videos/v2", "duration": "3h"},
					},
					"pagination": map[string]string{"cursor": "next"},
				})
			}))
			defer server.Close()

			videos, cursor, err := newTestClient(server.URL).ListVideos(context.Background(), "12345", tt.after, tt.first)
			if err != nil {
				t.Fatalf("ListVideos() error = %v", err)
			}
			if len(videos) != tt.wantVideos {
				t.Errorf("got %d videos, want %d", len(videos), tt.wantVideos)
			}
			if cursor != tt.wantCursor {
				t.Errorf("cursor = %q, want %q", cursor, tt.wantCursor)
			}
			if tt.after == "" && videos[0].URL != "https://www.twitch.tv/videos/v1" {
				t.Errorf("newest video url = %q", videos[0].URL)
			}
		})
	}
}

func TestHelixClient_TokenFailure(t *testing.T) {
	client := &HelixClient{AppTokenSource: &TokenSource{}, ClientID: "x"}
	_, err := client.GetUserID(context.Background(), "someone")
	if err == nil || !strings.Contains(err.Error(), "app token") {
		t.Fatalf("error = %v, want app token error", err)
	}
}

// rewriteTransport rewrites all requests to use the test server
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		host := t.host
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimPrefix(host, "https://")
		req.URL.Host = host
	}
	return t.Transport.RoundTrip(req)
}
