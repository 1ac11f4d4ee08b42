package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/vod-stamp/discordapi"
)

// MockDiscordServer is an in-memory Discord REST API: channels, their messages
// (newest last internally) and threads started from messages.
type MockDiscordServer struct {
	*httptest.Server

	mu         sync.Mutex
	nextID     int
	channels   map[string]bool
	messages   map[string][]discordapi.Message
	failPaths  []string
	listLimits []int
}

// NewMockDiscordServer starts a mock with the given channels.
func NewMockDiscordServer(t *testing.T, channelIDs ...string) *MockDiscordServer {
	t.Helper()
	m := &MockDiscordServer{
		nextID:   1000,
		channels: make(map[string]bool),
		messages: make(map[string][]discordapi.Message),
	}
	for _, id := range channelIDs {
		m.channels[id] = true
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// Fail makes any request whose path starts with prefix return 500.
func (m *MockDiscordServer) Fail(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPaths = append(m.failPaths, prefix)
}

// ListLimits returns the limit of every message listing so far.
func (m *MockDiscordServer) ListLimits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.listLimits...)
}

// Client returns a discordapi client whose requests are routed to the mock.
func (m *MockDiscordServer) Client() *discordapi.Client {
	target, _ := url.Parse(m.URL)
	return discordapi.New("test-token", &http.Client{Transport: &RewriteTransport{Target: target}})
}

// RewriteTransport sends every request to Target, keeping path and query.
type RewriteTransport struct {
	Target *url.URL
	Base   http.RoundTripper
}

func (rt *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.Target.Scheme
	r.URL.Host = rt.Target.Host
	r.Host = rt.Target.Host
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// Seed appends a message to a channel and returns its id.
func (m *MockDiscordServer) Seed(channelID, content, threadID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := discordapi.Message{ID: m.newID(), ChannelID: channelID, Content: content}
	if threadID != "" {
		msg.Thread = &discordapi.Channel{ID: threadID, Type: 11}
		m.channels[threadID] = true
	}
	m.messages[channelID] = append(m.messages[channelID], msg)
	return msg.ID
}

// Messages returns the contents posted to a channel or thread, oldest first.
func (m *MockDiscordServer) Messages(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.messages[channelID]))
	for _, msg := range m.messages[channelID] {
		out = append(out, msg.Content)
	}
	return out
}

// ThreadOf returns the thread attached to a message, or "".
func (m *MockDiscordServer) ThreadOf(channelID, messageID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages[channelID] {
		if msg.ID == messageID && msg.Thread != nil {
			return msg.Thread.ID
		}
	}
	return ""
}

func (m *MockDiscordServer) newID() string {
	m.nextID++
	return strconv.Itoa(m.nextID)
}

func (m *MockDiscordServer) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// drop the versioned API root, e.g. /api/v9
	path := r.URL.Path
	if i := strings.Index(path, "/channels/"); i >= 0 {
		path = path[i:]
	}
	for _, p := range m.failPaths {
		if strings.HasPrefix(path, p) {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
	}
	if r.Header.Get("Authorization") != "Bot test-token" {
		http.Error(w, `{"message":"401: Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	// /channels/{id}[/messages[/{mid}/threads]]
	parts := strings.Split(strings.TrimPrefix(path, "/channels/"), "/")
	channelID := parts[0]
	if !m.channels[channelID] {
		http.Error(w, `{"message":"Unknown Channel","code":10003}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(discordapi.Channel{ID: channelID}) //nolint:errcheck // test mock response
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		m.listLimits = append(m.listLimits, limit)
		all := m.messages[channelID]
		out := []discordapi.Message{}
		for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, all[i])
		}
		_ = json.NewEncoder(w).Encode(out) //nolint:errcheck // test mock response
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost:
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test mock request
		msg := discordapi.Message{ID: m.newID(), ChannelID: channelID, Content: body.Content}
		m.messages[channelID] = append(m.messages[channelID], msg)
		_ = json.NewEncoder(w).Encode(msg) //nolint:errcheck // test mock response
	case len(parts) == 4 && parts[3] == "threads" && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test mock request
		for i := range m.messages[channelID] {
			msg := &m.messages[channelID][i]
			if msg.ID != parts[2] {
				continue
			}
			th := &discordapi.Channel{ID: m.newID(), Type: 11, Name: body.Name, ParentID: channelID}
			msg.Thread = th
			m.channels[th.ID] = true
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(th) //nolint:errcheck // test mock response
			return
		}
		http.Error(w, `{"message":"Unknown Message","code":10008}`, http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
