package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTargetURL(t *testing.T) {
	tests := []struct {
		name, override, addr, want string
	}{
		{"default", "", "", "http://localhost:8080/readyz"},
		{"port only", "", ":9090", "http://localhost:9090/readyz"},
		{"host and port", "", "127.0.0.1:7000", "http://127.0.0.1:7000/readyz"},
		{"explicit url", "http://bot:1/healthz", ":9090", "http://bot:1/healthz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HEALTHCHECK_URL", tt.override)
			t.Setenv("HTTP_ADDR", tt.addr)
			if got := targetURL(); got != tt.want {
				t.Errorf("targetURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	if code := run(srv.URL); code != 0 {
		t.Errorf("run() = %d on 200, want 0", code)
	}
	status = http.StatusServiceUnavailable
	if code := run(srv.URL); code != 1 {
		t.Errorf("run() = %d on 503, want 1", code)
	}
	if code := run("http://127.0.0.1:1/readyz"); code != 1 {
		t.Errorf("run() = %d for unreachable host, want 1", code)
	}
}
