package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddr(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "127.0.0.1:8080"},
		{"garbage", "127.0.0.1:8080"},
		{"0.0.0.0:9090", "127.0.0.1:9090"},
		{":9090", "127.0.0.1:9090"},
		{"10.0.0.5:8080", "10.0.0.5:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeAddr(tt.raw), tt.raw)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		healthCode  int
		requirePoll bool
		want        int
	}{
		{name: "healthy", status: `{}`, healthCode: http.StatusOK, want: 0},
		{name: "unhealthy", status: `{}`, healthCode: http.StatusServiceUnavailable, want: 1},
		{name: "poll running", status: `{"poll":{"running":true}}`, healthCode: http.StatusOK, requirePoll: true, want: 0},
		{name: "poll stopped", status: `{"poll":{"running":false}}`, healthCode: http.StatusOK, requirePoll: true, want: 1},
		{name: "poll missing", status: `{}`, healthCode: http.StatusOK, requirePoll: true, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/v1/health" {
					w.WriteHeader(tt.healthCode)
					return
				}
				_, _ = w.Write([]byte(tt.status))
			}))
			defer srv.Close()

			addr := strings.TrimPrefix(srv.URL, "http://")
			assert.Equal(t, tt.want, check(addr, tt.requirePoll))
		})
	}
}
