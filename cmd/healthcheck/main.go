package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

func main() {
	requirePoll := flag.Bool("poll", false, "also fail when the poll loop is not running")
	flag.Parse()
	os.Exit(check(os.Getenv("TRADECONFIRM_LISTEN_ADDR"), *requirePoll))
}

func check(rawAddr string, requirePoll bool) int {
	base := "http://" + normalizeAddr(rawAddr)
	client := &http.Client{Timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := get(ctx, client, base+"/api/v1/health", nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !requirePoll {
		return 0
	}

	var status struct {
		Poll *struct {
			Running bool `json:"running"`
		} `json:"poll"`
	}
	if _, err := get(ctx, client, base+"/api/v1/status", &status); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if status.Poll == nil || !status.Poll.Running {
		fmt.Fprintln(os.Stderr, "poll loop is not running")
		return 1
	}
	return 0
}

// get fetches url and decodes a JSON body into v when v is non-nil.
func get(ctx context.Context, client *http.Client, url string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", url, err)
		}
	}
	return resp.StatusCode, nil
}

// normalizeAddr points the check at loopback when the server binds every
// interface, since the check runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return "127.0.0.1:8080"
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return "127.0.0.1:8080"
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
