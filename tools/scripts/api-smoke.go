// Package main provides a CI-friendly smoke test for a running UniDash server.
//
// It validates:
//   - /healthz and /readyz answer
//   - /metrics exposes the lifecycle counters
//   - every member-scoped route denies anonymous access with the
//     not_authenticated error shape
//   - the Google login redirect carries the anti-forgery state
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-request timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		fatalf("invalid -url %q", *baseURL)
	}

	client := &http.Client{
		Timeout: *timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	s := &smoke{client: client, base: base.String(), verbose: *verbose}

	s.expectText(http.MethodGet, "/healthz", http.StatusOK, "ok")
	s.expectText(http.MethodGet, "/readyz", http.StatusOK, "ready")
	s.checkMetrics()
	s.checkAnonymousDenied()
	s.checkLoginRedirect()

	if s.failed {
		os.Exit(1)
	}
	fmt.Println("smoke: all checks passed")
}

type smoke struct {
	client  *http.Client
	base    string
	verbose bool
	failed  bool
}

func (s *smoke) get(method, path string) (*http.Response, string) {
	req, err := http.NewRequest(method, s.base+path, nil)
	if err != nil {
		fatalf("build request %s %s: %v", method, path, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	if s.verbose {
		fmt.Printf("%s %s -> %d\n", method, path, resp.StatusCode)
	}
	return resp, string(body)
}

func (s *smoke) expectText(method, path string, wantStatus int, wantBody string) {
	resp, body := s.get(method, path)
	if resp.StatusCode != wantStatus {
		s.failf("%s %s: status %d, want %d", method, path, resp.StatusCode, wantStatus)
		return
	}
	if !strings.Contains(body, wantBody) {
		s.failf("%s %s: body %q missing %q", method, path, body, wantBody)
	}
}

func (s *smoke) checkMetrics() {
	resp, body := s.get(http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		s.failf("/metrics: status %d", resp.StatusCode)
		return
	}
	for _, metric := range []string{
		"unidash_request_transitions_total",
		"unidash_verification_codes_rejected_total",
	} {
		// Counters with no observations only surface their HELP line; that
		// still proves registration.
		if !strings.Contains(body, metric) {
			s.failf("/metrics: missing %s", metric)
		}
	}
}

func (s *smoke) checkAnonymousDenied() {
	routes := []struct{ method, path string }{
		{http.MethodGet, "/me"},
		{http.MethodGet, "/me/stats"},
		{http.MethodGet, "/api/requests"},
		{http.MethodPost, "/api/requests"},
		{http.MethodGet, "/api/my-requests"},
		{http.MethodGet, "/api/my-deliveries"},
		{http.MethodGet, "/api/my-active-order"},
	}
	for _, rt := range routes {
		resp, body := s.get(rt.method, rt.path)
		if resp.StatusCode != http.StatusUnauthorized {
			s.failf("%s %s: status %d, want 401", rt.method, rt.path, resp.StatusCode)
			continue
		}
		var parsed struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(body), &parsed); err != nil || parsed.Error.Code != "not_authenticated" {
			s.failf("%s %s: unexpected error body %q", rt.method, rt.path, body)
		}
	}
}

func (s *smoke) checkLoginRedirect() {
	resp, _ := s.get(http.MethodGet, "/auth/google")
	if resp.StatusCode != http.StatusFound {
		s.failf("/auth/google: status %d, want 302", resp.StatusCode)
		return
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		s.failf("/auth/google: no Location header")
		return
	}
	// A server without Google credentials produces a bare consent URL; a
	// configured one must carry the anti-forgery state parameter.
	if strings.Contains(loc, "accounts.google.com") && !strings.Contains(loc, "state=") {
		s.failf("/auth/google: consent URL %q missing state", loc)
	}
}

func (s *smoke) failf(format string, args ...any) {
	s.failed = true
	fmt.Fprintf(os.Stderr, "smoke: FAIL: "+format+"\n", args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "smoke: "+format+"\n", args...)
	os.Exit(1)
}
