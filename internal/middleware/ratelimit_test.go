package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/v1/sponsor", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestIPRateLimiter_CapsPerIP(t *testing.T) {
	rl := NewIPRateLimiter(3, time.Hour, false, nil)
	h := rl.Handler(okHandler())

	for i := 0; i < 3; i++ {
		if code := doRequest(h, "1.2.3.4:5555", ""); code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, code)
		}
	}
	if code := doRequest(h, "1.2.3.4:5555", ""); code != http.StatusTooManyRequests {
		t.Fatalf("4th request should be limited, got %d", code)
	}

	// A different IP is unaffected.
	if code := doRequest(h, "9.9.9.9:1111", ""); code != http.StatusOK {
		t.Fatalf("other ip should pass, got %d", code)
	}
}

func TestIPRateLimiter_DisabledPassesEverything(t *testing.T) {
	rl := NewIPRateLimiter(1, time.Hour, true, nil)
	h := rl.Handler(okHandler())
	for i := 0; i < 10; i++ {
		if code := doRequest(h, "1.2.3.4:5555", ""); code != http.StatusOK {
			t.Fatalf("disabled limiter rejected request %d: %d", i+1, code)
		}
	}
}

func TestIPRateLimiter_OnRejectFires(t *testing.T) {
	rl := NewIPRateLimiter(1, time.Hour, false, nil)
	var rejected []string
	rl.OnReject(func(ip string) { rejected = append(rejected, ip) })
	h := rl.Handler(okHandler())

	doRequest(h, "1.2.3.4:5555", "")
	doRequest(h, "1.2.3.4:5555", "")
	if len(rejected) != 1 || rejected[0] != "1.2.3.4" {
		t.Fatalf("expected one rejection for 1.2.3.4, got %v", rejected)
	}
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	rl := NewIPRateLimiter(5, time.Hour, false, nil)
	h := rl.Handler(okHandler())
	doRequest(h, "1.2.3.4:5555", "")
	doRequest(h, "5.6.7.8:5555", "")

	if removed := rl.Cleanup(0); removed != 2 {
		t.Fatalf("expected both idle limiters removed, got %d", removed)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		remote    string
		forwarded string
		want      string
	}{
		{"1.2.3.4:5555", "", "1.2.3.4"},
		{"1.2.3.4:5555", "10.0.0.1", "10.0.0.1"},
		{"1.2.3.4:5555", "10.0.0.1, 172.16.0.1", "10.0.0.1"},
		{"nonsense", "", "nonsense"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if tc.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tc.forwarded)
		}
		if got := ClientIP(req); got != tc.want {
			t.Fatalf("ClientIP(%q, %q) = %q, want %q", tc.remote, tc.forwarded, got, tc.want)
		}
	}
}
