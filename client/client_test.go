package client_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/reposearch/client"
	"github.com/adamwoolhether/reposearch/throttle"
)

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type payload struct {
	Body string `json:"body"`
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse URL %q: %v", raw, err)
	}

	return u
}

func TestClient_WithUserAgent(t *testing.T) {
	expectedUA := "reposearch-test/1.0"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithUserAgent(expectedUA))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := c.Request(t.Context(), mustParse(t, ts.URL), http.MethodGet)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	if err := c.Do(req, http.StatusOK); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestClient_WithThrottleAndUserAgent(t *testing.T) {
	expectedUA := "ThrottledAgent/1.0"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// WithThrottle before WithUserAgent; order must not matter.
	c, err := client.Build(
		client.WithThrottle(600, 5),
		client.WithUserAgent(expectedUA),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := c.Request(t.Context(), mustParse(t, ts.URL), http.MethodGet)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	if err := c.Do(req, http.StatusOK); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestClient_WithThrottleValidation(t *testing.T) {
	_, err := client.Build(client.WithThrottle(0, 1))
	if !errors.Is(err, throttle.ErrMustNotBeZero) {
		t.Fatalf("expected ErrMustNotBeZero, got: %v", err)
	}
}

func TestClient_WithTransport(t *testing.T) {
	var called bool
	custom := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"body":"stub"}`)),
			Header:     make(http.Header),
		}, nil
	})

	c, err := client.Build(client.WithTransport(custom))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := c.Request(t.Context(), mustParse(t, "http://upstream.invalid/x"), http.MethodGet)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var got payload
	if err := c.Do(req, http.StatusOK, client.WithDestination(&got)); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !called {
		t.Error("custom transport was not called")
	}
	if got.Body != "stub" {
		t.Errorf("decoded body = %q, want %q", got.Body, "stub")
	}
}

func TestClient_OptionValidation(t *testing.T) {
	tests := map[string]client.Option{
		"nil transport":    client.WithTransport(nil),
		"nil client":       client.WithClient(nil),
		"negative timeout": client.WithTimeout(-1),
		"empty header":     client.WithDefaultHeader("Accept", ""),
		"empty user agent": client.WithUserAgent(""),
	}

	for name, opt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := client.Build(opt); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClient_WithTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithTimeout(20 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := c.Request(t.Context(), mustParse(t, ts.URL), http.MethodGet)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	if err := c.Do(req, http.StatusOK); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClient_DefaultHeaders(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(
		client.WithUserAgent("reposearch-test/1.0"),
		client.WithDefaultHeader("Accept", "application/json"),
		client.WithDefaultHeader("X-GitHub-Api-Version", "2022-11-28"),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := c.Request(t.Context(), mustParse(t, ts.URL), http.MethodGet,
		client.WithHeaders(http.Header{"Accept": {"application/vnd.github+json"}}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Do(req, http.StatusOK); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"reposearch-test/1.0", "application/vnd.github+json", "2022-11-28"}
	if diff := cmp.Diff(want, []string{got.Get("User-Agent"), got.Get("Accept"), got.Get("X-GitHub-Api-Version")}); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	if req.Header.Get("User-Agent") != "" {
		t.Error("default headers leaked into the caller's request")
	}
}

func TestClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"body":"hello"}`))
		case "/forbidden":
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"API rate limit exceeded"}`))
		case "/broken":
			w.Write([]byte(`{not json`))
		case "/huge":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(strings.Repeat("x", 10<<10)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatal(err)
	}

	do := func(t *testing.T, path string, opts ...client.DoOption) error {
		t.Helper()

		req, err := c.Request(t.Context(), mustParse(t, ts.URL+path), http.MethodGet)
		if err != nil {
			t.Fatal(err)
		}

		return c.Do(req, http.StatusOK, opts...)
	}

	t.Run("decodes destination", func(t *testing.T) {
		var got payload
		if err := do(t, "/ok", client.WithDestination(&got)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(payload{Body: "hello"}, got); diff != "" {
			t.Fatalf("body mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("forbidden joins auth failure", func(t *testing.T) {
		err := do(t, "/forbidden")

		var se *client.UnexpectedStatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected UnexpectedStatusError, got: %v", err)
		}
		if !errors.Is(err, client.ErrUnexpectedStatusCode) || !errors.Is(err, client.ErrAuthFailure) {
			t.Fatalf("expected both sentinels in chain, got: %v", err)
		}
		if se.Header.Get("X-RateLimit-Remaining") != "0" {
			t.Fatalf("headers not captured: %v", se.Header)
		}
		if client.StatusCode(err) != http.StatusForbidden {
			t.Fatalf("StatusCode() = %d", client.StatusCode(err))
		}
	})

	t.Run("not found is not auth failure", func(t *testing.T) {
		err := do(t, "/missing")
		if !errors.Is(err, client.ErrUnexpectedStatusCode) || errors.Is(err, client.ErrAuthFailure) {
			t.Fatalf("unexpected error chain: %v", err)
		}
	})

	t.Run("error body capped", func(t *testing.T) {
		err := do(t, "/huge")

		var se *client.UnexpectedStatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected UnexpectedStatusError, got: %v", err)
		}
		if len(se.Body) != 4<<10 {
			t.Fatalf("body length = %d, want %d", len(se.Body), 4<<10)
		}
	})

	t.Run("captures response header", func(t *testing.T) {
		var hdr http.Header
		if err := do(t, "/ok", client.WithResponseHeader(&hdr)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hdr.Get("Content-Type") != "application/json" {
			t.Fatalf("captured header = %v", hdr)
		}
	})

	t.Run("nil destinations rejected", func(t *testing.T) {
		if err := do(t, "/ok", client.WithResponseHeader(nil)); err == nil {
			t.Fatal("expected error for nil header destination")
		}
		if err := do(t, "/ok", client.WithDestination[payload](nil)); err == nil {
			t.Fatal("expected error for nil body destination")
		}
	})

	t.Run("decode failure", func(t *testing.T) {
		var got payload
		if err := do(t, "/broken", client.WithDestination(&got)); err == nil {
			t.Fatal("expected decode error")
		}
	})
}

func TestRequest(t *testing.T) {
	u := mustParse(t, "http://localhost/search")

	t.Run("no body no content type", func(t *testing.T) {
		req, err := client.Request(t.Context(), u, http.MethodGet,
			client.WithHeaders(map[string][]string{"Accept": {"application/vnd.github+json"}}),
		)
		if err != nil {
			t.Fatal(err)
		}
		if req.Body != nil && req.Body != http.NoBody {
			t.Fatal("GET without payload should carry no body")
		}
		if ct := req.Header.Get("Content-Type"); ct != "" {
			t.Fatalf("Content-Type = %q, want empty", ct)
		}
		if got := req.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Fatalf("Accept = %q", got)
		}
	})

	t.Run("payload defaults to json", func(t *testing.T) {
		req, err := client.Request(t.Context(), u, http.MethodPost, client.WithPayload(payload{Body: "x"}))
		if err != nil {
			t.Fatal(err)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type = %q", ct)
		}

		b, _ := io.ReadAll(req.Body)
		if string(b) != `{"body":"x"}` {
			t.Fatalf("body = %s", b)
		}
	})

	t.Run("headers merge", func(t *testing.T) {
		req, err := client.Request(t.Context(), u, http.MethodGet,
			client.WithHeaders(http.Header{"Accept": {"application/json"}}),
			client.WithHeaders(http.Header{"accept": {"text/plain"}, "X-GitHub-Api-Version": {"2022-11-28"}}),
		)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff([]string{"application/json", "text/plain"}, req.Header.Values("Accept")); diff != "" {
			t.Fatalf("Accept mismatch (-want +got):\n%s", diff)
		}
		if req.Header.Get("X-Github-Api-Version") != "2022-11-28" {
			t.Fatalf("headers = %v", req.Header)
		}
	})
}

func TestURL(t *testing.T) {
	tests := map[string]struct {
		opts []client.URLOption
		want string
	}{
		"plain": {
			want: "https://api.github.com/search/repositories",
		},
		"with query": {
			opts: []client.URLOption{client.WithQueryStrings(map[string]string{"q": "go lang", "page": "2", "per_page": "40"})},
			want: "https://api.github.com/search/repositories?page=2&per_page=40&q=go+lang",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := client.URL("https", "api.github.com", "/search/repositories", tc.opts...)
			if got.String() != tc.want {
				t.Fatalf("URL() = %q, want %q", got.String(), tc.want)
			}
		})
	}
}
