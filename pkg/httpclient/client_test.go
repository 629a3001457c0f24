package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(Config{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Get(context.Background(), ts.URL, nil); err == nil {
		t.Fatal("expected timeout error")
	}
}

func redirectServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1":
			http.Redirect(w, r, "/2", http.StatusFound)
		case "/2":
			http.Redirect(w, r, "/3", http.StatusFound)
		case "/3":
			w.WriteHeader(http.StatusOK)
		}
	}))
}

func TestClient_Redirects(t *testing.T) {
	ts := redirectServer()
	defer ts.Close()

	limited, _ := New(Config{MaxRedirects: 1})
	if _, err := limited.Get(context.Background(), ts.URL+"/1", nil); err == nil {
		t.Fatal("expected redirect limit error")
	}

	follow, _ := New(Config{})
	resp, err := follow.Get(context.Background(), ts.URL+"/1", nil)
	if err != nil {
		t.Fatalf("unexpected error with default redirect policy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after following redirects, got %d", resp.StatusCode)
	}

	noRedir, _ := New(Config{MaxRedirects: -1})
	resp, err = noRedir.Get(context.Background(), ts.URL+"/1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected 302 StatusFound, got %d", resp.StatusCode)
	}
}

func TestClient_GetSendsHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "kwdig-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, _ := New(Config{})
	resp, err := client.Get(context.Background(), ts.URL, http.Header{"User-Agent": {"kwdig-test"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected header to be forwarded, got status %d", resp.StatusCode)
	}
}

func TestClient_Cookies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "consent", Value: "yes"})
			w.WriteHeader(http.StatusOK)
			return
		}
		c, err := r.Cookie("consent")
		if err != nil || c.Value != "yes" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(Config{UseCookieJar: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp1, err := client.Get(context.Background(), ts.URL+"/set", nil)
	if err != nil {
		t.Fatalf("unexpected error on /set: %v", err)
	}
	resp1.Body.Close()

	resp2, err := client.Get(context.Background(), ts.URL+"/check", nil)
	if err != nil {
		t.Fatalf("unexpected error on /check: %v", err)
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusOK {
		t.Errorf("expected 200 OK from /check, got %d. Cookies not persisted?", resp2.StatusCode)
	}
}

func TestClient_Context(t *testing.T) {
	client, _ := New(Config{})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)

	//nolint:staticcheck // nil context is the case under test
	_, err := client.Do(nil, req)
	if err == nil || err.Error() != "httpclient: context cannot be nil" {
		t.Errorf("expected nil context error, got %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Get(ctx, ts.URL, nil); err == nil {
		t.Fatal("expected cancellation error")
	}
}
