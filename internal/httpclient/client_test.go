package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBlocksLocalhost(t *testing.T) {
	c := New(5 * time.Second)

	req, err := http.NewRequest(http.MethodGet, "http://localhost:8080/x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(req); err == nil {
		t.Error("expected localhost request to be blocked")
	}
}

func TestBlocksPrivateIPLiteral(t *testing.T) {
	c := New(5 * time.Second)

	for _, target := range []string{
		"http://127.0.0.1/",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://169.254.1.1/",
	} {
		req, err := http.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.Do(req); err == nil {
			t.Errorf("expected %s to be blocked", target)
		}
	}
}

func TestBlocksNonHTTPScheme(t *testing.T) {
	c := New(5 * time.Second)

	req, err := http.NewRequest(http.MethodGet, "ftp://example.com/file", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(req); err == nil {
		t.Error("expected non-http scheme to be blocked")
	}
}

func TestWrapAllowsLoopbackForTests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := Wrap(srv.Client())

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("wrapped client should reach loopback test server: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.0.1", "127.0.0.1", "::1", "fe80::1", "fd00::1"}
	public := []string{"8.8.8.8", "1.1.1.1", "2607:f8b0::1"}

	for _, s := range private {
		if !isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be private", s)
		}
	}
	for _, s := range public {
		if isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be public", s)
		}
	}
}
