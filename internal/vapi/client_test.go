package vapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","status":"ended"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123")
	call, err := c.GetCall(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if call.ID != "c1" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if gotAuth != "Bearer key-123" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
}

func TestClientMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	if _, err := c.GetCall(context.Background(), "missing"); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
}

func TestClientWrapsVendorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream sad"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	_, err := c.ListCalls(context.Background(), 10)
	var vendorErr *VendorError
	if !errors.As(err, &vendorErr) {
		t.Fatalf("expected VendorError, got %v", err)
	}
	if vendorErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected status: %d", vendorErr.StatusCode)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	c := NewClient("http://vendor.invalid", "")
	if _, err := c.GetCall(context.Background(), "c1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
