package reportapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reportsync/internal/config"

	"github.com/rs/zerolog"
)

func testLoginConfig(serverURL string) config.LoginConfig {
	return config.LoginConfig{
		URL:        serverURL + "/api/Login/Login",
		Username:   "miya",
		Password:   "secret",
		TOTPSecret: "JBSWY3DPEHPK3PXP",
	}
}

func TestLoginWithCodeSuccess(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/Login/Login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing json content type")
		}
		if r.Header.Get("Domainurl") == "" {
			t.Errorf("missing Domainurl header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0, "msg": "Succeed",
			"data": map[string]interface{}{"token": "tok-1", "expiresIn": 1800000000},
		})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testLoginConfig(server.URL), true, &logger)

	result, err := client.LoginWithCode(context.Background(), "123456")
	if err != nil {
		t.Fatalf("LoginWithCode: %v", err)
	}
	if result.Token != "tok-1" {
		t.Errorf("token = %q", result.Token)
	}
	if result.ExpiresAt.Unix() != 1800000000 {
		t.Errorf("expiry = %v", result.ExpiresAt)
	}

	if gotBody["vCode"] != "123456" || gotBody["userName"] != "miya" {
		t.Errorf("login body missing credentials: %v", gotBody)
	}
	for _, key := range []string{"timestamp", "random", "signature"} {
		if _, ok := gotBody[key]; !ok {
			t.Errorf("login body missing %s", key)
		}
	}
}

func TestLoginWithCodeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 500, "msg": "vCode error"})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testLoginConfig(server.URL), true, &logger)

	_, err := client.LoginWithCode(context.Background(), "000000")
	if !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected ErrLoginRejected, got %v", err)
	}
}

func TestPostUnauthorizedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"msg": "expired"})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testLoginConfig(server.URL), true, &logger)

	_, err := client.Post(context.Background(), "/api/Package/GetPageList", nil, "stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPostUnauthorizedBodyCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 401, "msg": "token invalid"})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testLoginConfig(server.URL), true, &logger)

	_, err := client.Post(context.Background(), "/api/Package/GetPageList", nil, "stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPostSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-9" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "data": map[string]interface{}{}})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testLoginConfig(server.URL), true, &logger)

	if _, err := client.Post(context.Background(), "/api/x", map[string]interface{}{"pageNo": 1}, "tok-9"); err != nil {
		t.Fatalf("Post: %v", err)
	}
}
