package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bermybanana/api/internal/config"
	"bermybanana/api/internal/models"
)

func klingConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:       baseURL,
		AccessKey:     "ak-test",
		SecretKey:     "sk-test",
		Model:         "kling-v1",
		SubmitTimeout: 5 * time.Second,
	}
}

func TestKlingSubmit_RoutesByModeAndReference(t *testing.T) {
	cases := []struct {
		name     string
		req      Request
		wantPath string
		wantKind string
	}{
		{
			name:     "image",
			req:      Request{Mode: models.ModeImage, Prompt: "a banana"},
			wantPath: "/v1/images/generations",
			wantKind: "generations",
		},
		{
			name:     "text to video",
			req:      Request{Mode: models.ModeVideo, Prompt: "a banana"},
			wantPath: "/v1/videos/text2video",
			wantKind: "text2video",
		},
		{
			name:     "image to video",
			req:      Request{Mode: models.ModeVideo, Prompt: "a banana", ReferenceImageURL: "http://img/1.png"},
			wantPath: "/v1/videos/image2video",
			wantKind: "image2video",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath string
			var gotBody map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code": 0,
					"data": map[string]any{"task_id": "task-1"},
				})
			}))
			defer srv.Close()

			adapter := NewKling(klingConfig(srv.URL))
			handle, err := adapter.Submit(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}

			if gotPath != tc.wantPath {
				t.Fatalf("expected path %s, got %s", tc.wantPath, gotPath)
			}
			if handle.TaskID != "task-1" || handle.Kind != tc.wantKind || handle.Provider != ProviderKling {
				t.Fatalf("unexpected handle: %+v", handle)
			}
			if gotBody["model_name"] != "kling-v1" || gotBody["prompt"] != "a banana" {
				t.Fatalf("unexpected body: %v", gotBody)
			}
			if tc.req.ReferenceImageURL != "" && gotBody["image"] != tc.req.ReferenceImageURL {
				t.Fatalf("expected reference image in body, got %v", gotBody)
			}
		})
	}
}

func TestKlingSubmit_MintsValidJWT(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"task_id": "task-1"},
		})
	}))
	defer srv.Close()

	adapter := NewKling(klingConfig(srv.URL))
	if _, err := adapter.Submit(context.Background(), Request{Mode: models.ModeImage, Prompt: "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		t.Fatalf("expected bearer auth, got %q", authHeader)
	}

	token, err := jwt.Parse(strings.TrimPrefix(authHeader, "Bearer "), func(tok *jwt.Token) (any, error) {
		if tok.Method.Alg() != "HS256" {
			t.Fatalf("expected HS256, got %s", tok.Method.Alg())
		}
		return []byte("sk-test"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("unexpected claims type %T", token.Claims)
	}
	if claims["iss"] != "ak-test" {
		t.Fatalf("expected issuer ak-test, got %v", claims["iss"])
	}
	if _, ok := claims["exp"]; !ok {
		t.Fatal("expected exp claim")
	}
}

func TestKlingSubmit_ProVideoMode(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"task_id": "task-1"},
		})
	}))
	defer srv.Close()

	adapter := NewKling(klingConfig(srv.URL))
	if _, err := adapter.Submit(context.Background(), Request{Mode: models.ModeVideo, Prompt: "x", Pro: true}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotBody["mode"] != "pro" {
		t.Fatalf("expected pro mode, got %v", gotBody["mode"])
	}
}

func TestKlingPoll_StatusMapping(t *testing.T) {
	cases := []struct {
		vendorStatus string
		wantState    State
	}{
		{"submitted", StateSubmitted},
		{"processing", StateProcessing},
		{"failed", StateFailed},
	}

	for _, tc := range cases {
		t.Run(tc.vendorStatus, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code": 0,
					"data": map[string]any{
						"task_id":         "task-1",
						"task_status":     tc.vendorStatus,
						"task_status_msg": "because",
					},
				})
			}))
			defer srv.Close()

			adapter := NewKling(klingConfig(srv.URL))
			progress, err := adapter.Poll(context.Background(), TaskHandle{Provider: ProviderKling, TaskID: "task-1", Kind: "text2video"})
			if err != nil {
				t.Fatalf("poll: %v", err)
			}
			if progress.State != tc.wantState {
				t.Fatalf("expected state %s, got %s", tc.wantState, progress.State)
			}
			if tc.wantState == StateFailed && progress.Message != "because" {
				t.Fatalf("expected vendor message, got %q", progress.Message)
			}
		})
	}
}

func TestKlingPoll_SucceedExtractsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/task-9") {
			t.Errorf("expected task id in path, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"task_id":     "task-9",
				"task_status": "succeed",
				"task_result": map[string]any{
					"videos": []map[string]any{{"id": "v1", "url": "http://cdn/v1.mp4"}},
				},
			},
		})
	}))
	defer srv.Close()

	adapter := NewKling(klingConfig(srv.URL))
	progress, err := adapter.Poll(context.Background(), TaskHandle{Provider: ProviderKling, TaskID: "task-9", Kind: "text2video"})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if progress.State != StateSucceeded || progress.OutputURL != "http://cdn/v1.mp4" || progress.OutputType != models.OutputTypeVideo {
		t.Fatalf("unexpected progress: %+v", progress)
	}
}

func TestKlingPoll_EmptyResultIsVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"task_id":     "task-1",
				"task_status": "succeed",
			},
		})
	}))
	defer srv.Close()

	adapter := NewKling(klingConfig(srv.URL))
	_, err := adapter.Poll(context.Background(), TaskHandle{Provider: ProviderKling, TaskID: "task-1", Kind: "generations"})

	var vendor *VendorError
	if !errors.As(err, &vendor) {
		t.Fatalf("expected VendorError, got %v", err)
	}
	if vendor.Code != "empty_result" {
		t.Fatalf("expected empty_result, got %s", vendor.Code)
	}
}

func TestKlingDo_VendorErrorOnNonZeroCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    1303,
			"message": "rate limited",
		})
	}))
	defer srv.Close()

	adapter := NewKling(klingConfig(srv.URL))
	_, err := adapter.Submit(context.Background(), Request{Mode: models.ModeImage, Prompt: "x"})

	var vendor *VendorError
	if !errors.As(err, &vendor) {
		t.Fatalf("expected VendorError, got %v", err)
	}
	if vendor.Code != "1303" || vendor.HTTPStatus != http.StatusTooManyRequests {
		t.Fatalf("unexpected vendor error: %+v", vendor)
	}
}
