package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bermybanana/api/internal/config"
	"bermybanana/api/internal/models"
)

const ProviderKling = "kling"

const (
	klingKindText2Video  = "text2video"
	klingKindImage2Video = "image2video"
	klingKindImageGen    = "generations"
)

// Kling talks to the Kling generation API. The vendor authenticates with a
// short-lived HS256 JWT minted from the account's access/secret key pair on
// every request.
type Kling struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewKling(cfg config.ProviderConfig) *Kling {
	return &Kling{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.SubmitTimeout,
		},
	}
}

func (k *Kling) Name() string { return ProviderKling }

func (k *Kling) Submit(ctx context.Context, req Request) (TaskHandle, error) {
	kind, path := k.route(req)

	body := map[string]any{
		"model_name": k.cfg.Model,
		"prompt":     req.Prompt,
	}
	if req.Mode == models.ModeVideo {
		body["duration"] = "5"
		body["mode"] = "std"
		if req.Pro {
			body["mode"] = "pro"
		}
		if req.ReferenceImageURL != "" {
			body["image"] = req.ReferenceImageURL
		}
	}

	var resp klingResponse
	if err := k.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return TaskHandle{}, err
	}

	return TaskHandle{
		Provider: ProviderKling,
		TaskID:   resp.Data.TaskID,
		Kind:     kind,
	}, nil
}

func (k *Kling) Poll(ctx context.Context, handle TaskHandle) (Progress, error) {
	path := fmt.Sprintf("%s/%s", k.pathForKind(handle.Kind), handle.TaskID)

	var resp klingResponse
	if err := k.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return Progress{}, err
	}

	switch resp.Data.TaskStatus {
	case "submitted":
		return Progress{State: StateSubmitted}, nil
	case "processing":
		return Progress{State: StateProcessing}, nil
	case "failed":
		return Progress{
			State:   StateFailed,
			Message: resp.Data.TaskStatusMsg,
		}, nil
	case "succeed":
		return k.extractResult(handle, resp)
	default:
		return Progress{}, &VendorError{
			Provider: ProviderKling,
			Code:     "unknown_status",
			Message:  fmt.Sprintf("unexpected task_status %q", resp.Data.TaskStatus),
		}
	}
}

func (k *Kling) Cancel(ctx context.Context, handle TaskHandle) error {
	path := fmt.Sprintf("%s/%s", k.pathForKind(handle.Kind), handle.TaskID)
	return k.do(ctx, http.MethodDelete, path, nil, &klingResponse{})
}

func (k *Kling) route(req Request) (kind, path string) {
	if req.Mode == models.ModeImage {
		return klingKindImageGen, "/v1/images/generations"
	}
	if req.ReferenceImageURL != "" {
		return klingKindImage2Video, "/v1/videos/image2video"
	}
	return klingKindText2Video, "/v1/videos/text2video"
}

func (k *Kling) pathForKind(kind string) string {
	if kind == klingKindImageGen {
		return "/v1/images/generations"
	}
	return "/v1/videos/" + kind
}

func (k *Kling) extractResult(handle TaskHandle, resp klingResponse) (Progress, error) {
	if handle.Kind == klingKindImageGen {
		if len(resp.Data.TaskResult.Images) == 0 {
			return Progress{}, &VendorError{
				Provider: ProviderKling,
				Code:     "empty_result",
				Message:  "task succeeded but returned no images",
			}
		}
		return Progress{
			State:      StateSucceeded,
			OutputURL:  resp.Data.TaskResult.Images[0].URL,
			OutputType: models.OutputTypeImage,
		}, nil
	}

	if len(resp.Data.TaskResult.Videos) == 0 {
		return Progress{}, &VendorError{
			Provider: ProviderKling,
			Code:     "empty_result",
			Message:  "task succeeded but returned no videos",
		}
	}
	return Progress{
		State:      StateSucceeded,
		OutputURL:  resp.Data.TaskResult.Videos[0].URL,
		OutputType: models.OutputTypeVideo,
	}, nil
}

type klingResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Data      struct {
		TaskID        string `json:"task_id"`
		TaskStatus    string `json:"task_status"`
		TaskStatusMsg string `json:"task_status_msg"`
		TaskResult    struct {
			Videos []struct {
				ID       string `json:"id"`
				URL      string `json:"url"`
				Duration string `json:"duration"`
			} `json:"videos"`
			Images []struct {
				Index int    `json:"index"`
				URL   string `json:"url"`
			} `json:"images"`
		} `json:"task_result"`
	} `json:"data"`
}

func (k *Kling) do(ctx context.Context, method, path string, body any, out *klingResponse) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kling: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, k.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("kling: build request: %w", err)
	}

	token, err := k.mintToken()
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := k.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("kling: %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("kling: read response: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &VendorError{
			Provider:   ProviderKling,
			Code:       "bad_response",
			Message:    fmt.Sprintf("undecodable body: %.200s", raw),
			HTTPStatus: httpResp.StatusCode,
		}
	}

	if httpResp.StatusCode != http.StatusOK || out.Code != 0 {
		return &VendorError{
			Provider:   ProviderKling,
			Code:       strconv.Itoa(out.Code),
			Message:    out.Message,
			HTTPStatus: httpResp.StatusCode,
		}
	}
	return nil
}

// mintToken builds the per-request JWT Kling expects: HS256 over the secret
// key, issuer set to the access key, valid for 30 minutes.
func (k *Kling) mintToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": k.cfg.AccessKey,
		"exp": now.Add(30 * time.Minute).Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
	})
	signed, err := token.SignedString([]byte(k.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("kling: mint token: %w", err)
	}
	return signed, nil
}
