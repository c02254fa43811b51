package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"bermybanana/api/internal/config"
	"bermybanana/api/internal/models"
)

const ProviderVeo = "veo"

// Veo wraps the Veo long-running-operation API: submission returns an
// operation name, and polling reads the operation until done.
type Veo struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewVeo(cfg config.ProviderConfig) *Veo {
	return &Veo{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.SubmitTimeout,
		},
	}
}

func (v *Veo) Name() string { return ProviderVeo }

func (v *Veo) Submit(ctx context.Context, req Request) (TaskHandle, error) {
	if req.Mode != models.ModeVideo {
		return TaskHandle{}, &VendorError{
			Provider: ProviderVeo,
			Code:     "unsupported_mode",
			Message:  fmt.Sprintf("veo generates video only, got mode %q", req.Mode),
		}
	}

	instance := map[string]any{"prompt": req.Prompt}
	if req.ReferenceImageURL != "" {
		instance["image"] = map[string]any{"gcsUri": req.ReferenceImageURL}
	}
	body := map[string]any{
		"instances": []any{instance},
	}

	path := fmt.Sprintf("/models/%s:predictLongRunning", v.cfg.Model)

	var resp veoOperation
	if err := v.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return TaskHandle{}, err
	}

	return TaskHandle{
		Provider: ProviderVeo,
		TaskID:   resp.Name,
	}, nil
}

func (v *Veo) Poll(ctx context.Context, handle TaskHandle) (Progress, error) {
	var resp veoOperation
	if err := v.do(ctx, http.MethodGet, "/"+handle.TaskID, nil, &resp); err != nil {
		return Progress{}, err
	}

	if !resp.Done {
		return Progress{State: StateProcessing}, nil
	}

	if resp.Error != nil {
		return Progress{
			State:   StateFailed,
			Message: fmt.Sprintf("veo error %d: %s", resp.Error.Code, resp.Error.Message),
		}, nil
	}

	samples := resp.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 {
		return Progress{}, &VendorError{
			Provider: ProviderVeo,
			Code:     "empty_result",
			Message:  "operation done but returned no samples",
		}
	}

	return Progress{
		State:      StateSucceeded,
		OutputURL:  samples[0].Video.URI,
		OutputType: models.OutputTypeVideo,
	}, nil
}

func (v *Veo) Cancel(ctx context.Context, handle TaskHandle) error {
	return v.do(ctx, http.MethodPost, "/"+handle.TaskID+":cancel", map[string]any{}, &veoOperation{})
}

type veoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

func (v *Veo) do(ctx context.Context, method, path string, body any, out *veoOperation) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("veo: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, v.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("veo: build request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", v.cfg.APIKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := v.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("veo: %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("veo: read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return &VendorError{
			Provider:   ProviderVeo,
			Code:       strconv.Itoa(httpResp.StatusCode),
			Message:    fmt.Sprintf("%.200s", raw),
			HTTPStatus: httpResp.StatusCode,
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &VendorError{
			Provider:   ProviderVeo,
			Code:       "bad_response",
			Message:    fmt.Sprintf("undecodable body: %.200s", raw),
			HTTPStatus: httpResp.StatusCode,
		}
	}
	return nil
}
