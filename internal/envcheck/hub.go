package envcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHubURL is the public HuggingFace Hub
const DefaultHubURL = "https://huggingface.co"

// HubClient answers the two questions validation asks the Hub
type HubClient interface {
	WhoAmI(ctx context.Context, token string) (string, error)
	ModelInfo(ctx context.Context, token, model string) (*ModelInfo, error)
}

// ModelInfo is the subset of the Hub model metadata we look at
type ModelInfo struct {
	ID    string `json:"id"`
	Gated any    `json:"gated"` // false, "auto" or "manual"
}

// IsGated reports whether the model requires accepting terms
func (m *ModelInfo) IsGated() bool {
	switch v := m.Gated.(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false"
	default:
		return false
	}
}

// HTTPHub calls the Hub REST API
type HTTPHub struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPHub creates a Hub client
func NewHTTPHub(baseURL string, timeout time.Duration) *HTTPHub {
	return &HTTPHub{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WhoAmI returns the account name that owns token
func (h *HTTPHub) WhoAmI(ctx context.Context, token string) (string, error) {
	var who struct {
		Name string `json:"name"`
	}
	if err := h.get(ctx, token, "/api/whoami-v2", &who); err != nil {
		return "", err
	}
	return who.Name, nil
}

// ModelInfo fetches metadata for a hub model id such as meta-llama/Meta-Llama-3-70B-Instruct
func (h *HTTPHub) ModelInfo(ctx context.Context, token, model string) (*ModelInfo, error) {
	var info ModelInfo
	if err := h.get(ctx, token, "/api/models/"+model, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *HTTPHub) get(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("hub returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
