package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// HTTPSigner delegates transaction signing to the key-management service.
// Private keys never enter this process.
type HTTPSigner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSigner creates a signing service client
func NewHTTPSigner(baseURL string) *HTTPSigner {
	return &HTTPSigner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

// SignTransaction signs one unsigned payload for the given chain
func (s *HTTPSigner) SignTransaction(ctx context.Context, chain types.Chain, unsigned []byte) ([]byte, string, error) {
	body, err := json.Marshal(map[string]string{
		"chain":   string(chain),
		"payload": base64.StdEncoding.EncodeToString(unsigned),
	})
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("sign request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("signer returned %d", resp.StatusCode)
	}

	var out struct {
		Signed string `json:"signed"`
		Hash   string `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("malformed signer response: %w", err)
	}
	signed, err := base64.StdEncoding.DecodeString(out.Signed)
	if err != nil {
		return nil, "", fmt.Errorf("malformed signed payload: %w", err)
	}
	return signed, out.Hash, nil
}
