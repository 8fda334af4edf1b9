// Package advisory confirms pipeline verdicts against an external
// reasoning oracle and synthesizes deterministic local verdicts when the
// oracle is unusable.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Oracle submits a free-text prompt and returns the oracle's raw text
// reply. Implementations must honor the context deadline.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client talks to a generateContent-style HTTP API.
type Client struct {
	cfg    domain.OracleConfig
	client *http.Client
}

// NewClient builds an oracle client. The HTTP client's timeout comes from
// the oracle config.
func NewClient(cfg domain.OracleConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// generateContent wire format.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate submits the prompt and returns the first candidate's text. Any
// transport, status, or decode failure comes back as OracleTransportError.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", &domain.OracleTransportError{Err: err}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.cfg.Endpoint, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &domain.OracleTransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &domain.OracleTransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &domain.OracleTransportError{
			Err: fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, raw),
		}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &domain.OracleTransportError{Err: fmt.Errorf("decoding oracle response: %w", err)}
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", &domain.OracleTransportError{Err: fmt.Errorf("oracle response has no candidates")}
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
