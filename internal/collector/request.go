package collector

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rickgao/livefeed/internal/version"
)

// PostError is returned when the collector answers with an error status.
type PostError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *PostError) Error() string {
	return fmt.Sprintf("event collector error %d: %s", e.StatusCode, e.Message)
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// post sends one batch.
func (c *Client) post(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	query := url.Values{}
	query.Set("key", c.cfg.Key)
	query.Set("mac", Sign(c.cfg.Secret, body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &PostError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}
	io.Copy(io.Discard, resp.Body)

	return nil
}
