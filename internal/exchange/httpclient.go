package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// signedHTTPClient issues HMAC-SHA256 signed REST requests against a
// Bitget/Gate.io-style derivatives API: timestamp + method + path + body is
// signed with the account secret and sent as an ACCESS-SIGN header alongside
// the API key and passphrase.
type signedHTTPClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
	retries    int
	timeout    time.Duration
	http       *http.Client
}

func newSignedHTTPClient(baseURL, apiKey, apiSecret, passphrase string, retries int, timeout time.Duration) *signedHTTPClient {
	return &signedHTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
		retries:    retries,
		timeout:    timeout,
		http:       &http.Client{Timeout: timeout},
	}
}

func (c *signedHTTPClient) hmacSign(prehash string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(prehash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *signedHTTPClient) addHeaders(req *http.Request, method, path string, body []byte) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	prehash := ts + method + path + string(body)
	sign := c.hmacSign(prehash)

	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-SIGN", sign)
	req.Header.Set("ACCESS-TIMESTAMP", ts)
	req.Header.Set("ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("Content-Type", "application/json")
}

// doRequest issues a signed request, retrying transport failures with
// linear backoff. A successful response with a non-2xx status and a
// recognizable venue error code returns a *VenueError, not a transport err.
func (c *signedHTTPClient) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		c.addHeaders(req, method, path, body)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("transport error, retrying")
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		ve := parseVenueError(respBody)
		if ve != nil {
			return respBody, ve
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}
	return nil, fmt.Errorf("operation failed after %d attempts: %w", c.retries+1, lastErr)
}

func (c *signedHTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

func (c *signedHTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPost, path, payload)
}

func (c *signedHTTPClient) delete(ctx context.Context, path string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodDelete, path, nil)
}

type venueErrorPayload struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func parseVenueError(body []byte) *VenueError {
	var p venueErrorPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Code == "" {
		return nil
	}
	return &VenueError{Code: p.Code, Message: p.Msg}
}
