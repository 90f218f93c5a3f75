package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/env"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
)

// candidatePaths are the text-send endpoints known across uazapi server
// versions. The client probes them in order; a 404 means "wrong path for this
// deployment", not "message rejected".
var candidatePaths = []string{"/send/text", "/message/text", "/sendText"}

// Client sends text messages through a uazapi-compatible gateway. All sends
// share one rate limiter so bursts from parallel batches cannot exceed the
// gateway's tolerance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient() *Client {
	rps := env.GetEnvIntOrDefault("UAZAPI_RATE_PER_SECOND", 1)
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL: strings.TrimRight(env.MustGetEnvString("UAZAPI_BASE_URL"), "/"),
		token:   env.MustGetEnvString("UAZAPI_TOKEN"),
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// NewClientWith is the injectable constructor used by tests.
func NewClientWith(baseURL, token string, httpClient *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

type sendPayload struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Send posts the message to the first candidate endpoint that accepts it. On
// a 404 it follows a fallback URL when the gateway supplies one, either in an
// X-Fallback-URL header or in a {"step":"fallback","url":...} body, before
// moving to the next candidate. The returned string is the provider's
// message id, empty when the gateway does not echo one.
func (c *Client) Send(ctx context.Context, number, text string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(sendPayload{Number: number, Text: text})
	if err != nil {
		return "", err
	}

	urls := make([]string, 0, len(candidatePaths))
	for _, p := range candidatePaths {
		urls = append(urls, c.baseURL+p)
	}

	var attempts []string
	for i := 0; i < len(urls); i++ {
		url := urls[i]
		id, fallback, notFound, err := c.post(ctx, url, body)
		if err == nil {
			return id, nil
		}
		if !notFound {
			// The endpoint exists and refused the message. Probing other
			// paths would just send the same rejection again.
			return "", fmt.Errorf("%s: %w", url, err)
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", url, err))
		if fallback != "" && !contains(urls, fallback) {
			// Probe the gateway-suggested endpoint right after this one.
			urls = append(urls[:i+1], append([]string{fallback}, urls[i+1:]...)...)
		}
	}
	return "", fmt.Errorf("all endpoints failed:\n%s", strings.Join(attempts, "\n"))
}

// post performs one attempt. The second return value is a fallback URL the
// gateway suggested on 404, if any; the third reports whether the failure was
// a 404 and the next candidate path should be probed.
func (c *Client) post(ctx context.Context, url string, body []byte) (string, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", false, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return extractMessageID(raw), "", false, nil
	}

	if resp.StatusCode == http.StatusNotFound {
		fallback := resp.Header.Get("X-Fallback-URL")
		if fallback == "" {
			var probe struct {
				Step string `json:"step"`
				URL  string `json:"url"`
			}
			if json.Unmarshal(raw, &probe) == nil && probe.Step == "fallback" {
				fallback = probe.URL
			}
		}
		if fallback != "" {
			log.EventOp("uazapi", "").
				WithField("fallback", fallback).
				Debug("endpoint not found, trying fallback")
		}
		return "", fallback, true, fmt.Errorf("fallback endpoint not found (404)")
	}

	return "", "", false, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))
}

// extractMessageID probes the id field layouts seen across gateway versions.
func extractMessageID(raw []byte) string {
	var body map[string]any
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if s, ok := body["id"].(string); ok {
		return s
	}
	if s, ok := body["messageid"].(string); ok {
		return s
	}
	if key, ok := body["key"].(map[string]any); ok {
		if s, ok := key["id"].(string); ok {
			return s
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
