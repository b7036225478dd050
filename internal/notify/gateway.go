package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	gatewayTimeout = 15 * time.Second
	maxBodyBytes   = 64 << 10
)

// Gateway sends messages through an HTTP messaging gateway of the
// "GET with phone/text/apikey query params" variety. Success is an HTTP 200
// whose body contains the configured marker string; gateways of this kind
// return 200 with an error text in the body, so the status code alone is not
// a confirmation.
type Gateway struct {
	baseURL       string
	apiKey        string
	successMarker string
	client        *http.Client
}

func NewGateway(baseURL, apiKey, successMarker string) *Gateway {
	return &Gateway{
		baseURL:       baseURL,
		apiKey:        apiKey,
		successMarker: successMarker,
		client:        &http.Client{Timeout: gatewayTimeout},
	}
}

func (g *Gateway) Configured() bool {
	return g.baseURL != "" && g.apiKey != ""
}

func (g *Gateway) Send(ctx context.Context, target, message string) error {
	q := url.Values{}
	q.Set("phone", target)
	q.Set("text", message)
	q.Set("apikey", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	if g.successMarker != "" && !strings.Contains(string(body), g.successMarker) {
		return fmt.Errorf("gateway response missing success marker: %q", truncate(string(body), 120))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
