package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultFetchTimeout bounds one request to the issuer API.
const DefaultFetchTimeout = 10 * time.Second

// maxResponseBytes bounds issuer responses; a credential is a few KB.
const maxResponseBytes = 256 << 10

// Fetcher downloads credential tokens from the issuer API when a QR code
// carries a URL instead of the token itself.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Fetcher{client: client}
}

// fetchResponse accepts both the current and the legacy field name.
type fetchResponse struct {
	Token       string `json:"vc_jwt"`
	LegacyToken string `json:"vcJWT"`
	Error       string `json:"error_description"`
}

// Fetch retrieves the token behind a credential URL such as
// https://api.example/api/credentials/ref/{ref}.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownPayload, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}

	var body fetchResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		// error pages from proxies are often not JSON
		if decodeErr != nil || body.Error == "" {
			return "", fmt.Errorf("fetch credential: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("fetch credential: status %d: %s", resp.StatusCode, body.Error)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("fetch credential: decode body: %w", decodeErr)
	}

	token := body.Token
	if token == "" {
		token = body.LegacyToken
	}
	if token == "" {
		return "", fmt.Errorf("fetch credential: response has no token")
	}
	return strings.TrimSpace(token), nil
}
