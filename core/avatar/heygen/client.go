package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avosel/visage-core/core/avatar"
)

const defaultBaseURL = "https://api.heygen.com"

// quotaUnitsPerCredit converts the vendor's raw quota units into billing
// credits; one credit buys five minutes of streaming.
const (
	quotaUnitsPerCredit = 60
	minutesPerCredit    = 5
)

// Client is the account-scoped HeyGen API client (authenticated with an API
// key). Session-scoped calls live on Session and use a bearer session token.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithBaseURL overrides the API host, mainly for tests.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSessionToken issues a short-lived bearer token used to drive one
// streaming session.
func (c *Client) CreateSessionToken(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "create session token")
	defer span.End()

	var response struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/streaming.create_token", nil, &response); err != nil {
		span.RecordError(err)
		return "", err
	}
	if response.Data.Token == "" {
		err := &avatar.DispatchError{Op: "streaming.create_token", Err: fmt.Errorf("response carried no token")}
		span.RecordError(err)
		return "", err
	}
	return response.Data.Token, nil
}

// AvatarInfo is one entry of the vendor's streaming avatar catalog.
type AvatarInfo struct {
	AvatarID       string `json:"avatar_id"`
	PoseName       string `json:"pose_name"`
	Status         string `json:"status"`
	DefaultVoiceID string `json:"default_voice"`
	IsPublic       bool   `json:"is_public"`
}

// ListAvatars fetches the catalog of streaming-capable avatars.
func (c *Client) ListAvatars(ctx context.Context) ([]AvatarInfo, error) {
	ctx, span := tracer.Start(ctx, "list streaming avatars")
	defer span.End()

	var response struct {
		Data []AvatarInfo `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/streaming/avatar.list", nil, &response); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("response.avatar_count", len(response.Data)))
	return response.Data, nil
}

// Quota is the account's remaining streaming allowance.
type Quota struct {
	RemainingUnits int
}

// Credits converts raw quota units into billing credits.
func (q Quota) Credits() int { return q.RemainingUnits / quotaUnitsPerCredit }

// Minutes converts the remaining credits into streaming minutes.
func (q Quota) Minutes() int { return q.Credits() * minutesPerCredit }

// RemainingQuota queries the account's remaining quota units.
func (c *Client) RemainingQuota(ctx context.Context) (Quota, error) {
	ctx, span := tracer.Start(ctx, "remaining quota")
	defer span.End()

	var response struct {
		Data struct {
			RemainingQuota int `json:"remaining_quota"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/v2/user/remaining_quota", nil, &response); err != nil {
		span.RecordError(err)
		return Quota{}, err
	}
	quota := Quota{RemainingUnits: response.Data.RemainingQuota}
	span.SetAttributes(attribute.Int("response.remaining_credits", quota.Credits()))
	return quota, nil
}

// RemainingCredits satisfies the orchestration core's quota-source contract.
func (c *Client) RemainingCredits(ctx context.Context) (int, error) {
	quota, err := c.RemainingQuota(ctx)
	if err != nil {
		return 0, err
	}
	return quota.Credits(), nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	return doCall(ctx, c.httpClient, method, c.baseURL+path, payload, out, func(req *http.Request) {
		req.Header.Set("X-Api-Key", c.apiKey)
	})
}

// doCall runs one JSON request/response cycle against the vendor API and
// converts non-2xx responses into avatar.DispatchError.
func doCall(ctx context.Context, httpClient *http.Client, method, url string, payload, out any, authorize func(*http.Request)) error {
	op := url
	if idx := strings.LastIndexByte(url, '/'); idx >= 0 {
		op = url[idx+1:]
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return &avatar.DispatchError{Op: op, Err: fmt.Errorf("error sending request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errorBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return &avatar.DispatchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("error reading error body: %w", readErr)}
		}
		return &avatar.DispatchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", string(errorBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &avatar.DispatchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("error decoding response: %w", err)}
	}
	return nil
}
