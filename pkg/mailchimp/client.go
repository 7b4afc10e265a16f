// Package mailchimp is a minimal client for the Mailchimp Marketing API 3.0.
package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // Mailchimp identifies list members by the MD5 of the email.
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/flows/pkg/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	StatusSubscribed = "subscribed"
	StatusPending    = "pending"

	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	// Mailchimp allows 10 concurrent connections per account.
	defaultRateLimit = 10
)

var (
	ErrMissingServer = errors.New("mailchimp account has no server prefix")
	ErrInvalidServer = errors.New("mailchimp server prefix is malformed")
)

// serverPattern matches data center prefixes such as "us21".
var serverPattern = regexp.MustCompile(`^[a-z]+[0-9]+$`)

// Member is the body of a list member upsert.
type Member struct {
	EmailAddress string         `json:"email_address"`
	StatusIfNew  string         `json:"status_if_new"`
	MergeFields  map[string]any `json:"merge_fields,omitempty"`
}

// APIError is the problem document Mailchimp returns on errors.
type APIError struct {
	StatusCode int    `json:"status"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailchimp: %d %s: %s", e.StatusCode, e.Title, e.Detail)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client calls Mailchimp on behalf of provider accounts.
type Client struct {
	logger     *slog.Logger
	transport  http.RoundTripper
	baseURL    func(server string) string
	timeout    time.Duration
	maxRetries uint64
	rateLimit  rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Option func(*Client)

// WithBaseURL overrides how the API root is derived from the account server prefix.
func WithBaseURL(baseURL func(server string) string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) { c.transport = transport }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

func WithMaxRetries(maxRetries uint64) Option {
	return func(c *Client) { c.maxRetries = maxRetries }
}

// WithRateLimit sets the request rate allowed per Mailchimp server.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.rateLimit = rate.Limit(perSecond) }
}

func NewClient(logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		logger:    logger.With("module", "mailchimp"),
		transport: http.DefaultTransport,
		baseURL: func(server string) string {
			return "https://" + server + ".api.mailchimp.com/3.0"
		},
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		rateLimit:  defaultRateLimit,
		limiters:   make(map[string]*rate.Limiter),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// SubscriberHash is the member ID Mailchimp derives from an email address.
func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email)))) //nolint:gosec

	return hex.EncodeToString(sum[:])
}

// AddListMember upserts member into the audience listID. Repeating the call for the same
// email does not create a second subscription.
func (c *Client) AddListMember(ctx context.Context, account *models.ProviderAccount, listID string, member Member) error {
	if account.Server == "" {
		return ErrMissingServer
	}

	if !serverPattern.MatchString(account.Server) {
		return fmt.Errorf("%w: %q", ErrInvalidServer, account.Server)
	}

	if member.StatusIfNew == "" {
		member.StatusIfNew = StatusSubscribed
	}

	body, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to encode member: %w", err)
	}

	endpoint := fmt.Sprintf("%s/lists/%s/members/%s",
		c.baseURL(account.Server), url.PathEscape(listID), SubscriberHash(member.EmailAddress))

	return c.do(ctx, account, http.MethodPut, endpoint, body)
}

func (c *Client) do(ctx context.Context, account *models.ProviderAccount, method, endpoint string, body []byte) error {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: account.AccessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}

	limiter := c.limiter(account.Server)

	operation := func() error {
		err := limiter.Wait(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusBadRequest {
			_, _ = io.Copy(io.Discard, resp.Body)

			return nil
		}

		apiErr := decodeError(resp)
		if !apiErr.Retryable() {
			return backoff.Permanent(apiErr)
		}

		return apiErr
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "Retrying mailchimp request", "url", endpoint, "error", err, "wait", wait)
	})
}

func (c *Client) limiter(server string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	limiter, ok := c.limiters[server]
	if !ok {
		limiter = rate.NewLimiter(c.rateLimit, int(max(1, c.rateLimit)))
		c.limiters[server] = limiter
	}

	return limiter
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		_ = json.Unmarshal(data, apiErr)
	}

	apiErr.StatusCode = resp.StatusCode
	if apiErr.Title == "" {
		apiErr.Title = http.StatusText(resp.StatusCode)
	}

	return apiErr
}
