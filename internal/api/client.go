// Package api is the REST client of the marketplace messaging backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/tOgg1/sitesync/internal/logging"
	"github.com/tOgg1/sitesync/internal/models"
)

// DefaultTimeout bounds a request whose context carries no deadline.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a non-JSON error body ends up in an Error.
const maxErrorBody = 256

// ErrMissingBaseURL is returned by New without a base URL.
var ErrMissingBaseURL = errors.New("api: base url is required")

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. https://market.example.com.
	BaseURL string

	// Token is sent as a bearer token on every request.
	Token string

	// Timeout bounds requests whose context has no earlier deadline.
	// Default: 10s
	Timeout time.Duration

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64

	// Burst is the limiter burst. Default: 1
	Burst int

	// Dial overrides how connections are opened (tests use an in-memory
	// listener).
	Dial fasthttp.DialFunc
}

// Client talks to the backend over fasthttp. It implements the user
// directory and conversation service used by the sync session.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api: invalid base url %q", base)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "sitesync",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 90 * time.Second,
			Dial:                opts.Dial,
		},
		logger: logging.Component("api"),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// ListUsers returns the user directory. Presence hints are normalized from
// whatever fields each record carries.
func (c *Client) ListUsers(ctx context.Context) ([]models.UserRecord, error) {
	var raw []map[string]any
	if err := c.do(ctx, fasthttp.MethodGet, "/api/users", nil, &raw); err != nil {
		return nil, err
	}
	users := make([]models.UserRecord, 0, len(raw))
	for _, fields := range raw {
		if user, ok := userFromFields(fields); ok {
			users = append(users, user)
		}
	}
	return users, nil
}

// ListConversations returns the operator's conversation listing.
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var wire []summaryWire
	if err := c.do(ctx, fasthttp.MethodGet, "/api/conversations", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(wire))
	for _, w := range wire {
		if w.CounterpartyID == "" {
			continue
		}
		out = append(out, w.model())
	}
	return out, nil
}

// ConversationMessages returns the messages of a conversation.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var wire []messageWire
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(wire))
	for _, w := range wire {
		m := w.model()
		if m.ID == "" {
			continue
		}
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		out = append(out, m)
	}
	return out, nil
}

// SendMessage posts a message.
func (c *Client) SendMessage(ctx context.Context, req models.SendRequest) (models.SendReceipt, error) {
	if err := req.Validate(); err != nil {
		return models.SendReceipt{}, err
	}
	var wire receiptWire
	if err := c.do(ctx, fasthttp.MethodPost, "/api/messages", req, &wire); err != nil {
		return models.SendReceipt{}, err
	}
	return wire.model(), nil
}

// MarkConversationRead marks every message of a conversation read for the
// operator.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, fasthttp.MethodPost, path, nil, nil)
}

// TypingStatus returns whether someone is typing in a conversation.
func (c *Client) TypingStatus(ctx context.Context, conversationID string) (models.TypingStatus, error) {
	var wire typingWire
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/typing"
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &wire); err != nil {
		return models.TypingStatus{}, err
	}
	return models.TypingStatus{Typing: wire.Typing, UserID: string(wire.UserID)}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("api: %s %s: rate limit: %w", method, path, err)
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(encoded)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := c.http.DoDeadline(req, resp, deadline)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Dur("elapsed", elapsed).Msg("request failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("api: %s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", status).Dur("elapsed", elapsed).Msg("request")

	if status < 200 || status > 299 {
		return errorFrom(method, path, status, resp.Body())
	}
	if out == nil || len(bytes.TrimSpace(resp.Body())) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorFrom(method, path string, status int, body []byte) *Error {
	apiErr := &Error{StatusCode: status, Method: method, Path: path}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	} else {
		text := strings.TrimSpace(string(body))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		apiErr.Message = text
	}
	apiErr.Message = logging.Redact(apiErr.Message)
	return apiErr
}
