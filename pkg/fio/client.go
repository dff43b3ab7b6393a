package fio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/vzs-club-api/pkg/config"
)

// ErrThrottled is returned when the bank refuses a request because the token
// was used too recently. The caller must not advance its fetch window.
var ErrThrottled = errors.New("fio: request throttled")

const dateLayout = "2006-01-02"

// Entry is one movement on the club account.
type Entry struct {
	ID             int64
	Date           time.Time
	Amount         float64
	Currency       string
	VariableSymbol string
	Counterparty   string
	Message        string
}

// Client reads account statements from the Fio banka REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]Entry]
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient builds a statement client. Requests are spaced by cfg.MinInterval
// because the bank rejects a token reused within 30 seconds.
func NewClient(cfg config.FioConfig, opts ...Option) *Client {
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]Entry](gobreaker.Settings{
		Name:        "fio-api",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrThrottled) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Statement returns account movements dated within [from, to].
func (c *Client) Statement(ctx context.Context, from, to time.Time) ([]Entry, error) {
	if c.token == "" {
		return nil, errors.New("fio: api token not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fio: wait for rate limiter: %w", err)
	}

	entries, err := c.breaker.Execute(func() ([]Entry, error) {
		return c.fetch(ctx, from, to)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("fio: api unavailable: %w", err)
		}
		return nil, err
	}
	return entries, nil
}

func (c *Client) fetch(ctx context.Context, from, to time.Time) ([]Entry, error) {
	url := fmt.Sprintf("%s/periods/%s/%s/%s/transactions.json",
		c.baseURL, c.token, from.Format(dateLayout), to.Format(dateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fio: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fio: request statement: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrThrottled
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fio: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload statementResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("fio: decode statement: %w", err)
	}
	return payload.entries()
}
