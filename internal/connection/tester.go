package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
)

var (
	ErrRateLimited      = errors.New("connection test rate limit exceeded")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

const (
	defaultTimeout = 15 * time.Second
	maxSampleBytes = 10 << 20
	apiKeyHeader   = "X-API-Key"
)

// Tester calls the configured endpoint once and returns the response body
// as the sample document.
type Tester struct {
	client  *http.Client
	limiter *rate.Limiter
}

type TesterOption func(*Tester)

func WithHTTPClient(c *http.Client) TesterOption {
	return func(t *Tester) {
		t.client = c
	}
}

// WithRate allows burst tests at once and refills at r per second.
func WithRate(r float64, burst int) TesterOption {
	return func(t *Tester) {
		t.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

func NewTester(opts ...TesterOption) *Tester {
	t := &Tester{
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fetch performs the request described by form. Request parameters are sent
// as the query string for GET and as the body otherwise.
func (t *Tester) Fetch(ctx context.Context, form models.ConnectionForm) ([]byte, error) {
	if !t.limiter.Allow() {
		return nil, ErrRateLimited
	}

	req, err := newRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"endpoint": form.DataEndpoint,
		"auth":     form.AuthMethod,
	})
	start := time.Now()

	resp, err := t.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("connection test failed")
		return nil, fmt.Errorf("failed to reach %s: %w", form.DataEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("status", resp.StatusCode).Warn("connection test rejected")
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSampleBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.WithFields(logrus.Fields{
		"bytes":    len(body),
		"duration": time.Since(start),
	}).Info("connection test succeeded")
	return body, nil
}

func newRequest(ctx context.Context, form models.ConnectionForm) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(form.RequestMethod))
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(form.DataEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	params := strings.TrimSpace(form.RequestParameters)
	var body io.Reader
	if params != "" {
		if method == http.MethodGet {
			query := target.Query()
			extra, err := url.ParseQuery(strings.TrimPrefix(params, "?"))
			if err != nil {
				return nil, fmt.Errorf("invalid request parameters: %w", err)
			}
			for k, vs := range extra {
				for _, v := range vs {
					query.Add(k, v)
				}
			}
			target.RawQuery = query.Encode()
		} else {
			body = strings.NewReader(params)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	switch form.AuthMethod {
	case models.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+form.APIKey)
	case models.AuthAPIKey:
		req.Header.Set(apiKeyHeader, form.APIKey)
	case models.AuthBasic:
		req.SetBasicAuth(form.Username, form.Password)
	}
	return req, nil
}
