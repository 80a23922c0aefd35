package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/syncevo/syncengine/internal/metrics"
	"github.com/syncevo/syncengine/internal/resilience"
)

// TLSConfig mirrors the three SyncML TLS properties (SPEC_FULL.md §4.6):
// a custom CA bundle path, whether to verify the server certificate at
// all, and whether to verify the hostname against the certificate.
type TLSConfig struct {
	ServerCertificates string // path to a PEM bundle, or "" for system roots
	VerifyServer       bool
	VerifyHost         bool
}

func (c TLSConfig) toClientTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: !c.VerifyServer}
	if !c.VerifyHost {
		cfg.InsecureSkipVerify = true
	}
	if c.ServerCertificates != "" {
		pem, err := os.ReadFile(c.ServerCertificates)
		if err != nil {
			return nil, fmt.Errorf("transport: read SSLServerCertificates %q: %w", c.ServerCertificates, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("transport: no valid certificates found in %q", c.ServerCertificates)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// HTTPTransport is a thin wrapper over net/http that POSTs the SyncML
// message body and retries transient failures with the shared resilience
// backoff policy, never crossing a Wait boundary the caller has already
// observed as TimedOut (SPEC_FULL.md §4.6 "HTTP binding").
type HTTPTransport struct {
	client      *http.Client
	url         string
	contentType string
	timeout     time.Duration
	retryPolicy resilience.RetryPolicy

	mu       sync.Mutex
	replyBody        []byte
	replyContentType string
	outcome          WaitOutcome
	cancelled        bool
}

// NewHTTPTransport returns a transport whose TLS behavior is configured by
// tlsCfg.
func NewHTTPTransport(tlsCfg TLSConfig) (*HTTPTransport, error) {
	tc, err := tlsCfg.toClientTLSConfig()
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{
		client:      &http.Client{Transport: &http.Transport{TLSClientConfig: tc}},
		timeout:     30 * time.Second,
		retryPolicy: resilience.DefaultRetryPolicy,
		outcome:     Inactive,
	}, nil
}

func (t *HTTPTransport) SetURL(url string)                 { t.url = url }
func (t *HTTPTransport) SetContentType(contentType string)  { t.contentType = contentType }
func (t *HTTPTransport) SetTimeout(seconds int)             { t.timeout = time.Duration(seconds) * time.Second }

// Send issues the POST, retrying transient failures (connection refused,
// timeout, 5xx) within the remaining wall-clock budget.
func (t *HTTPTransport) Send(ctx context.Context, body []byte) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	t.mu.Lock()
	t.outcome = Active
	t.cancelled = false
	t.mu.Unlock()

	attempts := 0
	err := t.retryPolicy.Do(deadlineCtx, func(ctx context.Context) error {
		if attempts > 0 {
			metrics.TransportRetries.Inc()
		}
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", t.contentType)

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return serverError{status: resp.StatusCode}
		}
		replyBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		t.mu.Lock()
		t.replyBody = replyBody
		t.replyContentType = resp.Header.Get("Content-Type")
		t.outcome = GotReply
		t.mu.Unlock()
		return nil
	})

	if err != nil {
		t.mu.Lock()
		if deadlineCtx.Err() != nil {
			t.outcome = TimedOut
		} else {
			t.outcome = Failed
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// Wait returns the outcome recorded by the most recent Send; HTTP's
// request/response model means Send already blocks until a reply or
// failure, so Wait is a synchronous readback rather than a separate block.
func (t *HTTPTransport) Wait(ctx context.Context, noReply bool) WaitOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return Closed
	}
	if noReply {
		return Inactive
	}
	return t.outcome
}

func (t *HTTPTransport) GetReply() ([]byte, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.replyBody, t.replyContentType
}

func (t *HTTPTransport) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.outcome = Closed
	t.mu.Unlock()
}

func (t *HTTPTransport) Shutdown() {
	t.client.CloseIdleConnections()
}

// serverError marks a 5xx response as retryable, matching the ambient
// resilience classifier's temporary/permanent split (SPEC_FULL.md §4.6).
type serverError struct{ status int }

func (e serverError) Error() string   { return fmt.Sprintf("transport: server error %d", e.status) }
func (e serverError) Temporary() bool { return true }
