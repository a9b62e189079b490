// Package keyserver implements the HKP client used as the action executed by
// the retry scheduler: one HTTP key lookup against one resolved address.
package keyserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apssouza22/keyfetch/internal/core/domain"
	"github.com/apssouza22/keyfetch/internal/retry"
)

const (
	armorHeader = "-----BEGIN PGP PUBLIC KEY BLOCK-----"
	maxKeyBytes = 1 << 20 // 1 MiB is generous for a public key
)

// StatusError is a non-404 HTTP failure from a keyserver. It is left for the
// retry predicates to classify.
type StatusError struct {
	Code     int
	Endpoint string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("keyserver %s returned HTTP %d", e.Endpoint, e.Code)
}

// Client fetches armored public keys from HKP keyservers.
type Client struct {
	log *slog.Logger
}

// NewClient creates a keyserver client.
func NewClient(log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{log: log}
}

// Fetch retrieves the key for fingerprint from the attempt's endpoint,
// connecting directly to the attempt's resolved address with the attempt's
// adaptive timeout. A 404 becomes an explicit retry signal so the scheduler
// can track a consistent not-found across endpoints; 5xx responses are
// retried and other statuses propagate via the registered predicate.
func (c *Client) Fetch(ctx context.Context, att *retry.Attempt, fp domain.Fingerprint) (*domain.PublicKey, error) {
	att.RegisterRetryPredicate(classifyStatus)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, LookupURL(att.Endpoint, fp), nil)
	if err != nil {
		return nil, retry.Fatal(err)
	}
	req.Header.Set("User-Agent", "keyfetch")

	client, transport := c.httpClient(att)
	defer transport.CloseIdleConnections()

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup via %s: %w", att.Address, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, att.Retry(
			fmt.Sprintf("no key %s at %s", fp, att.Endpoint.Host), http.StatusNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode, Endpoint: att.Endpoint.Host}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyBytes))
	if err != nil {
		return nil, fmt.Errorf("read key body from %s: %w", att.Endpoint.Host, err)
	}
	armored := strings.TrimSpace(string(body))
	if !strings.HasPrefix(armored, armorHeader) {
		return nil, fmt.Errorf("response from %s is not an armored key block", att.Endpoint.Host)
	}

	att.ReportLatency(time.Since(start))
	c.log.Debug("key fetched", "fingerprint", fp, "endpoint", att.Endpoint.Host,
		"address", att.Address, "bytes", len(armored))

	return &domain.PublicKey{
		Fingerprint: fp,
		KeyID:       fp.KeyID(),
		Armored:     armored,
		Source:      att.Endpoint.Host,
		FetchedAt:   time.Now(),
	}, nil
}

// httpClient builds a client that dials the attempt's resolved address while
// keeping the endpoint hostname for TLS verification. The transport is also
// returned so the caller can release its keep-alive connection once the
// attempt is over; the dial parameters change per attempt, so the client
// cannot be shared.
func (c *Client) httpClient(att *retry.Attempt) (*http.Client, *http.Transport) {
	addr := net.JoinHostPort(att.Address, portFor(att.Endpoint))
	dialer := &net.Dialer{Timeout: att.Timeout}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{ServerName: att.Endpoint.Hostname()},
	}
	return &http.Client{Timeout: att.Timeout, Transport: transport}, transport
}

// LookupURL builds the HKP machine-readable lookup URL for fp on endpoint.
// The hkp/hkps schemes map onto http/https with the HKP default port.
func LookupURL(endpoint *url.URL, fp domain.Fingerprint) string {
	host := endpoint.Host
	if endpoint.Port() == "" && endpoint.Scheme == "hkp" {
		host = net.JoinHostPort(endpoint.Hostname(), "11371")
	}
	u := url.URL{
		Scheme:   httpScheme(endpoint),
		Host:     host,
		Path:     "/pks/lookup",
		RawQuery: url.Values{
			"op":      {"get"},
			"options": {"mr"},
			"search":  {"0x" + fp.String()},
		}.Encode(),
	}
	return u.String()
}

func httpScheme(endpoint *url.URL) string {
	switch endpoint.Scheme {
	case "hkp":
		return "http"
	case "hkps":
		return "https"
	default:
		return endpoint.Scheme
	}
}

func portFor(endpoint *url.URL) string {
	if p := endpoint.Port(); p != "" {
		return p
	}
	switch endpoint.Scheme {
	case "http":
		return "80"
	case "hkp":
		return "11371"
	default:
		return "443"
	}
}

// classifyStatus retries server-side failures and rate limiting, and stops on
// anything else trying again could not fix (4xx other than the 404 handled
// above).
func classifyStatus(err error) retry.Verdict {
	var se *StatusError
	if !errors.As(err, &se) {
		return retry.VerdictNone
	}
	if se.Code >= 500 || se.Code == http.StatusTooManyRequests {
		return retry.VerdictRetry
	}
	return retry.VerdictStop
}
