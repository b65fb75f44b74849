package protocol

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jugelauncher/launcher/common"
)

const (
	userAgent = "juge-launcher/v1.0.0"

	maxIdleConnections = 1
	maxRedirects       = 10

	requestTimeout        = 1 * time.Minute
	idleConnectionTimeout = 100 * time.Second
	httpClientTimeout     = 100 * time.Second
)

// Client is the HTTP plumbing shared by every remote call the launcher
// makes: manifest fetches, device-code requests and token polling.
type Client struct {
	Client     *http.Client
	AuthHeader string
	Trace      bool
	Log        *logrus.Logger
}

func (c *Client) HTTPClient() *http.Client {
	if c.Client == nil {
		customTransport := http.DefaultTransport.(*http.Transport).Clone()
		customTransport.MaxIdleConns = maxIdleConnections
		customTransport.IdleConnTimeout = idleConnectionTimeout
		if v, ok := common.LookupEnvBool("SKIP_TLS_CERT_VALIDATION"); ok && v {
			//nolint:gosec // Intentionally allows insecure TLS when explicitly configured
			customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		c.Client = &http.Client{
			Timeout:   httpClientTimeout,
			Transport: customTransport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}
	return c.Client
}

// StreamClient returns a client sharing the configured transport but
// without the whole-request timeout, for responses whose bodies stream for
// longer than a JSON round trip takes. http.Client.Timeout covers reading
// the entire body, which would abort any transfer outlasting it; streaming
// callers are bounded by their request context instead.
func (c *Client) StreamClient() *http.Client {
	base := c.HTTPClient()
	return &http.Client{
		Transport:     base.Transport,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
}

func (c *Client) logger() *logrus.Logger {
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c.Log
}

func extractReader(body interface{}) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	if values, ok := body.(url.Values); ok {
		return strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", nil
	}
	if buf, ok := body.(*bytes.Buffer); ok {
		return buf, "application/octet-stream", nil
	}
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	if err := enc.Encode(body); err != nil {
		return nil, "", err
	}
	return buf, "application/json; charset=utf-8", nil
}

func setResponseBody(r io.Reader, body interface{}) error {
	if body == nil {
		return nil
	}
	if bresponse, ok := body.(*[]byte); ok {
		var err error
		*bresponse, err = io.ReadAll(r)
		return err
	}
	dec := json.NewDecoder(r)
	return dec.Decode(body)
}

// RequestJSON sends requestBody (JSON encoded, or form encoded for
// url.Values, or raw for *bytes.Buffer) and decodes the response into
// responseBody (raw for *[]byte). Non-2xx responses are returned as a
// StatusError carrying the response body for classification by the caller.
func (c *Client) RequestJSON(ctx context.Context, method, requestURL string, requestBody, responseBody interface{}) error {
	buf, contentType, err := extractReader(requestBody)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, method, requestURL, buf)
	if err != nil {
		return err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if responseBody != nil {
		if _, ok := responseBody.(*[]byte); ok {
			request.Header.Set("Accept", "application/octet-stream")
		} else {
			request.Header.Set("Accept", "application/json")
		}
	}
	request.Header.Set("User-Agent", userAgent)
	if c.AuthHeader != "" {
		request.Header.Set("Authorization", c.AuthHeader)
	}
	if c.Trace {
		c.logger().WithFields(logrus.Fields{
			"method":  method,
			"url":     requestURL,
			"request": uuid.NewString(),
		}).Debug("http request started")
	}

	response, err := c.HTTPClient().Do(request)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			c.logger().Warnf("Failed to close response body: %v", closeErr)
		}
	}()
	failed := response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices
	if failed {
		rbytes, readErr := io.ReadAll(response.Body)
		if readErr != nil {
			rbytes = []byte("no response: " + readErr.Error())
		}
		if c.Trace {
			c.logger().WithFields(logrus.Fields{
				"method": method,
				"url":    requestURL,
				"status": response.StatusCode,
			}).Debugf("http request failed: %v", string(rbytes))
		}
		return &StatusError{StatusCode: response.StatusCode, Body: rbytes}
	}
	if c.Trace {
		c.logger().WithFields(logrus.Fields{
			"method": method,
			"url":    requestURL,
			"status": response.StatusCode,
		}).Debug("http request finished")
	}
	if response.StatusCode == http.StatusNoContent && responseBody != nil {
		return io.EOF
	}
	return setResponseBody(response.Body, responseBody)
}

// GetJSON fetches requestURL with a bounded timeout and decodes the JSON
// response into responseBody.
func (c *Client) GetJSON(ctx context.Context, requestURL string, responseBody interface{}) error {
	reqctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return c.RequestJSON(reqctx, http.MethodGet, requestURL, nil, responseBody)
}

// PostForm form-encodes values against requestURL and decodes the JSON
// response into responseBody.
func (c *Client) PostForm(ctx context.Context, requestURL string, values url.Values, responseBody interface{}) error {
	return c.RequestJSON(ctx, http.MethodPost, requestURL, values, responseBody)
}

// StatusError is a non-2xx HTTP response with its body retained, so callers
// can classify provider error payloads without re-reading the stream.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http failure %v: %v", e.StatusCode, string(e.Body))
}
