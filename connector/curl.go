package connector

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

// Curl is the HTTP client connector of spec.md §4.3: auth strategies,
// retry with exponential backoff on 5xx/429, and an optional on-disk
// response cache. Grounded on noi-techpark-go-apigorowler's
// OAuthAuthenticator+http.Client pairing, generalized to chewdata's
// Connector contract and all of spec.md's auth strategies rather than
// OAuth2 alone.
type Curl struct {
	url         string
	method      string
	headers     map[string]string
	auth        Authenticator
	client      *http.Client
	cache       *ResponseCache
	timeout     time.Duration
	renderedURL string
	updater     *updater.Updater
}

func init() {
	Register("curl", func(config map[string]interface{}) (Connector, error) {
		auth, err := authFromConfig(mapField(config, "auth"))
		if err != nil {
			return nil, err
		}
		timeout := time.Duration(intField(config, "timeout_seconds", 30)) * time.Second

		var cache *ResponseCache
		if cacheDir := stringField(config, "cache_dir", ""); cacheDir != "" {
			cache = &ResponseCache{
				Dir: cacheDir,
				TTL: time.Duration(intField(config, "cache_ttl_seconds", 0)) * time.Second,
			}
		}

		headers := map[string]string{}
		if raw, ok := config["headers"].(map[string]interface{}); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}
		}

		return &Curl{
			url:     stringField(config, "url", ""),
			method:  strings.ToUpper(stringField(config, "method", "GET")),
			headers: headers,
			auth:    auth,
			client:  &http.Client{Timeout: timeout},
			cache:   cache,
			timeout: timeout,
			updater: updater.New(),
		}, nil
	})
}

func mapField(config map[string]interface{}, key string) map[string]interface{} {
	if v, ok := config[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

// Path implements Connector.
func (c *Curl) Path() string {
	if c.renderedURL != "" {
		return c.renderedURL
	}
	return c.url
}

// SetParameters implements Connector.
func (c *Curl) SetParameters(rec *record.Record) error {
	if !c.IsVariable() {
		return nil
	}
	ctx := record.NewContext(rec)
	rendered, err := c.updater.Render(c.url, ctx)
	if err != nil {
		return err
	}
	c.renderedURL = rendered
	return nil
}

// IsVariable implements Connector.
func (c *Curl) IsVariable() bool { return updater.IsVariable(c.url) }

// Fetch implements Connector.
func (c *Curl) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	body, err := c.fetchBody(ctx)
	if err != nil {
		out := make(chan *record.DataResult, 1)
		out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "curl: %v", err))
		close(out)
		return out, nil
	}

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		for res := range doc.Decode(bytes.NewReader(body)) {
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Curl) fetchBody(ctx context.Context) ([]byte, error) {
	url := c.Path()
	if cached, ok := c.cache.Get(c.method, url, nil); ok {
		return cached, nil
	}

	resp, err := doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, c.method, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		if c.auth != nil {
			if err := c.auth.Authorize(ctx, req); err != nil {
				return nil, err
			}
		}
		return c.client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, record.NewError(record.ErrorKindConnectorUnavailable, "curl: status %d", resp.StatusCode)
	}

	_ = c.cache.Put(c.method, url, nil, body)
	return body, nil
}

// Send implements Connector.
func (c *Curl) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	var buf bytes.Buffer
	if err := doc.EncodeHeader(&buf); err != nil {
		return err
	}
	for _, rec := range records {
		if err := doc.EncodeRecord(&buf, rec); err != nil {
			return err
		}
	}
	if err := doc.EncodeFooter(&buf); err != nil {
		return err
	}

	method := c.method
	if method == "GET" {
		method = "POST"
	}

	resp, err := doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.Path(), bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		if c.auth != nil {
			if err := c.auth.Authorize(ctx, req); err != nil {
				return nil, err
			}
		}
		return c.client.Do(req)
	})
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "curl: send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return record.NewError(record.ErrorKindConnectorUnavailable, "curl: send status %d", resp.StatusCode)
	}
	return nil
}

// Erase implements Connector by issuing a DELETE to Path().
func (c *Curl) Erase(ctx context.Context) error {
	resp, err := doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.Path(), nil)
		if err != nil {
			return nil, err
		}
		if c.auth != nil {
			if err := c.auth.Authorize(ctx, req); err != nil {
				return nil, err
			}
		}
		return c.client.Do(req)
	})
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "curl: erase: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return record.NewError(record.ErrorKindConnectorUnavailable, "curl: erase status %d", resp.StatusCode)
	}
	return nil
}

// Len implements Connector by issuing a HEAD request and reading
// Content-Length.
func (c *Curl) Len(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.Path(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, record.NewError(record.ErrorKindConnectorUnavailable, "curl: head: %v", err)
	}
	defer resp.Body.Close()
	return resp.ContentLength, nil
}

// IsEmpty implements Connector.
func (c *Curl) IsEmpty(ctx context.Context) (bool, error) {
	n, err := c.Len(ctx)
	return n <= 0, err
}

// Paginator implements Connector.
func (c *Curl) Paginator() (Paginator, error) { return NewOncePaginator(c), nil }

// CloneBox implements Connector. The underlying *http.Client is shared
// (it is safe for concurrent use); the Authenticator is also shared so
// that a token refreshed by one worker is visible to all.
func (c *Curl) CloneBox() Connector {
	clone := *c
	clone.updater = updater.New()
	return &clone
}

// Metadata implements Connector.
func (c *Curl) Metadata() Metadata {
	return Metadata{MimeSubtype: mimeFromExtension(c.Path()), Path: c.Path(), Headers: c.headers}
}
