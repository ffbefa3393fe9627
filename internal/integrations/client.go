package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClient is the shared outbound client for platform pull APIs.
type HTTPClient struct {
	r *resty.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{r: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json")}
}

// R starts a request bound to ctx.
func (c *HTTPClient) R(ctx context.Context) *resty.Request {
	return c.r.R().SetContext(ctx)
}

// Page is one 2xx response of a paginated listing.
type Page struct {
	Body   []byte
	Header http.Header
}

// GetPage performs req against url and returns a 2xx response.
func (c *HTTPClient) GetPage(req *resty.Request, url string) (Page, error) {
	resp, err := req.Get(url)
	if err != nil {
		return Page{}, fmt.Errorf("%w: GET %s: %v", ErrExternalCall, url, err)
	}
	if !resp.IsSuccess() {
		return Page{}, fmt.Errorf("%w: GET %s: status %d", ErrExternalCall, url, resp.StatusCode())
	}
	return Page{Body: resp.Body(), Header: resp.Header()}, nil
}

// MaxPages bounds a single FetchOrders call.
const MaxPages = 100

// FetchPages calls fetch for pages 0, 1, ... until it reports no further page and
// returns every order seen. Running past MaxPages is an error rather than a silent
// truncation, so the caller never advances its sync cursor over unseen orders.
func FetchPages(fetch func(page int) (orders []json.RawMessage, more bool, err error)) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for page := 0; ; page++ {
		if page == MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrExternalCall, MaxPages)
		}
		orders, more, err := fetch(page)
		if err != nil {
			return nil, err
		}
		out = append(out, orders...)
		if !more || len(orders) == 0 {
			return out, nil
		}
	}
}

// NextLink returns the rel="next" target of an RFC 8288 Link header, or "".
func NextLink(h http.Header) string {
	for _, v := range h.Values("Link") {
		for _, part := range strings.Split(v, ",") {
			target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
			if !ok {
				continue
			}
			for _, p := range strings.Split(params, ";") {
				k, val, _ := strings.Cut(strings.TrimSpace(p), "=")
				if strings.EqualFold(k, "rel") && strings.Trim(val, `"`) == "next" {
					return strings.Trim(strings.TrimSpace(target), "<>")
				}
			}
		}
	}
	return ""
}

// NextField returns the "next" URL of a paginated envelope such as
// {"results": [...], "next": "..."}, or "" for a bare array or the last page.
func NextField(body []byte) string {
	var envelope struct {
		Next *string `json:"next"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &envelope) != nil || envelope.Next == nil {
		return ""
	}
	return *envelope.Next
}

// SplitOrders extracts the order array from body. It accepts a bare array or an
// object holding the array under one of keys.
func SplitOrders(body []byte, keys ...string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []json.RawMessage
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("%w: decode orders: %v", ErrExternalCall, err)
		}
		return out, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode orders: %v", ErrExternalCall, err)
	}
	for _, k := range keys {
		if raw, ok := envelope[k]; ok {
			var out []json.RawMessage
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, fmt.Errorf("%w: decode %s: %v", ErrExternalCall, k, err)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: response has none of %v", ErrExternalCall, keys)
}
