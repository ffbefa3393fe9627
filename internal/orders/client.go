package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"deliverysync/internal/model"
)

// HTTPClient talks to the marketplace order API.
type HTTPClient struct {
	r *resty.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		r.SetAuthToken(apiKey)
	}
	return &HTTPClient{r: r}
}

func (c *HTTPClient) GetOrder(ctx context.Context, id string) (model.Order, error) {
	var o model.Order
	resp, err := c.r.R().SetContext(ctx).ForceContentType("application/json").SetResult(&o).Get("/api/orders/" + id)
	if err := check(resp, err, "get order "+id); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// FindByTracking returns the first order carrying tracking.
func (c *HTTPClient) FindByTracking(ctx context.Context, tracking string) (model.Order, error) {
	resp, err := c.r.R().SetContext(ctx).SetQueryParam("tracking_number", tracking).Get("/api/orders/")
	if err := check(resp, err, "find order by tracking"); err != nil {
		return model.Order{}, err
	}
	var list []model.Order
	body := resp.Body()
	if len(body) > 0 && body[0] != '[' {
		var page struct {
			Results []model.Order `json:"results"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return model.Order{}, fmt.Errorf("decode orders: %w", err)
		}
		list = page.Results
	} else if err := json.Unmarshal(body, &list); err != nil {
		return model.Order{}, fmt.Errorf("decode orders: %w", err)
	}
	if len(list) == 0 {
		return model.Order{}, fmt.Errorf("%w: tracking %s", ErrNotFound, tracking)
	}
	return list[0], nil
}

func (c *HTTPClient) SetDeliveryStatus(ctx context.Context, orderID, status string, at time.Time) error {
	body := map[string]any{"delivery_status": status, "updated_at": at.UTC().Format(time.RFC3339)}
	resp, err := c.r.R().SetContext(ctx).SetBody(body).Patch("/api/orders/" + orderID + "/delivery-status")
	return check(resp, err, "set delivery status on "+orderID)
}

func check(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s: status %d", what, resp.StatusCode())
	}
	return nil
}
