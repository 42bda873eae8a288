// Package sellercloud is a minimal client for the SellerCloud order REST API.
package sellercloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Lllllllleong/bolledger/internal/models"
)

const (
	DefaultBaseURL = "https://cvi.api.sellercloud.com"

	// MissingOrderNumber stands in for orders without a source order ID.
	MissingOrderNumber = "Missing"

	ordersQuery                 = "model.updatedFromDateRange=9"
	sampleSuffix                = "-Sample"
	errorBodyReadLimit    int64 = 1024
	defaultRequestTimeout       = 60 * time.Second
)

var errCredentialsRequired = errors.New("sellercloud username and password are required")

// Client talks to one SellerCloud tenant.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the tenant base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every request made by the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func NewClient(username, password string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errCredentialsRequired
	}
	client := &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    DefaultBaseURL,
		username:   strings.TrimSpace(username),
		password:   password,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Token exchanges the configured credentials for a bearer token.
func (c *Client) Token(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"Username": c.username,
		"Password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("rest/api/token"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("token request failed", resp)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("token response carried no access_token")
	}
	return body.AccessToken, nil
}

// ListOrders returns the recently updated orders keyed by their source order number.
// A "-Sample" marker is stripped from source IDs. Orders without one get MissingOrderNumber.
func (c *Client) ListOrders(ctx context.Context, token string) ([]models.ExternalOrder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("rest/api/Orders")+"?"+ordersQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("build orders request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute orders request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("orders request failed", resp)
	}

	var body struct {
		Items []struct {
			ID                 json.Number `json:"ID"`
			OrderSourceOrderID *string     `json:"OrderSourceOrderID"`
		} `json:"Items"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode orders response: %w", err)
	}
	if body.Items == nil {
		return nil, errors.New("orders response has no Items")
	}

	orders := make([]models.ExternalOrder, 0, len(body.Items))
	for _, item := range body.Items {
		number := MissingOrderNumber
		if item.OrderSourceOrderID != nil && *item.OrderSourceOrderID != "" {
			number = strings.ReplaceAll(*item.OrderSourceOrderID, sampleSuffix, "")
		}
		orders = append(orders, models.ExternalOrder{
			OrderID:     item.ID.String(),
			OrderNumber: number,
		})
	}
	return orders, nil
}

// UploadDocument attaches a base64 encoded file to an order and returns the HTTP status code.
// Only transport failures are returned as errors.
func (c *Client) UploadDocument(ctx context.Context, token, orderID, base64Content, fileName string) (int, error) {
	payload, err := json.Marshal(map[string]string{
		"fileName":    fileName,
		"fileContent": base64Content,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal upload request: %w", err)
	}
	endpoint := c.buildURL(fmt.Sprintf("rest/api/Orders/%s/UploadDocument", url.PathEscape(orderID)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute upload request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyReadLimit))

	return resp.StatusCode, nil
}

// UploadFileName is the document name used for an order's BOL.
func UploadFileName(orderNumber string) string {
	return fmt.Sprintf("Order-NO%s.pdf", orderNumber)
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

func statusError(msg string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	return fmt.Errorf("%s: status %d: %s", msg, resp.StatusCode, strings.TrimSpace(string(body)))
}
