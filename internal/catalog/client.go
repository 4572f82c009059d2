// README: HTTP client shim for the product service (authoritative product lookups).
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"takeout/internal/types"
)

// Product is the live catalog record. Orders never reference it directly;
// they embed a frozen copy at creation time.
type Product struct {
	ProductID   types.ID `json:"productID"`
	MerchantID  types.ID `json:"merchantID"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
}

// Provider resolves authoritative product data for order snapshots.
type Provider interface {
	ProductsByMerchant(ctx context.Context, merchantID types.ID) ([]Product, error)
	// ProductByName returns nil when the merchant has no product by that name.
	ProductByName(ctx context.Context, merchantID types.ID, name string) (*Product, error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ProductsByMerchant(ctx context.Context, merchantID types.ID) ([]Product, error) {
	var products []Product
	err := c.call(ctx, "FetchProductsByMerchantIDMessage", map[string]any{
		"merchantID": string(merchantID),
	}, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) ProductByName(ctx context.Context, merchantID types.ID, name string) (*Product, error) {
	// The product service returns a list or JSON null for a miss.
	var products []Product
	err := c.call(ctx, "FetchProductsByNameAndMerchantIDMessage", map[string]any{
		"merchantID": string(merchantID),
		"name":       name,
	}, &products)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

func (c *Client) call(ctx context.Context, name string, args map[string]any, out any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+name, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: call %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog: call %s: upstream status %d", name, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
