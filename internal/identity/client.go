// README: HTTP client shim for the user service (tokens, rider pool, merchant lookup).
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"takeout/internal/types"
)

// ErrInvalidToken is returned when the user service rejects a token.
var ErrInvalidToken = errors.New("identity: invalid token")

// Directory is the slice of the user service the order and dispatch modules
// consume. Rider status transitions are gated by the dispatch engine; the
// write-through here is the only status mutation path.
type Directory interface {
	UserByToken(ctx context.Context, token string) (*UserInfo, error)
	IdleRiders(ctx context.Context) ([]UserInfo, error)
	MerchantExists(ctx context.Context, merchantID types.ID) (bool, error)
	SetRiderStatus(ctx context.Context, riderID types.ID, status RiderStatus) error
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

func (c *Client) UserByToken(ctx context.Context, token string) (*UserInfo, error) {
	var info UserInfo
	err := c.call(ctx, "GetUserInfoByToken", map[string]any{"userToken": token}, &info)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusBadRequest {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &info, nil
}

func (c *Client) IdleRiders(ctx context.Context) ([]UserInfo, error) {
	var riders []UserInfo
	if err := c.call(ctx, "GetAllIdleRiders", map[string]any{}, &riders); err != nil {
		return nil, err
	}
	return riders, nil
}

// MerchantExists scans the merchant list; the user service has no per-ID
// lookup in its contract.
func (c *Client) MerchantExists(ctx context.Context, merchantID types.ID) (bool, error) {
	var merchants []UserInfo
	if err := c.call(ctx, "GetAllMerchants", map[string]any{}, &merchants); err != nil {
		return false, err
	}
	for _, m := range merchants {
		if m.UserID == merchantID {
			return true, nil
		}
	}
	return false, nil
}

// SetRiderStatus writes a rider's status through to the user service. This is
// the dispatcher's trusted internal path, addressed by rider ID rather than
// session token.
func (c *Client) SetRiderStatus(ctx context.Context, riderID types.ID, status RiderStatus) error {
	var result string
	err := c.call(ctx, "UpdateRiderStatusByID", map[string]any{
		"riderID":   string(riderID),
		"newStatus": string(status),
	}, &result)
	if err != nil {
		return err
	}
	if result != "Success" {
		return fmt.Errorf("identity: update rider status: %s", result)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity: upstream status %d: %s", e.code, e.body)
}

// call POSTs a JSON body to /api/<name> and decodes the 200 response into out.
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
		return fmt.Errorf("identity: call %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(body))}
	}
	return json.Unmarshal(body, out)
}
