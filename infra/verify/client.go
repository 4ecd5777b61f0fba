// Package verify calls the external account authority that must confirm
// every candidate fill. The engine does not own account state; it trusts
// this service to vouch for, shrink, or disown a resting order.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GuardainDev/opinion-trade-orderbook/domain/orderbook"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	OrderID string          `json:"order_id"`
	Size    decimal.Decimal `json:"size"`
}

type verifyResponse struct {
	Status string          `json:"status"`
	Size   decimal.Decimal `json:"size"`
}

// Verify satisfies orderbook.VerifyFunc. A transport error, an HTTP error
// status, or an unknown verdict all fail the call; the engine treats that
// as fatal for the placement in progress.
func (c *Client) Verify(ctx context.Context, orderID string, size decimal.Decimal) (orderbook.VerifyResult, error) {
	body, err := json.Marshal(verifyRequest{OrderID: orderID, Size: size})
	if err != nil {
		return orderbook.VerifyResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return orderbook.VerifyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return orderbook.VerifyResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orderbook.VerifyResult{}, fmt.Errorf("verify service returned %s", resp.Status)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return orderbook.VerifyResult{}, err
	}

	switch vr.Status {
	case "VALID":
		return orderbook.VerifyResult{Status: orderbook.VerifyValid}, nil
	case "REMOVE":
		return orderbook.VerifyResult{Status: orderbook.VerifyRemove}, nil
	case "UPDATE":
		return orderbook.VerifyResult{Status: orderbook.VerifyUpdate, Size: vr.Size}, nil
	default:
		return orderbook.VerifyResult{}, fmt.Errorf("verify service returned unknown status %q", vr.Status)
	}
}
