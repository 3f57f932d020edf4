package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client calls the node wallet daemon's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8550"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("node: %s", apiErr.Error)
		}
		return fmt.Errorf("node: status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *Client) CheckNodeStatus(ctx context.Context, network string) (*NodeStatus, error) {
	var out NodeStatus
	if err := c.do(ctx, http.MethodGet, "/v1/node/status?network="+url.QueryEscape(network), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSourceBalance(ctx context.Context, address, network string) (*SourceBalance, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("network", network)
	var out SourceBalance
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/balance?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ValidateAddressChecksum(ctx context.Context, address, network string) (*ChecksumResult, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("network", network)
	var out ChecksumResult
	if err := c.do(ctx, http.MethodGet, "/v1/address/validate?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitSend(ctx context.Context, req *SendRequest) (string, error) {
	payload := map[string]any{
		"source":      req.Source,
		"destination": req.Destination,
		"amount":      strconv.FormatInt(req.Amount, 10),
		"memo":        req.Memo,
		"network":     req.Network,
		"attempt":     req.Attempt,
	}
	if req.FeeOverride > 0 {
		payload["fee"] = strconv.FormatInt(req.FeeOverride, 10)
	}
	var out struct {
		OperationID string `json:"operationId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/wallet/send", payload, &out); err != nil {
		return "", err
	}
	if out.OperationID == "" {
		return "", fmt.Errorf("node: send accepted without operation id")
	}
	return out.OperationID, nil
}

func (c *Client) GetOperationStatus(ctx context.Context, operationID, network string) (*OperationResult, error) {
	q := url.Values{}
	q.Set("network", network)
	var out OperationResult
	if err := c.do(ctx, http.MethodGet, "/v1/operations/"+url.PathEscape(operationID)+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
