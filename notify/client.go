// Package notify delivers withdrawal lifecycle callbacks to the operator
// platform. Callbacks are advisory: delivery failure is logged by the caller
// and never changes ledger state.
package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"time"
)

type Client struct {
	endpoint string
	secret   string
	http     *http.Client
}

type Response struct {
	Code       int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func NewClient(endpoint, secret string) *Client {
	return &Client{
		endpoint: endpoint,
		secret:   secret,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) call(params map[string]string) (*Response, error) {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	if c.secret != "" {
		values.Set("signature", c.sign(values))
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	u.RawQuery = values.Encode()
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var parsed Response
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	parsed.StatusCode = resp.StatusCode
	return &parsed, nil
}

func (c *Client) sign(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if k == "action" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := make([]byte, 0, 256)
	for _, k := range keys {
		buf = append(buf, v.Get(k)...)
	}
	m := hmac.New(sha256.New, []byte(c.secret))
	m.Write(buf)
	return hex.EncodeToString(m.Sum(nil))
}

// WithdrawalConfirmed notifies the operator that a withdrawal settled on-chain.
func (c *Client) WithdrawalConfirmed(sessionID, txID, txHash, amount string) (*Response, error) {
	return c.call(map[string]string{
		"action":     "withdrawal_confirmed",
		"session_id": sessionID,
		"tx_id":      txID,
		"tx_hash":    txHash,
		"amount":     amount,
	})
}

// WithdrawalFailed notifies the operator that a withdrawal failed terminally
// and the reservation was released back to the session balance.
func (c *Client) WithdrawalFailed(sessionID, txID, reason, amount string) (*Response, error) {
	return c.call(map[string]string{
		"action":     "withdrawal_failed",
		"session_id": sessionID,
		"tx_id":      txID,
		"reason":     reason,
		"amount":     amount,
	})
}
