package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.paystack.co"
	requestBodyReadLimit int64 = 1024

	// StatusSuccess is the verify status of a settled charge.
	StatusSuccess = "success"
	// SignatureHeader carries the HMAC of webhook bodies.
	SignatureHeader = "X-Paystack-Signature"
)

var (
	errSecretKeyRequired = errors.New("paystack secret key is required")
	minorUnits           = decimal.NewFromInt(100)
)

// Client talks to the Paystack transaction API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
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

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a Paystack client for the given secret key.
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(secretKey)
	if trimmedKey == "" {
		return nil, errSecretKeyRequired
	}

	client := &Client{
		secretKey:  trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// InitializeRequest describes a checkout to open. Amount is in currency units.
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// Initialization is the hosted checkout the customer is redirected to.
type Initialization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Verification is the normalised verify result. Amount is in currency units.
type Verification struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	PaidAt    *time.Time
	Metadata  map[string]string
}

// Succeeded reports whether the charge settled.
func (v Verification) Succeeded() bool {
	return v.Status == StatusSuccess
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ToMinorUnits converts a currency amount into the integer subunits Paystack expects.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnits).Round(0).IntPart()
}

// FromMinorUnits converts Paystack subunits back into currency units.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(minorUnits)
}

// InitializeTransaction opens a hosted checkout for the amount.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Initialization, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	body := map[string]any{
		"email":  req.Email,
		"amount": ToMinorUnits(req.Amount),
	}
	if req.Currency != "" {
		body["currency"] = req.Currency
	}
	if req.Reference != "" {
		body["reference"] = req.Reference
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal initialize request")
	}

	var out Initialization
	if err := c.do(ctx, http.MethodPost, "transaction/initialize", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the settled state of a reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	var data struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		Currency  string          `json:"currency"`
		PaidAt    *time.Time      `json:"paid_at"`
		Metadata  json.RawMessage `json:"metadata"`
	}
	if err := c.do(ctx, http.MethodGet, "transaction/verify/"+url.PathEscape(trimmed), nil, &data); err != nil {
		return nil, err
	}

	return &Verification{
		Reference: data.Reference,
		Status:    data.Status,
		Amount:    FromMinorUnits(data.Amount),
		Currency:  data.Currency,
		PaidAt:    data.PaidAt,
		Metadata:  decodeMetadata(data.Metadata),
	}, nil
}

// VerifySignature checks a webhook body against its hex HMAC-SHA512 signature.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c == nil || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paystack request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute paystack request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "paystack request failed")
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack response")
	}
	if !env.Status {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New(env.Message), "paystack rejected request")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack data")
	}
	return nil
}

// decodeMetadata keeps string-valued keys. Paystack returns "" or 0 when no
// metadata was attached.
func decodeMetadata(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	var fields map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return out
	}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = decimal.NewFromFloat(val).String()
		}
	}
	return out
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
