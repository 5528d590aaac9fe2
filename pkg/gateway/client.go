package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/keydrop/keydrop-backend/pkg/config"
	"github.com/keydrop/keydrop-backend/pkg/enums"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
	"github.com/keydrop/keydrop-backend/pkg/logger"
)

const (
	createPath = "/v1/deposit/create"
	cancelPath = "/v1/deposit/cancel"
	statusPath = "/v1/deposit/status"
	pingPath   = "/v1/ping"
)

var (
	errBaseURLRequired = errors.New("gateway base url is required")
	errAPIKeyRequired  = errors.New("gateway api key is required")
	errLoggerRequired  = errors.New("gateway logger is required")
)

// Deposit is the normalized result of a create-deposit call.
type Deposit struct {
	GatewayID string
	QRPayload string
	ExpiresAt time.Time
}

// StatusReport carries the remote deposit state plus the reconciled amounts.
type StatusReport struct {
	Status     enums.GatewayStatus
	FeeCents   int64
	TotalCents int64
}

// Client translates core intents into the gateway's form-encoded protocol and
// normalizes the boolean-envelope responses.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logger.Logger
}

// NewClient validates the credentials and builds the gateway wrapper.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logg,
	}

	logg.Info(ctx, "gateway client initialized")
	return c, nil
}

// CreateDeposit opens a pending deposit at the remote system. Callers must not
// retry with the same reference id; a retry needs a fresh reference to avoid a
// duplicate remote deposit.
func (c *Client) CreateDeposit(ctx context.Context, nominalCents int64, referenceID string) (*Deposit, error) {
	if nominalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nominal must be positive")
	}
	if strings.TrimSpace(referenceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id required")
	}

	form := url.Values{}
	form.Set("nominal", strconv.FormatInt(nominalCents, 10))
	form.Set("ref_id", referenceID)

	c.log(ctx, "request", "create_deposit", map[string]any{
		"nominal": nominalCents,
		"ref_id":  referenceID,
	})

	var data struct {
		ID        string `json:"id"`
		QRString  string `json:"qr_string"`
		ExpiredAt int64  `json:"expired_at"`
	}
	if err := c.call(ctx, createPath, form, &data); err != nil {
		c.log(ctx, "error", "create_deposit", map[string]any{"error": err.Error()})
		return nil, err
	}
	if data.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayDown, "create deposit: response missing deposit id")
	}

	deposit := &Deposit{
		GatewayID: data.ID,
		QRPayload: data.QRString,
		ExpiresAt: time.Unix(data.ExpiredAt, 0).UTC(),
	}
	c.log(ctx, "response", "create_deposit", map[string]any{
		"gateway_id": deposit.GatewayID,
		"expires_at": deposit.ExpiresAt,
	})
	return deposit, nil
}

// CancelDeposit asks the remote system to void a pending deposit. The local
// order record remains authoritative; callers treat a failure here as
// advisory.
func (c *Client) CancelDeposit(ctx context.Context, gatewayID string) error {
	if strings.TrimSpace(gatewayID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway id required")
	}

	form := url.Values{}
	form.Set("id", gatewayID)

	c.log(ctx, "request", "cancel_deposit", map[string]any{"gateway_id": gatewayID})

	if err := c.call(ctx, cancelPath, form, nil); err != nil {
		c.log(ctx, "error", "cancel_deposit", map[string]any{"error": err.Error()})
		return err
	}
	c.log(ctx, "response", "cancel_deposit", map[string]any{"gateway_id": gatewayID})
	return nil
}

// QueryStatus reads the remote deposit state. Safe to call repeatedly.
func (c *Client) QueryStatus(ctx context.Context, gatewayID string) (*StatusReport, error) {
	if strings.TrimSpace(gatewayID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway id required")
	}

	form := url.Values{}
	form.Set("id", gatewayID)

	var data struct {
		Status string `json:"status"`
		Fee    int64  `json:"fee"`
		Total  int64  `json:"total"`
	}
	if err := c.call(ctx, statusPath, form, &data); err != nil {
		c.log(ctx, "error", "query_status", map[string]any{"error": err.Error(), "gateway_id": gatewayID})
		return nil, err
	}

	status, err := enums.ParseGatewayStatus(strings.ToLower(strings.TrimSpace(data.Status)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayDown, err, "query status: unrecognized remote status")
	}

	c.log(ctx, "response", "query_status", map[string]any{
		"gateway_id": gatewayID,
		"status":     status.String(),
	})
	return &StatusReport{Status: status, FeeCents: data.Fee, TotalCents: data.Total}, nil
}

// Ping performs the lightweight connectivity check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.call(ctx, pingPath, url.Values{}, nil); err != nil {
		c.log(ctx, "error", "ping", map[string]any{"error": err.Error()})
		return err
	}
	return nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call posts the form to the gateway and decodes the boolean envelope. Network
// and parse failures map to CodeGatewayDown; an explicit status=false envelope
// maps to CodeGatewayRejected.
func (c *Client) call(ctx context.Context, path string, form url.Values, out any) error {
	form.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayDown, err, "gateway call failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayDown, err, "read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeGatewayDown, fmt.Sprintf("gateway responded %d", resp.StatusCode))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayDown, err, "malformed gateway response")
	}

	if !env.Status {
		msg := env.Message
		if msg == "" {
			msg = "gateway rejected the request"
		}
		return pkgerrors.New(pkgerrors.CodeGatewayRejected, msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayDown, err, "malformed gateway payload")
		}
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, operation string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	merged := map[string]any{"gateway_op": operation, "phase": phase}
	for k, v := range fields {
		merged[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, merged), "gateway."+operation)
}
