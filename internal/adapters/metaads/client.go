package metaads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcusai/insights-backend/pkg/config"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/marcusai/insights-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	defaultGraphURL   = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"

	maxErrorBodyBytes = 8 << 10
)

// Client talks to the Meta Marketing API (Graph API insights edge) for one
// ad account.
type Client struct {
	accessToken string
	accountID   string
	apiVersion  string
	baseURL     string
	httpc       *http.Client
	logg        *logger.Logger
}

// Option customizes client construction.
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint; used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// NewClient builds a Meta client. Credentials are checked lazily so an
// unconfigured platform constructs fine and reports MISSING_CREDENTIALS on
// first use.
func NewClient(cfg config.MetaAdsConfig, logg *logger.Logger, opts ...Option) *Client {
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	c := &Client{
		accessToken: strings.TrimSpace(cfg.AccessToken),
		accountID:   strings.TrimPrefix(strings.TrimSpace(cfg.AccountID), "act_"),
		apiVersion:  version,
		baseURL:     defaultGraphURL,
		httpc:       &http.Client{Timeout: 30 * time.Second},
		logg:        logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) validate() error {
	missing := []string{}
	if c.accessToken == "" {
		missing = append(missing, "access_token")
	}
	if c.accountID == "" {
		missing = append(missing, "account_id")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeMissingCredentials, "meta ads credentials incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// Authenticate verifies the token can read the account object.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.Account(ctx)
	return err
}

type actionEntry struct {
	ActionType string           `json:"action_type"`
	Value      *decimal.Decimal `json:"value"`
}

type insightsRow struct {
	Impressions  string        `json:"impressions"`
	Clicks       string        `json:"clicks"`
	Spend        string        `json:"spend"`
	Actions      []actionEntry `json:"actions"`
	ActionValues []actionEntry `json:"action_values"`
	HourlyBucket string        `json:"hourly_stats_aggregated_by_advertiser_time_zone"`
}

type insightsResponse struct {
	Data   []insightsRow `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Insights runs one insights query, following cursor pagination.
func (c *Client) Insights(ctx context.Context, params url.Values) ([]insightsRow, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	params.Set("access_token", c.accessToken)
	next := fmt.Sprintf("%s/%s/act_%s/insights?%s", c.baseURL, c.apiVersion, c.accountID, params.Encode())

	var rows []insightsRow
	for next != "" {
		var page insightsResponse
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		rows = append(rows, page.Data...)
		next = page.Paging.Next
	}
	c.logg.Debug(ctx, fmt.Sprintf("meta insights returned %d rows", len(rows)))
	return rows, nil
}

type accountInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Currency     string `json:"currency"`
	TimezoneName string `json:"timezone_name"`
}

// Account fetches the ad account object for identity probes.
func (c *Client) Account(ctx context.Context) (*accountInfo, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fields", "id,name,currency,timezone_name")
	params.Set("access_token", c.accessToken)
	target := fmt.Sprintf("%s/%s/act_%s?%s", c.baseURL, c.apiVersion, c.accountID, params.Encode())

	var info accountInfo
	if err := c.getJSON(ctx, target, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building graph request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "meta ads request timed out")
		}
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "meta ads unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return mapGraphError(resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "decoding graph response")
	}
	return nil
}

type graphErrorEnvelope struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// Graph error codes that signal throttling rather than a bad request.
var throttleCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80004: true}

func mapGraphError(status int, body []byte) error {
	var envelope graphErrorEnvelope
	_ = json.Unmarshal(body, &envelope)

	message := envelope.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	cause := fmt.Errorf("meta ads status %d code %d: %s", status, envelope.Error.Code, message)

	switch {
	case envelope.Error.Code == 190 || status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeAuthExpired, cause, "meta ads rejected token")
	case throttleCodes[envelope.Error.Code] || status == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeRateLimited, cause, "meta ads throttled")
	case status == http.StatusBadRequest:
		return pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, cause, "meta ads rejected query")
	case status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, cause, "meta ads unavailable")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, cause, "meta ads unexpected status")
	}
}

// parseCount tolerates the insights habit of encoding counts as strings.
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeMalformedResponse, fmt.Sprintf("meta ads returned non-numeric count %q", s))
	}
	return v, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeMalformedResponse, fmt.Sprintf("meta ads returned non-numeric amount %q", s))
	}
	return d, nil
}
