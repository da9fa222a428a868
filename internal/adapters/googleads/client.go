package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marcusai/insights-backend/pkg/config"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/marcusai/insights-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

const (
	apiVersion      = "v17"
	defaultEndpoint = "https://googleads.googleapis.com"
	tokenEndpoint   = "https://oauth2.googleapis.com/token"

	maxErrorBodyBytes = 8 << 10
)

// Credentials holds the per-account OAuth and API material for Google Ads.
type Credentials struct {
	ClientID        string
	ClientSecret    string
	DeveloperToken  string
	RefreshToken    string
	CustomerID      string
	LoginCustomerID string
}

// CredentialsFromConfig maps the environment-provided values into Credentials.
func CredentialsFromConfig(cfg config.GoogleAdsConfig) Credentials {
	return Credentials{
		ClientID:        strings.TrimSpace(cfg.ClientID),
		ClientSecret:    strings.TrimSpace(cfg.ClientSecret),
		DeveloperToken:  strings.TrimSpace(cfg.DeveloperToken),
		RefreshToken:    strings.TrimSpace(cfg.RefreshToken),
		CustomerID:      strings.ReplaceAll(strings.TrimSpace(cfg.CustomerID), "-", ""),
		LoginCustomerID: strings.ReplaceAll(strings.TrimSpace(cfg.LoginCustomerID), "-", ""),
	}
}

func (c Credentials) validate() error {
	missing := []string{}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.DeveloperToken == "" {
		missing = append(missing, "developer_token")
	}
	if c.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if c.CustomerID == "" {
		missing = append(missing, "customer_id")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeMissingCredentials, "google ads credentials incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// Client issues GAQL queries against the Google Ads REST surface with
// centralized auth, logging, and error mapping.
type Client struct {
	creds    Credentials
	httpc    *http.Client
	baseURL  string
	tokenURL string
	tokens   oauth2.TokenSource
	logg     *logger.Logger
}

// Option customizes client construction.
type Option func(*Client)

// WithBaseURL overrides the API endpoint; used by tests and sandboxes.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTokenURL overrides the OAuth token endpoint; used by tests.
func WithTokenURL(url string) Option {
	return func(c *Client) { c.tokenURL = strings.TrimRight(url, "/") }
}

// WithTokenSource bypasses the refresh-token flow; used by tests.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// NewClient builds a Google Ads client. Credentials are validated lazily so
// an unconfigured platform can still be constructed and report
// MISSING_CREDENTIALS from its first call.
func NewClient(cfg config.GoogleAdsConfig, logg *logger.Logger, opts ...Option) *Client {
	c := &Client{
		creds:    CredentialsFromConfig(cfg),
		httpc:    &http.Client{Timeout: 30 * time.Second},
		baseURL:  defaultEndpoint,
		tokenURL: tokenEndpoint,
		logg:     logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		conf := &oauth2.Config{
			ClientID:     c.creds.ClientID,
			ClientSecret: c.creds.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: c.tokenURL},
		}
		// The source is built once here and never reassigned, so concurrent
		// requests share it safely. Background context: the source outlives
		// any single request's deadline. Empty credentials are harmless at
		// this point; validate() gates every call before Token() is asked.
		c.tokens = conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: c.creds.RefreshToken})
	}
	return c
}

// Authenticate validates credentials and forces a token refresh.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.creds.validate(); err != nil {
		return err
	}
	if _, err := c.tokens.Token(); err != nil {
		return mapTokenError(err)
	}
	return nil
}

func mapTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return pkgerrors.Wrap(pkgerrors.CodeAuthExpired, err, "google ads token refresh rejected")
	}
	return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "google ads token endpoint unreachable")
}

// jsonInt64 tolerates the API's habit of encoding int64 metrics as strings.
type jsonInt64 int64

func (v *jsonInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	parsed, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing int64 %q: %w", s, err)
	}
	*v = jsonInt64(parsed)
	return nil
}

type metricsPayload struct {
	Impressions      jsonInt64        `json:"impressions"`
	Clicks           jsonInt64        `json:"clicks"`
	CostMicros       jsonInt64        `json:"costMicros"`
	Conversions      *decimal.Decimal `json:"conversions"`
	ConversionsValue *decimal.Decimal `json:"conversionsValue"`
}

type searchRow struct {
	Metrics  metricsPayload `json:"metrics"`
	Segments struct {
		Date string `json:"date"`
		Hour *int   `json:"hour"`
	} `json:"segments"`
	Customer struct {
		ID              jsonInt64 `json:"id"`
		DescriptiveName string    `json:"descriptiveName"`
		CurrencyCode    string    `json:"currencyCode"`
		TimeZone        string    `json:"timeZone"`
	} `json:"customer"`
}

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results       []searchRow `json:"results"`
	NextPageToken string      `json:"nextPageToken"`
}

// Search runs one GAQL query, following pagination until exhausted.
func (c *Client) Search(ctx context.Context, gaql string) ([]searchRow, error) {
	if err := c.creds.validate(); err != nil {
		return nil, err
	}
	var rows []searchRow
	pageToken := ""
	for {
		page, next, err := c.searchPage(ctx, c.tokens, gaql, pageToken)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if next == "" {
			c.logg.Debug(ctx, fmt.Sprintf("google ads search returned %d rows", len(rows)))
			return rows, nil
		}
		pageToken = next
	}
}

func (c *Client) searchPage(ctx context.Context, ts oauth2.TokenSource, gaql, pageToken string) ([]searchRow, string, error) {
	token, err := ts.Token()
	if err != nil {
		return nil, "", mapTokenError(err)
	}

	body, err := json.Marshal(searchRequest{Query: gaql, PageToken: pageToken})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding search request")
	}

	url := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", c.baseURL, apiVersion, c.creds.CustomerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("developer-token", c.creds.DeveloperToken)
	if c.creds.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", c.creds.LoginCustomerID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", mapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, "", mapStatusError(resp.StatusCode, raw)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "decoding search response")
	}
	return decoded.Results, decoded.NextPageToken, nil
}

func mapTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "google ads request timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "google ads unreachable")
}

type apiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func mapStatusError(status int, body []byte) error {
	var envelope apiErrorEnvelope
	_ = json.Unmarshal(body, &envelope)

	message := envelope.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	cause := fmt.Errorf("google ads status %d: %s", status, message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeAuthExpired, cause, "google ads rejected credentials")
	case status == http.StatusTooManyRequests || envelope.Error.Status == "RESOURCE_EXHAUSTED":
		return pkgerrors.Wrap(pkgerrors.CodeRateLimited, cause, "google ads quota exhausted")
	case status == http.StatusBadRequest:
		return pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, cause, "google ads rejected query")
	case status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, cause, "google ads unavailable")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, cause, "google ads unexpected status")
	}
}
