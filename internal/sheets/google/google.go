package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/ports"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var (
	ErrMissingSpreadsheetID = errors.New("missing GOOGLE_SPREADSHEET_ID")
	ErrMissingCredentials   = errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or an OAuth client with token)")
)

// Options selects the target sheet and how to authenticate against it.
// Service account credentials win over OAuth when both are present.
type Options struct {
	SpreadsheetID string
	SheetName     string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string

	// ClientOptions are appended after the credential options. Tests use
	// them to point the client at a local endpoint.
	ClientOptions []goption.ClientOption
}

// Client appends expenses to a Google Sheet used as an external ledger.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ ports.LedgerAppender = (*Client)(nil)

// New builds a sheets client from opts.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, ErrMissingSpreadsheetID
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Expenses"
	}

	clientOpts, err := credentialOptions(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.Info("Google Sheets ledger ready", "spreadsheet_id", spreadsheetID, "sheet", sheetName)
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// credentialOptions resolves the auth method in order: inline service
// account, service account file, GOOGLE_APPLICATION_CREDENTIALS, OAuth.
func credentialOptions(ctx context.Context, opts Options, logger *log.Logger) ([]goption.ClientOption, error) {
	if len(opts.ClientOptions) > 0 && !hasAnyCredentials(opts) {
		return nil, nil
	}

	saFile := strings.TrimSpace(opts.ServiceAccountFile)
	if opts.ServiceAccountJSON == "" && saFile == "" {
		saFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case opts.ServiceAccountJSON != "":
		logger.Debug("Using inline service account credentials")
		return serviceAccountOptions([]byte(opts.ServiceAccountJSON)), nil
	case saFile != "":
		logger.Debug("Reading service account credentials", "path", saFile)
		b, err := os.ReadFile(saFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return serviceAccountOptions(b), nil
	}

	if (opts.OAuthClientJSON != "" || opts.OAuthClientFile != "") &&
		(opts.OAuthTokenJSON != "" || opts.OAuthTokenFile != "") {
		cfg, err := OAuthConfig(opts.OAuthClientJSON, opts.OAuthClientFile)
		if err != nil {
			return nil, err
		}
		tok, err := loadToken(opts.OAuthTokenJSON, opts.OAuthTokenFile)
		if err != nil {
			return nil, err
		}
		logger.Debug("Using OAuth user credentials")
		hc := newHTTPClientWithPooling()
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		return []goption.ClientOption{goption.WithTokenSource(cfg.TokenSource(ctx, tok))}, nil
	}

	return nil, ErrMissingCredentials
}

func hasAnyCredentials(opts Options) bool {
	return opts.ServiceAccountJSON != "" || opts.ServiceAccountFile != "" ||
		opts.OAuthClientJSON != "" || opts.OAuthClientFile != ""
}

func serviceAccountOptions(credentials []byte) []goption.ClientOption {
	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}
}

// OAuthConfig parses an OAuth client definition (inline JSON or file) for
// the spreadsheets scope.
func OAuthConfig(clientJSON, clientFile string) (*oauth2.Config, error) {
	b, err := readInlineOrFile(clientJSON, clientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func loadToken(tokenJSON, tokenFile string) (*oauth2.Token, error) {
	b, err := readInlineOrFile(tokenJSON, tokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	return &tok, nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case path != "":
		return os.ReadFile(path)
	default:
		return nil, errors.New("neither inline JSON nor file provided")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// AppendExpense writes e as a new row after the last populated row and
// returns the A1 range that was written.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.ID == 0 {
		return "", fmt.Errorf("append expense: %w", core.ErrNotFound)
	}

	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp != nil && resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}

	c.logger.DebugContext(ctx, "Expense appended to ledger",
		log.FieldExpenseID, e.ID,
		log.FieldUserID, e.UserID,
		log.FieldSheetsRef, ref,
	)
	return ref, nil
}

// expenseRow lays out a ledger row as date, user id, title, amount, category.
// Undated expenses leave the date cell empty.
func expenseRow(e core.Expense) []any {
	date := ""
	if !e.Date.IsEmpty() {
		date = e.Date.String()
	}
	return []any{
		date,
		e.UserID,
		e.Title,
		core.FormatAmount(e.Amount),
		core.NormalizeCategory(e.Category),
	}
}
