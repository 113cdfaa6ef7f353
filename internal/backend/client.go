// Package backend talks to the store API: it reads the catalog and records checks.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/till/internal/domain"
	"github.com/nikolayk812/till/internal/observability"
	"github.com/nikolayk812/till/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/currency"
)

const (
	defaultTimeout    = 8 * time.Second
	idempotencyHeader = "Idempotency-Key"
	requestIDHeader   = "X-Request-ID"
	maxErrorBody      = 4 << 10
	storeProductsKey  = "store-products"
)

// Client implements port.SubmissionTransport and port.CatalogReader over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	session port.SessionGuard
	cur     currency.Unit
	logger  *zap.Logger

	group singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithCurrency(cur currency.Unit) Option {
	return func(c *Client) {
		c.cur = cur
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, session port.SessionGuard, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base url is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("backend: base url[%s]: %w", baseURL, err)
	}
	if session == nil {
		return nil, errors.New("backend: session guard is nil")
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		session: session,
		cur:     domain.UAH,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = observability.OrNop(c.logger)

	return c, nil
}

// SubmitCheck posts the check once. Any HTTP response, including 4xx/5xx, is returned
// without error so the caller can interpret it; err is set only when no response arrived.
func (c *Client) SubmitCheck(ctx context.Context, cred domain.Credential, req domain.CheckRequest) (domain.CheckResponse, error) {
	endpoint, err := url.JoinPath(c.baseURL, "cashier", "checks")
	if err != nil {
		return domain.CheckResponse{}, fmt.Errorf("url.JoinPath: %w", err)
	}

	payload, err := json.Marshal(toCheckPayload(req))
	if err != nil {
		return domain.CheckResponse{}, fmt.Errorf("json.Marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.CheckResponse{}, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)
	httpReq.Header.Set(idempotencyHeader, req.TransactionID)
	httpReq.Header.Set(requestIDHeader, requestID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.CheckResponse{}, fmt.Errorf("http.Do: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("check posted",
		zap.String("transaction_id", req.TransactionID),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
	)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		// the status is still authoritative; only the reason text is lost
		c.logger.Warn("check response body unreadable",
			zap.String("transaction_id", req.TransactionID),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
	}

	out := domain.CheckResponse{StatusCode: resp.StatusCode}
	var decoded checkResultPayload
	if len(body) > 0 && json.Unmarshal(body, &decoded) == nil {
		out.TransactionID = strings.TrimSpace(decoded.TransactionID)
		out.Code = strings.TrimSpace(decoded.Code)
		out.Message = strings.TrimSpace(decoded.Message)
	} else if resp.StatusCode >= 400 {
		out.Message = strings.TrimSpace(string(body))
	}

	return out, nil
}

// ListAvailable returns in-stock items sorted by display name.
func (c *Client) ListAvailable(ctx context.Context) ([]domain.CatalogItem, error) {
	items, err := c.storeProducts(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.CatalogItem
	for _, item := range items {
		if item.AvailableQuantity > 0 {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

// Lookup resolves an item regardless of stock; stock is the backend's call at submit time.
func (c *Client) Lookup(ctx context.Context, itemID string) (domain.CatalogItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CatalogItem{}, fmt.Errorf("itemID is empty: %w", domain.ErrItemNotFound)
	}

	items, err := c.storeProducts(ctx)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	for _, item := range items {
		if item.ItemID == itemID {
			return item, nil
		}
	}
	return domain.CatalogItem{}, fmt.Errorf("itemID[%s]: %w", itemID, domain.ErrItemNotFound)
}

// storeProducts collapses concurrent catalog reads into one request. The shared fetch
// is detached from the first caller's cancellation; each caller still stops waiting
// when its own ctx ends.
func (c *Client) storeProducts(ctx context.Context) ([]domain.CatalogItem, error) {
	ch := c.group.DoChan(storeProductsKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout())
		defer cancel()
		return c.fetchStoreProducts(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.CatalogItem), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("store products: %w", ctx.Err())
	}
}

func (c *Client) fetchTimeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return defaultTimeout
}

func (c *Client) fetchStoreProducts(ctx context.Context) ([]domain.CatalogItem, error) {
	cred, ok := c.session.CurrentCredential()
	if !ok {
		return nil, domain.ErrAuthExpired
	}

	endpoint, err := url.JoinPath(c.baseURL, "cashier", "store-products")
	if err != nil {
		return nil, fmt.Errorf("url.JoinPath: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Invalidate()
		return nil, domain.ErrAuthExpired
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("backend: store products status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var products []storeProductPayload
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("json.Decode: %w", err)
	}

	items := make([]domain.CatalogItem, 0, len(products))
	for _, p := range products {
		item, err := p.toCatalogItem(c.cur)
		if err != nil {
			c.logger.Warn("skipping store product", zap.String("upc", p.UPC), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}

type storeProductPayload struct {
	UPC            string          `json:"UPC"`
	ProductName    string          `json:"product_name"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	ProductsNumber int             `json:"products_number"`
}

func (p storeProductPayload) toCatalogItem(cur currency.Unit) (domain.CatalogItem, error) {
	upc := strings.TrimSpace(p.UPC)
	if upc == "" {
		return domain.CatalogItem{}, errors.New("UPC is empty")
	}
	if p.SellingPrice.IsNegative() {
		return domain.CatalogItem{}, fmt.Errorf("selling_price[%s] is negative", p.SellingPrice)
	}

	quantity := p.ProductsNumber
	if quantity < 0 {
		quantity = 0
	}

	return domain.CatalogItem{
		ItemID:            upc,
		DisplayName:       strings.TrimSpace(p.ProductName),
		UnitPrice:         domain.NewMoney(p.SellingPrice, cur),
		AvailableQuantity: quantity,
	}, nil
}

type checkPayload struct {
	Header checkHeaderPayload `json:"header"`
	Lines  []checkLinePayload `json:"lines"`
	Totals totalsPayload      `json:"totals"`
}

type checkHeaderPayload struct {
	TransactionID string  `json:"transactionId"`
	CustomerRef   *string `json:"customerRef"`
	PrintDate     string  `json:"printDate"`
}

type checkLinePayload struct {
	ItemID            string      `json:"itemId"`
	Quantity          int         `json:"quantity"`
	UnitPriceSnapshot json.Number `json:"unitPriceSnapshot"`
}

type totalsPayload struct {
	Subtotal   json.Number `json:"subtotal"`
	Tax        json.Number `json:"tax"`
	GrandTotal json.Number `json:"grandTotal"`
	Currency   string      `json:"currency"`
}

type checkResultPayload struct {
	TransactionID string `json:"transactionId"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

func toCheckPayload(req domain.CheckRequest) checkPayload {
	var customerRef *string
	if ref := strings.TrimSpace(req.Header.CustomerRef); ref != "" {
		customerRef = &ref
	}

	lines := make([]checkLinePayload, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, checkLinePayload{
			ItemID:            line.ItemID,
			Quantity:          line.Quantity,
			UnitPriceSnapshot: unitPrice(line.UnitPriceSnapshot),
		})
	}

	return checkPayload{
		Header: checkHeaderPayload{
			TransactionID: req.TransactionID,
			CustomerRef:   customerRef,
			PrintDate:     req.PrintedAt.UTC().Format(time.RFC3339),
		},
		Lines: lines,
		Totals: totalsPayload{
			Subtotal:   amount(req.Totals.Subtotal),
			Tax:        amount(req.Totals.Tax),
			GrandTotal: amount(req.Totals.GrandTotal),
			Currency:   req.Totals.GrandTotal.Currency.String(),
		},
	}
}

// amount renders money as a JSON number fixed to the currency scale.
func amount(m domain.Money) json.Number {
	return json.Number(m.Amount.StringFixed(m.Scale()))
}

// unitPrice keeps sub-unit digits instead of rounding them away, so the lines
// on the wire multiply out to exactly the subtotal they were priced into.
func unitPrice(m domain.Money) json.Number {
	scale := m.Scale()
	if m.Amount.Equal(m.Amount.Round(scale)) {
		return json.Number(m.Amount.StringFixed(scale))
	}
	return json.Number(m.Amount.String())
}
