package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fractal-trader/internal/market"
)

// orderRatePerSecond bounds order submissions per venue policy.
const orderRatePerSecond = 5

// RESTVenue talks to the exchange gateway over signed HTTP. It
// implements both Venue and MarketData.
type RESTVenue struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	orderLimit *rate.Limiter
	logger     zerolog.Logger
}

var (
	_ Venue      = (*RESTVenue)(nil)
	_ MarketData = (*RESTVenue)(nil)
)

// NewRESTVenue builds a client for the profile's endpoint.
func NewRESTVenue(profile Profile, apiKey, apiSecret string, logger zerolog.Logger) *RESTVenue {
	return &RESTVenue{
		baseURL:    strings.TrimRight(profile.BaseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		orderLimit: rate.NewLimiter(rate.Limit(orderRatePerSecond), orderRatePerSecond),
		logger:     logger.With().Str("component", "RESTVenue").Str("venue", profile.Name).Logger(),
	}
}

// FetchCandles returns up to limit bars of OHLCV history, normalized
// to ascending, deduplicated order.
func (v *RESTVenue) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if !validTimeframe(timeframe) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeframe, timeframe)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]any
	if err := v.getJSON(ctx, "/api/v1/klines", params, false, &raw); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseKlineRow(row)
		if err != nil {
			v.logger.Warn().Err(err).Msg("skipping malformed kline row")
			continue
		}
		candles = append(candles, c)
	}
	return market.Normalize(candles), nil
}

// parseKlineRow decodes one [openTime, open, high, low, close,
// volume, ...] array. Numeric fields arrive as JSON strings.
func parseKlineRow(row []any) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}

	ms, ok := row[0].(float64)
	if !ok {
		return market.Candle{}, fmt.Errorf("kline open time %v not numeric", row[0])
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		f, err := anyToFloat(row[i])
		if err != nil {
			return market.Candle{}, err
		}
		vals[i-1] = f
	}

	return market.Candle{
		Timestamp: time.UnixMilli(int64(ms)).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func anyToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unexpected kline field type %T", v)
	}
}

// AccountValue returns the total account value in quote currency.
func (v *RESTVenue) AccountValue(ctx context.Context) (float64, error) {
	var resp struct {
		TotalValue string `json:"totalValue"`
	}
	if err := v.getJSON(ctx, "/api/v1/account", url.Values{}, true, &resp); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp.TotalValue, 64)
}

// OpenPositions returns the venue's open positions keyed by symbol.
func (v *RESTVenue) OpenPositions(ctx context.Context) (map[string]PositionSnapshot, error) {
	var resp []struct {
		Symbol     string `json:"symbol"`
		Size       string `json:"size"`
		EntryPrice string `json:"entryPrice"`
	}
	if err := v.getJSON(ctx, "/api/v1/positions", url.Values{}, true, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]PositionSnapshot, len(resp))
	for _, p := range resp {
		size, err := strconv.ParseFloat(p.Size, 64)
		if err != nil || size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		direction := 1
		if size < 0 {
			direction = -1
			size = -size
		}
		out[p.Symbol] = PositionSnapshot{
			Symbol:     p.Symbol,
			Size:       size,
			EntryPrice: entry,
			Direction:  direction,
		}
	}
	return out, nil
}

// CurrentPrice returns the latest mark price for a symbol.
func (v *RESTVenue) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if symbol == "" {
		return 0, ErrInvalidSymbol
	}
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Price string `json:"price"`
	}
	if err := v.getJSON(ctx, "/api/v1/price", params, false, &resp); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp.Price, 64)
}

// PlaceOrder submits a signed limit order, quantized to the symbol's
// tick and lot grid and throttled by the order rate limiter.
func (v *RESTVenue) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := v.orderLimit.Wait(ctx); err != nil {
		return OrderResult{}, err
	}

	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	req.LimitPrice = QuantizePrice(req.Symbol, req.LimitPrice)
	req.Size = QuantizeSize(req.Symbol, req.Size)
	if req.Size <= 0 {
		return OrderResult{}, fmt.Errorf("order size for %s quantized to zero", req.Symbol)
	}

	side := "SELL"
	if req.IsBuy {
		side = "BUY"
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", side)
	params.Set("type", "LIMIT")
	params.Set("timeInForce", req.TimeInForce)
	params.Set("quantity", strconv.FormatFloat(req.Size, 'f', -1, 64))
	params.Set("price", strconv.FormatFloat(req.LimitPrice, 'f', -1, 64))
	params.Set("clientOrderId", req.ClientID)
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
		Price   string `json:"price"`
	}
	if err := v.postJSON(ctx, "/api/v1/order", params, &resp); err != nil {
		return OrderResult{}, err
	}

	fill, _ := strconv.ParseFloat(resp.Price, 64)
	v.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", side).
		Float64("size", req.Size).
		Float64("price", req.LimitPrice).
		Str("status", resp.Status).
		Msg("order placed")

	return OrderResult{
		OrderID:   resp.OrderID,
		Status:    resp.Status,
		FillPrice: fill,
		Timestamp: time.Now().UTC(),
	}, nil
}

// getJSON performs a GET with bounded retries on transient failures.
func (v *RESTVenue) getJSON(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	op := func() error {
		return v.doRequest(ctx, http.MethodGet, path, params, signed, out)
	}
	return v.retry(ctx, op)
}

// postJSON performs a signed POST without retries: replaying an order
// that may have reached the venue risks a double fill.
func (v *RESTVenue) postJSON(ctx context.Context, path string, params url.Values, out any) error {
	return v.doRequest(ctx, http.MethodPost, path, params, true, out)
}

func (v *RESTVenue) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if Classify(err) == ClassCritical {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (v *RESTVenue) doRequest(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", v.sign(params.Encode()))
	}

	endpoint := v.baseURL + path
	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return err
	}
	if signed {
		req.Header.Set("X-API-KEY", v.apiKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("venue request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read venue response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode venue response: %w", err)
	}
	return nil
}

// apiError maps HTTP statuses onto the message vocabulary the loop
// classifies on.
func apiError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("unauthorized (status %d): %s", status, msg)
	case status == http.StatusForbidden:
		return fmt.Errorf("forbidden (status %d): %s", status, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("rate limit exceeded (status %d): %s", status, msg)
	case status >= 500:
		return fmt.Errorf("venue temporarily unavailable (status %d): %s", status, msg)
	default:
		return fmt.Errorf("venue error (status %d): %s", status, msg)
	}
}

func (v *RESTVenue) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(v.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

var timeframes = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "4h": true, "1d": true,
}

func validTimeframe(tf string) bool {
	return timeframes[tf]
}
