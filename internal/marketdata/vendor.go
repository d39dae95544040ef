package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/pkg/config"
	"github.com/wonny/argus/pkg/httputil"
	"github.com/wonny/argus/pkg/logger"
	"github.com/wonny/argus/pkg/metrics"
)

// VendorClient fetches historical market data from the venue REST API.
// ⭐ SSOT: 벤더 API 호출은 이 클라이언트에서만
//
// The venue exposes klines, open interest and funding history. Taker
// buy/sell volume has no historical endpoint, so that series is filled
// by local ingestion only.
type VendorClient struct {
	httpClient *httputil.Client
	metrics    *metrics.Recorder
	logger     *logger.Logger
	baseURL    string
	category   string
}

// NewVendorClient creates a new vendor REST client
func NewVendorClient(httpClient *httputil.Client, cfg *config.Config, rec *metrics.Recorder, log *logger.Logger) *VendorClient {
	return &VendorClient{
		httpClient: httpClient,
		metrics:    rec,
		logger:     log.WithField("module", "vendor_client"),
		baseURL:    cfg.Vendor.BaseURL,
		category:   "linear",
	}
}

// intervalParam maps a timeframe to the venue kline interval parameter
func intervalParam(tf contracts.Timeframe) (string, error) {
	switch tf {
	case contracts.Timeframe5m:
		return "5", nil
	case contracts.Timeframe1h:
		return "60", nil
	case contracts.Timeframe4h:
		return "240", nil
	case contracts.Timeframe1d:
		return "D", nil
	default:
		return "", fmt.Errorf("%w: unsupported timeframe %q", contracts.ErrValidation, tf)
	}
}

// oiIntervalParam maps a timeframe to the open interest intervalTime parameter
func oiIntervalParam(tf contracts.Timeframe) (string, error) {
	switch tf {
	case contracts.Timeframe5m:
		return "5min", nil
	case contracts.Timeframe1h:
		return "1h", nil
	case contracts.Timeframe4h:
		return "4h", nil
	case contracts.Timeframe1d:
		return "1d", nil
	default:
		return "", fmt.Errorf("%w: unsupported timeframe %q", contracts.ErrValidation, tf)
	}
}

// envelope is the venue v5 response wrapper
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// fetch performs a GET and unwraps the venue response envelope
func (c *VendorClient) fetch(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		c.metrics.RecordVendorRequest(path, "error")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.metrics.RecordVendorRequest(path, "rate_limited")
		return nil, fmt.Errorf("%w: status 429 from %s", contracts.ErrRateLimited, path)
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordVendorRequest(path, "error")
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordVendorRequest(path, "error")
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.metrics.RecordVendorRequest(path, "error")
		return nil, fmt.Errorf("parse response failed: %w", err)
	}
	// Venue signals throttling in-band as retCode 10006
	if env.RetCode == 10006 {
		c.metrics.RecordVendorRequest(path, "rate_limited")
		return nil, fmt.Errorf("%w: retCode 10006 (%s)", contracts.ErrRateLimited, env.RetMsg)
	}
	if env.RetCode != 0 {
		c.metrics.RecordVendorRequest(path, "error")
		return nil, fmt.Errorf("vendor error retCode=%d: %s", env.RetCode, env.RetMsg)
	}

	c.metrics.RecordVendorRequest(path, "ok")
	return env.Result, nil
}

// FetchKlines fetches candles for [start, end], oldest first.
// 벤더 응답은 최신순이므로 여기서 뒤집는다.
func (c *VendorClient) FetchKlines(ctx context.Context, symbol string, tf contracts.Timeframe, start, end time.Time, limit int) ([]contracts.Candle, error) {
	interval, err := intervalParam(tf)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(limit))

	result, err := c.fetch(ctx, "/v5/market/kline", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("parse kline list failed: %w", err)
	}

	var candles []contracts.Candle
	for _, row := range payload.List {
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, contracts.Candle{
			Time:   time.UnixMilli(ms).UTC(),
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: toFloat(row[5]),
		})
	}

	// newest-first → oldest-first
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"timeframe": string(tf),
		"count":     len(candles),
	}).Debug("Fetched klines")
	return candles, nil
}

// FetchOpenInterest fetches open interest points for [start, end], oldest first
func (c *VendorClient) FetchOpenInterest(ctx context.Context, symbol string, tf contracts.Timeframe, start, end time.Time, limit int) ([]contracts.OpenInterestPoint, error) {
	interval, err := oiIntervalParam(tf)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("intervalTime", interval)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(limit))

	result, err := c.fetch(ctx, "/v5/market/open-interest", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("parse open interest list failed: %w", err)
	}

	var points []contracts.OpenInterestPoint
	for _, row := range payload.List {
		ms, err := strconv.ParseInt(row.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		points = append(points, contracts.OpenInterestPoint{
			Time:  time.UnixMilli(ms).UTC(),
			Value: toFloat(row.OpenInterest),
		})
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// FetchFundingHistory fetches funding rate points for [start, end], oldest first
func (c *VendorClient) FetchFundingHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]contracts.FundingPoint, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(limit))

	result, err := c.fetch(ctx, "/v5/market/funding/history", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			FundingRate          string `json:"fundingRate"`
			FundingRateTimestamp string `json:"fundingRateTimestamp"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("parse funding list failed: %w", err)
	}

	var points []contracts.FundingPoint
	for _, row := range payload.List {
		ms, err := strconv.ParseInt(row.FundingRateTimestamp, 10, 64)
		if err != nil {
			continue
		}
		points = append(points, contracts.FundingPoint{
			Time: time.UnixMilli(ms).UTC(),
			Rate: toFloat(row.FundingRate),
		})
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// toFloat converts a venue numeric string to float64
func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
