package contracts

import "time"

// Timeframe is a candle interval identifier ("5m", "1h", "4h", "1d")
type Timeframe string

const (
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
	Timeframe1d Timeframe = "1d"
)

// Duration returns the candle interval length (0 for unknown timeframes)
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the timeframe is one of the supported intervals
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// Candle is one OHLCV bar. Time is the candle open time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// OpenInterestPoint is one open interest observation
type OpenInterestPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// FundingPoint is one funding rate observation
type FundingPoint struct {
	Time time.Time `json:"time"`
	Rate float64   `json:"rate"`
}

// TakerVolumePoint is one taker buy/sell volume observation
type TakerVolumePoint struct {
	Time       time.Time `json:"time"`
	BuyVolume  float64   `json:"buy_volume"`
	SellVolume float64   `json:"sell_volume"`
}

// CandleSeries 한 (거래소, 심볼, 타임프레임)의 캔들 + 병렬 시리즈
// Candles는 open time 오름차순 정렬을 가정한다.
type CandleSeries struct {
	Venue        string              `json:"venue"`
	Symbol       string              `json:"symbol"`
	Timeframe    Timeframe           `json:"timeframe"`
	Candles      []Candle            `json:"candles"`
	OpenInterest []OpenInterestPoint `json:"open_interest,omitempty"`
	Funding      []FundingPoint      `json:"funding,omitempty"`
	TakerVolume  []TakerVolumePoint  `json:"taker_volume,omitempty"`
}

// LastCandle returns the newest candle, or nil when the series is empty
func (s *CandleSeries) LastCandle() *Candle {
	if len(s.Candles) == 0 {
		return nil
	}
	return &s.Candles[len(s.Candles)-1]
}

// MaxTimestamp returns the newest timestamp across all parallel series.
// Zero-lookahead 검증에 사용.
func (s *CandleSeries) MaxTimestamp() time.Time {
	var max time.Time
	for _, c := range s.Candles {
		if c.Time.After(max) {
			max = c.Time
		}
	}
	for _, p := range s.OpenInterest {
		if p.Time.After(max) {
			max = p.Time
		}
	}
	for _, p := range s.Funding {
		if p.Time.After(max) {
			max = p.Time
		}
	}
	for _, p := range s.TakerVolume {
		if p.Time.After(max) {
			max = p.Time
		}
	}
	return max
}
