package contracts

import "time"

// Bias is the directional call produced by the decision engine
type Bias string

const (
	BiasLong  Bias = "LONG"
	BiasShort Bias = "SHORT"
	BiasWait  Bias = "WAIT"
)

// Directional reports whether the bias implies a trade direction
func (b Bias) Directional() bool {
	return b == BiasLong || b == BiasShort
}

// Regime classifies market conditions (e.g. TREND/UP, RANGE/COMPRESSED)
type Regime struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
}

// ScoreBreakdown holds the per-direction scores behind a decision
type ScoreBreakdown struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
	Wait  float64 `json:"wait"`
}

// VenueTimeframeSummary (거래소, 타임프레임)별 스냅샷 요약
// 모든 입력 데이터의 타임스탬프는 스냅샷 cutoff 이하임이 보장된다.
type VenueTimeframeSummary struct {
	Venue                 string    `json:"venue"`
	Timeframe             Timeframe `json:"timeframe"`
	Price                 float64   `json:"price"`
	PriceChangePct        float64   `json:"price_change_pct"`
	OpenInterest          float64   `json:"open_interest"`
	OpenInterestChangePct float64   `json:"open_interest_change_pct"`
	CVD                   float64   `json:"cvd"` // cumulative volume delta over the window
	AvgFundingRate        float64   `json:"avg_funding_rate"`
	Volume                float64   `json:"volume"`
}

// RollingBar is one entry of the primary-timeframe rolling history
type RollingBar struct {
	Time         time.Time `json:"time"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	OpenInterest float64   `json:"open_interest,omitempty"`
	FundingRate  float64   `json:"funding_rate,omitempty"`
}

// DecisionSnapshot is the fixed-shape input the decision engine consumes
type DecisionSnapshot struct {
	Symbol           string                                       `json:"symbol"`
	AsOf             time.Time                                    `json:"as_of"`
	PrimaryTimeframe Timeframe                                    `json:"primary_timeframe"`
	Summaries        map[string]map[Timeframe]VenueTimeframeSummary `json:"summaries"` // venue → timeframe → summary
	History          []RollingBar                                 `json:"history"`
}

// Summary returns the summary for a (venue, timeframe) pair
func (s *DecisionSnapshot) Summary(venue string, tf Timeframe) (VenueTimeframeSummary, bool) {
	byTf, ok := s.Summaries[venue]
	if !ok {
		return VenueTimeframeSummary{}, false
	}
	sum, ok := byTf[tf]
	return sum, ok
}

// PrimaryPrice returns the latest primary-timeframe close across venues.
// 첫 번째로 발견되는 primary 타임프레임 요약의 가격을 사용.
func (s *DecisionSnapshot) PrimaryPrice() float64 {
	if n := len(s.History); n > 0 {
		return s.History[n-1].Close
	}
	for _, byTf := range s.Summaries {
		if sum, ok := byTf[s.PrimaryTimeframe]; ok {
			return sum.Price
		}
	}
	return 0
}

// DecisionResult is the decision engine output for one snapshot
// 튜닝 반복 간 재현성을 위해 ConfigVersion을 항상 함께 기록한다.
type DecisionResult struct {
	Bias            Bias               `json:"bias"`
	Confidence      float64            `json:"confidence"` // 0–10
	Regime          Regime             `json:"regime"`
	Scenario        string             `json:"scenario"`
	Scores          ScoreBreakdown     `json:"scores"`
	TimeframeBiases map[Timeframe]Bias `json:"timeframe_biases,omitempty"`
	Signals         []string           `json:"signals,omitempty"`
	ConfigVersion   string             `json:"config_version"`
}

// Aligned reports whether all per-timeframe bias views agree with the headline bias.
// WAIT 뷰는 중립으로 취급하고 비교에서 제외한다.
func (d *DecisionResult) Aligned() bool {
	if len(d.TimeframeBiases) == 0 {
		return true
	}
	for _, b := range d.TimeframeBiases {
		if b == BiasWait {
			continue
		}
		if b != d.Bias {
			return false
		}
	}
	return true
}
