package contracts

import "time"

// =============================================================================
// Replay Batch
// =============================================================================

// BatchStatus is the replay batch lifecycle status
type BatchStatus string

const (
	BatchPending   BatchStatus = "PENDING"
	BatchRunning   BatchStatus = "RUNNING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchFailed    BatchStatus = "FAILED"
	BatchPaused    BatchStatus = "PAUSED"
)

// CanTransitionTo enforces the batch state machine:
// PENDING→RUNNING→{COMPLETED,FAILED,PAUSED}, PAUSED→RUNNING
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchPending:
		return next == BatchRunning
	case BatchRunning:
		return next == BatchCompleted || next == BatchFailed || next == BatchPaused
	case BatchPaused:
		return next == BatchRunning
	default:
		return false
	}
}

// Terminal reports whether the status is final
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// DataSourceMode selects where the executor's candles come from
type DataSourceMode string

const (
	// ModeLocal reads the local candle store only; no artificial delays.
	ModeLocal DataSourceMode = "LOCAL"
	// ModeVendorFallback may sync missing ranges from the live vendor;
	// 샘플 간 고정 딜레이로 분당 요청 한도를 지킨다.
	ModeVendorFallback DataSourceMode = "VENDOR_FALLBACK"
)

// SampleStatus is the per-sample lifecycle status
type SampleStatus string

const (
	SamplePending          SampleStatus = "PENDING"
	SampleRunning          SampleStatus = "RUNNING"
	SampleCompleted        SampleStatus = "COMPLETED"
	SampleFailed           SampleStatus = "FAILED"
	SampleInsufficientData SampleStatus = "FAILED_INSUFFICIENT_DATA"
)

// Terminal reports whether the sample reached a final status
func (s SampleStatus) Terminal() bool {
	return s == SampleCompleted || s == SampleFailed || s == SampleInsufficientData
}

// ReplaySample is one (batch, instant) unit of work
type ReplaySample struct {
	AsOf    time.Time    `json:"as_of"`
	Status  SampleStatus `json:"status"`
	StateID string       `json:"state_id,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ReplayBatch is a unit of replay work over a time range
type ReplayBatch struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Step       time.Duration  `json:"step"`
	MaxSamples int            `json:"max_samples"`
	Mode       DataSourceMode `json:"mode"`
	Status     BatchStatus    `json:"status"`
	Samples    []ReplaySample `json:"samples"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// AllTerminal reports whether every sample reached a terminal status
func (b *ReplayBatch) AllTerminal() bool {
	for _, s := range b.Samples {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}

// Recount refreshes the completed/failed counters from sample statuses
func (b *ReplayBatch) Recount() {
	completed, failed := 0, 0
	for _, s := range b.Samples {
		switch s.Status {
		case SampleCompleted:
			completed++
		case SampleFailed, SampleInsufficientData:
			failed++
		}
	}
	b.Completed = completed
	b.Failed = failed
}

// FinalStatus applies the completion rule: a batch FAILED only when it
// produced zero completed samples; any success means COMPLETED.
func (b *ReplayBatch) FinalStatus() BatchStatus {
	if b.Completed == 0 {
		return BatchFailed
	}
	return BatchCompleted
}

// =============================================================================
// Replay State
// =============================================================================

// SampleOutcome holds the ground-truth label of one replay state.
// 한 번 기록되면 불변 — 재라벨링 금지.
type SampleOutcome struct {
	Label     OutcomeLabel `json:"label"`
	Reason    string       `json:"reason"`
	Horizon   string       `json:"horizon"`
	Price     float64      `json:"price"`    // last forward close used
	MovePct   float64      `json:"move_pct"` // signed % move from entry
	MFEPct    float64      `json:"mfe_pct"`  // max favorable excursion, % of entry
	MAEPct    float64      `json:"mae_pct"`  // max adverse excursion, % of entry
	LabeledAt time.Time    `json:"labeled_at"`
}

// ReplayState is the persisted artifact of one replay sample.
// Uniqueness key: (BatchID, AsOf, Symbol) — 중복 생성은 기존 ID 반환으로 처리.
type ReplayState struct {
	ID            string         `json:"id"`
	BatchID       string         `json:"batch_id"`
	Symbol        string         `json:"symbol"`
	AsOf          time.Time      `json:"as_of"`
	Price         float64        `json:"price"` // entry price at as-of
	Decision      DecisionResult `json:"decision"`
	ConfigVersion string         `json:"config_version"`
	Outcome       *SampleOutcome `json:"outcome,omitempty"`
	Status        SampleStatus   `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Labeled reports whether the state has an immutable outcome recorded
func (s *ReplayState) Labeled() bool {
	return s.Outcome != nil && s.Outcome.Label != ""
}

// Correct applies the accuracy rule: directional biases are correct on
// CONTINUATION, WAIT is correct on NOISE.
func (s *ReplayState) Correct() bool {
	if !s.Labeled() {
		return false
	}
	if s.Decision.Bias == BiasWait {
		return s.Outcome.Label == LabelNoise
	}
	return s.Outcome.Label == LabelContinuation
}
