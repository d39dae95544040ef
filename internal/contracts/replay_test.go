package contracts

import (
	"testing"
	"time"
)

func TestBatchStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from BatchStatus
		to   BatchStatus
		want bool
	}{
		{BatchPending, BatchRunning, true},
		{BatchPending, BatchCompleted, false},
		{BatchRunning, BatchCompleted, true},
		{BatchRunning, BatchFailed, true},
		{BatchRunning, BatchPaused, true},
		{BatchRunning, BatchPending, false},
		{BatchPaused, BatchRunning, true},
		{BatchPaused, BatchCompleted, false},
		{BatchCompleted, BatchRunning, false},
		{BatchFailed, BatchRunning, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s→%s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestReplayBatch_FinalStatus(t *testing.T) {
	batch := &ReplayBatch{
		Samples: []ReplaySample{
			{Status: SampleCompleted},
			{Status: SampleCompleted},
			{Status: SampleCompleted},
			{Status: SampleFailed},
			{Status: SampleFailed},
		},
	}
	batch.Recount()

	if !batch.AllTerminal() {
		t.Error("Expected all samples terminal")
	}
	if batch.Completed != 3 || batch.Failed != 2 {
		t.Errorf("Recount() = %d/%d, want 3/2", batch.Completed, batch.Failed)
	}
	// Partial failure still completes the batch
	if got := batch.FinalStatus(); got != BatchCompleted {
		t.Errorf("FinalStatus() = %s, want COMPLETED", got)
	}

	allFailed := &ReplayBatch{
		Samples: []ReplaySample{
			{Status: SampleFailed},
			{Status: SampleFailed},
			{Status: SampleInsufficientData},
			{Status: SampleFailed},
			{Status: SampleFailed},
		},
	}
	allFailed.Recount()
	if got := allFailed.FinalStatus(); got != BatchFailed {
		t.Errorf("FinalStatus() = %s, want FAILED", got)
	}
}

func TestReplayState_Correct(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		bias  Bias
		label OutcomeLabel
		want  bool
	}{
		{"long continuation", BiasLong, LabelContinuation, true},
		{"long reversal", BiasLong, LabelReversal, false},
		{"long noise", BiasLong, LabelNoise, false},
		{"short continuation", BiasShort, LabelContinuation, true},
		{"wait noise is correct", BiasWait, LabelNoise, true},
		{"wait continuation is a miss", BiasWait, LabelContinuation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ReplayState{
				AsOf:     asOf,
				Decision: DecisionResult{Bias: tt.bias},
				Outcome:  &SampleOutcome{Label: tt.label},
			}
			if got := state.Correct(); got != tt.want {
				t.Errorf("Correct() = %v, want %v", got, tt.want)
			}
		})
	}

	unlabeled := &ReplayState{Decision: DecisionResult{Bias: BiasLong}}
	if unlabeled.Correct() {
		t.Error("Unlabeled state must never count as correct")
	}
}

func TestDecisionResult_Aligned(t *testing.T) {
	aligned := &DecisionResult{
		Bias: BiasLong,
		TimeframeBiases: map[Timeframe]Bias{
			Timeframe1h: BiasLong,
			Timeframe4h: BiasLong,
			Timeframe1d: BiasWait, // neutral views do not break alignment
		},
	}
	if !aligned.Aligned() {
		t.Error("Expected aligned views")
	}

	conflicted := &DecisionResult{
		Bias: BiasLong,
		TimeframeBiases: map[Timeframe]Bias{
			Timeframe1h: BiasLong,
			Timeframe4h: BiasShort,
		},
	}
	if conflicted.Aligned() {
		t.Error("Expected conflicting views")
	}
}

func TestTimeframe_Duration(t *testing.T) {
	if d := Timeframe4h.Duration(); d != 4*time.Hour {
		t.Errorf("4h duration = %v", d)
	}
	if Timeframe("7m").Valid() {
		t.Error("7m must not be a valid timeframe")
	}
}
