package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/argus/internal/contracts"
)

// fileConfig is the YAML wire form of the policy. Durations are strings
// ("8h", "45m") and converted on load.
type fileConfig struct {
	Horizons                   []fileHorizon `yaml:"horizons"`
	BucketEdges                []float64     `yaml:"bucket_edges"`
	MinBucketSamples           int           `yaml:"min_bucket_samples"`
	MinGroupSamples            int           `yaml:"min_group_samples"`
	WaitEffectivenessThreshold float64       `yaml:"wait_effectiveness_threshold"`
	ScoreMarginContradiction   float64       `yaml:"score_margin_contradiction"`
}

type fileHorizon struct {
	Name              string  `yaml:"name"`
	Maturation        string  `yaml:"maturation"`
	ForwardCandles    int     `yaml:"forward_candles"`
	Resolution        string  `yaml:"resolution"`
	NoiseThresholdPct float64 `yaml:"noise_threshold_pct"`
}

// Load reads the evaluation policy YAML. A missing file falls back to
// the compiled-in defaults — 정책 파일은 선택 사항.
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Evaluation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, err
	}

	pol := &Evaluation{
		BucketEdges:                fc.BucketEdges,
		MinBucketSamples:           fc.MinBucketSamples,
		MinGroupSamples:            fc.MinGroupSamples,
		WaitEffectivenessThreshold: fc.WaitEffectivenessThreshold,
		ScoreMarginContradiction:   fc.ScoreMarginContradiction,
	}
	for _, fh := range fc.Horizons {
		maturation, err := time.ParseDuration(fh.Maturation)
		if err != nil {
			return nil, fmt.Errorf("%w: horizon %q maturation: %v", contracts.ErrValidation, fh.Name, err)
		}
		pol.Horizons = append(pol.Horizons, contracts.Horizon{
			Name:              fh.Name,
			Maturation:        maturation,
			ForwardCandles:    fh.ForwardCandles,
			Resolution:        contracts.Timeframe(fh.Resolution),
			NoiseThresholdPct: fh.NoiseThresholdPct,
		})
	}

	if err := Validate(pol); err != nil {
		return nil, err
	}

	return pol, nil
}

// Hash generates a SHA256 hash of the policy (canonical JSON).
// 리포트/베이스라인에 찍어 튜닝 반복 간 비교 가능성을 보장.
func Hash(pol *Evaluation) (string, error) {
	jsonBytes, err := json.Marshal(pol)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
