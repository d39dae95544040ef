package contracts

import "errors"

// Replay error taxonomy. 분류는 errors.Is로 수행한다.
var (
	// ErrLookahead — 로직 결함. 해당 샘플을 즉시 중단하고 크게 로깅해야 하며
	// 절대 조용히 넘어가면 안 된다.
	ErrLookahead = errors.New("lookahead violation")

	// ErrInsufficientData — 데이터셋 가장자리에서 예상되는 상황. auto-sync 후
	// 1회 재시도, 그래도 부족하면 별도 터미널 상태로 기록.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrRateLimited — 일시적. 쿨다운 후 제한 횟수 내 재시도.
	ErrRateLimited = errors.New("rate limited")

	// ErrPersistence — 일시적. 백오프 재시도, 제한 횟수 내.
	ErrPersistence = errors.New("persistence error")

	// ErrValidation — 배치 생성 시점에 거부. 실행 루프에 도달하지 않는다.
	ErrValidation = errors.New("validation error")

	// ErrNotFound — 요청한 엔티티 없음.
	ErrNotFound = errors.New("not found")

	// ErrOutcomeImmutable — 이미 라벨된 상태의 재라벨 시도.
	ErrOutcomeImmutable = errors.New("outcome already recorded")
)
