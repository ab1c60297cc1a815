package ports

import "time"

type Policy struct {
	RetryCount        int // 0 = unlimited
	RetryDelay        time.Duration
	KeepaliveInterval time.Duration
	PollInterval      time.Duration
	Lookback          time.Duration
	BackfillBuffer    time.Duration
	MaxBackfill       time.Duration
	FetchConcurrency  int
}
