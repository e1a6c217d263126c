package constants

import "time"

var CacheTTL = struct {
	LocalizedRecord time.Duration
	RecordList      time.Duration
	ChangeReport    time.Duration
	LanguageList    time.Duration
}{
	LocalizedRecord: 10 * time.Minute,
	RecordList:      2 * time.Minute,
	ChangeReport:    5 * time.Minute,
	LanguageList:    60 * time.Minute,
}

var WebSocketConfig = struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	WriteTimeout         time.Duration
	PongTimeout          time.Duration
	PingInterval         time.Duration
	SendBuffer           int
}{
	MaxReconnectAttempts: 5,
	ReconnectDelay:       5 * time.Second,
	WriteTimeout:         10 * time.Second,
	PongTimeout:          60 * time.Second,
	PingInterval:         54 * time.Second,
	SendBuffer:           64,
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
}{
	ReadyTimeout: 5 * time.Second,
}

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,
	ResetTimeout:        30 * time.Second,
	RateLimitTimeout:    1 * time.Hour,
	HealthCheckInterval: 10 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var MTInputLimits = struct {
	MaxSegmentLength int
	MaxGlossaryTerms int
	MaxBatchSlots    int
}{
	MaxSegmentLength: 4000,
	MaxGlossaryTerms: 50,
	MaxBatchSlots:    500,
}

var BackfillConfig = struct {
	DefaultConcurrency int
	ScanPageSize       int
}{
	DefaultConcurrency: 4,
	ScanPageSize:       200,
}

var ServerConfig = struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	DefaultLimit    int
	MaxLimit        int
}{
	ReadTimeout:     15 * time.Second,
	WriteTimeout:    30 * time.Second,
	ShutdownTimeout: 10 * time.Second,
	DefaultLimit:    50,
	MaxLimit:        500,
}

var LanguageConfig = struct {
	CookieName   string
	CookieMaxAge time.Duration
	QueryParam   string
}{
	CookieName:   "lang",
	CookieMaxAge: 365 * 24 * time.Hour,
	QueryParam:   "lang",
}
