package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"audiocorpus/internal/logging"
	"audiocorpus/internal/services"
)

// ErrCircuitOpen is returned by Allow once the breaker has tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a Breaker.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout elapses, or for the
	// rest of the run when no timeout is configured.
	StateOpen
	// StateHalfOpen lets one probe through; success closes the breaker and
	// failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a Breaker.
type BreakerConfig struct {
	// Name labels log lines.
	Name string
	// MaxFailures is the number of consecutive systemic failures that opens
	// the breaker. Default: 5.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open before allowing a
	// probe. Zero keeps it open for the lifetime of the breaker.
	ResetTimeout time.Duration
	Logger       *slog.Logger
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	lastErr         error
	probing         bool
}

// NewBreaker creates a Breaker with defaults for zero-value fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		logger:       logging.NewComponentLogger(cfg.Logger, "resilience"),
		now:          time.Now,
	}
}

// Allow returns ErrCircuitOpen (joined with the last systemic error) when
// work must not proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.resetTimeout > 0 && b.now().Sub(b.lastFailure) >= b.resetTimeout {
			b.state = StateHalfOpen
			b.probing = true
			b.logger.Info("circuit breaker probing", logging.String("name", b.name))
			return nil
		}
		return b.openErr()
	case StateHalfOpen:
		if b.probing {
			return b.openErr()
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) openErr() error {
	if b.lastErr != nil {
		return errors.Join(ErrCircuitOpen, b.lastErr)
	}
	return ErrCircuitOpen
}

// Record feeds the outcome of one call. Nil and item-level errors reset the
// consecutive counter; systemic errors advance it.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !services.IsSystemic(err) {
		if b.state == StateHalfOpen {
			b.logger.Info("circuit breaker closed after successful probe", logging.String("name", b.name))
		}
		b.state = StateClosed
		b.consecutiveFail = 0
		b.probing = false
		return
	}

	b.lastFailure = b.now()
	b.lastErr = err
	b.probing = false
	if b.state == StateHalfOpen {
		b.state = StateOpen
		logging.WarnWithContext(b.logger, "circuit breaker re-opened", "circuit_open",
			logging.String("name", b.name),
			logging.Error(err),
		)
		return
	}
	b.consecutiveFail++
	if b.consecutiveFail >= b.maxFailures && b.state != StateOpen {
		b.state = StateOpen
		logging.ErrorWithContext(b.logger, "circuit breaker opened", "circuit_open",
			logging.String("name", b.name),
			logging.Int("consecutive_failures", b.consecutiveFail),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.Error(err),
		)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.resetTimeout > 0 && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the consecutive systemic failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFail
}
