// Package circuitbreaker 提供按上游端点隔离的熔断器
package circuitbreaker

import (
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// Config 熔断器配置
type Config struct {
	// 连续失败多少次后打开
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// 半开状态下连续成功多少次后关闭
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold"`
	// 打开后多久进入半开
	OpenTimeout time.Duration `yaml:"open_timeout" json:"open_timeout"`
	// 半开状态放行的最大请求数
	MaxHalfOpenRequests int `yaml:"max_half_open_requests" json:"max_half_open_requests"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// StateChangeFunc 状态变化回调
type StateChangeFunc func(name string, from, to State)

// CircuitBreaker 熔断器
type CircuitBreaker struct {
	name     string
	config   Config
	now      func() time.Time
	onChange StateChangeFunc

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	openedAt         time.Time
	halfOpenRequests int
}

// New 创建熔断器
func New(name string, cfg Config, onChange StateChangeFunc) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.MaxHalfOpenRequests <= 0 {
		cfg.MaxHalfOpenRequests = def.MaxHalfOpenRequests
	}
	return &CircuitBreaker{
		name:     name,
		config:   cfg,
		now:      time.Now,
		onChange: onChange,
		state:    StateClosed,
	}
}

// Name 熔断器名称
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State 当前状态
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// advance 打开超时后转入半开 (调用方持锁)
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.OpenTimeout {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.successes = 0
	cb.halfOpenRequests = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// Allow 检查是否允许请求通过
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()

	switch cb.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxHalfOpenRequests {
			return false
		}
		cb.halfOpenRequests++
		return true
	default:
		return true
	}
}

// Success 记录成功
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		} else if cb.halfOpenRequests > 0 {
			cb.halfOpenRequests--
		}
	}
}

// Failure 记录失败
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// Release 放弃本次请求的结果: 只归还半开名额, 不计成功也不计失败
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenRequests > 0 {
		cb.halfOpenRequests--
	}
}

// Registry 按名称惰性创建熔断器
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   Config
	onChange StateChangeFunc
}

// NewRegistry 创建熔断器注册表
func NewRegistry(cfg Config, onChange StateChangeFunc) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		config:   cfg,
		onChange: onChange,
	}
}

// Get 获取或创建熔断器
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := New(name, r.config, r.onChange)
	r.breakers[name] = cb
	return cb
}
