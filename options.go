package coroutine

import (
	"time"
)

// schedulerOptions holds resolved configuration for New. Grounded on
// eventloop/options.go's loopOptions/LoopOption pattern: a private config
// struct, a public functional-option interface, and Option values that
// mutate the config when resolved.
type schedulerOptions struct {
	processors   int
	logger       *Logger
	metrics      bool
	churnRates   map[time.Duration]int
	reactorOff   bool
}

// Option configures a Scheduler, for use with New.
type Option interface {
	apply(*schedulerOptions)
}

type optionFunc func(*schedulerOptions)

func (f optionFunc) apply(o *schedulerOptions) { f(o) }

// WithProcessors sets the number of Processors, fixed at construction.
// Without this option New uses 1 Processor; an explicit count is not
// required. Passing n <= 0 panics.
func WithProcessors(n int) Option {
	return optionFunc(func(o *schedulerOptions) {
		if n <= 0 {
			panic(&ProgrammerError{Op: "WithProcessors", Msg: "processor count must be positive"})
		}
		o.processors = n
	})
}

// WithLogger overrides the Scheduler's structured logger.
func WithLogger(l *Logger) Option {
	return optionFunc(func(o *schedulerOptions) { o.logger = l })
}

// WithMetrics enables or disables latency metric collection (enabled by
// default); mirrors eventloop/options.go's WithMetrics toggle.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *schedulerOptions) { o.metrics = enabled })
}

// WithChurnRateLimit overrides the sliding-window rates used to
// rate-limit diagnostic logging of Reactor poll errors (see
// github.com/joeycumines/go-catrate). Processor state-transition logging is
// not rate-limited. Defaults to at most 5 warnings per second, 60 per
// minute.
func WithChurnRateLimit(rates map[time.Duration]int) Option {
	return optionFunc(func(o *schedulerOptions) { o.churnRates = rates })
}

// WithoutReactor disables the Reactor entirely (no fd-backed I/O, no
// poll-before-park step). Intended for tests and pure compute workloads
// that only use Channel/Mutex/Delay/Yield.
func WithoutReactor() Option {
	return optionFunc(func(o *schedulerOptions) { o.reactorOff = true })
}

func resolveOptions(opts []Option) *schedulerOptions {
	cfg := &schedulerOptions{
		processors: 1,
		metrics:    true,
		churnRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = NewDefaultLogger()
	}
	return cfg
}
