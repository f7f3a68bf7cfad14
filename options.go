// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package qf

import "time"

// frameworkOptions holds configuration for a Framework.
type frameworkOptions struct {
	scheduler            SchedulerKind
	metricsEnabled       bool
	rateLimitWindow      time.Duration
	rateLimitBurst       int
	traceCapacity        int
	traceTransport       TraceTransport
	kernelAwareThreshold uint8
}

// --- Framework Options ---

// Option configures a Framework instance.
type Option interface {
	applyFramework(*frameworkOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*frameworkOptions) error
}

func (o *optionImpl) applyFramework(opts *frameworkOptions) error {
	return o.applyFunc(opts)
}

// SchedulerKind selects the scheduling strategy, per §4.G/§4.H.
type SchedulerKind int

const (
	// SchedulerQK is the preemptive, fixed-priority scheduler (§4.G).
	SchedulerQK SchedulerKind = iota
	// SchedulerQV is the cooperative run-to-completion scheduler (§4.H).
	SchedulerQV
)

// WithScheduler selects QK (preemptive) or QV (cooperative) scheduling.
// Default is SchedulerQK.
func WithScheduler(kind SchedulerKind) Option {
	return &optionImpl{func(opts *frameworkOptions) error {
		opts.scheduler = kind
		return nil
	}}
}

// WithMetrics enables dispatch-latency and queue/pool watermark metrics
// collection on the Framework. When enabled, metrics can be accessed via
// Framework.Metrics(). Disabled by default, for zero-allocation hot paths.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *frameworkOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithRecoverableLogRate configures the sliding window used to rate-limit
// repeated recoverable-condition log lines (§7). window is the duration of
// the burst-allowance window and burst is how many log lines it admits
// before throttling kicks in.
func WithRecoverableLogRate(window time.Duration, burst int) Option {
	return &optionImpl{func(opts *frameworkOptions) error {
		opts.rateLimitWindow = window
		opts.rateLimitBurst = burst
		return nil
	}}
}

// WithTrace enables the binary trace channel (§4.I) with a ring buffer of
// capacity bytes, drained asynchronously by transport. transport may be nil:
// records then accumulate until the ring is full (further records are
// dropped and counted), and Framework.Trace().Flush discards the buffered
// bytes. Disabled by default.
func WithTrace(capacity int, transport TraceTransport) Option {
	return &optionImpl{func(opts *frameworkOptions) error {
		opts.traceCapacity = capacity
		opts.traceTransport = transport
		return nil
	}}
}

// WithKernelAwareThreshold sets the ISR priority at or below which an ISR is
// "kernel-aware" and may post/publish/tick, per §5's ISR rules. ISREntry
// calls above the threshold make Post, PostLIFO, Publish, and Tick fatal via
// Assert. Default is the maximum uint8, so every ISR is aware unless an
// application opts into a stricter threshold.
func WithKernelAwareThreshold(threshold uint8) Option {
	return &optionImpl{func(opts *frameworkOptions) error {
		opts.kernelAwareThreshold = threshold
		return nil
	}}
}

// resolveFrameworkOptions applies Option instances to frameworkOptions.
func resolveFrameworkOptions(opts []Option) (*frameworkOptions, error) {
	cfg := &frameworkOptions{
		scheduler:            SchedulerQK,
		rateLimitWindow:      100 * time.Millisecond,
		rateLimitBurst:       1,
		kernelAwareThreshold: 255,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyFramework(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// poolOptions holds configuration for a single event pool.
type poolOptions struct {
	name string
}

// --- Pool Options ---

// PoolOption configures an EventPool at registration time.
type PoolOption interface {
	applyPool(*poolOptions)
}

type poolOptionImpl struct {
	applyFunc func(*poolOptions)
}

func (o *poolOptionImpl) applyPool(opts *poolOptions) {
	o.applyFunc(opts)
}

// WithPoolName attaches a human-readable name to a pool, used only for
// logging and the trace channel's object dictionary.
func WithPoolName(name string) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) { opts.name = name }}
}

func resolvePoolOptions(opts []PoolOption) *poolOptions {
	cfg := &poolOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyPool(cfg)
		}
	}
	return cfg
}

// aoOptions holds configuration for an ActiveObject.
type aoOptions struct {
	queueCapacity    int
	deferredCapacity int
	name             string
}

// --- Active Object Options ---

// AOOption configures an ActiveObject at Spawn time.
type AOOption interface {
	applyAO(*aoOptions)
}

type aoOptionImpl struct {
	applyFunc func(*aoOptions)
}

func (o *aoOptionImpl) applyAO(opts *aoOptions) {
	o.applyFunc(opts)
}

// WithQueueCapacity sets the AO's incoming event queue capacity (the ring
// behind the front slot; total admittable events is capacity+1 per §8).
// Default is 8.
func WithQueueCapacity(n int) AOOption {
	return &aoOptionImpl{func(opts *aoOptions) { opts.queueCapacity = n }}
}

// WithDeferredCapacity sets the capacity of the AO's caller-owned deferred
// queue, used by Defer/Recall (§4.D). Default is 4.
func WithDeferredCapacity(n int) AOOption {
	return &aoOptionImpl{func(opts *aoOptions) { opts.deferredCapacity = n }}
}

// WithAOName attaches a human-readable name to an active object, used for
// logging and the trace channel's object dictionary.
func WithAOName(name string) AOOption {
	return &aoOptionImpl{func(opts *aoOptions) { opts.name = name }}
}

func resolveAOOptions(opts []AOOption) *aoOptions {
	cfg := &aoOptions{queueCapacity: 8, deferredCapacity: 4}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAO(cfg)
		}
	}
	return cfg
}
