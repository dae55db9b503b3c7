// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

// Package sandbox hosts optional user-supplied toolkit functions referenced
// from a primitive operator's ConfigExpressions that are not one of the six
// intrinsic forms transform/intrinsic.go evaluates. A genuine user-authored
// function compiled ahead of time to WASM runs here, inside a wazero
// runtime, isolated from the transform process: the intrinsic grammar
// stays pure-Go text substitution; this package is only reached when an
// expression names something the intrinsic evaluator does not recognize.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Config configures the shared wazero runtime every UDF in a Registry
// executes under.
type Config struct {
	// EnableJIT selects the compiler runtime over the interpreter; false
	// falls back to wazero's pure-Go interpreter, useful in environments
	// where the compiler's mmap-based code generation is unavailable.
	EnableJIT bool
	// MaxMemoryPages caps a module instance's linear memory, in 64KiB
	// pages. Zero means wazero's own default.
	MaxMemoryPages uint32
	Logger         *zap.Logger
}

// Runtime owns the wazero runtime instance and every compiled module
// registered against it. Closing it releases the compiler's native code
// cache and any instantiated modules.
type Runtime struct {
	wr     wazero.Runtime
	cfg    *Config
	mu     sync.Mutex
	mods   map[string]wazero.CompiledModule
	logger *zap.Logger
}

// NewRuntime constructs a wazero runtime under cfg. A nil Logger is
// replaced with zap.NewNop().
func NewRuntime(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	ctx := context.Background()
	rtCfg := wazero.NewRuntimeConfig()
	if !cfg.EnableJIT {
		rtCfg = wazero.NewRuntimeConfigInterpreter()
	}
	if cfg.MaxMemoryPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(cfg.MaxMemoryPages)
	}
	wr := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{wr: wr, cfg: cfg, mods: make(map[string]wazero.CompiledModule), logger: logger}, nil
}

// Close releases the underlying wazero runtime and every compiled module.
func (r *Runtime) Close() error {
	return r.wr.Close(context.Background())
}

// registerModule compiles wasmBytes under name and records the result,
// replacing any module previously compiled under that name. Instances are
// later created from the compiled module without recompiling it.
func (r *Runtime) registerModule(ctx context.Context, name string, wasmBytes []byte) (wazero.CompiledModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mod, err := r.wr.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile udf %q: %w", name, err)
	}
	r.mods[name] = mod
	return mod, nil
}

// UDFRegistryConfig configures a Registry.
type UDFRegistryConfig struct {
	Runtime         *Runtime
	DefaultPoolSize int
	EnableStats     bool
	Logger          *zap.Logger
}

// udfEntry is one registered user function: its compiled module plus a pool
// of ready instances, capped by the registry's DefaultPoolSize.
type udfEntry struct {
	name   string
	module wazero.CompiledModule
	mu     sync.Mutex
	pool   []api.Module
}

// Registry maps toolkit function names, as they appear in a primitive's
// ConfigExpressions, to compiled WASM modules and manages a small instance
// pool per function so concurrent evaluations do not serialize on a single
// module instance.
type Registry struct {
	runtime *Runtime
	poolCap int
	stats   bool
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]*udfEntry

	evalCount uint64
}

// NewUDFRegistry builds a Registry bound to cfg.Runtime.
func NewUDFRegistry(cfg *UDFRegistryConfig) (*Registry, error) {
	if cfg == nil || cfg.Runtime == nil {
		return nil, fmt.Errorf("sandbox: UDFRegistryConfig.Runtime is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poolSize := cfg.DefaultPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Registry{
		runtime: cfg.Runtime,
		poolCap: poolSize,
		stats:   cfg.EnableStats,
		logger:  logger,
		entries: make(map[string]*udfEntry),
	}, nil
}

// Register compiles and names a WASM module so Call can reach it later by
// name. Re-registering an existing name replaces it.
func (r *Registry) Register(ctx context.Context, name string, wasmBytes []byte) error {
	mod, err := r.runtime.registerModule(ctx, name, wasmBytes)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[name] = &udfEntry{name: name, module: mod}
	r.mu.Unlock()
	return nil
}

// Has reports whether name was registered. Callers use it to check the names
// transform.UnresolvedCallSites returns; the intrinsic evaluator itself
// never consults the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Call invokes the named function's exported "evaluate" entry point with
// args, returning its single int64 result. Instances are pooled per
// function up to poolCap; a Call beyond the pool's warm instances
// instantiates a fresh one and discards it on return rather than blocking.
func (r *Registry) Call(ctx context.Context, name string, args ...int64) (int64, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("sandbox: no registered udf named %q", name)
	}

	inst, fromPool, err := r.acquire(ctx, entry)
	if err != nil {
		return 0, err
	}
	defer r.release(entry, inst, fromPool)

	fn := inst.ExportedFunction("evaluate")
	if fn == nil {
		return 0, fmt.Errorf("sandbox: udf %q exports no \"evaluate\" function", name)
	}
	wasmArgs := make([]uint64, len(args))
	for i, a := range args {
		wasmArgs[i] = api.EncodeI64(a)
	}
	results, err := fn.Call(ctx, wasmArgs...)
	if err != nil {
		return 0, fmt.Errorf("sandbox: udf %q: %w", name, err)
	}
	if r.stats {
		r.mu.Lock()
		r.evalCount++
		r.mu.Unlock()
	}
	if len(results) == 0 {
		return 0, nil
	}
	return api.DecodeI64(results[0]), nil
}

func (r *Registry) acquire(ctx context.Context, entry *udfEntry) (api.Module, bool, error) {
	entry.mu.Lock()
	if len(entry.pool) > 0 {
		inst := entry.pool[len(entry.pool)-1]
		entry.pool = entry.pool[:len(entry.pool)-1]
		entry.mu.Unlock()
		return inst, true, nil
	}
	entry.mu.Unlock()

	cfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("%s-%p", entry.name, &entry))
	inst, err := r.runtime.wr.InstantiateModule(ctx, entry.module, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("sandbox: instantiate udf %q: %w", entry.name, err)
	}
	return inst, false, nil
}

func (r *Registry) release(entry *udfEntry, inst api.Module, fromPool bool) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if len(entry.pool) < r.poolCap {
		entry.pool = append(entry.pool, inst)
		return
	}
	if !fromPool {
		_ = inst.Close(context.Background())
	}
}

// EvalCount returns the number of completed Call invocations, when
// EnableStats was set; zero otherwise.
func (r *Registry) EvalCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evalCount
}
