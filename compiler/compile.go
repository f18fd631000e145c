package compiler

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-zkasm/cache"
	"github.com/wippyai/wasm-zkasm/environ"
	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/isa/zkasm"
	"github.com/wippyai/wasm-zkasm/labels"
	"github.com/wippyai/wasm-zkasm/program"
	"github.com/wippyai/wasm-zkasm/reloc"
)

// Function is the compiled form of one defined function.
type Function struct {
	Name     string
	IR       string
	Lines    []string
	Index    uint32
	BodySize uint32 // wasm bytecode bytes
	TextSize int    // emitted zkASM bytes
	Cached   bool
}

// Result is the output of Compile.
type Result struct {
	Program   *program.Program
	Module    *environ.ModuleInfo
	Functions []Function
	Elapsed   time.Duration
}

// Text returns the assembled program.
func (r *Result) Text() string {
	return r.Program.String()
}

// Compile translates a wasm module to a zkASM program. Function bodies are
// compiled in parallel; the first error cancels the rest and no partial
// program is returned.
func Compile(ctx context.Context, wasmBytes []byte, s Settings) (*Result, error) {
	begin := time.Now()
	if err := s.Check(); err != nil {
		return nil, err
	}
	if s.Validate {
		if err := Validate(ctx, wasmBytes); err != nil {
			return nil, err
		}
	}

	info, _, err := environ.Translate(wasmBytes)
	if err != nil {
		return nil, err
	}

	var dc *cache.DiskCache
	if s.CacheDir != "" {
		if dc, err = cache.Open(s.CacheDir); err != nil {
			return nil, err
		}
	}
	digest := cache.ModuleDigest(wasmBytes)

	jobs := s.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// Each goroutine writes only its own slot.
	funcs := make([]Function, len(info.Bodies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(funcs))))
	for i := range info.Bodies {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			f, err := compileFunction(info, i, s, dc, digest)
			if err != nil {
				return err
			}
			funcs[i] = *f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bodies := make([]program.Function, len(funcs))
	for i, f := range funcs {
		bodies[i] = program.Function{Index: f.Index, Lines: f.Lines}
	}
	prog, err := program.Assemble(info, bodies, program.Options{
		StartExport: s.StartExport,
		StackTop:    s.StackTop,
		HeapBase:    s.HeapBase,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Program: prog, Module: info, Functions: funcs, Elapsed: time.Since(begin)}
	Logger().Info("compiled module",
		zap.String("name", info.Name),
		zap.Int("functions", len(funcs)),
		zap.Int("lines", len(prog.Lines)),
		zap.Uint32("start", prog.Start),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func compileFunction(info *environ.ModuleInfo, defIndex int, s Settings, dc *cache.DiskCache, digest [32]byte) (*Function, error) {
	body := info.Bodies[defIndex]
	idx := body.FuncIndex
	f := &Function{Index: idx, Name: info.FuncName(idx), BodySize: body.Size}

	key := cache.NewKey(digest, idx, s.fingerprint())
	if e, ok, err := dc.Get(key); err != nil {
		// A broken entry is rebuilt and overwritten.
		Logger().Warn("cache read failed", zap.Uint32("func", idx), zap.Error(err))
	} else if ok {
		f.Lines, f.IR, f.Cached = e.Lines, e.IR, true
		f.TextSize = textSize(f.Lines)
		Logger().Debug("cache hit", zap.Uint32("func", idx))
		return f, nil
	}

	fn, err := environ.TranslateFunction(info, defIndex)
	if err != nil {
		return nil, errors.WithFunc(err, idx)
	}
	f.IR = fn.String()

	mach, err := zkasm.Lower(fn, zkasm.Flags{
		HeapBase:      s.HeapBase,
		TableBase:     s.TableBase,
		EmitProfiling: s.EmitProfiling,
	})
	if err != nil {
		return nil, errors.WithFunc(err, idx)
	}
	patched, err := reloc.Patch(FromMachBuffer(idx, mach))
	if err != nil {
		return nil, err
	}
	f.Lines, err = labels.Optimize(idx, patched.Lines)
	if err != nil {
		return nil, err
	}
	f.TextSize = textSize(f.Lines)
	Logger().Debug("lowered function",
		zap.Uint32("func", idx),
		zap.Int("relocs", len(mach.Relocs)),
		zap.Int("traps", len(mach.Traps)),
		zap.Int("lines", len(f.Lines)))

	if err := dc.Put(key, &cache.Entry{Index: idx, Lines: f.Lines, IR: f.IR}); err != nil {
		Logger().Warn("cache write failed", zap.Uint32("func", idx), zap.Error(err))
	}
	return f, nil
}

// FromMachBuffer adapts lowered text to the patcher's input, classifying
// every relocation name.
func FromMachBuffer(index uint32, m *zkasm.MachBufferFinalized) *reloc.CompiledFunction {
	cf := &reloc.CompiledFunction{Index: index, Code: m.Data}
	for _, r := range m.Relocs {
		cf.Relocations = append(cf.Relocations, reloc.Relocation{Offset: r.Offset, Target: reloc.Classify(r.Name)})
	}
	for _, t := range m.Traps {
		cf.Traps = append(cf.Traps, reloc.TrapSite{Offset: t.Offset, Code: t.Code})
	}
	return cf
}

func textSize(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}
