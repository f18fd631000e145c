package compiler

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wasm-zkasm/errors"
)

// Settings control a compilation. They can be loaded from TOML; CLI flags
// override file values.
type Settings struct {
	StartExport   string `toml:"start_export"`
	CacheDir      string `toml:"cache_dir"`
	StackTop      uint64 `toml:"stack_top"`
	HeapBase      uint64 `toml:"heap_base"`
	TableBase     uint64 `toml:"table_base"`
	Jobs          int    `toml:"jobs"`
	Validate      bool   `toml:"validate"`
	EmitProfiling bool   `toml:"emit_profiling"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		StartExport: "main",
		StackTop:    0xffff,
		HeapBase:    0,
		TableBase:   0x10_0000,
		Validate:    true,
	}
}

// LoadSettings reads a TOML file over the defaults. Unknown keys are
// rejected.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Settings{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "read "+path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Settings{}, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(path).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	if err := s.Check(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Check reports settings that cannot produce a working program.
func (s Settings) Check() error {
	switch {
	case s.StackTop == 0:
		return errors.OutOfRange(errors.PhaseConfig, "stack_top", s.StackTop)
	case s.Jobs < 0:
		return errors.OutOfRange(errors.PhaseConfig, "jobs", s.Jobs)
	case s.HeapBase%8 != 0:
		return errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Value(s.HeapBase).
			Detail("heap_base %#x is not word aligned", s.HeapBase).
			Build()
	case s.TableBase%8 != 0:
		return errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Value(s.TableBase).
			Detail("table_base %#x is not word aligned", s.TableBase).
			Build()
	}
	return nil
}

// fingerprint encodes the settings that change emitted function text.
func (s Settings) fingerprint() string {
	return fmt.Sprintf("heap=%d;table=%d;profile=%t", s.HeapBase, s.TableBase, s.EmitProfiling)
}
