package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	fn := uint32(7)
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLower,
				Kind:   KindUnsupported,
				Func:   &fn,
				Path:   []string{"block2", "inst5"},
				Detail: "rotl is not supported",
			},
			contains: []string{"[lower]", "unsupported", "function_7", "block2.inst5", "rotl is not supported"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindOutOfRange,
			},
			contains: []string{"[decode]", "out_of_range"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseConfig,
				Kind:   KindInvalidData,
				Detail: "bad settings",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[config]", "invalid_data", "bad settings", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseCache,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhasePatch,
		Kind:  KindUnresolvedRelocation,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhasePatch, Kind: KindUnresolvedRelocation}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseLabel, Kind: KindUnresolvedRelocation}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhasePatch, Kind: KindInternal}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhasePatch, Kind: KindUnresolvedRelocation}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLower, KindUnsupported).
		Func(3).
		Path("block1").
		Value(42).
		Cause(cause).
		Detail("cannot lower %s", "sdiv").
		Build()

	if err.Phase != PhaseLower {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLower)
	}
	if err.Kind != KindUnsupported {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
	}
	if err.Func == nil || *err.Func != 3 {
		t.Errorf("Func = %v, want 3", err.Func)
	}
	if len(err.Path) != 1 || err.Path[0] != "block1" {
		t.Errorf("Path = %v, want [block1]", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "cannot lower sdiv" {
		t.Errorf("Detail = %v, want 'cannot lower sdiv'", err.Detail)
	}
}

func TestDefects(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		defect bool
	}{
		{"unresolved relocation", UnresolvedRelocation(2, 40, "libcall"), true},
		{"malformed label", MalformedLabel(1, 9, "  :JMP(label_)"), true},
		{"internal", Internal(PhaseLower, "slot overflow"), true},
		{"unsupported", Unsupported(PhaseTranslate, "simd"), false},
		{"not found", NotFound(PhaseAssemble, "export", "main"), false},
		{"plain error", errors.New("x"), false},
		{"wrapped defect", Wrap(PhaseAssemble, KindInternal, errors.New("x"), "join"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDefect(tt.err); got != tt.defect {
				t.Errorf("IsDefect() = %v, want %v", got, tt.defect)
			}
		})
	}
}

func TestWithFunc(t *testing.T) {
	err := WithFunc(Unsupported(PhaseLower, "rotr"), 5)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.Func == nil || *e.Func != 5 {
		t.Errorf("Func = %v, want 5", e.Func)
	}

	again := WithFunc(err, 9)
	if !errors.As(again, &e) || *e.Func != 5 {
		t.Error("WithFunc should keep an existing function index")
	}

	plain := errors.New("plain")
	if WithFunc(plain, 1) != plain {
		t.Error("WithFunc should not touch foreign errors")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("OutOfRange", func(t *testing.T) {
		err := OutOfRange(PhaseLower, "immediate", int64(1)<<40)
		if err.Kind != KindOutOfRange {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfRange)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := Duplicate(PhaseLabel, "label", 4)
		if err.Kind != KindDuplicate || err.Value != 4 {
			t.Errorf("got %+v", err)
		}
	})

	t.Run("MalformedLabel", func(t *testing.T) {
		err := MalformedLabel(2, 11, "label_x:")
		if err.Phase != PhaseLabel || err.Kind != KindMalformedLabel {
			t.Errorf("got %+v", err)
		}
		if !strings.Contains(err.Error(), "line 11") {
			t.Errorf("message %q should name the line", err.Error())
		}
	})

	t.Run("UnresolvedRelocation", func(t *testing.T) {
		err := UnresolvedRelocation(4, 120, "libcall")
		if err.Value != 120 || *err.Func != 4 {
			t.Errorf("got %+v", err)
		}
	})
}
