package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure.
type Kind string

const (
	KindSymbolNotFound      Kind = "symbol_not_found"
	KindPatternNotFound     Kind = "pattern_not_found"
	KindAmbiguousPattern    Kind = "ambiguous_pattern"
	KindUnsupportedInstr    Kind = "unsupported_instruction_pattern"
	KindMemoryProtection    Kind = "memory_protection"
	KindPhaseOrderViolation Kind = "phase_order_violation"
	KindChainedHook         Kind = "chained_hook"
	KindCallableUnsupported Kind = "callable_unsupported"
	KindModuleNotFound      Kind = "module_not_found"
	KindModuleFailure       Kind = "module_failure"
)

// Phase names the lifecycle step a failure happened in.
type Phase string

const (
	PhaseNone           Phase = ""
	PhaseBindNative     Phase = "bind-native"
	PhaseInstallHooks   Phase = "install-hooks"
	PhaseBindScript     Phase = "bind-script"
	PhaseUnbindScript   Phase = "unbind-script"
	PhaseUninstallHooks Phase = "uninstall-hooks"
	PhaseUnbindNative   Phase = "unbind-native"
	PhaseThink          Phase = "think"
)

// Error is the structured failure used across the framework.
type Error struct {
	Cause  error
	Kind   Kind
	Phase  Phase
	Module string
	Target string
	Detail string
}

var (
	ErrSymbolNotFound      = &Error{Kind: KindSymbolNotFound}
	ErrPatternNotFound     = &Error{Kind: KindPatternNotFound}
	ErrAmbiguousPattern    = &Error{Kind: KindAmbiguousPattern}
	ErrUnsupportedInstr    = &Error{Kind: KindUnsupportedInstr}
	ErrMemoryProtection    = &Error{Kind: KindMemoryProtection}
	ErrPhaseOrderViolation = &Error{Kind: KindPhaseOrderViolation}
	ErrChainedHook         = &Error{Kind: KindChainedHook}
	ErrCallableUnsupported = &Error{Kind: KindCallableUnsupported}
	ErrModuleNotFound      = &Error{Kind: KindModuleNotFound}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Module != "" {
		b.WriteString(e.Module)
		b.WriteByte(' ')
	}
	if e.Phase != PhaseNone {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))
	if e.Target != "" {
		b.WriteString(" at ")
		b.WriteString(e.Target)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New starts an error of the kind.
func New(kind Kind) *Builder {
	return &Builder{err: Error{Kind: kind}}
}

func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

func (b *Builder) Phase(p Phase) *Builder {
	b.err.Phase = p
	return b
}

func (b *Builder) Target(t string) *Builder {
	b.err.Target = t
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable message, formatted when args are given.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// KindOf extracts the Kind of the first *Error in the chain, KindModuleFailure for foreign errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindModuleFailure
}

// TargetOf extracts the Target of the first *Error in the chain that has one.
func TargetOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Target != "" {
			return e.Target
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// At annotates err with module and phase, keeping its Kind and Target. Nil stays nil.
func At(module string, phase Phase, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:   KindOf(err),
		Phase:  phase,
		Module: module,
		Target: TargetOf(err),
		Cause:  err,
	}
}
