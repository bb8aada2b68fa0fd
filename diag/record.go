package diag

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type (
	// Record is one diagnostic: what failed, where, and why.
	Record struct {
		Time    time.Time
		Module  string
		Phase   Phase
		Target  string
		Kind    Kind
		Message string
		Err     error
	}
	// Sink receives records. Implementations must be safe for concurrent use.
	Sink interface {
		Report(r Record)
	}
	// SinkFunc adapts a function to Sink.
	SinkFunc func(r Record)
	// Collector keeps every record in memory.
	Collector struct {
		mu      sync.Mutex
		records []Record
	}
	zapSink struct {
		log *zap.Logger
	}
	nopSink struct{}
)

// FromError builds a record from err, taking module, phase and target from the chain when not given.
func FromError(module string, phase Phase, err error) Record {
	r := Record{Time: time.Now(), Module: module, Phase: phase, Err: err, Kind: KindOf(err), Target: TargetOf(err)}
	if err != nil {
		r.Message = err.Error()
	}
	for x := err; x != nil; x = errors.Unwrap(x) {
		if e, ok := x.(*Error); ok {
			if r.Module == "" {
				r.Module = e.Module
			}
			if r.Phase == PhaseNone {
				r.Phase = e.Phase
			}
		}
	}
	return r
}

func (f SinkFunc) Report(r Record) {
	f(r)
}

// Nop discards records.
func Nop() Sink {
	return nopSink{}
}

func (nopSink) Report(Record) {}

// NewZapSink logs records at warn level, or error level for programming errors.
func NewZapSink(log *zap.Logger) Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &zapSink{log: log}
}

func (z *zapSink) Report(r Record) {
	fields := []zap.Field{
		zap.String("module", r.Module),
		zap.String("phase", string(r.Phase)),
		zap.String("kind", string(r.Kind)),
	}
	if r.Target != "" {
		fields = append(fields, zap.String("target", r.Target))
	}
	if r.Err != nil {
		fields = append(fields, zap.Error(r.Err))
	}
	if r.Kind == KindPhaseOrderViolation {
		z.log.Error(r.Message, fields...)
		return
	}
	z.log.Warn(r.Message, fields...)
}

func (c *Collector) Report(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// Records returns a copy of everything reported so far.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := make([]Record, len(c.records))
	copy(v, c.records)
	return v
}

// Of returns the records reported for one module.
func (c *Collector) Of(module string) (v []Record) {
	for _, r := range c.Records() {
		if r.Module == module {
			v = append(v, r)
		}
	}
	return
}

// Reset drops all records.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

// Tee reports to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(r Record) {
		for _, s := range sinks {
			s.Report(r)
		}
	})
}
