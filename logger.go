package subsetfa

import u "github.com/araddon/gou"

// Logger is the debug/info/warn/error sink used throughout the builder.
// §9 flags dataux-dataux's style of logging directly against package-level
// globals (u.Infof, u.Warnf, u.Errorf) as a "global mutable default" to
// replace with an injected handle; this interface is that replacement.
// §7's propagation policy — debug granularity for the core loop, error
// only when an invariant is actually violated — is expressed by which
// method each call site reaches for, not by any level filtering here.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// GouLogger forwards to araddon/gou, the logging library used elsewhere in
// the retrieval pack (dataux-dataux). It exists so callers can opt into
// gou's formatting and level handling without the builder itself ever
// touching gou's package-level state directly.
type GouLogger struct{}

func (GouLogger) Debugf(format string, args ...interface{}) { u.Debugf(format, args...) }
func (GouLogger) Infof(format string, args ...interface{})  { u.Infof(format, args...) }
func (GouLogger) Warnf(format string, args ...interface{})  { u.Warnf(format, args...) }
func (GouLogger) Errorf(format string, args ...interface{}) { u.Errorf(format, args...) }

// NopLogger discards everything. It is the Builder default so that
// constructing one without WithLogger never pays gou's setup cost.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{}) {}
func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Warnf(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}
