package protocol

import "fmt"

// Severity classifies a Diagnostic per the error-handling taxonomy (spec §7).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Location pinpoints a diagnostic in the original source (spec §4.1).
type Location struct {
	File   string
	Line   int
	Column int
	Offset int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Diagnostic is a non-fatal-by-default note accumulated across the transpile
// pipeline: unmapped built-ins, partial mappings, stripped imports, blocked
// globals, unsupported jump/label translation, and lex/parse errors.
type Diagnostic struct {
	Severity Severity
	Stage    string // "lex", "parse", "resolve", "codegen", "sandbox"
	Message  string
	Location Location
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("[%s] %s (%s): %s", d.Severity, d.Stage, d.Location, d.Message)
}

// Diagnostics is an ordered collection with convenience predicates.
type Diagnostics []Diagnostic

func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (ds *Diagnostics) Add(severity Severity, stage, message string, loc Location) {
	*ds = append(*ds, Diagnostic{Severity: severity, Stage: stage, Message: message, Location: loc})
}

func (ds *Diagnostics) Warn(stage, message string, loc Location) {
	ds.Add(SeverityWarning, stage, message, loc)
}

func (ds *Diagnostics) Err(stage, message string, loc Location) {
	ds.Add(SeverityError, stage, message, loc)
}
