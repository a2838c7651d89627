package errors

import (
	"runtime"
	"strings"
)

// StackFrame is one line of an error's stack trace.
type StackFrame struct {
	File       string
	LineNumber int
	// Function name without its package path, e.g. `(*Handler).Build`.
	Name string
}

func newStackFrame(pc uintptr) StackFrame {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return StackFrame{}
	}
	// Program counters are return addresses, the call is on the line before.
	file, line := fn.FileLine(pc - 1)
	return StackFrame{File: file, LineNumber: line, Name: funcName(fn.Name())}
}

// Strips the package path from a qualified function name, e.g.
// `github.com/dpup/userjs.(*Handler).Build` becomes `(*Handler).Build`.
func funcName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ReplaceAll(name, "·", ".")
}
