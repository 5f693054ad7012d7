package fastimport

import "fmt"

// Fault is the engine's panic payload for Fatal-to-process conditions: a
// second fast-import start, a failed write to a child's stdin, a mark-space
// invariant violation. A typed throw/catch idiom is used instead of plain
// errors here since these conditions are meant to unwind past whatever call
// depth they occur at without every intermediate frame threading an error
// return.
type Fault struct {
	Class   string
	Message string
}

func (f *Fault) Error() string {
	return f.Message
}

// Throw builds a Fault. Call sites that mean to abort immediately wrap
// this in panic(); call sites that can report a failure status instead
// just use it as an error value.
func Throw(class string, format string, args ...interface{}) *Fault {
	return &Fault{Class: class, Message: fmt.Sprintf(format, args...)}
}

// Catch recovers a panic if it is a *Fault of the given class, re-panicking
// anything else (including a *Fault of a different class). Intended for use
// in a defer at the boundary that knows how to handle that one class.
func Catch(class string, recovered interface{}) *Fault {
	if recovered == nil {
		return nil
	}
	if f, ok := recovered.(*Fault); ok && f.Class == class {
		return f
	}
	panic(recovered)
}

// CatchAny recovers a panic if it is a *Fault of any of the given classes,
// re-panicking anything else. Used at a boundary that handles several
// classes the same way, e.g. a top-level driver that treats both a
// Fatal-to-process repository error and a malformed-op-stream protocol
// error as "stop and report", without needing to unwind past each other.
func CatchAny(classes []string, recovered interface{}) *Fault {
	if recovered == nil {
		return nil
	}
	if f, ok := recovered.(*Fault); ok {
		for _, class := range classes {
			if f.Class == class {
				return f
			}
		}
	}
	panic(recovered)
}
