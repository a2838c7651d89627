package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

type uncaughtPanic struct {
	value interface{}
}

func (p uncaughtPanic) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// FromPanic converts a recovered panic value into an Error with the stack of
// the panicking goroutine. Skip controls how many frames are dropped, 0 being
// the caller of FromPanic.
func FromPanic(r interface{}, skip int) *Error {
	if err, ok := r.(error); ok {
		return Wrap(err, 1+skip).WithCode(codes.Internal)
	}
	return Wrap(uncaughtPanic{value: r}, 1+skip).WithCode(codes.Internal)
}
