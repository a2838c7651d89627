package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestGrpcCode(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil), "code should be OK")

	err := fmt.Errorf("test error")
	assert.Equal(t, codes.Unknown, Code(err), "code should be unknown")

	err = WithCode(err, codes.InvalidArgument)
	assert.Equal(t, codes.InvalidArgument, Code(err), "code should be InvalidArgument")

	err = WithCode(err, codes.AlreadyExists)
	assert.Equal(t, codes.AlreadyExists, Code(err), "code should be AlreadyExists")

	err = WrapPrefix(err, "wrapped", 0)
	assert.Equal(t, codes.AlreadyExists, Code(err), "code should still be AlreadyExists")
}

func TestHttpStatusCode(t *testing.T) {
	assert.Equal(t, 200, HTTPStatusCode(nil), "non errors should 200")

	err := fmt.Errorf("test error")
	assert.Equal(t, 500, HTTPStatusCode(err), "should default to 500")

	err = WithCode(err, codes.FailedPrecondition)
	assert.Equal(t, 412, HTTPStatusCode(err), "code should map to 412 http error")

	err = WrapPrefix(err, "wrapped", 0)
	assert.Equal(t, 412, HTTPStatusCode(err), "http status code should survive a prefix")

	assert.Equal(t, 400, HTTPStatusCode(NewC("bad callback", codes.InvalidArgument)))
}

func TestPrefix(t *testing.T) {
	err := fmt.Errorf("test error")
	err = WrapPrefix(err, "wrapped", 0)
	assert.Equal(t, "wrapped: test error", err.Error(), "error should have prefix")
}

func TestPublicMessage(t *testing.T) {
	err := New("test error")
	assert.Equal(t, "test error", err.PublicMessage())

	err = err.WithPublicMessage("public message")
	assert.Equal(t, "public message", err.PublicMessage())
	assert.Equal(t, "public message", PublicMessage(fmt.Errorf("ctx: %w", err)))

	assert.Equal(t, "Internal Server Error", PublicMessage(fmt.Errorf("plain")))
}

func TestWrappedError(t *testing.T) {
	err := NewC("test error", codes.InvalidArgument)
	wrappedErr := fmt.Errorf("%w : wrapped error", err)

	assert.Equal(t, codes.InvalidArgument, Code(wrappedErr))
	assert.Equal(t, 400, HTTPStatusCode(wrappedErr))
}

func TestMark(t *testing.T) {
	err := NewC("test error", codes.InvalidArgument)
	markedErr := Mark(err, 0)

	assert.True(t, Is(markedErr, err), "Marked error should still satisfy Is")
	assert.Equal(t, codes.InvalidArgument, Code(markedErr))
}

func TestMarkDoesNotMutateSentinel(t *testing.T) {
	sentinel := NewC("sentinel", codes.NotFound)
	marked := Mark(sentinel, 0).Append("extra").WithCode(codes.Internal)

	assert.Equal(t, "sentinel", sentinel.Error())
	assert.Equal(t, codes.NotFound, sentinel.Code())
	assert.Equal(t, "sentinel: extra", marked.Error())
	assert.True(t, Is(marked, sentinel))
}

func TestFromPanic(t *testing.T) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = FromPanic(r, 0)
			}
		}()
		panic("boom")
	}()

	require.Error(t, err)
	assert.Equal(t, "panic: boom", err.Error())
	assert.Equal(t, codes.Internal, Code(err))

	var e *Error
	require.True(t, As(err, &e))
	assert.Equal(t, "panic", e.TypeName())
	assert.NotEmpty(t, e.MinimalStack(0, 3))
}

func TestMinimalStack(t *testing.T) {
	err := New("boom")
	stack := err.MinimalStack(0, 2)
	require.Len(t, stack, 2)
	assert.Contains(t, stack[0], "errors_test.go")
	assert.Contains(t, stack[0], "TestMinimalStack")

	assert.Nil(t, err.MinimalStack(len(err.StackFrames()), 5))
}

func TestFuncName(t *testing.T) {
	assert.Equal(t, "(*Handler).Build", funcName("github.com/dpup/userjs.(*Handler).Build"))
	assert.Equal(t, "TestFuncName.func1", funcName("github.com/dpup/userjs/errors.TestFuncName.func1"))
	assert.Equal(t, "main", funcName("main.main"))
}
