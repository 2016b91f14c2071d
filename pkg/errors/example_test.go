// Package errors provides examples of structured error handling in the akera connector.
package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// Example demonstrates basic error creation and details.
func Example() {
	err := errors.New(errors.ErrorTypeConnection, "failed to connect to application server")

	err = err.WithDetail("host", "localhost").
		WithDetail("port", 3000)

	fmt.Println(err.Error())

	// Output:
	// connection: failed to connect to application server
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeConnection, "connection dropped").
		WithDetail("connection", "c-1")

	if errors.IsType(err, errors.ErrorTypeConnection) {
		fmt.Println("This is a connection error")
	}

	if errors.Is(err, io.EOF) {
		fmt.Println("Original error was EOF")
	}

	// Output:
	// This is a connection error
	// Original error was EOF
}

// ExampleErrorType demonstrates the categories used by the connector.
func ExampleErrorType() {
	fmt.Println(errors.New(errors.ErrorTypeTimeout, "timed out waiting for a pooled connection"))
	fmt.Println(errors.Newf(errors.ErrorTypeValidation, "the field %s is not part of the model", "nmae"))
	fmt.Println(errors.New(errors.ErrorTypeNotFound, "no warehouse record found"))

	// Output:
	// timeout: timed out waiting for a pooled connection
	// validation: the field nmae is not part of the model
	// not_found: no warehouse record found
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrorTypeInternal, "nothing"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := errors.New(errors.ErrorTypeValidation, "bad filter")
	outer := errors.Wrap(inner, errors.ErrorTypeQuery, "cannot build select")

	require.NotEmpty(t, inner.Stack)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, errors.IsType(outer, errors.ErrorTypeQuery))
	assert.Equal(t, "query: cannot build select: validation: bad filter", outer.Error())
}

func TestHelpers(t *testing.T) {
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrorTypeNotFound, "x")))
	assert.True(t, errors.IsTimeout(errors.New(errors.ErrorTypeTimeout, "x")))
	assert.True(t, errors.IsValidation(errors.New(errors.ErrorTypeValidation, "x")))
	assert.False(t, errors.IsNotFound(io.EOF))
}

func TestStripStack(t *testing.T) {
	err := errors.New(errors.ErrorTypeNotFound, "missing").WithDetail("id", 7)
	require.NotEmpty(t, err.Stack)

	stripped := errors.StripStack(err)

	var e *errors.Error
	require.True(t, errors.As(stripped, &e))
	assert.Empty(t, e.Stack)
	assert.Equal(t, 7, e.Details["id"])
	assert.Equal(t, err.Error(), stripped.Error())
	assert.NotEmpty(t, err.Stack, "original must keep its stack")

	assert.Equal(t, io.EOF, errors.StripStack(io.EOF))
}
