package retry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamretry/internal/shared"
	"streamretry/pkg/retry"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.Category
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), retry.CategoryError},
		{"marked", retry.NewFailure(retry.CategoryIO, "reset"), retry.CategoryIO},
		{"wrapped mark", fmt.Errorf("fetch: %w", retry.Mark(errors.New("x"), retry.CategoryConflict)), retry.CategoryConflict},
		{"canceled", context.Canceled, retry.CategoryCanceled},
		{"deadline", context.DeadlineExceeded, retry.CategoryTimeout},
		{"shared not found", shared.ErrNotFound, retry.CategoryNotFound},
		{"shared validation", shared.ErrValidation, retry.CategoryIllegalArgument},
		{"shared internal", shared.ErrInternal, retry.CategoryRuntime},
		{"mark wins over kind", retry.Mark(shared.ErrNotFound, retry.CategoryIO), retry.CategoryIO},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), retry.CategoryIO},
		{"connection reset", &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, retry.CategoryIO},
		{"temporary dns", &net.DNSError{Err: "server misbehaving", Name: "inventory", IsTemporary: true}, retry.CategoryIO},
		{"permanent dns", &net.DNSError{Err: "no such host", Name: "inventory", IsNotFound: true}, retry.CategoryError},
		{"net timeout", &net.DNSError{Err: "i/o timeout", Name: "inventory", IsTimeout: true}, retry.CategoryTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.CategoryOf(tt.err))
		})
	}
}

func TestMarkKeepsChain(t *testing.T) {
	base := errors.New("base")
	err := retry.Mark(base, retry.CategoryIO)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "base", err.Error())
	assert.Nil(t, retry.Mark(nil, retry.CategoryIO))
}

func TestTaxonomy(t *testing.T) {
	tax := retry.DefaultTaxonomy()

	assert.True(t, tax.IsA(retry.CategoryTimeout, retry.CategoryIO))
	assert.True(t, tax.IsA(retry.CategoryTimeout, retry.CategoryError))
	assert.True(t, tax.IsA(retry.CategoryIllegalState, retry.CategoryRuntime))
	assert.False(t, tax.IsA(retry.CategoryIO, retry.CategoryTimeout))
	assert.False(t, tax.IsA(retry.CategoryConflict, retry.CategoryRuntime))
	assert.True(t, tax.IsA("custom", "custom"))
	assert.False(t, tax.IsA("custom", retry.CategoryError))

	require.NoError(t, tax.Define("throttled", retry.CategoryIO))
	assert.True(t, tax.Defined("throttled"))
	assert.True(t, tax.IsA("throttled", retry.CategoryError))
	require.NoError(t, tax.Define("throttled", retry.CategoryIO), "same parent is a no-op")

	err := tax.Define("throttled", retry.CategoryRuntime)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = tax.Define("orphan", "missing")
	var cfgErr *retry.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "category", cfgErr.Field)
}

func TestErrorFilter(t *testing.T) {
	illegalState := retry.NewFailure(retry.CategoryIllegalState, "bad state")
	timeout := retry.NewFailure(retry.CategoryTimeout, "slow")
	plain := errors.New("plain")

	tests := []struct {
		name    string
		include []retry.Category
		exclude []retry.Category
		err     error
		want    bool
	}{
		{"empty filter retries everything", nil, nil, plain, true},
		{"nil is never retried", nil, nil, nil, false},
		{"exclude exact", nil, []retry.Category{retry.CategoryIllegalState}, illegalState, false},
		{"exclude by ancestor", nil, []retry.Category{retry.CategoryRuntime}, illegalState, false},
		{"exclude unrelated", nil, []retry.Category{retry.CategoryRuntime}, timeout, true},
		{"include by ancestor", []retry.Category{retry.CategoryIO}, nil, timeout, true},
		{"include miss", []retry.Category{retry.CategoryIO}, nil, illegalState, false},
		{"include root", []retry.Category{retry.CategoryError}, nil, plain, true},
		{
			"exclusion wins over inclusion",
			[]retry.Category{retry.CategoryIllegalState},
			[]retry.Category{retry.CategoryIllegalState},
			illegalState,
			false,
		},
		{
			"exclusion of subtype wins over included parent",
			[]retry.Category{retry.CategoryIO},
			[]retry.Category{retry.CategoryTimeout},
			timeout,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := retry.NewErrorFilter(nil, tt.include, tt.exclude)
			assert.Equal(t, tt.want, f.Test(tt.err))
		})
	}
}

func TestErrorFilterExclusionAlwaysWins(t *testing.T) {
	tax := retry.DefaultTaxonomy()
	all := []retry.Category{
		retry.CategoryError, retry.CategoryRuntime, retry.CategoryIllegalState, retry.CategoryIllegalArgument,
		retry.CategoryIO, retry.CategoryTimeout, retry.CategoryCanceled, retry.CategoryNotFound,
		retry.CategoryConflict, retry.CategoryDependencyFailure,
	}
	for _, c := range all {
		excluded := retry.NewErrorFilter(tax, all, []retry.Category{c})
		assert.False(t, excluded.TestCategory(c), "excluded %s", c)

		open := retry.NewErrorFilter(tax, nil, nil)
		assert.True(t, open.TestCategory(c), "empty include %s", c)
	}
}
