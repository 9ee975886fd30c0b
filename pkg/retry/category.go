package retry

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"streamretry/internal/shared"
)

// Category classifies a failure for retry filtering.
type Category string

// Built-in categories. CategoryError is the root; every other category descends from it.
const (
	CategoryError             Category = "error"
	CategoryRuntime           Category = "runtime"
	CategoryIllegalState      Category = "illegal_state"
	CategoryIllegalArgument   Category = "illegal_argument"
	CategoryIO                Category = "io"
	CategoryTimeout           Category = "timeout"
	CategoryCanceled          Category = "canceled"
	CategoryNotFound          Category = "not_found"
	CategoryConflict          Category = "conflict"
	CategoryDependencyFailure Category = "dependency_failure"
)

// Categorized is implemented by errors that carry their own Category.
type Categorized interface {
	error
	RetryCategory() Category
}

// Taxonomy is an explicit subtype table over categories.
// It is safe for concurrent use; definitions normally happen at start-up.
type Taxonomy struct {
	mu      sync.RWMutex
	parents map[Category]Category
}

// NewTaxonomy returns a taxonomy containing only CategoryError.
func NewTaxonomy() *Taxonomy {
	return &Taxonomy{parents: map[Category]Category{CategoryError: ""}}
}

// DefaultTaxonomy returns a taxonomy with the built-in categories:
//
//	error
//	├── runtime
//	│   ├── illegal_state
//	│   ├── illegal_argument
//	│   └── not_found
//	├── io
//	│   ├── timeout
//	│   └── dependency_failure
//	├── canceled
//	└── conflict
func DefaultTaxonomy() *Taxonomy {
	t := NewTaxonomy()
	t.mustDefine(CategoryRuntime, CategoryError)
	t.mustDefine(CategoryIllegalState, CategoryRuntime)
	t.mustDefine(CategoryIllegalArgument, CategoryRuntime)
	t.mustDefine(CategoryNotFound, CategoryRuntime)
	t.mustDefine(CategoryIO, CategoryError)
	t.mustDefine(CategoryTimeout, CategoryIO)
	t.mustDefine(CategoryDependencyFailure, CategoryIO)
	t.mustDefine(CategoryCanceled, CategoryError)
	t.mustDefine(CategoryConflict, CategoryError)
	return t
}

// Define registers child as a subtype of parent. The parent must already be defined.
// Redefining a category with the same parent is a no-op.
func (t *Taxonomy) Define(child, parent Category) error {
	if child == "" {
		return &ConfigError{Field: "category", Reason: "empty category name"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.parents[parent]; !ok {
		return &ConfigError{Field: "category", Reason: fmt.Sprintf("parent %q of %q is not defined", parent, child)}
	}
	if existing, ok := t.parents[child]; ok {
		if existing == parent {
			return nil
		}
		return &ConfigError{
			Field:  "category",
			Reason: fmt.Sprintf("%q already defined under %q", child, existing),
			Err:    shared.ErrConflict,
		}
	}
	t.parents[child] = parent
	return nil
}

func (t *Taxonomy) mustDefine(child, parent Category) {
	if err := t.Define(child, parent); err != nil {
		panic(err)
	}
}

// Defined reports whether c is part of the taxonomy.
func (t *Taxonomy) Defined(c Category) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.parents[c]
	return ok
}

// IsA reports whether c equals ancestor or descends from it.
// Undefined categories are only related to themselves.
func (t *Taxonomy) IsA(c, ancestor Category) bool {
	if c == ancestor {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for cur, ok := t.parents[c]; ok && cur != ""; cur, ok = t.parents[cur] {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// categorizedError attaches a category to an error without hiding it.
type categorizedError struct {
	err      error
	category Category
}

func (e *categorizedError) Error() string           { return e.err.Error() }
func (e *categorizedError) Unwrap() error           { return e.err }
func (e *categorizedError) RetryCategory() Category { return e.category }

// Mark tags err with category. errors.Is and errors.As still reach err.
func Mark(err error, category Category) error {
	if err == nil {
		return nil
	}
	return &categorizedError{err: err, category: category}
}

// NewFailure returns a new error with the given category and message.
func NewFailure(category Category, msg string) error {
	return Mark(errors.New(msg), category)
}

var kindCategories = map[shared.Kind]Category{
	shared.KindCanceled:          CategoryCanceled,
	shared.KindTimeout:           CategoryTimeout,
	shared.KindNotFound:          CategoryNotFound,
	shared.KindConflict:          CategoryConflict,
	shared.KindIllegalState:      CategoryIllegalState,
	shared.KindIllegalArgument:   CategoryIllegalArgument,
	shared.KindValidation:        CategoryIllegalArgument,
	shared.KindDependencyFailure: CategoryDependencyFailure,
	shared.KindInternal:          CategoryRuntime,
}

// CategoryOf returns the category of err: the outermost Categorized error in the chain,
// else the category mapped from shared.KindOf, else CategoryIO for broken connections,
// else CategoryError.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var c Categorized
	if errors.As(err, &c) {
		return c.RetryCategory()
	}
	if cat, ok := kindCategories[shared.KindOf(err)]; ok {
		return cat
	}
	if isTransport(err) {
		return CategoryIO
	}
	return CategoryError
}

var transportErrnos = []syscall.Errno{
	syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
	syscall.ENETDOWN, syscall.ENETUNREACH, syscall.EPIPE,
	syscall.EHOSTUNREACH, syscall.ETIMEDOUT,
}

// isTransport reports connection-level failures: closed or reset connections,
// unreachable hosts, temporary DNS failures and truncated reads.
func isTransport(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	for _, errno := range transportErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsTemporary
}
