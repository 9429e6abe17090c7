// Package validation holds the shared struct validator and the fail-fast
// assertions used by constructors.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics if the provided pointer is nil.
// It is for mandatory dependencies wired at startup; a nil here is a programming error.
//
//	validation.AssertNotNil(pool, "database pool")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertNotNilInterface panics if v is nil or an interface holding a nil pointer.
func AssertNotNilInterface(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			panic(fmt.Sprintf("critical error: %s cannot be nil", name))
		}
	}
}

// AssertPositive panics if n is not strictly positive.
func AssertPositive[N ~int | ~int64 | ~uint64](n N, name string) {
	if n <= 0 {
		panic(fmt.Sprintf("critical error: %s must be positive, got %v", name, n))
	}
}
