// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package errutil

import (
	"fmt"

	"github.com/samber/oops"
)

// Code returns the oops error code carried by err, or "" when err has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch c := oopsErr.Code().(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}

// ContextValue returns the value stored under key in err's oops context.
func ContextValue(err error, key string) (any, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil, false
	}
	v, found := oopsErr.Context()[key]
	return v, found
}
