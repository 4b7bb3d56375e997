// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"fmt"

	"github.com/samber/oops"
)

// Wrap builds an error from b that reports cause. oops resolves Code to the
// deepest code in a chain, so a cause that already carries a code is folded
// into the message and context instead of being chained; the code set on b
// stays the one callers see. Uncoded causes are wrapped normally and remain
// reachable through errors.Is and errors.As.
func Wrap(b oops.OopsErrorBuilder, cause error, format string, args ...any) error {
	if cause == nil {
		return b.Errorf(format, args...)
	}
	code := Code(cause)
	if code == "" {
		return b.Wrapf(cause, format, args...)
	}

	b = b.With("cause_code", code)
	if oopsErr, ok := oops.AsOops(cause); ok {
		if domain := oopsErr.Domain(); domain != "" {
			b = b.With("cause_domain", domain)
		}
		if hint := oopsErr.Hint(); hint != "" {
			b = b.Hint(hint)
		}
	}
	return b.Errorf("%s: %s", fmt.Sprintf(format, args...), cause.Error())
}
