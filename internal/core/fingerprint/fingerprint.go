// Package fingerprint derives stable identifiers for error classes so that
// many streams failing for the same reason collapse to a single hash.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Options control which parts of a failure participate in the digest.
type Options struct {
	// IncludeLineNumber folds the originating line number into the hash.
	// Disabled by default: line numbers shift on unrelated edits, which
	// would split one error class into many.
	IncludeLineNumber bool
}

// Hash derives a deterministic digest from the class of a failure. Message
// text, ids, timestamps and stack traces never participate, so retries and
// other streams hitting the same code path yield the same hash.
// causeClassName may be empty when the failure has no underlying cause.
func Hash(exceptionClassName, causeClassName, originatingClassName, originatingMethod string) string {
	return HashWithOptions(exceptionClassName, causeClassName, originatingClassName, originatingMethod, 0, Options{})
}

// HashWithOptions is Hash with explicit options. The line number is only
// consulted when opts.IncludeLineNumber is set.
func HashWithOptions(exceptionClassName, causeClassName, originatingClassName, originatingMethod string, lineNumber int, opts Options) string {
	h := sha256.New()
	for _, part := range []string{exceptionClassName, causeClassName, originatingClassName, originatingMethod} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if opts.IncludeLineNumber {
		h.Write([]byte(strconv.Itoa(lineNumber)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
