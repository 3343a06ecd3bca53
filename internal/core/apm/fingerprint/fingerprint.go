// Package fingerprint groups error occurrences by extracting an
// application-frame location from a backtrace and computing message
// similarity between candidates.
package fingerprint

import (
	"fmt"
	"regexp"
	"strings"
)

// libraryMarkers is a fixed blocklist of substrings identifying frames
// that belong to vendored/framework/stdlib code rather than application
// code.
var libraryMarkers = []string{
	"/vendor/",
	"/node_modules/",
	"/gems/",
	"/site-packages/",
	"/.bundle/",
	"/go/pkg/mod/",
	"/usr/lib/",
	"/usr/local/lib/",
	"<internal:",
	"(eval)",
	"(irb)",
	"lib/ruby/",
	"lib/active_record/",
	"lib/active_support/",
	"lib/action_controller/",
	"lib/action_dispatch/",
	"gems/rails",
	"gems/activerecord",
	"gems/actionpack",
	"gems/sidekiq",
}

var methodSuffix = regexp.MustCompile(`:in \x60.*\x27$`)

// Location extracts an application-frame location from a backtrace: the
// first frame that is non-empty and does not match any library marker,
// with its trailing `:in `method'` suffix stripped if present. If every
// frame looks like library code, it falls back to the first frame
// (suffix stripped).
func Location(backtrace []string) string {
	var fallback string
	for i, frame := range backtrace {
		if frame == "" {
			continue
		}
		if i == 0 {
			fallback = stripMethodSuffix(frame)
		}
		if isLibraryFrame(frame) {
			continue
		}
		return stripMethodSuffix(frame)
	}
	return fallback
}

func isLibraryFrame(frame string) bool {
	for _, marker := range libraryMarkers {
		if strings.Contains(frame, marker) {
			return true
		}
	}
	return false
}

func stripMethodSuffix(frame string) string {
	return methodSuffix.ReplaceAllString(frame, "")
}

// LocationFingerprint builds the "{exception_class}:{location}" key used
// to group errors by code location when no caller-supplied fingerprint is
// available.
func LocationFingerprint(exceptionClass string, backtrace []string) string {
	return fmt.Sprintf("%s:%s", exceptionClass, Location(backtrace))
}

// wordPattern splits a message into lower-cased alphanumeric words.
var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

func wordSet(s string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Similarity computes the Jaccard similarity of a and b's lower-cased
// alphanumeric word sets. Two empty sets are defined as identical (1.0);
// exactly one empty set is defined as disjoint (0.0).
func Similarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// SimilarityThreshold is the minimum Jaccard similarity at which two
// error messages are grouped together.
const SimilarityThreshold = 0.50
