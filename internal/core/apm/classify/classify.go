// Package classify maps a span's name, kind, and attributes to a coarse
// category used for analytics grouping, and derives a root-span type for
// root spans.
package classify

import "strings"

// Category is a closed set of span categories.
type Category string

const (
	CategoryHTTPServer Category = "http_server"
	CategoryHTTPClient Category = "http_client"
	CategoryDB         Category = "db"
	CategoryView       Category = "view"
	CategorySearch     Category = "search"
	CategoryJob        Category = "job"
	CategoryCommand    Category = "command"
	CategoryInternal   Category = "internal"
)

// RootType is a closed set of root-span types; only roots ever carry one.
type RootType string

const (
	RootTypeWeb     RootType = "web"
	RootTypeJob     RootType = "job"
	RootTypeCommand RootType = "command"
)

// OTLP span kind enum values, matching the OTLP wire representation.
const (
	KindUnspecified = 0
	KindInternal    = 1
	KindServer      = 2
	KindClient      = 3
	KindProducer    = 4
	KindConsumer    = 5
)

// Classify runs a fixed decision table over a span's attributes; the first
// matching rule wins.
func Classify(name string, kind int, attrs map[string]string) Category {
	if dbSystem, hasSystem := attrs["db.system"]; hasSystem || hasAny(attrs, "db.statement") {
		system := strings.ToLower(dbSystem)
		if system == "elasticsearch" || system == "opensearch" {
			return CategorySearch
		}
		return CategoryDB
	}

	if hasAny(attrs, "http.url", "http.method", "url.full", "http.request.method") {
		switch kind {
		case KindClient:
			return CategoryHTTPClient
		case KindServer:
			return CategoryHTTPServer
		}
	}

	lowerName := strings.ToLower(name)
	if hasViewPrefix(name) || containsAny(name, ".erb", ".haml", ".slim", "ActionView") {
		return CategoryView
	}

	if kind == KindProducer || kind == KindConsumer || hasAny(attrs, "messaging.system", "messaging.destination.name") {
		return CategoryJob
	}

	if containsAny(lowerName, "sidekiq", "activejob", "active_job", "perform") {
		return CategoryJob
	}

	if hasCommandPrefix(lowerName) || strings.Contains(lowerName, "rake::task") {
		return CategoryCommand
	}

	return CategoryInternal
}

// RootTypeFor derives the root-span type for a root span's category.
// Non-root spans never carry a root type; callers must only call this for
// spans whose parent is absent.
func RootTypeFor(c Category) (RootType, bool) {
	switch c {
	case CategoryHTTPServer:
		return RootTypeWeb, true
	case CategoryJob:
		return RootTypeJob, true
	case CategoryCommand:
		return RootTypeCommand, true
	default:
		return "", false
	}
}

func hasAny(attrs map[string]string, keys ...string) bool {
	for _, k := range keys {
		if v, ok := attrs[k]; ok && v != "" {
			return true
		}
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasViewPrefix(name string) bool {
	prefixes := []string{"render_template", "render_partial", "render_collection"}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func hasCommandPrefix(lowerName string) bool {
	prefixes := []string{"rake:", "rake ", "thor:", "make:"}
	for _, p := range prefixes {
		if strings.HasPrefix(lowerName, p) {
			return true
		}
	}
	return false
}
