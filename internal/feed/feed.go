// Package feed turns provider feeds (RSS/Atom news, video channels) into a
// uniform raw-item shape the rest of the pipeline works with.
package feed

import "time"

// Kind is the content type a source produces.
type Kind string

const (
	KindNews  Kind = "news"
	KindVideo Kind = "video"
	KindPaper Kind = "paper"
)

// Source is a declarative descriptor for one upstream feed. Everything the
// normalizer needs to know about a provider lives here as data: no
// URL-sniffing at runtime.
type Source struct {
	Name            string   `yaml:"name"`
	URL             string   `yaml:"url"`
	Kind            Kind     `yaml:"kind"`
	Category        string   `yaml:"category,omitempty"` // fixed category, bypasses classification
	MaxItems        int      `yaml:"max_items,omitempty"`
	ExcludeKeywords []string `yaml:"exclude_keywords,omitempty"`
}

// RawItem is one fetched record before persistence. Normalizer output is
// immutable; later stages copy items when attaching tags or translations.
type RawItem struct {
	Identity    string
	Title       string
	Description string
	Link        string
	Thumbnail   string
	Published   time.Time
	SourceName  string
	Kind        Kind

	// FixedCategory is set when the source descriptor implies the category
	// deterministically; such items never reach the classifier.
	FixedCategory string

	// Tags is the ordered classification result, most relevant first.
	// Empty until the orchestrator runs.
	Tags []string
}
