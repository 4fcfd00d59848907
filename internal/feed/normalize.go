package feed

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"scidigest/internal/logger"
)

// Normalize converts parsed feed entries into RawItems for one source:
// derives a stable identity per entry, applies the per-source entry cap and
// exclude filter, and skips malformed entries without failing the source.
func Normalize(f *gofeed.Feed, src Source) []RawItem {
	if f == nil || len(f.Items) == 0 {
		return nil
	}

	entries := make([]*gofeed.Item, len(f.Items))
	copy(entries, f.Items)
	sort.SliceStable(entries, func(i, j int) bool {
		return publishedAt(entries[i]).After(publishedAt(entries[j]))
	})

	items := make([]RawItem, 0, len(entries))
	for _, entry := range entries {
		if src.MaxItems > 0 && len(items) >= src.MaxItems {
			break
		}
		if entry == nil || entry.Link == "" || strings.TrimSpace(entry.Title) == "" {
			logger.Debug("skipping malformed entry", "source", src.Name)
			continue
		}

		title := strings.TrimSpace(entry.Title)
		description := StripHTML(entry.Description)

		if containsAny(title+" "+description, src.ExcludeKeywords) {
			continue
		}

		items = append(items, RawItem{
			Identity:      identityFor(entry, src),
			Title:         title,
			Description:   description,
			Link:          entry.Link,
			Thumbnail:     thumbnailFor(entry),
			Published:     publishedAt(entry),
			SourceName:    src.Name,
			Kind:          src.Kind,
			FixedCategory: src.Category,
		})
	}
	return items
}

// identityFor derives the dedup key: the provider entry ID for video feeds
// (YouTube "yt:video:..." GUIDs included), the canonical entry link
// otherwise or when no ID exists.
func identityFor(entry *gofeed.Item, src Source) string {
	if src.Kind == KindVideo && entry.GUID != "" {
		return entry.GUID
	}
	return entry.Link
}

func publishedAt(entry *gofeed.Item) time.Time {
	if entry == nil {
		return time.Time{}
	}
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return time.Now().UTC()
}

func thumbnailFor(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	// media:group/media:thumbnail, the shape YouTube channel feeds use
	if media, ok := entry.Extensions["media"]; ok {
		for _, group := range media["group"] {
			for _, thumb := range group.Children["thumbnail"] {
				if url := thumb.Attrs["url"]; url != "" {
					return url
				}
			}
		}
		for _, thumb := range media["thumbnail"] {
			if url := thumb.Attrs["url"]; url != "" {
				return url
			}
		}
	}
	return ""
}

// StripHTML flattens a feed description to plain text with collapsed
// whitespace. Feed descriptions routinely arrive as HTML fragments.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// containsAny distinguishes phrases and short words so that a keyword like
// "vr" does not match inside "observatory".
func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		// Phrases match as substrings.
		if strings.Contains(k, " ") {
			if strings.Contains(text, k) {
				return true
			}
			continue
		}

		// Short tokens need word boundaries.
		if len(k) <= 3 {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			if re.MatchString(text) {
				return true
			}
			continue
		}

		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
