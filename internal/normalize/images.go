package normalize

import (
	"net/url"
	"strings"

	"github.com/flatwatch/flatwatch/internal/listing"
)

var imageContainerKeys = []string{
	"images", "imageUrls", "photos", "gallery", "pictures", "media", "attachments",
}

var imageEntryKeys = []string{"url", "src", "href", "large", "imageUrl", "uri"}

// CollectImages gathers image URLs from an item, resolving protocol- and
// site-relative references against the listing page URL. Order is
// preserved, duplicates dropped, the result capped at listing.MaxImages.
func CollectImages(item Item, pageURL string) []string {
	var raw []string
	for _, k := range imageContainerKeys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		raw = append(raw, imageStrings(v)...)
	}
	// Immowelt nests the photos under gallery.images[].url.
	if g, ok := item["gallery"].(map[string]any); ok {
		raw = append(raw, imageStrings(g["images"])...)
	}

	seen := make(map[string]bool, len(raw))
	var out []string
	for _, u := range raw {
		abs := absoluteImageURL(u, pageURL)
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
		if len(out) == listing.MaxImages {
			break
		}
	}
	return out
}

// imageStrings flattens an image container value into URL strings.
// Containers are either strings, arrays of strings, or arrays of objects
// with one of the imageEntryKeys.
func imageStrings(v any) []string {
	switch c := v.(type) {
	case string:
		if s := strings.TrimSpace(c); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, e := range c {
			switch entry := e.(type) {
			case string:
				if s := strings.TrimSpace(entry); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if s := firstString(entry, imageEntryKeys...); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

// absoluteImageURL normalizes u against the listing page URL:
// "//host/p" inherits the page scheme, "/p" the page scheme and host.
// Relative or unresolvable references are dropped.
func absoluteImageURL(u, pageURL string) string {
	u = strings.TrimSpace(u)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return u
	case strings.HasPrefix(u, "//"):
		scheme := "https"
		if p, err := url.Parse(pageURL); err == nil && p.Scheme != "" {
			scheme = p.Scheme
		}
		return scheme + ":" + u
	case strings.HasPrefix(u, "/"):
		p, err := url.Parse(pageURL)
		if err != nil || p.Host == "" {
			return ""
		}
		scheme := p.Scheme
		if scheme == "" {
			scheme = "https"
		}
		return scheme + "://" + p.Host + u
	}
	return ""
}
