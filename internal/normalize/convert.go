package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flatwatch/flatwatch/internal/listing"
)

var (
	titleKeys       = []string{"title", "name", "headline", "adTitle"}
	descriptionKeys = []string{"description", "mainDescription", "descriptionNote", "text", "teaser"}
	urlKeys         = []string{"applicationUrl", "adUrl", "detailUrl", "url", "link", "shareLink", "exposeUrl", "canonicalUrl"}
	applicationKeys = []string{"applicationUrl", "applyUrl", "contactUrl"}
	idKeys          = []string{"id", "adId", "listingId", "exposeId", "itemId", "objectId"}
	featureKeys     = []string{"features", "tags", "amenities", "equipment", "ausstattung"}

	cityKeys     = []string{"city", "town", "ort", "locality"}
	districtKeys = []string{"district", "quarter", "stadtteil", "neighborhood", "suburb"}
	streetKeys   = []string{"street", "address", "strasse", "addressLine"}
	postalKeys   = []string{"postalCode", "zipCode", "zip", "plz", "postcode"}
)

// Convert projects one raw provider item into a normalized Listing.
// It returns ok=false when the item carries no meaningful content and
// should be discarded.
func Convert(item Item, source string, q listing.Query) (listing.Listing, bool) {
	title := firstString(item, titleKeys...)
	if title == "" {
		title = str(pickNested(item, titleKeys))
	}
	description := extractDescription(item)

	url := canonicalURL(item, source)
	l := listing.Listing{
		Source:         source,
		Title:          title,
		Description:    description,
		Price:          extractPrice(item, source, title, description),
		Rooms:          extractRooms(item, source, title, description),
		Area:           extractArea(item, source, title, description),
		URL:            url,
		ApplicationURL: firstString(item, applicationKeys...),
		Images:         CollectImages(item, url),
		Features:       collectFeatures(item),
	}
	if l.ApplicationURL == "" {
		l.ApplicationURL = l.URL
	}
	fillAddress(&l, item)
	if l.City == "" {
		l.City = q.City
	}

	providerID := extractID(item)
	l.SurrogateID = listing.SurrogateID(source, l.URL, providerID)
	l.ExternalID = providerID
	if l.ExternalID == "" {
		l.ExternalID = l.SurrogateID
	}

	if raw, err := json.Marshal(item); err == nil {
		l.Raw = raw
	}

	if !l.HasMeaningfulContent() {
		return listing.Listing{}, false
	}
	return l, true
}

func extractDescription(item Item) string {
	if s := firstString(item, descriptionKeys...); s != "" {
		return s
	}
	// Immowelt details nest the prose under sections[].content.
	if sections, ok := item["sections"].([]any); ok {
		var parts []string
		for _, s := range sections {
			sec, ok := s.(map[string]any)
			if !ok {
				continue
			}
			if c := str(sec["content"]); c != "" {
				parts = append(parts, c)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return str(pickNested(item, descriptionKeys))
}

// canonicalURL picks the listing page URL, synthesizing the ImmoScout24
// expose URL from the item id when the payload omits a link.
func canonicalURL(item Item, source string) string {
	if u := firstString(item, urlKeys...); u != "" {
		return u
	}
	if u := str(pickNested(item, urlKeys)); u != "" {
		return u
	}
	if source == "immobilienscout24" {
		if id := extractID(item); id != "" {
			return "https://www.immobilienscout24.de/expose/" + id
		}
	}
	return ""
}

// extractID returns the provider item identifier as a string. Numeric ids
// arrive as JSON floats and are rendered without an exponent or decimals.
func extractID(item Item) string {
	for _, k := range idKeys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		if s := idString(v); s != "" {
			return s
		}
	}
	return ""
}

func idString(v any) string {
	switch n := v.(type) {
	case string:
		return strings.TrimSpace(n)
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%v", n)
	case int:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	}
	return ""
}

func collectFeatures(item Item) []string {
	var out []string
	for _, k := range featureKeys {
		arr, ok := item[k].([]any)
		if !ok {
			continue
		}
		for _, e := range arr {
			switch f := e.(type) {
			case string:
				if s := strings.TrimSpace(f); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if s := firstString(f, "name", "label", "text", "value"); s != "" {
					out = append(out, s)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return out
}

// fillAddress resolves city, district, street and postal code. Flat keys
// win; provider-specific nests (IS24 address blocks, Immowelt
// location.address) are probed afterwards.
func fillAddress(l *listing.Listing, item Item) {
	l.City = firstString(item, cityKeys...)
	l.District = firstString(item, districtKeys...)
	l.PostalCode = firstString(item, postalKeys...)
	if s := itemStr(item, "street"); s != "" {
		l.Street = s
	}

	blocks := []any{item["address"], item["location"]}
	if loc, ok := item["location"].(map[string]any); ok {
		blocks = append(blocks, loc["address"])
	}
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if l.City == "" {
			l.City = firstString(block, cityKeys...)
		}
		if l.District == "" {
			l.District = firstString(block, districtKeys...)
		}
		if l.Street == "" {
			l.Street = firstString(block, "street", "streetName", "strasse")
		}
		if l.PostalCode == "" {
			l.PostalCode = firstString(block, postalKeys...)
		}
	}

	if l.City == "" {
		l.City = str(pickNested(item, cityKeys))
	}
}
