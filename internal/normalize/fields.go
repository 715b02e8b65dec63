package normalize

import (
	"regexp"
	"strings"
)

// Canonical key tables for the numeric facts. Probes run in order; the
// first positive value wins.
var (
	priceKeys = []string{
		"price", "rent", "priceValue", "totalPrice", "coldRent", "totalRent",
		"rentPerMonth", "priceMonthly", "baseRent", "netRent", "grossRent",
		"warmRent", "rentPrice", "monthlyRent", "rentalPrice",
		"miete", "kaltmiete", "warmmiete", "gesamtmiete", "price_text",
	}
	roomKeys = []string{
		"rooms", "numRooms", "numberOfRooms", "roomCount", "bedrooms",
		"livingRooms", "totalRooms", "zimmer", "anzahlZimmer", "roomsNum", "anzZimmer",
	}
	areaKeys = []string{
		"area", "livingSpace", "livingArea", "size", "squareMeters", "floorArea",
		"totalArea", "usableArea", "wohnflaeche", "wohnfläche", "flaeche", "fläche", "qm",
	}

	nestedValueKeys = []string{"value", "amount", "text", "formatted"}
)

// attribute key fragments matched case-insensitively against generic
// attributes arrays ({key|name, value|text} objects).
var (
	priceAttrFragments = []string{"price", "miete", "kaltmiete", "warmmiete"}
	roomAttrFragments  = []string{"zimmer", "rooms"}
	areaAttrFragments  = []string{"wohnfläche", "wohnflaeche", "fläche", "flaeche", "qm", "m²", "m2"}
)

// Free-text fallbacks over title+description.
var (
	priceTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d+)?)\s*€`),
		regexp.MustCompile(`(?i)€\s*(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d+)?)`),
		regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:EUR|Euro)`),
		regexp.MustCompile(`(?i)(?:EUR|Euro)\s*(\d+(?:[.,]\d+)?)`),
		regexp.MustCompile(`(?i)(?:Kaltmiete|Warmmiete):?\s*(\d+(?:[.,]\d+)?)`),
		regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*€\s*(?:/|pro)\s*Monat`),
	}
	roomTextPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:Zimmer|Zi\.|Zi\b|rooms?\b)`)
	areaTextPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:m²|qm|m\^2|Wohnfläche|Wohnflaeche)`)
)

// extractPrice resolves the monthly rent from an item. The prices parsed
// from free text use the thousands-stripping rule, so "1.500 €" is 1500.
func extractPrice(item Item, source, title, description string) float64 {
	if v := probeKeys(item, priceKeys); v > 0 {
		return v
	}
	if source == "immowelt" {
		if v := immoweltPrice(item); v > 0 {
			return v
		}
	}
	if v, ok := toFloat(pickNested(item, append(append([]string{}, priceKeys...), "amount", "value"))); ok && v > 0 {
		return v
	}
	if v := probeAttributes(item, priceAttrFragments); v > 0 {
		return v
	}
	text := title + " " + description
	for _, pat := range priceTextPatterns {
		if m := pat.FindStringSubmatch(text); m != nil {
			if v, ok := parseGermanNumber(m[1]); ok && v > 0 {
				return v
			}
		}
	}
	return 0
}

func extractRooms(item Item, source, title, description string) float64 {
	if v := probeKeys(item, roomKeys); v > 0 {
		return v
	}
	if source == "immowelt" {
		if v := immoweltFact(item, "numberOfRooms", "Zimmer", "Zi.", "nbroom"); v > 0 {
			return v
		}
	}
	if v, ok := toFloat(pickNested(item, roomKeys)); ok && v > 0 {
		return v
	}
	if v := probeAttributes(item, roomAttrFragments); v > 0 {
		return v
	}
	if m := roomTextPattern.FindStringSubmatch(title + " " + description); m != nil {
		if v, ok := parseDecimal(m[1]); ok && v > 0 {
			return v
		}
	}
	return 0
}

func extractArea(item Item, source, title, description string) float64 {
	if v := probeKeys(item, areaKeys); v > 0 {
		return v
	}
	if source == "immowelt" {
		if v := immoweltFact(item, "livingSpace", "m²", "qm", ""); v > 0 {
			return v
		}
		if v := immoweltSurface(item); v > 0 {
			return v
		}
	}
	if v, ok := toFloat(pickNested(item, areaKeys)); ok && v > 0 {
		return v
	}
	if v := probeAttributes(item, areaAttrFragments); v > 0 {
		return v
	}
	if m := areaTextPattern.FindStringSubmatch(title + " " + description); m != nil {
		if v, ok := parseDecimal(m[1]); ok && v > 0 {
			return v
		}
	}
	return 0
}

// probeKeys tries each top-level key in order, coercing scalars directly
// and descending into {value|amount|text|formatted} wrappers.
func probeKeys(item Item, keys []string) float64 {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok && f > 0 {
			return f
		}
		if f, ok := toFloat(pickNested(v, nestedValueKeys)); ok && f > 0 {
			return f
		}
	}
	return 0
}

// probeAttributes scans a generic attributes array of {key|name, value|text}
// objects for a key containing one of the fragments.
func probeAttributes(item Item, fragments []string) float64 {
	attrs, ok := item["attributes"].([]any)
	if !ok {
		return 0
	}
	for _, a := range attrs {
		attr, ok := a.(map[string]any)
		if !ok {
			continue
		}
		key := strings.ToLower(firstString(attr, "key", "name"))
		if key == "" {
			continue
		}
		for _, frag := range fragments {
			if strings.Contains(key, frag) {
				if v, ok := toFloat(firstNonNil(attr["value"], attr["text"])); ok && v > 0 {
					return v
				}
			}
		}
	}
	return 0
}

// --- Immowelt structured blocks (hardFacts / rawData) ---

func immoweltPrice(item Item) float64 {
	hf, _ := item["hardFacts"].(map[string]any)
	if hf != nil {
		if pd, ok := hf["price"].(map[string]any); ok {
			if v, ok := toFloat(pd["value"]); ok && v > 0 {
				return v
			}
			if v, ok := toFloat(pd["formatted"]); ok && v > 0 {
				return v
			}
		}
		if v := immoweltKeyfact(hf, "€"); v > 0 {
			return v
		}
	}
	if rd, ok := item["rawData"].(map[string]any); ok {
		if v, ok := toFloat(rd["price"]); ok && v > 0 {
			return v
		}
	}
	return 0
}

// immoweltFact reads hardFacts.facts[type=factType].splitValue, then the
// keyfacts strings containing either marker, then rawData[rawKey].
func immoweltFact(item Item, factType, marker1, marker2, rawKey string) float64 {
	hf, _ := item["hardFacts"].(map[string]any)
	if hf != nil {
		if facts, ok := hf["facts"].([]any); ok {
			for _, f := range facts {
				fact, ok := f.(map[string]any)
				if !ok || str(fact["type"]) != factType {
					continue
				}
				if v, ok := toFloat(fact["splitValue"]); ok && v > 0 {
					return v
				}
			}
		}
		if v := immoweltKeyfact(hf, marker1); v > 0 {
			return v
		}
		if marker2 != "" {
			if v := immoweltKeyfact(hf, marker2); v > 0 {
				return v
			}
		}
	}
	if rawKey != "" {
		if rd, ok := item["rawData"].(map[string]any); ok {
			if v, ok := toFloat(rd[rawKey]); ok && v > 0 {
				return v
			}
		}
	}
	return 0
}

func immoweltKeyfact(hardFacts map[string]any, marker string) float64 {
	keyfacts, ok := hardFacts["keyfacts"].([]any)
	if !ok {
		return 0
	}
	for _, kf := range keyfacts {
		s, ok := kf.(string)
		if !ok || !strings.Contains(s, marker) {
			continue
		}
		if v, ok := toFloat(s); ok && v > 0 {
			return v
		}
	}
	return 0
}

func immoweltSurface(item Item) float64 {
	rd, ok := item["rawData"].(map[string]any)
	if !ok {
		return 0
	}
	surface, ok := rd["surface"].(map[string]any)
	if !ok {
		return 0
	}
	v, ok := toFloat(surface["main"])
	if !ok || v <= 0 {
		return 0
	}
	return v
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
