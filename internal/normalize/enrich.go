package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/flatwatch/flatwatch/internal/listing"
)

// FetchPage retrieves the raw HTML of a listing page.
type FetchPage func(ctx context.Context, url string) ([]byte, error)

// Enricher fills missing images and descriptions by fetching the listing
// page itself. Failures are logged and swallowed: enrichment is strictly
// best-effort and never blocks the pipeline.
type Enricher struct {
	Fetch   FetchPage
	Timeout time.Duration
}

// NewEnricher builds an Enricher on a shared HTTP client. timeout bounds
// the whole fetch per listing.
func NewEnricher(client *http.Client, timeout time.Duration) *Enricher {
	return &Enricher{
		Fetch:   httpFetch(client),
		Timeout: timeout,
	}
}

func httpFetch(client *http.Client) FetchPage {
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) flatwatch/1.0")
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	}
}

// Enrich fetches the listing page when images or the description are
// missing and fills whatever the page markup yields.
func (e *Enricher) Enrich(ctx context.Context, l *listing.Listing) {
	if l.URL == "" {
		return
	}
	needImages := len(l.Images) == 0
	needDescription := strings.TrimSpace(l.Description) == ""
	if !needImages && !needDescription {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	body, err := e.Fetch(ctx, l.URL)
	if err != nil {
		log.Printf("[enrich] %s: fetch failed: %v", l.SurrogateID, err)
		return
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		log.Printf("[enrich] %s: parse failed: %v", l.SurrogateID, err)
		return
	}

	page := scrapePage(doc)
	if needImages {
		seen := make(map[string]bool)
		for _, u := range page.images {
			abs := absoluteImageURL(u, l.URL)
			if abs == "" || seen[abs] {
				continue
			}
			seen[abs] = true
			l.Images = append(l.Images, abs)
			if len(l.Images) == listing.MaxImages {
				break
			}
		}
	}
	if needDescription && page.description != "" {
		l.Description = page.description
	}
}

type pageContent struct {
	images      []string
	description string
}

// scrapePage walks the parsed document once, collecting image candidates
// in preference order (og:image variants, twitter:image, then inline img
// tags) and the best available description (JSON-LD, og:description,
// meta description).
func scrapePage(doc *html.Node) pageContent {
	var (
		ogImages    []string
		imgTags     []string
		ldDesc      string
		ogDesc      string
		metaDesc    string
		walk        func(n *html.Node)
		scriptBlobs []string
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop := strings.ToLower(attrVal(n, "property"))
				name := strings.ToLower(attrVal(n, "name"))
				content := strings.TrimSpace(attrVal(n, "content"))
				if content != "" {
					switch {
					case prop == "og:image" || prop == "og:image:secure_url" || name == "twitter:image":
						ogImages = append(ogImages, content)
					case prop == "og:description":
						if ogDesc == "" {
							ogDesc = content
						}
					case name == "description":
						if metaDesc == "" {
							metaDesc = content
						}
					}
				}
			case "img":
				if src := attrVal(n, "src"); src != "" {
					imgTags = append(imgTags, src)
				} else if src := attrVal(n, "data-src"); src != "" {
					imgTags = append(imgTags, src)
				}
			case "script":
				if strings.EqualFold(attrVal(n, "type"), "application/ld+json") && n.FirstChild != nil {
					scriptBlobs = append(scriptBlobs, n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, blob := range scriptBlobs {
		if d := jsonLDDescription(blob); d != "" {
			ldDesc = d
			break
		}
	}

	desc := ldDesc
	if desc == "" {
		desc = ogDesc
	}
	if desc == "" {
		desc = metaDesc
	}
	return pageContent{
		images:      append(ogImages, imgTags...),
		description: desc,
	}
}

func jsonLDDescription(blob string) string {
	var v any
	if err := json.Unmarshal([]byte(blob), &v); err != nil {
		return ""
	}
	return str(pickNested(v, []string{"description"}))
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
