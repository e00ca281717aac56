package deal

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record represents a normalized deal scraped from the source site.
// Records are immutable once constructed; only the extractor builds them.
type Record struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Price         *float64   `json:"price,omitempty"`
	PriceText     string     `json:"price_text,omitempty"`
	NextBestPrice *float64   `json:"next_best_price,omitempty"`
	CategorySlug  string     `json:"category_slug,omitempty"`
	Temperature   float64    `json:"temperature"`
	Merchant      string     `json:"merchant,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	VoucherCode   string     `json:"voucher_code,omitempty"`
	PostedAt      *time.Time `json:"posted_at,omitempty"`
	RawHash       string     `json:"raw_hash"`
}

// freeKeywords mark items the site lists as free rather than priced
var freeKeywords = []string{"darm", "free", "bezpłatn"}

// ParsePrice parses a site price string such as "1 299,99 zł" into a number.
// Free-item phrasings parse to 0. Returns nil when the text is absent or unparseable.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}

	clean := strings.ToLower(text)
	clean = strings.ReplaceAll(clean, "zł", "")
	clean = strings.ReplaceAll(clean, " ", "")
	clean = strings.ReplaceAll(clean, " ", "")

	for _, keyword := range freeKeywords {
		if strings.Contains(clean, keyword) {
			zero := 0.0
			return &zero
		}
	}

	// Polish decimal comma; thousands separators are spaces and already stripped
	clean = strings.ReplaceAll(clean, ",", ".")

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	return &value
}

// Fingerprint returns a stable content hash over the delivery-relevant fields,
// used to detect listing changes across re-fetches
func Fingerprint(title, url, priceText string) string {
	h := sha256.Sum256([]byte(title + "|" + url + "|" + priceText))
	return fmt.Sprintf("sha256:%x", h[:16])
}
