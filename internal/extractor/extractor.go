package extractor

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/pepperwatch/helpers"
	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/logger"
)

// Tier identifies which extraction stage produced the result
type Tier string

const (
	// TierStructured means the embedded hydration payload was used
	TierStructured Tier = "structured"
	// TierFallback means the markup selectors were used
	TierFallback Tier = "fallback"
	// TierEmpty means neither stage recovered any deal
	TierEmpty Tier = "empty"
)

// Context carries per-page extraction settings
type Context struct {
	BaseURL      string
	CategorySlug string
}

// Result is the tagged outcome of extracting one page.
// Extraction never fails; malformed input yields an empty result with diagnostics.
type Result struct {
	Deals       []deal.Record
	Tier        Tier
	Diagnostics []string
}

// hydration island marker injected by the site's client-side framework
const threadIslandMarker = "ThreadMainListItemNormalizer"

// Extract turns raw page content into an ordered sequence of deal records.
// The structured hydration payload is preferred; markup selectors are the fallback.
func Extract(page io.Reader, ctx Context) Result {
	log := logger.ForExtractor()

	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		log.Warn().Err(err).Msg("Page is not parseable HTML")
		return Result{Tier: TierEmpty, Diagnostics: []string{fmt.Sprintf("document parse: %v", err)}}
	}

	deals, diags := extractStructured(doc, ctx)
	if len(deals) > 0 {
		log.Debug().Int("count", len(deals)).Msg("Extracted deals from hydration payload")
		return Result{Deals: deals, Tier: TierStructured, Diagnostics: diags}
	}

	fallbackDeals, fallbackDiags := extractFallback(doc, ctx)
	diags = append(diags, fallbackDiags...)
	if len(fallbackDeals) > 0 {
		log.Debug().Int("count", len(fallbackDeals)).Msg("Extracted deals from markup fallback")
		return Result{Deals: fallbackDeals, Tier: TierFallback, Diagnostics: diags}
	}

	return Result{Tier: TierEmpty, Diagnostics: diags}
}

// vueIsland mirrors the data-vue3 attribute payload
type vueIsland struct {
	Props struct {
		Thread *threadData `json:"thread"`
	} `json:"props"`
}

// threadData is the machine-readable deal inside a hydration island
type threadData struct {
	ThreadID      flexString  `json:"threadId"`
	Title         string      `json:"title"`
	TitleSlug     string      `json:"titleSlug"`
	ShareableLink string      `json:"shareableLink"`
	Price         *float64    `json:"price"`
	NextBestPrice *float64    `json:"nextBestPrice"`
	Temperature   flexFloat   `json:"temperature"`
	Status        string      `json:"status"`
	IsExpired     bool        `json:"isExpired"`
	IsArchived    bool        `json:"isArchived"`
	VoucherCode   string      `json:"voucherCode"`
	PublishedAt   string      `json:"publishedAt"`
	Merchant      merchantRef `json:"merchant"`
	MainImage     *mainImage  `json:"mainImage"`
}

type mainImage struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Ext  string `json:"ext"`
}

// extractStructured parses every thread hydration island on the page
func extractStructured(doc *goquery.Document, ctx Context) ([]deal.Record, []string) {
	var deals []deal.Record
	var diags []string

	doc.Find("[data-vue3]").Each(func(_ int, s *goquery.Selection) {
		data, _ := s.Attr("data-vue3")
		if !strings.Contains(data, threadIslandMarker) {
			return
		}

		var island vueIsland
		if err := json.Unmarshal([]byte(data), &island); err != nil {
			diags = append(diags, fmt.Sprintf("hydration island: %v", err))
			return
		}
		if island.Props.Thread == nil {
			return
		}

		if record, ok := recordFromThread(island.Props.Thread, ctx); ok {
			deals = append(deals, record)
		}
	})

	return deals, diags
}

// recordFromThread maps one hydration thread to a deal record.
// Threads without an identity or URL are dropped; other missing fields stay nil.
func recordFromThread(t *threadData, ctx Context) (deal.Record, bool) {
	if t.IsExpired || t.IsArchived {
		return deal.Record{}, false
	}
	switch t.Status {
	case "expired", "archived", "deleted":
		return deal.Record{}, false
	}

	id := string(t.ThreadID)
	if id == "" {
		return deal.Record{}, false
	}

	var dealURL string
	if t.TitleSlug != "" {
		dealURL = ctx.BaseURL + "/promocje/" + t.TitleSlug + "-" + id
	} else {
		dealURL = t.ShareableLink
	}
	if dealURL == "" {
		return deal.Record{}, false
	}

	var priceText string
	if t.Price != nil {
		priceText = strconv.FormatFloat(*t.Price, 'f', -1, 64) + " zł"
	}

	var postedAt *time.Time
	if t.PublishedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, t.PublishedAt); err == nil {
			postedAt = &parsed
		}
	}

	var imageURL string
	if img := t.MainImage; img != nil && img.Path != "" && img.Name != "" {
		imageURL = fmt.Sprintf("https://static.pepper.pl/%s/%s/re/600x600/qt/80/%s.%s",
			img.Path, img.Name, img.Name, img.Ext)
	}

	return deal.Record{
		ID:            id,
		Title:         t.Title,
		URL:           dealURL,
		Price:         t.Price,
		PriceText:     priceText,
		NextBestPrice: t.NextBestPrice,
		CategorySlug:  ctx.CategorySlug,
		Temperature:   float64(t.Temperature),
		Merchant:      t.Merchant.Name,
		ImageURL:      imageURL,
		VoucherCode:   t.VoucherCode,
		PostedAt:      postedAt,
		RawHash:       deal.Fingerprint(t.Title, dealURL, priceText),
	}, true
}

// extractFallback applies the fixed markup-selector rules per listing card
func extractFallback(doc *goquery.Document, ctx Context) ([]deal.Record, []string) {
	var deals []deal.Record
	var diags []string

	doc.Find("article.thread").Each(func(i int, s *goquery.Selection) {
		titleSel := s.Find(".thread-title a").First()
		title := strings.TrimSpace(titleSel.Text())
		href, _ := titleSel.Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || href == "" {
			diags = append(diags, fmt.Sprintf("card %d: no title link", i))
			return
		}

		dealURL := resolveURL(ctx.BaseURL, href)

		priceText := strings.TrimSpace(s.Find(".thread-price").First().Text())
		price := deal.ParsePrice(priceText)

		tempText := strings.TrimSpace(s.Find(".vote-temp").First().Text())
		temperature, _ := strconv.ParseFloat(strings.TrimSuffix(tempText, "°"), 64)

		merchant := strings.TrimSpace(s.Find(".thread-card-merchant").First().Text())
		imageURL, _ := s.Find("img.thread-image").First().Attr("src")

		deals = append(deals, deal.Record{
			ID:           dealIDFromURL(dealURL),
			Title:        title,
			URL:          dealURL,
			Price:        price,
			PriceText:    priceText,
			CategorySlug: ctx.CategorySlug,
			Temperature:  temperature,
			Merchant:     merchant,
			ImageURL:     imageURL,
			RawHash:      deal.Fingerprint(title, dealURL, priceText),
		})
	})

	return deals, diags
}

// dealIDFromURL derives the stable listing ID from a deal URL.
// Listing URLs end in "-<id>"; when the format changes, a URL hash keeps the
// ID stable per URL at the cost of possible duplicates (accepted degraded mode).
func dealIDFromURL(dealURL string) string {
	path := dealURL
	if u, err := url.Parse(dealURL); err == nil && u.Path != "" {
		path = u.Path
	}

	last := helpers.LastSplitPart(path, "-")
	if last != "" && isDigits(last) {
		return last
	}

	h := sha256.Sum256([]byte(dealURL))
	return fmt.Sprintf("url:%x", h[:8])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + href
}
