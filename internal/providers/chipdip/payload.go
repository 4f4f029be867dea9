package chipdip

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const (
	itemSelector        = ".product-item, .item, tr.with-hover"
	linkSelector        = "a.link, a.item-link, a.product-item-link, a[href^='/product']"
	descriptionSelector = ".product-micro-description, .item-description, .description"
	priceSelector       = ".price, .product-price, .price-main"
	stockSelector       = ".stock, .product-stock, .item__avail"
	brandSelector       = ".brand, .manufacturer, .item__brand"
	mpnSelector         = ".mpn, .article"
)

var (
	stockPattern     = regexp.MustCompile(`(?i)(\d[\d\s\x{00a0}]*)\s*(?:шт|pcs)`)
	articlePrefix    = regexp.MustCompile(`(?i)^арт\.?\s*:?\s*`)
	titleMPNPattern  = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9\-._]{2,}`)
	digitsOnlyString = regexp.MustCompile(`^\d+$`)
)

// Payload is a ChipDip search page.
type Payload struct {
	HTML    string
	BaseURL string
}

func (p Payload) Normalize(conv domain.RateConverter) []domain.CanonicalRow {
	rows := make([]domain.CanonicalRow, 0)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return rows
	}
	base, err := url.Parse(p.BaseURL)
	if err != nil || base.Host == "" {
		base, _ = url.Parse(DefaultEndpoint)
	}

	doc.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		link := item.Find(linkSelector).First()
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		productURL := resolve(base, href)
		title := common.CleanHTMLText(link.Text())
		mpn := itemMPN(item, productURL, title)
		if mpn == "" {
			return
		}
		if title == "" {
			title = mpn
		}

		row := domain.CanonicalRow{
			MPN:              mpn,
			Title:            title,
			Manufacturer:     common.CleanHTMLText(item.Find(brandSelector).First().Text()),
			DescriptionShort: common.Truncate(common.CleanHTMLText(item.Find(descriptionSelector).First().Text()), 200),
			Regions:          domain.Regions(domain.RegionRU),
			Stock:            itemStock(item.Find(stockSelector).First().Text()),
			ImageURL:         itemImage(base, item),
			ProductURL:       productURL,
			PriceBreaks:      []domain.PriceBreak{},
		}
		if price, cur, ok := common.ParseMoney(item.Find(priceSelector).First().Text(), domain.CurrencyRUB); ok && price > 0 {
			row.PriceBreaks = common.PriceBreaks(common.SinglePrice(price, cur), conv)
		}
		common.ApplyMinPrice(&row, conv)
		rows = append(rows, row)
	})
	return rows
}

// itemMPN prefers the article field, then the last URL segment unless it is
// a numeric id, then the first part-number-like token of the title.
func itemMPN(item *goquery.Selection, productURL, title string) string {
	article := common.CleanHTMLText(item.Find(mpnSelector).First().Text())
	article = strings.TrimSpace(articlePrefix.ReplaceAllString(article, ""))
	if article != "" {
		return article
	}
	if parsed, err := url.Parse(productURL); err == nil {
		segment := path.Base(strings.TrimRight(parsed.Path, "/"))
		if segment != "" && segment != "." && segment != "/" && !digitsOnlyString.MatchString(segment) {
			if unescaped, err := url.PathUnescape(segment); err == nil {
				segment = unescaped
			}
			return strings.ToUpper(segment)
		}
	}
	return strings.ToUpper(titleMPNPattern.FindString(title))
}

func itemStock(text string) *int {
	match := stockPattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return nil
	}
	return common.ParseQuantity(match[1])
}

func itemImage(base *url.URL, item *goquery.Selection) string {
	img := item.Find("img").First()
	src, _ := img.Attr("src")
	if strings.TrimSpace(src) == "" || strings.HasPrefix(src, "data:") {
		src, _ = img.Attr("data-src")
	}
	if strings.TrimSpace(src) == "" {
		return ""
	}
	return resolve(base, src)
}

func resolve(base *url.URL, ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}
