package wikidata

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eamt-tools/entsub/resolve"
)

var (
	descriptorRe = regexp.MustCompile(`(\d+)\s+statements?,\s+(\d+)\s+sitelinks?`)
	// Digit-group separators: "1,234", "1.234", "1'234" and the
	// non-breaking spaces some locales use.
	digitGroupRe = regexp.MustCompile(`(\d)[,.'\x{00A0}\x{202F}](\d{3})`)
)

// ParseSearch extracts candidates from a search results page, in page order.
// Each result row contributes its heading label, the entity ID from the
// heading link and the counts from its descriptor line.
func ParseSearch(r io.Reader) ([]resolve.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var cands []resolve.Candidate
	doc.Find(".mw-search-results .mw-search-result").Each(func(i int, row *goquery.Selection) {
		link := row.Find(".mw-search-result-heading a").First()
		if link.Length() == 0 {
			link = row.Find("a").First()
		}
		if link.Length() == 0 {
			return
		}

		label := link.Find(".wb-itemlink-label").First().Text()
		if strings.TrimSpace(label) == "" {
			label = link.Text()
		}
		href, _ := link.Attr("href")

		statements, sitelinks := ParseDescriptor(row.Find(".mw-search-result-data").First().Text())
		cands = append(cands, resolve.Candidate{
			ID:         entityID(href),
			Label:      strings.TrimSpace(label),
			Statements: statements,
			Sitelinks:  sitelinks,
		})
	})
	return cands, nil
}

// ParseLabel returns the localized title of an entity page, or "" when the
// page has none.
func ParseLabel(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("span.wikibase-title-label").First().Text()), nil
}

// ParseDescriptor reads "<N> statements, <M> sitelinks" from a result's
// descriptor line. Missing or unparsable descriptors count as zero.
func ParseDescriptor(s string) (statements, sitelinks int) {
	for {
		next := digitGroupRe.ReplaceAllString(s, "$1$2")
		if next == s {
			break
		}
		s = next
	}
	m := descriptorRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0
	}
	statements, _ = strconv.Atoi(m[1])
	sitelinks, _ = strconv.Atoi(m[2])
	return statements, sitelinks
}

// entityID takes the last path segment of a result link
// ("/wiki/Q142" -> "Q142").
func entityID(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndexByte(href, '/'); i >= 0 {
		return href[i+1:]
	}
	return href
}
