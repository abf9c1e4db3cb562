package mailsource

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	inlineSpace = regexp.MustCompile(`[^\S\n]+`)
	anySpace    = regexp.MustCompile(`\s+`)
	invisible   = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{2060}-\x{2064}]+`)
)

// HTMLToText 把 HTML 正文转换为纯文本，块级元素换行
func HTMLToText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, head, meta, link").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := invisible.ReplaceAllString(doc.Text(), "")
	text = inlineSpace.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(anySpace.ReplaceAllString(s, " "))
}
