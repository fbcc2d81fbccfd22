package pubmed

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/helixir/research-feed-service/internal/domain"
)

const (
	// MaxAbstractLength is the longest abstract kept verbatim, in characters.
	MaxAbstractLength = 250

	// truncationMarker replaces the tail of an abstract longer than MaxAbstractLength.
	truncationMarker = "..."
)

var (
	// articleBoundary matches the opening tag of each journal or book record.
	// It does not match the enclosing <PubmedArticleSet>.
	articleBoundary = regexp.MustCompile(`<Pubmed(?:Book)?Article(?:\s[^>]*)?>`)

	pmidPattern = regexp.MustCompile(`<PMID(?:\s[^>]*)?>\s*(\d+)\s*</PMID>`)

	abstractTextPattern = regexp.MustCompile(`(?s)<AbstractText(?:\s[^>]*)?>(.*?)</AbstractText>`)
)

// ExtractAbstracts scans an efetch response and returns the abstract text per
// record id.
//
// The scan is deliberately tolerant: it never fails on missing or unexpected
// tags. Chunks without a PMID are skipped and records with no abstract text are
// left out of the result.
func ExtractAbstracts(raw string) map[domain.RecordID]string {
	abstracts := make(map[domain.RecordID]string)

	for _, chunk := range articleBoundary.Split(raw, -1) {
		m := pmidPattern.FindStringSubmatch(chunk)
		if m == nil {
			continue
		}
		id := m[1]

		var segments []string
		for _, seg := range abstractTextPattern.FindAllStringSubmatch(chunk, -1) {
			text := stripMarkup(seg[1])
			if text != "" {
				segments = append(segments, text)
			}
		}
		if len(segments) == 0 {
			continue
		}

		abstracts[id] = Truncate(strings.Join(segments, " "), MaxAbstractLength)
	}

	return abstracts
}

// Truncate shortens s to at most limit characters. Longer text keeps its first
// limit-3 characters followed by "...".
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	return string([]rune(s)[:keep]) + truncationMarker
}

// stripMarkup drops inline tags such as <i> and <sup>, decodes entities, and
// trims surrounding whitespace.
func stripMarkup(fragment string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; either way keep what was read.
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Keep words on either side of a block-level break apart.
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte(' ')
			}
		}
	}
}
