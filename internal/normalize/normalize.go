// Package normalize turns raw qblock markup into clean text: encoding
// repair, MathML to LaTeX conversion, duplicate-artifact suppression
// and whitespace normalization, in that order.
package normalize

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/utils"
)

// Result is the text/math portion of a problem. Images and metadata are
// filled in by other pipeline stages before final assembly.
type Result struct {
	// Text is the plain task text.
	Text string

	// MathText is the task text with math rendered as LaTeX. Empty
	// when the block contains no math markup.
	MathText string

	// HTML is the sanitized content fragment.
	HTML string

	// Degraded is set when math conversion fell back to visible text
	// for at least one formula.
	Degraded bool
}

// Normalizer applies the normalization pipeline to extracted blocks.
type Normalizer struct {
	similarityThreshold float64
}

// NewNormalizer builds a normalizer. threshold <= 0 selects the default
// near-duplicate cutoff.
func NewNormalizer(threshold float64) *Normalizer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Normalizer{similarityThreshold: threshold}
}

// Normalize produces the text fields for one block. Math conversion
// failures degrade to visible text and never fail the block; the only
// error case is markup the HTML parser cannot read at all.
func (n *Normalizer) Normalize(block models.Block) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(block.ContentHTML))
	if err != nil {
		return Result{}, fmt.Errorf("block %d: parse content: %w", block.Index, err)
	}

	sanitize(doc)

	var res Result
	hasMath := doc.Find("math, mml\\:math").Length() > 0

	if hasMath {
		mathDoc := doc.Selection.Clone()
		degraded := convertMathNodes(mathDoc, block)
		res.MathText = finishText(extractText(mathDoc), n.similarityThreshold)
		res.Degraded = degraded
	}

	// The plain-text field drops math source markup: the rendered
	// visible representation already carries the value.
	doc.Find("math, mml\\:math").Remove()

	res.Text = finishText(extractText(doc.Selection), n.similarityThreshold)
	res.HTML = sanitizedHTML(doc)
	return res, nil
}

// finishText runs the shared tail of the pipeline over extracted text.
func finishText(text string, threshold float64) string {
	text = RepairEncoding(text)
	text = CollapseAdjacentDuplicates(text, threshold)
	return NormalizeWhitespace(text)
}

// sanitize strips interactive and script content the record must not
// carry: answer inputs, submit machinery, inline scripts and styles.
func sanitize(doc *goquery.Document) {
	doc.Find("script, style, input, select, textarea, button").Remove()

	// Rendering artifacts the site leaves next to images.
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, _ := s.Attr("alt"); alt == "undefined" {
			s.Remove()
		}
	})
}

// convertMathNodes replaces each math element with its LaTeX form,
// delimited for downstream typesetting. Returns true when any formula
// fell back to raw visible text.
func convertMathNodes(sel *goquery.Selection, block models.Block) bool {
	degraded := false
	sel.Find("math, mml\\:math").Each(func(_ int, s *goquery.Selection) {
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			degraded = true
			s.ReplaceWithHtml(html.EscapeString(s.Text()))
			return
		}
		latex, err := MathMLToLaTeX(outer)
		if err != nil {
			degraded = true
			utils.Debugf("block %d: math conversion degraded: %v", block.Index, err)
			s.ReplaceWithHtml(html.EscapeString(s.Text()))
			return
		}
		s.ReplaceWithHtml("$" + html.EscapeString(latex) + "$")
	})
	return degraded
}

// extractText flattens markup to text while keeping block-level
// elements on their own lines.
func extractText(sel *goquery.Selection) string {
	var sb strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			writeNodeText(&sb, node)
		}
	})
	return sb.String()
}

var blockTags = map[string]bool{
	"div": true, "p": true, "br": true, "tr": true, "li": true,
	"table": true, "ul": true, "ol": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "blockquote": true,
}

func writeNodeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
	case html.ElementNode:
		if n.Data == "br" {
			sb.WriteByte('\n')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(sb, c)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteByte('\n')
	}
}

// sanitizedHTML renders the cleaned fragment back to markup.
func sanitizedHTML(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() > 0 {
		if inner, err := body.Html(); err == nil {
			return strings.TrimSpace(inner)
		}
	}
	if out, err := doc.Html(); err == nil {
		return strings.TrimSpace(out)
	}
	return ""
}
