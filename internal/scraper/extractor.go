package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/utils"
)

var (
	// Header containers carry an id of the form i<GUID>.
	headerIDPattern = regexp.MustCompile(`^i[0-9A-Fa-f]{6,}$`)

	// The check-answer button embeds the form id in its onclick handler.
	formIDPattern = regexp.MustCompile(`checkButtonClick\('([^']+)'\)`)
)

// Extractor locates header/content pairs in a rendered question page.
// Each task is two sibling containers: a header div whose id starts
// with "i" followed by the task GUID, and the nearest following
// div.qblock holding the task body.
type Extractor struct{}

// NewExtractor builds an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

type elementKind int

const (
	kindHeader elementKind = iota
	kindContent
)

type classified struct {
	kind elementKind
	sel  *goquery.Selection
}

// ExtractBlocks scans the page in document order and pairs each header
// marker with the nearest following content container. A header with no
// following content, or content with no preceding header, is logged and
// skipped; neither aborts the page. Zero pairs is a legal result and
// signals an empty page to the caller.
func (e *Extractor) ExtractBlocks(pageHTML string) ([]models.Block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	elems := classifyElements(doc)

	var blocks []models.Block
	var pending *goquery.Selection

	for _, el := range elems {
		switch el.kind {
		case kindHeader:
			if pending != nil {
				id, _ := pending.Attr("id")
				utils.Warnf("header %s has no content block, skipping", id)
			}
			pending = el.sel
		case kindContent:
			if pending == nil {
				utils.Warnf("content block without preceding header, skipping")
				continue
			}
			block, err := buildBlock(pending, el.sel, len(blocks))
			if err != nil {
				utils.Warnf("malformed block pair: %v", err)
			} else {
				blocks = append(blocks, block)
			}
			pending = nil
		}
	}
	if pending != nil {
		id, _ := pending.Attr("id")
		utils.Warnf("trailing header %s has no content block, skipping", id)
	}

	return blocks, nil
}

// classifyElements walks every div once, in document order, tagging
// headers and content containers. goquery's Find preserves document
// order, which is what makes the single-pass pairing sound.
func classifyElements(doc *goquery.Document) []classified {
	var out []classified
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("qblock") {
			out = append(out, classified{kindContent, s})
			return
		}
		if id, ok := s.Attr("id"); ok && headerIDPattern.MatchString(id) {
			out = append(out, classified{kindHeader, s})
		}
	})
	return out
}

// buildBlock assembles one Block from a paired header and content.
func buildBlock(header, content *goquery.Selection, index int) (models.Block, error) {
	id, _ := header.Attr("id")
	guid := strings.TrimPrefix(id, "i")
	if guid == "" {
		return models.Block{}, fmt.Errorf("header at index %d has empty guid", index)
	}

	headerHTML, err := goquery.OuterHtml(header)
	if err != nil {
		return models.Block{}, fmt.Errorf("render header %s: %w", guid, err)
	}
	contentHTML, err := goquery.OuterHtml(content)
	if err != nil {
		return models.Block{}, fmt.Errorf("render content for %s: %w", guid, err)
	}

	return models.Block{
		GUID:        guid,
		TaskID:      strings.TrimSpace(header.Find("span.canselect").First().Text()),
		FormID:      extractFormID(header, content),
		Index:       index,
		HeaderHTML:  headerHTML,
		ContentHTML: contentHTML,
	}, nil
}

// extractFormID pulls the answer-form id out of the check button's
// onclick handler. The button lives in either container depending on
// the task layout.
func extractFormID(header, content *goquery.Selection) string {
	for _, sel := range []*goquery.Selection{header, content} {
		var found string
		sel.Find("[onclick]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			onclick, _ := s.Attr("onclick")
			if m := formIDPattern.FindStringSubmatch(onclick); m != nil {
				found = m[1]
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}
