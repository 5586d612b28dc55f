package normalize

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// operator glyphs the bank's MathML embeds, mapped to LaTeX commands.
var latexOps = map[string]string{
	"×": `\times`,
	"·": `\cdot`,
	"÷": `\div`,
	"−": `-`,
	"±": `\pm`,
	"≤": `\le`,
	"≥": `\ge`,
	"≠": `\ne`,
	"≈": `\approx`,
	"∞": `\infty`,
	"→": `\to`,
	"°": `^\circ`,
	"π": `\pi`,
	"α": `\alpha`,
	"β": `\beta`,
	"γ": `\gamma`,
	"Δ": `\Delta`,
	"φ": `\varphi`,
	"∈": `\in`,
	"∑": `\sum`,
	"∫": `\int`,
	"√": `\sqrt{}`,
}

// MathMLToLaTeX converts a MathML fragment into linear LaTeX notation.
// It returns an error when the fragment contains no convertible
// structure; callers degrade to the visible text in that case.
func MathMLToLaTeX(fragment string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return "", fmt.Errorf("parse mathml: %w", err)
	}

	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(convertNode(n))
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("mathml fragment yielded no output")
	}
	return out, nil
}

// convertNode renders one MathML node as LaTeX.
func convertNode(n *html.Node) string {
	if n == nil {
		return ""
	}

	switch n.Type {
	case html.TextNode:
		return convertText(n.Data)
	case html.ElementNode:
		// handled below
	default:
		return convertChildren(n)
	}

	switch localName(n.Data) {
	case "math", "mrow", "mstyle", "semantics", "mpadded":
		return convertChildren(n)
	case "mi", "mn", "mtext", "ms":
		return convertText(textContent(n))
	case "mo":
		return convertText(textContent(n))
	case "mfrac":
		a, b := firstTwo(n)
		return fmt.Sprintf(`\frac{%s}{%s}`, convertNode(a), convertNode(b))
	case "msup":
		a, b := firstTwo(n)
		return fmt.Sprintf(`%s^{%s}`, braced(a), convertNode(b))
	case "msub":
		a, b := firstTwo(n)
		return fmt.Sprintf(`%s_{%s}`, braced(a), convertNode(b))
	case "msubsup":
		a, b, c := firstThree(n)
		return fmt.Sprintf(`%s_{%s}^{%s}`, braced(a), convertNode(b), convertNode(c))
	case "msqrt":
		return fmt.Sprintf(`\sqrt{%s}`, convertChildren(n))
	case "mroot":
		a, b := firstTwo(n)
		return fmt.Sprintf(`\sqrt[%s]{%s}`, convertNode(b), convertNode(a))
	case "mfenced":
		open, close := attrOr(n, "open", "("), attrOr(n, "close", ")")
		sep := attrOr(n, "separators", ",")
		var parts []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if s := convertNode(c); s != "" {
				parts = append(parts, s)
			}
		}
		return open + strings.Join(parts, sep) + close
	case "mspace":
		return " "
	case "mtable", "mtr":
		return convertChildren(n)
	case "mtd":
		return convertChildren(n) + " "
	case "annotation", "annotation-xml":
		// MathJax keeps the TeX source here; prefer discarding it over
		// duplicating the converted structure.
		return ""
	default:
		return convertChildren(n)
	}
}

func convertChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(convertNode(c))
	}
	return sb.String()
}

// braced wraps multi-token bases of sub/superscripts.
func braced(n *html.Node) string {
	s := convertNode(n)
	if len([]rune(s)) > 1 && !strings.HasPrefix(s, "{") {
		return "{" + s + "}"
	}
	return s
}

// convertText maps known operator glyphs and passes the rest through.
func convertText(s string) string {
	s = strings.TrimSpace(s)
	var sb strings.Builder
	for _, r := range s {
		if repl, ok := latexOps[string(r)]; ok {
			sb.WriteString(repl)
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// localName strips the mml: prefix some pages carry.
func localName(tag string) string {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

func attrOr(n *html.Node, key, def string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return def
}

func firstTwo(n *html.Node) (*html.Node, *html.Node) {
	var out []*html.Node
	for c := n.FirstChild; c != nil && len(out) < 2; c = c.NextSibling {
		if c.Type == html.ElementNode || (c.Type == html.TextNode && strings.TrimSpace(c.Data) != "") {
			out = append(out, c)
		}
	}
	for len(out) < 2 {
		out = append(out, nil)
	}
	return out[0], out[1]
}

func firstThree(n *html.Node) (*html.Node, *html.Node, *html.Node) {
	var out []*html.Node
	for c := n.FirstChild; c != nil && len(out) < 3; c = c.NextSibling {
		if c.Type == html.ElementNode || (c.Type == html.TextNode && strings.TrimSpace(c.Data) != "") {
			out = append(out, c)
		}
	}
	for len(out) < 3 {
		out = append(out, nil)
	}
	return out[0], out[1], out[2]
}
