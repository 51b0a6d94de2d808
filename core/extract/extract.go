package extract

import (
	"bytes"
	"math"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// Document is one extracted page.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Weights tunes the density heuristic.
type Weights struct {
	// LengthCap is the text length after which the base score grows with
	// the square root of the remainder.
	LengthCap int
	// HeadingWeight, ParagraphWeight and ListWeight are added per contained
	// element of that kind.
	HeadingWeight   float64
	ParagraphWeight float64
	ListWeight      float64
	// DensityScale multiplies the text-to-markup ratio.
	DensityScale float64
	// LinkDensityLimit is the anchor-text ratio above which the score is halved.
	LinkDensityLimit float64
	// MinTextLength is the visible text length below which an element scores 0.
	MinTextLength int
	// GoodScore accepts a semantic container outright.
	GoodScore float64
	// MinScore accepts a generic container.
	MinScore float64
}

// DefaultWeights returns the weights used by [Extract].
func DefaultWeights() Weights {
	return Weights{
		LengthCap:        2000,
		HeadingWeight:    30,
		ParagraphWeight:  20,
		ListWeight:       10,
		DensityScale:     100,
		LinkDensityLimit: 0.4,
		MinTextLength:    50,
		GoodScore:        400,
		MinScore:         150,
	}
}

// Extractor holds the scoring configuration. The zero value is not usable;
// build one with [New].
type Extractor struct {
	weights Weights
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWeights replaces the scoring weights.
func WithWeights(w Weights) Option {
	return func(e *Extractor) {
		e.weights = w
	}
}

// New returns an Extractor using DefaultWeights unless overridden.
func New(opts ...Option) *Extractor {
	e := &Extractor{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New()

// Extract runs the default Extractor.
func Extract(rawHTML, title, url string, allowed TagSet) Document {
	return defaultExtractor.Extract(rawHTML, title, url, allowed)
}

// Extract returns the main content of rawHTML as markdown. An empty title
// falls back to the page's <title>. A nil or empty allowed set means
// DefaultAllowedTags.
func (e *Extractor) Extract(rawHTML, title, url string, allowed TagSet) Document {
	doc := Document{Title: strings.TrimSpace(title), URL: url}

	fragment, pageTitle := e.clean(rawHTML, allowed)
	if doc.Title == "" {
		doc.Title = pageTitle
	}
	if fragment == "" {
		return doc
	}

	markdown, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return doc
	}
	doc.Content = strings.TrimSpace(markdown)
	return doc
}

// ExtractHTML returns the cleaned HTML fragment that Extract converts to
// markdown, or "" when the page has no usable content.
func (e *Extractor) ExtractHTML(rawHTML string, allowed TagSet) string {
	fragment, _ := e.clean(rawHTML, allowed)
	return fragment
}

func (e *Extractor) clean(rawHTML string, allowed TagSet) (string, string) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", ""
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedTags()
	}

	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", ""
	}
	pageTitle := findTitle(root)

	scope := findElement(root, "body")
	if scope == nil {
		scope = root
	}
	removeDiscarded(scope)

	stats := make(map[*html.Node]*nodeStats)
	scopeStats := measure(scope, stats)
	if scopeStats.textLen < e.weights.MinTextLength {
		return "", pageTitle
	}

	chosen := e.choose(scope, stats)
	strip(chosen, allowed)

	var buf bytes.Buffer
	if chosen.Type == html.DocumentNode {
		for c := chosen.FirstChild; c != nil; c = c.NextSibling {
			if err := html.Render(&buf, c); err != nil {
				return "", pageTitle
			}
		}
	} else if err := html.Render(&buf, chosen); err != nil {
		return "", pageTitle
	}
	return buf.String(), pageTitle
}

// choose picks the semantic container when one is good enough, then the best
// generic container, and otherwise the whole scope.
func (e *Extractor) choose(scope *html.Node, stats map[*html.Node]*nodeStats) *html.Node {
	if best, score := e.best(scope, stats, func(n *html.Node) bool {
		return semanticContainers.Has(n.Data)
	}); best != nil && score >= e.weights.GoodScore {
		return best
	}

	if best, score := e.best(scope, stats, func(n *html.Node) bool {
		return genericContainers.Has(n.Data) && hasContentKeyword(n)
	}); best != nil && score >= e.weights.MinScore {
		return best
	}

	if best, score := e.best(scope, stats, func(n *html.Node) bool {
		return genericContainers.Has(n.Data)
	}); best != nil && score >= e.weights.MinScore {
		return best
	}

	return scope
}

// best returns the highest scoring element under scope accepted by match.
// Ties keep the earliest element in document order.
func (e *Extractor) best(scope *html.Node, stats map[*html.Node]*nodeStats, match func(*html.Node) bool) (*html.Node, float64) {
	var bestNode *html.Node
	bestScore := 0.0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if match(c) {
				if score := e.score(stats[c]); score > bestScore {
					bestNode, bestScore = c, score
				}
			}
			walk(c)
		}
	}
	walk(scope)
	return bestNode, bestScore
}

// Score is the density score of an element; exported for tuning and tests.
func (e *Extractor) Score(n *html.Node) float64 {
	stats := make(map[*html.Node]*nodeStats)
	return e.score(measure(n, stats))
}

func (e *Extractor) score(s *nodeStats) float64 {
	w := e.weights
	if s == nil || s.textLen == 0 || s.textLen < w.MinTextLength {
		return 0
	}

	base := float64(min(s.textLen, w.LengthCap))
	if s.textLen > w.LengthCap {
		base += math.Sqrt(float64(s.textLen - w.LengthCap))
	}

	score := base +
		w.HeadingWeight*float64(s.headings) +
		w.ParagraphWeight*float64(s.paragraphs) +
		w.ListWeight*float64(s.lists)

	if s.markupLen > 0 {
		score += float64(s.textLen) / float64(s.markupLen) * w.DensityScale
	}
	if float64(s.anchorLen)/float64(s.textLen) > w.LinkDensityLimit {
		score *= 0.5
	}
	return score
}

// nodeStats accumulates the subtree counts the heuristic needs.
type nodeStats struct {
	textLen    int
	anchorLen  int
	markupLen  int
	headings   int
	paragraphs int
	lists      int
}

// measure fills stats for n and every element below it in one post-order pass.
func measure(n *html.Node, stats map[*html.Node]*nodeStats) *nodeStats {
	s := &nodeStats{}
	switch n.Type {
	case html.TextNode:
		text := collapse(n.Data)
		s.textLen = utf8.RuneCountInString(text)
		s.markupLen = len(n.Data)
		return s
	case html.ElementNode:
		s.markupLen = len(n.Data)*2 + 5
		for _, a := range n.Attr {
			s.markupLen += len(a.Key) + len(a.Val) + 4
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		child := measure(c, stats)
		s.textLen += child.textLen
		s.anchorLen += child.anchorLen
		s.markupLen += child.markupLen
		s.headings += child.headings
		s.paragraphs += child.paragraphs
		s.lists += child.lists
	}

	if n.Type == html.ElementNode {
		switch {
		case n.Data == "a":
			s.anchorLen = s.textLen
		case headingTags.Has(n.Data):
			s.headings++
		case n.Data == "p":
			s.paragraphs++
		case listTags.Has(n.Data):
			s.lists++
		}
		stats[n] = s
	}
	return s
}

// strip unwraps every element below root whose tag is not allowed, keeping
// its children in place. root itself is always kept.
func strip(root *html.Node, allowed TagSet) {
	for c := root.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.ElementNode:
			strip(c, allowed)
			if !allowed.Has(c.Data) {
				unwrap(c)
			}
		case html.CommentNode, html.DoctypeNode:
			root.RemoveChild(c)
		}
		c = next
	}
}

func unwrap(n *html.Node) {
	parent := n.Parent
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

func removeDiscarded(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && discardedTags.Has(c.Data) {
			n.RemoveChild(c)
		} else {
			removeDiscarded(c)
		}
		c = next
	}
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findTitle(root *html.Node) string {
	title := findElement(root, "title")
	if title == nil || title.FirstChild == nil {
		return ""
	}
	return collapse(title.FirstChild.Data)
}

func hasContentKeyword(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		value := strings.ToLower(a.Val)
		for _, keyword := range contentKeywords {
			if strings.Contains(value, keyword) {
				return true
			}
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
