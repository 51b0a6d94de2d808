package extract

import "strings"

// TagSet is a set of lower-case HTML tag names.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet, normalising names to lower case.
func NewTagSet(tags ...string) TagSet {
	set := make(TagSet, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			set[tag] = struct{}{}
		}
	}
	return set
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Names returns the tags in no particular order.
func (s TagSet) Names() []string {
	names := make([]string, 0, len(s))
	for tag := range s {
		names = append(names, tag)
	}
	return names
}

// DefaultAllowedTags keeps structure and code blocks and nothing else.
func DefaultAllowedTags() TagSet {
	return NewTagSet("div", "h1", "h2", "h3", "h4", "h5", "h6", "p", "pre", "code")
}

var (
	semanticContainers = NewTagSet("article", "main", "section")
	genericContainers  = NewTagSet("div", "td", "span", "blockquote")
	headingTags        = NewTagSet("h1", "h2", "h3", "h4", "h5", "h6")
	listTags           = NewTagSet("ul", "ol", "dl")

	// Never content; removed together with their text.
	discardedTags = NewTagSet("script", "style", "noscript", "template", "svg", "iframe", "head")

	contentKeywords = []string{"content", "article", "post", "main", "body", "text", "entry"}
)
