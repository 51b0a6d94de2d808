// Package extract isolates the main content of an HTML page and renders it
// as markdown.
//
// The extractor scores every element of the page body with a content density
// heuristic, picks the best semantic or generic container, strips every tag
// outside an allowed set while keeping its text, and converts what remains
// with html-to-markdown. It performs no I/O and never fails: unparsable or
// content-free pages produce a [Document] with empty Content.
package extract
