package transform

import "strings"

// Category is the content category that decides which transforms run.
type Category string

const (
	CategoryHTML  Category = "html"
	CategoryOther Category = "other"
)

// Classify maps a Content-Type value to a Category. Anything mentioning
// text/html, in any letter case, is HTML; everything else, including an
// absent header, is other.
func Classify(contentType string) Category {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return CategoryHTML
	}
	return CategoryOther
}
