package search

import (
	"strings"

	"homecook/videosearch/internal/domain"
)

// ComposeQuery builds the provider search string: localized ingredient terms,
// then localized tool terms, then the language's cooking keywords.
func ComposeQuery(vocab Vocabulary, tags, tools []domain.Tag, lang string) string {
	parts := make([]string, 0, len(tags)+len(tools)+1)
	for _, tag := range tags {
		if term := strings.TrimSpace(vocab.Localize(tag, lang)); term != "" {
			parts = append(parts, term)
		}
	}
	for _, tool := range tools {
		if term := strings.TrimSpace(vocab.Localize(tool, lang)); term != "" {
			parts = append(parts, term)
		}
	}
	if phrase := strings.TrimSpace(vocab.CookingKeywords(lang)); phrase != "" {
		parts = append(parts, phrase)
	}
	return strings.Join(parts, " ")
}
