package search

import (
	"testing"

	"homecook/videosearch/internal/catalog"
	"homecook/videosearch/internal/domain"
)

func TestComposeQuery(t *testing.T) {
	vocab := catalog.Default()
	tests := []struct {
		name  string
		tags  []domain.Tag
		tools []domain.Tag
		lang  string
		want  string
	}{
		{
			name:  "english ingredients then tools then keywords",
			tags:  []domain.Tag{"green_pepper", "beef"},
			tools: []domain.Tag{"air_fryer"},
			lang:  "en",
			want:  "green pepper beef air fryer recipe cooking tutorial how to cook",
		},
		{
			name: "localized terms",
			tags: []domain.Tag{"potato"},
			lang: "zh-Hans",
			want: "土豆 " + vocab.CookingKeywords("zh-Hans"),
		},
		{
			name: "unknown language uses generic keywords",
			tags: []domain.Tag{"potato"},
			lang: "xx",
			want: "potato recipe cooking tutorial",
		},
		{
			name: "unknown tag falls back to key",
			tags: []domain.Tag{"dragonfruit"},
			lang: "en",
			want: "dragonfruit recipe cooking tutorial how to cook",
		},
		{
			name: "no tags",
			lang: "en",
			want: "recipe cooking tutorial how to cook",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeQuery(vocab, tt.tags, tt.tools, tt.lang); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
