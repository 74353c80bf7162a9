package knowledge_test

import (
	"testing"

	"knowbot/src/core/knowledge"
)

func TestNormalize(t *testing.T) {
	n := knowledge.NewNormalizer()

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty input",
			text: "",
			want: "",
		},
		{
			name: "lowercases",
			text: "Quarterly Report",
			want: "quarterly report",
		},
		{
			name: "removes quotes",
			text: `the "best" result`,
			want: "the best result",
		},
		{
			name: "collapses newlines and dashes",
			text: "first line\nsecond - line",
			want: "first line second line",
		},
		{
			name: "collapses whitespace runs",
			text: "too   many    spaces",
			want: "too many spaces",
		},
		{
			name: "trims edge punctuation",
			text: "...headline!!!",
			want: "headline",
		},
		{
			name: "strips boilerplate phrase",
			text: "итоги года. полная версия обзора доступна на нашем портале",
			want: "итоги года",
		},
		{
			name: "replaces angle brackets",
			text: "see > section two",
			want: "see section two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.text)
			if got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeCustomBoilerplate(t *testing.T) {
	n := knowledge.NewNormalizer(knowledge.WithBoilerplate([]string{"visit our site"}))

	got := n.Normalize("summary. visit our site")
	want := "summary"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}
