package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		item  Item
		rules Rules
		want  bool
	}{
		{
			name: "no rules passes everything",
			item: Item{Title: "anything", Link: "https://www.youtube.com/watch?v=x"},
			want: true,
		},
		{
			name:  "title regex matches",
			item:  Item{Title: "Official Trailer"},
			rules: Rules{TitleFilter: "^Official"},
			want:  true,
		},
		{
			name:  "title regex no match",
			item:  Item{Title: "Unrelated video"},
			rules: Rules{TitleFilter: "^Official"},
			want:  false,
		},
		{
			name:  "title regex is case insensitive",
			item:  Item{Title: "OFFICIAL teaser"},
			rules: Rules{TitleFilter: "^official"},
			want:  true,
		},
		{
			name:  "invalid regex matches nothing",
			item:  Item{Title: "Official Trailer"},
			rules: Rules{TitleFilter: "(["},
			want:  false,
		},
		{
			name:  "shorts excluded",
			item:  Item{Title: "Quick tip", Link: "https://www.youtube.com/shorts/abc"},
			rules: Rules{ExcludeShorts: true},
			want:  false,
		},
		{
			name:  "shorts allowed when not excluded",
			item:  Item{Title: "Quick tip", Link: "https://www.youtube.com/shorts/abc"},
			rules: Rules{},
			want:  true,
		},
		{
			name:  "regular video passes shorts exclusion",
			item:  Item{Title: "Long form", Link: "https://www.youtube.com/watch?v=abc"},
			rules: Rules{ExcludeShorts: true},
			want:  true,
		},
		{
			name:  "short matching regex still excluded",
			item:  Item{Title: "Official short", Link: "https://www.youtube.com/shorts/abc"},
			rules: Rules{TitleFilter: "^Official", ExcludeShorts: true},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.item, tt.rules)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{pattern: "^Official"},
		{pattern: `live|stream\d+`},
		{pattern: ""},
		{pattern: "([", wantErr: true},
		{pattern: "a{2,1}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRegex(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
		})
	}
}
