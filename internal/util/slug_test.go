package util

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "The Peacenet", want: "the-peacenet"},
		{name: "punctuation collapses", in: "Hero's  Journey!!", want: "hero-s-journey"},
		{name: "leading and trailing junk", in: "  --Demo-- ", want: "demo"},
		{name: "digits kept", in: "Area 51", want: "area-51"},
		{name: "empty input", in: "", want: "untitled"},
		{name: "only symbols", in: "!!!", want: "untitled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.in); got != tc.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
