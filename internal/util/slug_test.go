package util

import (
	"context"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{title: "Code of Conduct", want: "code-of-conduct"},
		{title: "  Pool Rules: Hours!  ", want: "pool-rules-hours"},
		{title: "", want: "untitled"},
	}

	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			if got := Slugify(tc.title); got != tc.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestUniqueSlugAppendsCounter(t *testing.T) {
	taken := map[string]bool{"bylaws": true, "bylaws-1": true}
	got, err := UniqueSlug(context.Background(), "Bylaws", func(_ context.Context, s string) (bool, error) {
		return taken[s], nil
	})
	if err != nil {
		t.Fatalf("UniqueSlug() error = %v", err)
	}
	if got != "bylaws-2" {
		t.Fatalf("UniqueSlug() = %q, want bylaws-2", got)
	}
}
