package util

import (
	"context"
	"fmt"

	"github.com/gosimple/slug"
)

const maxSlugLength = 200

// Slugify lowercases and transliterates title into a URL-safe slug.
func Slugify(title string) string {
	s := slug.Make(title)
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	if s == "" {
		s = "untitled"
	}
	return s
}

// UniqueSlug appends -1, -2, ... to the slug of title until exists reports
// the candidate as free.
func UniqueSlug(ctx context.Context, title string, exists func(context.Context, string) (bool, error)) (string, error) {
	base := Slugify(title)
	candidate := base
	for i := 1; ; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
