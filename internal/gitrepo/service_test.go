package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestVersionMirrorLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.CommitVersion(Version{
		DocumentID:        "doc-1",
		VersionNumber:     1,
		Title:             "Pool rules",
		ChangeDescription: "Initial version",
		IsMajor:           true,
		AuthorName:        "Avery Lee",
		Content:           "# Pool\n\nNo glass.\n",
	})
	if err != nil {
		t.Fatalf("CommitVersion(1) error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1", ".git")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	if _, err := svc.CommitVersion(Version{
		DocumentID:    "doc-1",
		VersionNumber: 2,
		AuthorName:    "Avery Lee",
		Content:       "# Pool\n\nNo glass.\nNo diving.\n",
	}); err != nil {
		t.Fatalf("CommitVersion(2) error = %v", err)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Message, "Version 2") {
		t.Fatalf("expected newest commit first, got %q", history[0].Message)
	}
	if history[1].Author != "Avery Lee" {
		t.Fatalf("unexpected author %q", history[1].Author)
	}

	got, err := svc.ContentAt("doc-1", 1)
	if err != nil {
		t.Fatalf("ContentAt(1) error = %v", err)
	}
	if got != "# Pool\n\nNo glass.\n" {
		t.Fatalf("unexpected version 1 content: %q", got)
	}

	if err := svc.MarkPublished("doc-1", 2, "Board President"); err != nil {
		t.Fatalf("MarkPublished() error = %v", err)
	}
	if err := svc.MarkPublished("doc-1", 2, "Board President"); err != nil {
		t.Fatalf("MarkPublished() second call error = %v", err)
	}
}

func TestUnchangedContentStillCommits(t *testing.T) {
	svc := New(t.TempDir())
	for n := 1; n <= 2; n++ {
		if _, err := svc.CommitVersion(Version{DocumentID: "doc", VersionNumber: n, AuthorName: "A", Content: "same"}); err != nil {
			t.Fatalf("CommitVersion(%d) error = %v", n, err)
		}
	}
	history, err := svc.History("doc", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
}

func TestMissingRepository(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("nope", 5); !errors.Is(err, ErrNoRepository) {
		t.Fatalf("expected ErrNoRepository, got %v", err)
	}
}

func TestConcurrentCommitsSameDocument(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.CommitVersion(Version{DocumentID: "doc-1", VersionNumber: 1, AuthorName: "Avery", Content: "base"}); err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := svc.CommitVersion(Version{
				DocumentID:    "doc-1",
				VersionNumber: idx + 2,
				AuthorName:    "Avery",
				Content:       fmt.Sprintf("content-%02d", idx),
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitVersion() concurrent error = %v", err)
		}
	}

	history, err := svc.History("doc-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits in history, got %d", writers+1, len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := map[string]string{
		"Avery Lee": "Avery.Lee",
		"":          "user",
		"o'neil_b":  "oneil.b",
	}
	for in, want := range cases {
		if got := sanitizeEmail(in); got != want {
			t.Errorf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
