package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile  = "document.md"
	metadataFile = "version.json"
	mainBranch   = "main"
)

var ErrNoRepository = errors.New("document has no mirror repository")

// Version is one document version as mirrored into git.
type Version struct {
	DocumentID        string    `json:"document_id"`
	VersionNumber     int       `json:"version_number"`
	Title             string    `json:"title"`
	ChangeDescription string    `json:"change_description"`
	IsMajor           bool      `json:"is_major"`
	AuthorName        string    `json:"author_name"`
	AuthorEmail       string    `json:"author_email"`
	CreatedAt         time.Time `json:"created_at"`
	Content           string    `json:"-"`
}

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Service keeps one git repository per document under baseDir. Every version
// is a commit on main tagged v<N>; publishing adds an annotated tag.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitVersion writes the version's content and metadata and commits them.
// The repository is created on the first call for a document.
func (s *Service) CommitVersion(v Version) (Commit, error) {
	lock := s.documentLock(v.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	repo, fresh, err := s.openOrInit(v.DocumentID)
	if err != nil {
		return Commit{}, err
	}
	if !fresh {
		if err := checkoutMain(repo); err != nil {
			return Commit{}, err
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	meta, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Commit{}, fmt.Errorf("marshal version metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, metadataFile), append(meta, '\n'), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", metadataFile, err)
	}
	if err := os.WriteFile(filepath.Join(root, contentFile), []byte(v.Content), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	for _, name := range []string{metadataFile, contentFile} {
		if _, err := worktree.Add(name); err != nil {
			return Commit{}, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	when := v.CreatedAt
	if when.IsZero() {
		when = time.Now()
	}
	hash, err := worktree.Commit(commitMessage(v), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  v.AuthorName,
			Email: authorEmail(v),
			When:  when,
		},
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit version %d: %w", v.VersionNumber, err)
	}

	if fresh {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
			return Commit{}, fmt.Errorf("set main branch ref: %w", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
			return Commit{}, fmt.Errorf("set HEAD to main: %w", err)
		}
	}

	if _, err := repo.CreateTag(versionTag(v.VersionNumber), hash, nil); err != nil && !errors.Is(err, git.ErrTagExists) {
		return Commit{}, fmt.Errorf("tag version %d: %w", v.VersionNumber, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// MarkPublished adds an annotated tag on the commit of the given version.
func (s *Service) MarkPublished(documentID string, versionNumber int, actor string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(versionTag(versionNumber)))
	if err != nil {
		return fmt.Errorf("resolve version %d: %w", versionNumber, err)
	}

	name := fmt.Sprintf("published-v%d", versionNumber)
	_, err = repo.CreateTag(name, *hash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  actor,
			Email: sanitizeEmail(actor) + "@communitydms.local",
			When:  time.Now(),
		},
		Message: fmt.Sprintf("Published version %d", versionNumber),
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// ContentAt returns the mirrored content of a version.
func (s *Service) ContentAt(documentID string, versionNumber int) (string, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return "", err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(versionTag(versionNumber)))
	if err != nil {
		return "", fmt.Errorf("resolve version %d: %w", versionNumber, err)
	}
	commitObj, err := repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(contentFile)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	return file.Contents()
}

func (s *Service) History(documentID string, limit int) ([]Commit, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", documentID, ErrNoRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(documentID string) (*git.Repository, bool, error) {
	path := s.repoPath(documentID)
	if _, err := os.Stat(path); err == nil {
		repo, err := s.open(documentID)
		return repo, false, err
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("init repo: %w", err)
	}
	return repo, true, nil
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func checkoutMain(repo *git.Repository) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(mainBranch), Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", mainBranch, err)
	}
	return nil
}

func commitMessage(v Version) string {
	subject := strings.TrimSpace(v.ChangeDescription)
	if subject == "" {
		subject = fmt.Sprintf("Version %d", v.VersionNumber)
	}
	kind := "minor"
	if v.IsMajor {
		kind = "major"
	}
	return fmt.Sprintf("%s\n\ndocument: %s\nversion: %d\nchange: %s\n", subject, v.DocumentID, v.VersionNumber, kind)
}

func versionTag(n int) string {
	return fmt.Sprintf("v%d", n)
}

func authorEmail(v Version) string {
	if v.AuthorEmail != "" {
		return v.AuthorEmail
	}
	return sanitizeEmail(v.AuthorName) + "@communitydms.local"
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
