package app

import (
	"context"
	"errors"
	"fmt"

	"communitydms/api/internal/diff"
	"communitydms/api/internal/gitrepo"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
	"communitydms/api/internal/util"
)

type VersionComparison struct {
	DocumentID  string      `json:"document_id"`
	FromVersion int         `json:"from_version"`
	ToVersion   int         `json:"to_version"`
	Additions   int         `json:"additions"`
	Deletions   int         `json:"deletions"`
	Changes     []diff.Line `json:"changes"`
	Unified     string      `json:"unified"`
}

// createVersion appends the next version of doc. The caller holds the
// document row lock, so max+1 cannot race; the unique index on
// (document_id, version_number) backs that up.
func (s *Service) createVersion(ctx context.Context, tx store.Store, doc store.Document, actor Actor, description string, major bool) (store.DocumentVersion, error) {
	number, previous := 1, ""
	latest, err := tx.LatestVersion(ctx, doc.ID)
	switch {
	case err == nil:
		number, previous = latest.VersionNumber+1, latest.ContentMarkdown
	case !errors.Is(err, store.ErrNotFound):
		return store.DocumentVersion{}, fmt.Errorf("latest version: %w", err)
	}

	version := store.DocumentVersion{
		ID:                util.NewID("ver"),
		DocumentID:        doc.ID,
		VersionNumber:     number,
		ContentMarkdown:   doc.ContentMarkdown,
		ChangeDescription: description,
		Diff:              diff.Lines(previous, doc.ContentMarkdown),
		IsMajor:           major,
		AuthorID:          actor.UserID,
		AuthorName:        actor.Name,
		CreatedAt:         s.now(),
	}
	if err := tx.CreateVersion(ctx, version); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.DocumentVersion{}, conflictError("Concurrent edit detected, please retry", nil)
		}
		return store.DocumentVersion{}, fmt.Errorf("create version: %w", err)
	}
	return version, nil
}

func mirrorVersion(doc store.Document, v store.DocumentVersion, actor Actor) gitrepo.Version {
	return gitrepo.Version{
		DocumentID:        doc.ID,
		VersionNumber:     v.VersionNumber,
		Title:             doc.Title,
		ChangeDescription: v.ChangeDescription,
		IsMajor:           v.IsMajor,
		AuthorName:        actor.Name,
		AuthorEmail:       actor.Email,
		CreatedAt:         v.CreatedAt,
		Content:           v.ContentMarkdown,
	}
}

// ListVersions returns the history newest first.
func (s *Service) ListVersions(ctx context.Context, actor Actor, documentID string) ([]store.DocumentVersion, error) {
	if _, err := s.viewableDocument(ctx, actor, documentID); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

func (s *Service) GetVersion(ctx context.Context, actor Actor, versionID string) (store.DocumentVersion, error) {
	version, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return store.DocumentVersion{}, translateStoreError(err, "Version")
	}
	if _, err := s.viewableDocument(ctx, actor, version.DocumentID); err != nil {
		return store.DocumentVersion{}, err
	}
	return version, nil
}

// CompareVersions diffs two versions of the same document, oldest first
// regardless of argument order.
func (s *Service) CompareVersions(ctx context.Context, actor Actor, fromID, toID string) (VersionComparison, error) {
	from, err := s.GetVersion(ctx, actor, fromID)
	if err != nil {
		return VersionComparison{}, err
	}
	to, err := s.GetVersion(ctx, actor, toID)
	if err != nil {
		return VersionComparison{}, err
	}
	if from.DocumentID != to.DocumentID {
		return VersionComparison{}, validationError("Versions belong to different documents", nil)
	}
	if from.VersionNumber > to.VersionNumber {
		from, to = to, from
	}
	result := diff.Lines(from.ContentMarkdown, to.ContentMarkdown)
	return VersionComparison{
		DocumentID:  from.DocumentID,
		FromVersion: from.VersionNumber,
		ToVersion:   to.VersionNumber,
		Additions:   result.Additions,
		Deletions:   result.Deletions,
		Changes:     result.Lines,
		Unified:     result.Unified(),
	}, nil
}

// RestoreVersion appends a copy of an earlier version's content as the new
// head and sends the document back to pending. History is never rewritten.
func (s *Service) RestoreVersion(ctx context.Context, actor Actor, versionID string) (DocumentDetail, error) {
	target, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return DocumentDetail{}, translateStoreError(err, "Version")
	}
	rendered, err := s.markdown.Render(target.ContentMarkdown)
	if err != nil {
		return DocumentDetail{}, fmt.Errorf("render markdown: %w", err)
	}

	fx := &effects{}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		doc, err := tx.LockDocument(ctx, target.DocumentID)
		if err != nil {
			return translateStoreError(err, "Document")
		}
		if !rbac.CanPerform(actor.subject(), rbac.ActionEdit, documentResource(doc, "")) {
			return authorizationError("")
		}
		if doc.Status == store.StatusArchived {
			return conflictError("Archived documents cannot be restored", nil)
		}
		if err := s.cancelPendingRequest(ctx, tx, doc.ID, fmt.Sprintf("Superseded by restore of version %d", target.VersionNumber)); err != nil {
			return err
		}

		doc.ContentMarkdown = target.ContentMarkdown
		doc.ContentHTML = rendered.HTML
		doc.Excerpt = rendered.Excerpt
		version, err := s.createVersion(ctx, tx, doc, actor, fmt.Sprintf("Restored from version %d", target.VersionNumber), false)
		if err != nil {
			return err
		}
		doc.Status = store.StatusPending
		doc.ApprovedBy = nil
		doc.ApprovedAt = nil
		doc.UpdatedAt = s.now()
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return translateStoreError(err, "Document")
		}

		fx.mirror = append(fx.mirror, mirrorVersion(doc, version, actor))
		fx.log(actor, "restore_version", "document", doc.ID, doc.ID, map[string]any{
			"restored_from": target.VersionNumber,
			"new_version":   version.VersionNumber,
		})
		return nil
	})
	if err != nil {
		return DocumentDetail{}, err
	}

	detail, err := s.documentDetail(ctx, target.DocumentID)
	if err != nil {
		return DocumentDetail{}, err
	}
	fx.index = append(fx.index, detail.Document)
	s.apply(fx)
	return detail, nil
}
