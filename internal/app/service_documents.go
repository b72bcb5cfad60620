package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"communitydms/api/internal/forms"
	"communitydms/api/internal/gitrepo"
	"communitydms/api/internal/markdown"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
	"communitydms/api/internal/util"
)

const (
	NotificationDocumentCreated    = "document_created"
	NotificationReapprovalRequired = "document_reapproval_required"
	NotificationDocumentPublished  = "document_published"
	NotificationApprovalRequested  = "approval_requested"
	NotificationApprovalDecision   = "approval_decision"
	NotificationApprovalCancelled  = "approval_cancelled"
)

var documentSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"title":      true,
	"status":     true,
	"view_count": true,
}

type DocumentQuery struct {
	Status     string
	CategoryID string
	AuthorID   string
	Search     string
	IsPublic   *bool
	SortBy     string
	SortOrder  string
	Page       store.Page
}

type DocumentDetail struct {
	store.Document
	FormFields []store.FormField `json:"form_fields"`
}

type CreateDocumentInput struct {
	Title             string
	CategoryID        string
	ContentMarkdown   string
	ChangeDescription string
	IsPublic          bool
	FormFields        []forms.Spec
}

// UpdateDocumentInput carries a partial update. Nil pointers leave the
// attribute untouched; a non-nil FormFields replaces the whole set.
type UpdateDocumentInput struct {
	Title             *string
	CategoryID        *string
	ContentMarkdown   *string
	IsPublic          *bool
	FormFields        *[]forms.Spec
	ChangeDescription string
	IsMajor           bool
}

type DocumentStatsResult struct {
	store.DocumentStats
	Recent []store.Document `json:"recent_documents"`
}

// visibility is the listing restriction for actor. Roles that may view
// every document get the zero value.
func (s *Service) visibility(actor Actor) store.Visibility {
	if actor.can(rbac.ActionViewAllDocuments) {
		return store.Visibility{}
	}
	return store.Visibility{Restricted: true, ViewerID: actor.UserID}
}

func documentResource(doc store.Document, requiredRole string) rbac.Resource {
	return rbac.Resource{
		AuthorID:             doc.AuthorID,
		IsPublic:             doc.IsPublic,
		Published:            doc.Status.Published(),
		RequiredApprovalRole: rbac.Role(requiredRole),
	}
}

func (s *Service) ListDocuments(ctx context.Context, actor Actor, q DocumentQuery) ([]store.Document, int, error) {
	if q.Status != "" && !store.DocumentStatus(q.Status).Valid() {
		return nil, 0, validationError("Invalid status filter", map[string]any{"status": q.Status})
	}
	sortBy, sortOrder := q.SortBy, strings.ToLower(q.SortOrder)
	if !documentSortFields[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	docs, total, err := s.store.ListDocuments(ctx, store.DocumentFilter{
		Status:     q.Status,
		CategoryID: q.CategoryID,
		AuthorID:   q.AuthorID,
		Search:     strings.TrimSpace(q.Search),
		IsPublic:   q.IsPublic,
		SortBy:     sortBy,
		SortOrder:  sortOrder,
		Visibility: s.visibility(actor),
		Page:       q.Page,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

// GetDocument returns the document with its form fields and counts the view.
func (s *Service) GetDocument(ctx context.Context, actor Actor, documentID string) (DocumentDetail, error) {
	doc, err := s.viewableDocument(ctx, actor, documentID)
	if err != nil {
		return DocumentDetail{}, err
	}
	if err := s.store.IncrementViewCount(ctx, doc.ID); err != nil {
		s.logger.Warn("increment view count failed", "document_id", doc.ID, "error", err)
	} else {
		doc.ViewCount++
	}
	return s.withFields(ctx, doc)
}

func (s *Service) viewableDocument(ctx context.Context, actor Actor, documentID string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, translateStoreError(err, "Document")
	}
	if !rbac.CanPerform(actor.subject(), rbac.ActionView, documentResource(doc, "")) {
		return store.Document{}, authorizationError("Access denied")
	}
	return doc, nil
}

func (s *Service) withFields(ctx context.Context, doc store.Document) (DocumentDetail, error) {
	fields, err := s.store.ListFormFields(ctx, doc.ID)
	if err != nil {
		return DocumentDetail{}, fmt.Errorf("list form fields: %w", err)
	}
	return DocumentDetail{Document: doc, FormFields: fields}, nil
}

func (s *Service) CreateDocument(ctx context.Context, actor Actor, in CreateDocumentInput) (DocumentDetail, error) {
	if !actor.can(rbac.ActionCreateDocument) {
		return DocumentDetail{}, authorizationError("")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return DocumentDetail{}, validationError("Title is required", map[string]any{"title": "required"})
	}
	if in.CategoryID == "" {
		return DocumentDetail{}, validationError("Category is required", map[string]any{"category_id": "required"})
	}
	fields, err := parseFields(in.FormFields)
	if err != nil {
		return DocumentDetail{}, err
	}
	rendered, err := s.markdown.Render(in.ContentMarkdown)
	if err != nil {
		return DocumentDetail{}, fmt.Errorf("render markdown: %w", err)
	}

	now := s.now()
	doc := store.Document{
		ID:                util.NewID("doc"),
		Title:             title,
		CategoryID:        in.CategoryID,
		Status:            store.StatusPending,
		ContentMarkdown:   in.ContentMarkdown,
		ContentHTML:       rendered.HTML,
		Excerpt:           rendered.Excerpt,
		AuthorID:          actor.UserID,
		IsPublic:          in.IsPublic,
		HasFillableFields: len(fields) > 0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	description := strings.TrimSpace(in.ChangeDescription)
	if description == "" {
		description = "Initial version"
	}

	fx := &effects{}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := requireCategory(ctx, tx, doc.CategoryID); err != nil {
			return err
		}
		slug, err := util.UniqueSlug(ctx, title, func(ctx context.Context, candidate string) (bool, error) {
			return tx.DocumentSlugExists(ctx, candidate, "")
		})
		if err != nil {
			return err
		}
		doc.Slug = slug
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return translateStoreError(err, "Document")
		}
		if err := tx.ReplaceFormFields(ctx, doc.ID, fieldRecords(doc.ID, fields)); err != nil {
			return err
		}
		version, err := s.createVersion(ctx, tx, doc, actor, description, true)
		if err != nil {
			return err
		}
		fx.mirror = append(fx.mirror, mirrorVersion(doc, version, actor))

		approvers, err := s.approvers(ctx, tx, doc.CategoryID, actor.UserID)
		if err != nil {
			return err
		}
		for _, u := range approvers {
			fx.notify(u.ID, NotificationDocumentCreated, "New document created",
				fmt.Sprintf("%s created %q", actor.Name, doc.Title),
				map[string]any{"document_id": doc.ID})
		}
		fx.log(actor, "create", "document", doc.ID, doc.ID, map[string]any{"title": doc.Title})
		return nil
	})
	if err != nil {
		return DocumentDetail{}, err
	}

	detail, err := s.documentDetail(ctx, doc.ID)
	if err != nil {
		return DocumentDetail{}, err
	}
	fx.index = append(fx.index, detail.Document)
	s.apply(fx)
	return detail, nil
}

// UpdateDocument applies a partial update. A content change appends a
// version; editing approved or live content sends the document back to
// pending so the new text is reviewed.
func (s *Service) UpdateDocument(ctx context.Context, actor Actor, documentID string, in UpdateDocumentInput) (DocumentDetail, error) {
	var fields []forms.Field
	if in.FormFields != nil {
		parsed, err := parseFields(*in.FormFields)
		if err != nil {
			return DocumentDetail{}, err
		}
		fields = parsed
	}
	var rendered markdown.Rendered
	if in.ContentMarkdown != nil {
		r, err := s.markdown.Render(*in.ContentMarkdown)
		if err != nil {
			return DocumentDetail{}, fmt.Errorf("render markdown: %w", err)
		}
		rendered = r
	}

	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		doc, err := tx.LockDocument(ctx, documentID)
		if err != nil {
			return translateStoreError(err, "Document")
		}
		if !rbac.CanPerform(actor.subject(), rbac.ActionEdit, documentResource(doc, "")) {
			return authorizationError("")
		}
		if doc.Status == store.StatusArchived {
			return conflictError("Archived documents cannot be edited", nil)
		}

		changed := []string{}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return validationError("Title is required", map[string]any{"title": "required"})
			}
			if title != doc.Title {
				slug, err := util.UniqueSlug(ctx, title, func(ctx context.Context, candidate string) (bool, error) {
					return tx.DocumentSlugExists(ctx, candidate, doc.ID)
				})
				if err != nil {
					return err
				}
				doc.Title, doc.Slug = title, slug
				changed = append(changed, "title")
			}
		}
		if in.CategoryID != nil && *in.CategoryID != doc.CategoryID {
			if err := requireCategory(ctx, tx, *in.CategoryID); err != nil {
				return err
			}
			doc.CategoryID = *in.CategoryID
			changed = append(changed, "category_id")
		}
		if in.IsPublic != nil && *in.IsPublic != doc.IsPublic {
			doc.IsPublic = *in.IsPublic
			changed = append(changed, "is_public")
		}
		if in.FormFields != nil {
			if err := tx.ReplaceFormFields(ctx, doc.ID, fieldRecords(doc.ID, fields)); err != nil {
				return err
			}
			doc.HasFillableFields = len(fields) > 0
			changed = append(changed, "form_fields")
		}

		reapproval := false
		if in.ContentMarkdown != nil && *in.ContentMarkdown != doc.ContentMarkdown {
			doc.ContentMarkdown = *in.ContentMarkdown
			doc.ContentHTML = rendered.HTML
			doc.Excerpt = rendered.Excerpt
			description := strings.TrimSpace(in.ChangeDescription)
			if description == "" {
				description = "Content updated"
			}
			version, err := s.createVersion(ctx, tx, doc, actor, description, in.IsMajor)
			if err != nil {
				return err
			}
			fx.mirror = append(fx.mirror, mirrorVersion(doc, version, actor))
			changed = append(changed, "content")

			if doc.Status.Published() {
				doc.Status = store.StatusPending
				doc.ApprovedBy = nil
				doc.ApprovedAt = nil
				reapproval = true
			}
		}

		doc.UpdatedAt = s.now()
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return translateStoreError(err, "Document")
		}

		if reapproval {
			approvers, err := s.approvers(ctx, tx, doc.CategoryID, actor.UserID)
			if err != nil {
				return err
			}
			for _, u := range approvers {
				fx.notify(u.ID, NotificationReapprovalRequired, "Document requires re-approval",
					fmt.Sprintf("%q was edited after approval and needs review again", doc.Title),
					map[string]any{"document_id": doc.ID})
			}
		}
		fx.log(actor, "update", "document", doc.ID, doc.ID, map[string]any{
			"changed":    changed,
			"reapproval": reapproval,
		})
		return nil
	})
	if err != nil {
		return DocumentDetail{}, err
	}

	detail, err := s.documentDetail(ctx, documentID)
	if err != nil {
		return DocumentDetail{}, err
	}
	fx.index = append(fx.index, detail.Document)
	s.apply(fx)
	return detail, nil
}

// ArchiveDocument soft-deletes the document and cancels its pending review.
func (s *Service) ArchiveDocument(ctx context.Context, actor Actor, documentID string) error {
	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		doc, err := tx.LockDocument(ctx, documentID)
		if err != nil {
			return translateStoreError(err, "Document")
		}
		if !rbac.CanPerform(actor.subject(), rbac.ActionArchive, documentResource(doc, "")) {
			return authorizationError("")
		}
		if doc.Status == store.StatusArchived {
			return conflictError("Document is already archived", nil)
		}
		if err := s.cancelPendingRequest(ctx, tx, doc.ID, "Document archived"); err != nil {
			return err
		}

		now := s.now()
		doc.Status = store.StatusArchived
		doc.ArchivedAt = &now
		doc.UpdatedAt = now
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return translateStoreError(err, "Document")
		}
		fx.unindex = append(fx.unindex, doc.ID)
		fx.log(actor, "archive", "document", doc.ID, doc.ID, map[string]any{"title": doc.Title})
		return nil
	})
	if err != nil {
		return err
	}
	s.apply(fx)
	return nil
}

// PublishDocument moves an approved document live.
func (s *Service) PublishDocument(ctx context.Context, actor Actor, documentID string) (DocumentDetail, error) {
	if !actor.can(rbac.ActionPublishDocument) {
		return DocumentDetail{}, authorizationError("")
	}
	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		doc, err := tx.LockDocument(ctx, documentID)
		if err != nil {
			return translateStoreError(err, "Document")
		}
		if doc.Status != store.StatusApproved {
			return conflictError("Only approved documents can be published", map[string]any{"status": doc.Status})
		}
		doc.Status = store.StatusLive
		doc.UpdatedAt = s.now()
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return translateStoreError(err, "Document")
		}

		latest, err := tx.LatestVersion(ctx, doc.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil {
			fx.published = &gitrepo.Version{
				DocumentID:    doc.ID,
				VersionNumber: latest.VersionNumber,
				AuthorName:    actor.Name,
			}
		}
		if doc.AuthorID != actor.UserID {
			fx.notify(doc.AuthorID, NotificationDocumentPublished, "Document published",
				fmt.Sprintf("%q is now live", doc.Title),
				map[string]any{"document_id": doc.ID})
		}
		fx.log(actor, "publish", "document", doc.ID, doc.ID, nil)
		return nil
	})
	if err != nil {
		return DocumentDetail{}, err
	}

	detail, err := s.documentDetail(ctx, documentID)
	if err != nil {
		return DocumentDetail{}, err
	}
	fx.index = append(fx.index, detail.Document)
	s.apply(fx)
	return detail, nil
}

// DocumentStats counts every document for roles that may view all of them
// and only the caller's own documents otherwise.
func (s *Service) DocumentStats(ctx context.Context, actor Actor) (DocumentStatsResult, error) {
	authorID := ""
	if !actor.can(rbac.ActionViewAllDocuments) {
		authorID = actor.UserID
	}
	stats, err := s.store.DocumentStats(ctx, authorID)
	if err != nil {
		return DocumentStatsResult{}, fmt.Errorf("document stats: %w", err)
	}
	recent, _, err := s.store.ListDocuments(ctx, store.DocumentFilter{
		AuthorID:   authorID,
		SortBy:     "updated_at",
		SortOrder:  "desc",
		Visibility: s.visibility(actor),
		Page:       store.Page{Number: 1, Limit: 5},
	})
	if err != nil {
		return DocumentStatsResult{}, fmt.Errorf("recent documents: %w", err)
	}
	return DocumentStatsResult{DocumentStats: stats, Recent: recent}, nil
}

func (s *Service) DocumentActivity(ctx context.Context, actor Actor, documentID string, limit int) ([]store.ActivityEntry, error) {
	if _, err := s.viewableDocument(ctx, actor, documentID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	entries, _, err := s.store.ListActivity(ctx, store.ActivityFilter{
		DocumentID: documentID,
		Page:       store.Page{Number: 1, Limit: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}

func (s *Service) documentDetail(ctx context.Context, documentID string) (DocumentDetail, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return DocumentDetail{}, translateStoreError(err, "Document")
	}
	return s.withFields(ctx, doc)
}

// cancelPendingRequest closes the open review of a document, if any.
func (s *Service) cancelPendingRequest(ctx context.Context, tx store.Store, documentID, reason string) error {
	pending, err := tx.PendingApprovalForDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pending.Status = store.ApprovalCancelled
	pending.ReviewNotes = reason
	pending.UpdatedAt = s.now()
	return tx.UpdateApprovalRequest(ctx, pending)
}

func requireCategory(ctx context.Context, st store.Store, categoryID string) error {
	if _, err := st.GetCategory(ctx, categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validationError("Category does not exist", map[string]any{"category_id": categoryID})
		}
		return err
	}
	return nil
}

func parseFields(specs []forms.Spec) ([]forms.Field, error) {
	fields, err := forms.ParseAll(specs)
	if err != nil {
		return nil, validationError("Invalid form fields: "+err.Error(), nil)
	}
	return fields, nil
}

func fieldRecords(documentID string, fields []forms.Field) []store.FormField {
	out := make([]store.FormField, 0, len(fields))
	for _, f := range fields {
		spec := forms.ToSpec(f)
		out = append(out, store.FormField{
			ID:          util.NewID("fld"),
			DocumentID:  documentID,
			Name:        spec.Name,
			Type:        spec.Type,
			Position:    spec.Position,
			Required:    spec.Required,
			Placeholder: spec.Placeholder,
			Options:     spec.Options,
			Validation:  spec.Validation,
		})
	}
	return out
}

// fieldsFromRecords rebuilds the variants of stored fields. Rows that no
// longer parse are skipped.
func fieldsFromRecords(records []store.FormField) []forms.Field {
	out := make([]forms.Field, 0, len(records))
	for _, r := range records {
		f, err := forms.FromSpec(forms.Spec{
			Name:        r.Name,
			Type:        r.Type,
			Position:    r.Position,
			Required:    r.Required,
			Placeholder: r.Placeholder,
			Options:     r.Options,
			Validation:  r.Validation,
		})
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	forms.Sort(out)
	return out
}
