package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"communitydms/api/internal/email"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
	"communitydms/api/internal/util"
)

var approvalPriorities = map[string]bool{"low": true, "normal": true, "high": true, "urgent": true}

type ApprovalInput struct {
	DocumentID string
	Priority   string
	Notes      string
	DueDate    *time.Time
}

type ReviewInput struct {
	Status store.ApprovalStatus
	Notes  string
}

type ApprovalQuery struct {
	Status     string
	DocumentID string
	Page       store.Page
}

// RequestApproval opens a review of the document's latest version and moves
// the document to under_review.
func (s *Service) RequestApproval(ctx context.Context, actor Actor, in ApprovalInput) (store.ApprovalRequest, error) {
	priority := strings.ToLower(strings.TrimSpace(in.Priority))
	if priority == "" {
		priority = "normal"
	}
	if !approvalPriorities[priority] {
		return store.ApprovalRequest{}, validationError("Priority must be one of low, normal, high, urgent", map[string]any{"priority": in.Priority})
	}
	if in.DocumentID == "" {
		return store.ApprovalRequest{}, validationError("Document is required", map[string]any{"document_id": "required"})
	}

	var request store.ApprovalRequest
	var doc store.Document
	var approvers []store.User
	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		doc, err = tx.LockDocument(ctx, in.DocumentID)
		if err != nil {
			return translateStoreError(err, "Document")
		}
		if !rbac.CanPerform(actor.subject(), rbac.ActionRequestApproval, documentResource(doc, "")) {
			return authorizationError("")
		}
		if _, err := tx.PendingApprovalForDocument(ctx, doc.ID); err == nil {
			return conflictError("Document already has a pending approval request", nil)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if doc.Status != store.StatusPending {
			return conflictError(fmt.Sprintf("Cannot request approval for a document in status %s", doc.Status), map[string]any{"status": doc.Status})
		}

		now := s.now()
		request = store.ApprovalRequest{
			ID:          util.NewID("apr"),
			DocumentID:  doc.ID,
			RequestedBy: actor.UserID,
			Status:      store.ApprovalPending,
			Priority:    priority,
			Notes:       strings.TrimSpace(in.Notes),
			DueDate:     in.DueDate,
			RequestedAt: now,
			UpdatedAt:   now,
		}
		latest, err := tx.LatestVersion(ctx, doc.ID)
		if err == nil {
			request.VersionID = strPtr(latest.ID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.CreateApprovalRequest(ctx, request); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return conflictError("Document already has a pending approval request", nil)
			}
			return translateStoreError(err, "Approval request")
		}

		doc.Status = store.StatusUnderReview
		doc.UpdatedAt = now
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return translateStoreError(err, "Document")
		}

		approvers, err = s.approvers(ctx, tx, doc.CategoryID, actor.UserID)
		if err != nil {
			return err
		}
		for _, u := range approvers {
			fx.notify(u.ID, NotificationApprovalRequested, "Approval requested",
				fmt.Sprintf("%s requested approval of %q", actor.Name, doc.Title),
				map[string]any{"document_id": doc.ID, "approval_id": request.ID, "priority": priority})
		}
		fx.log(actor, "request_approval", "approval_request", request.ID, doc.ID, map[string]any{"priority": priority})
		return nil
	})
	if err != nil {
		return store.ApprovalRequest{}, err
	}

	if len(approvers) > 0 {
		to := make([]string, 0, len(approvers))
		for _, u := range approvers {
			to = append(to, u.Email)
		}
		msg, err := email.ApprovalRequestedMessage(to, email.ApprovalRequestedData{
			DocumentTitle: doc.Title,
			RequesterName: actor.Name,
			Priority:      priority,
			Notes:         request.Notes,
			DocumentURL:   s.documentURL(doc.ID),
		})
		if err != nil {
			s.logger.Warn("build approval email failed", "approval_id", request.ID, "error", err)
		} else {
			fx.mail = append(fx.mail, msg)
		}
	}
	fx.index = append(fx.index, doc)
	s.apply(fx)
	return s.approvalByID(ctx, request.ID)
}

// ReviewApproval records the reviewer's decision. Approval sets the
// document's approver; rejection or a change request sends it back to
// pending.
func (s *Service) ReviewApproval(ctx context.Context, actor Actor, requestID string, in ReviewInput) (store.ApprovalRequest, error) {
	var next store.DocumentStatus
	switch in.Status {
	case store.ApprovalApproved:
		next = store.StatusApproved
	case store.ApprovalRejected, store.ApprovalChangesRequested:
		next = store.StatusPending
	default:
		return store.ApprovalRequest{}, validationError("Status must be one of approved, rejected, changes_requested", map[string]any{"status": in.Status})
	}
	notes := strings.TrimSpace(in.Notes)

	var request store.ApprovalRequest
	var doc store.Document
	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		request, doc, err = lockApprovalWithDocument(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.Status.Terminal() {
			return conflictError(fmt.Sprintf("Approval request is already %s", request.Status), nil)
		}
		category, err := tx.GetCategory(ctx, doc.CategoryID)
		if err != nil {
			return translateStoreError(err, "Category")
		}
		if !rbac.CanPerform(actor.subject(), rbac.ActionApprove, documentResource(doc, category.RequiredApprovalRole)) {
			return authorizationError("You do not have permission to review documents in this category")
		}
		if doc.Status != store.StatusUnderReview {
			return conflictError("Document is not under review", map[string]any{"status": doc.Status})
		}

		now := s.now()
		request.Status = in.Status
		request.ReviewNotes = notes
		request.ReviewedBy = strPtr(actor.UserID)
		request.ReviewedAt = &now
		request.UpdatedAt = now
		if err := tx.UpdateApprovalRequest(ctx, request); err != nil {
			return translateStoreError(err, "Approval request")
		}

		doc.Status = next
		if next == store.StatusApproved {
			doc.ApprovedBy = strPtr(actor.UserID)
			doc.ApprovedAt = &now
		}
		doc.UpdatedAt = now
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return translateStoreError(err, "Document")
		}

		data := map[string]any{"document_id": doc.ID, "approval_id": request.ID, "decision": string(in.Status), "notes": notes}
		message := fmt.Sprintf("%s marked %q as %s", actor.Name, doc.Title, strings.ReplaceAll(string(in.Status), "_", " "))
		recipients := []string{request.RequestedBy}
		if doc.AuthorID != request.RequestedBy {
			recipients = append(recipients, doc.AuthorID)
		}
		for _, id := range recipients {
			if id == actor.UserID {
				continue
			}
			fx.notify(id, NotificationApprovalDecision, "Approval decision", message, data)
		}
		fx.log(actor, "review_approval", "approval_request", request.ID, doc.ID, map[string]any{"decision": string(in.Status)})
		return nil
	})
	if err != nil {
		return store.ApprovalRequest{}, err
	}

	if author, err := s.store.GetUserByID(ctx, doc.AuthorID); err == nil && author.ID != actor.UserID {
		msg, err := email.ApprovalDecisionMessage(author.Email, email.ApprovalDecisionData{
			DocumentTitle: doc.Title,
			ReviewerName:  actor.Name,
			Decision:      string(in.Status),
			Notes:         notes,
			DocumentURL:   s.documentURL(doc.ID),
		})
		if err != nil {
			s.logger.Warn("build decision email failed", "approval_id", request.ID, "error", err)
		} else {
			fx.mail = append(fx.mail, msg)
		}
	}
	fx.index = append(fx.index, doc)
	s.apply(fx)
	return s.approvalByID(ctx, request.ID)
}

// CancelApproval withdraws a pending request. Only the requester or an
// admin may cancel; the document returns to pending.
func (s *Service) CancelApproval(ctx context.Context, actor Actor, requestID string) (store.ApprovalRequest, error) {
	var doc store.Document
	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		request, locked, err := lockApprovalWithDocument(ctx, tx, requestID)
		if err != nil {
			return err
		}
		doc = locked
		if request.RequestedBy != actor.UserID && !actor.can(rbac.ActionCancelAnyApproval) {
			return authorizationError("Only the requester can cancel this approval request")
		}
		if request.Status.Terminal() {
			return conflictError(fmt.Sprintf("Approval request is already %s", request.Status), nil)
		}

		now := s.now()
		request.Status = store.ApprovalCancelled
		request.UpdatedAt = now
		if err := tx.UpdateApprovalRequest(ctx, request); err != nil {
			return translateStoreError(err, "Approval request")
		}

		if doc.Status == store.StatusUnderReview {
			doc.Status = store.StatusPending
			doc.UpdatedAt = now
			if err := tx.UpdateDocument(ctx, doc); err != nil {
				return translateStoreError(err, "Document")
			}
		}

		approvers, err := s.approvers(ctx, tx, doc.CategoryID, actor.UserID)
		if err != nil {
			return err
		}
		for _, u := range approvers {
			fx.notify(u.ID, NotificationApprovalCancelled, "Approval request cancelled",
				fmt.Sprintf("The approval request for %q was cancelled", doc.Title),
				map[string]any{"document_id": doc.ID, "approval_id": request.ID})
		}
		fx.log(actor, "cancel_approval", "approval_request", request.ID, doc.ID, nil)
		return nil
	})
	if err != nil {
		return store.ApprovalRequest{}, err
	}
	fx.index = append(fx.index, doc)
	s.apply(fx)
	return s.approvalByID(ctx, requestID)
}

// ListApprovals shows every request to roles that may view all approvals
// and only the caller's own requests otherwise.
// lockApprovalWithDocument locks the document row before the request row,
// the same order every document mutation takes.
func lockApprovalWithDocument(ctx context.Context, tx store.Store, requestID string) (store.ApprovalRequest, store.Document, error) {
	current, err := tx.GetApprovalRequest(ctx, requestID)
	if err != nil {
		return store.ApprovalRequest{}, store.Document{}, translateStoreError(err, "Approval request")
	}
	doc, err := tx.LockDocument(ctx, current.DocumentID)
	if err != nil {
		return store.ApprovalRequest{}, store.Document{}, translateStoreError(err, "Document")
	}
	request, err := tx.LockApprovalRequest(ctx, requestID)
	if err != nil {
		return store.ApprovalRequest{}, store.Document{}, translateStoreError(err, "Approval request")
	}
	return request, doc, nil
}

func (s *Service) ListApprovals(ctx context.Context, actor Actor, q ApprovalQuery) ([]store.ApprovalRequest, int, error) {
	if q.Status != "" && !validApprovalStatus(q.Status) {
		return nil, 0, validationError("Invalid status filter", map[string]any{"status": q.Status})
	}
	filter := store.ApprovalFilter{Status: q.Status, DocumentID: q.DocumentID, Page: q.Page}
	if !actor.can(rbac.ActionViewAllApprovals) {
		filter.RequestedBy = actor.UserID
	}
	items, total, err := s.store.ListApprovalRequests(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list approval requests: %w", err)
	}
	return items, total, nil
}

func (s *Service) GetApproval(ctx context.Context, actor Actor, requestID string) (store.ApprovalRequest, error) {
	request, err := s.approvalByID(ctx, requestID)
	if err != nil {
		return store.ApprovalRequest{}, err
	}
	if request.RequestedBy == actor.UserID || actor.can(rbac.ActionViewAllApprovals) {
		return request, nil
	}
	if _, err := s.viewableDocument(ctx, actor, request.DocumentID); err != nil {
		return store.ApprovalRequest{}, err
	}
	return request, nil
}

// ApprovalsForDocument is the review history of one document.
func (s *Service) ApprovalsForDocument(ctx context.Context, actor Actor, documentID string) ([]store.ApprovalRequest, error) {
	if _, err := s.viewableDocument(ctx, actor, documentID); err != nil {
		return nil, err
	}
	items, _, err := s.store.ListApprovalRequests(ctx, store.ApprovalFilter{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return items, nil
}

func (s *Service) ApprovalStats(ctx context.Context, actor Actor) (map[string]int, error) {
	requestedBy := ""
	if !actor.can(rbac.ActionViewAllApprovals) {
		requestedBy = actor.UserID
	}
	stats, err := s.store.ApprovalStats(ctx, requestedBy)
	if err != nil {
		return nil, fmt.Errorf("approval stats: %w", err)
	}
	for _, status := range []store.ApprovalStatus{
		store.ApprovalPending, store.ApprovalApproved, store.ApprovalRejected,
		store.ApprovalChangesRequested, store.ApprovalCancelled,
	} {
		if _, ok := stats[string(status)]; !ok {
			stats[string(status)] = 0
		}
	}
	return stats, nil
}

func (s *Service) approvalByID(ctx context.Context, requestID string) (store.ApprovalRequest, error) {
	request, err := s.store.GetApprovalRequest(ctx, requestID)
	if err != nil {
		return store.ApprovalRequest{}, translateStoreError(err, "Approval request")
	}
	return request, nil
}

func validApprovalStatus(status string) bool {
	switch store.ApprovalStatus(status) {
	case store.ApprovalPending, store.ApprovalApproved, store.ApprovalRejected,
		store.ApprovalChangesRequested, store.ApprovalCancelled:
		return true
	}
	return false
}
