package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"communitydms/api/internal/auth"
	"communitydms/api/internal/authpw"
	"communitydms/api/internal/email"
	"communitydms/api/internal/forms"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
	"communitydms/api/internal/testutil"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *recordingMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.sent...)
}

type fixture struct {
	svc    *Service
	mem    *testutil.MemStore
	mailer *recordingMailer

	admin, president, board, committee, alice, bob Actor

	general string // required approval role: president
	minutes string // required approval role: board_member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := testutil.NewMemStore()
	mailer := &recordingMailer{}
	svc := New(Deps{
		Store:     mem,
		Tokens:    auth.NewTokenService("test-secret", time.Hour),
		Passwords: authpw.NewService(mem).WithCost(bcrypt.MinCost),
		Mailer:    mailer,
		BaseURL:   "https://dms.example.org",
	})
	f := &fixture{svc: svc, mem: mem, mailer: mailer}

	ctx := context.Background()
	seedUser := func(id string, role rbac.Role) Actor {
		hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
		require.NoError(t, err)
		user := store.User{
			ID:           id,
			Email:        id + "@example.org",
			PasswordHash: string(hash),
			FirstName:    id,
			Role:         string(role),
			Active:       true,
		}
		require.NoError(t, mem.CreateUser(ctx, user))
		return Actor{UserID: id, Email: user.Email, Name: id, Role: role}
	}
	f.admin = seedUser("admin", rbac.RoleAdmin)
	f.president = seedUser("president", rbac.RolePresident)
	f.board = seedUser("board", rbac.RoleBoardMember)
	f.committee = seedUser("committee", rbac.RoleCommitteeMember)
	f.alice = seedUser("alice", rbac.RoleVolunteer)
	f.bob = seedUser("bob", rbac.RoleVolunteer)

	general, err := svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "General"})
	require.NoError(t, err)
	minutes, err := svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Meeting Minutes", RequiredApprovalRole: "board_member"})
	require.NoError(t, err)
	f.general, f.minutes = general.ID, minutes.ID
	return f
}

func (f *fixture) create(t *testing.T, author Actor, title, content string, public bool) DocumentDetail {
	t.Helper()
	doc, err := f.svc.CreateDocument(context.Background(), author, CreateDocumentInput{
		Title:           title,
		CategoryID:      f.general,
		ContentMarkdown: content,
		IsPublic:        public,
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) edit(t *testing.T, actor Actor, id, content string) DocumentDetail {
	t.Helper()
	doc, err := f.svc.UpdateDocument(context.Background(), actor, id, UpdateDocumentInput{ContentMarkdown: &content})
	require.NoError(t, err)
	return doc
}

func (f *fixture) notifications(t *testing.T, userID string) []store.Notification {
	t.Helper()
	items, _, err := f.mem.ListNotifications(context.Background(), userID, false, store.Page{})
	require.NoError(t, err)
	return items
}

func hasNotification(items []store.Notification, kind, documentID string) bool {
	for _, n := range items {
		if n.Type == kind && n.Data["document_id"] == documentID {
			return true
		}
	}
	return false
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var domainErr *DomainError
	require.Error(t, err)
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %T: %v", err, err)
	require.Equal(t, status, domainErr.Status, domainErr.Message)
}

func TestCreateDocumentStartsPendingWithFirstVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.create(t, f.alice, "Pool Rules", "# Pool\nNo glass.", true)
	assert.Equal(t, store.StatusPending, doc.Status)
	assert.Equal(t, "pool-rules", doc.Slug)
	assert.Contains(t, doc.ContentHTML, "<h1")
	assert.NotEmpty(t, doc.Excerpt)

	versions, err := f.svc.ListVersions(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, "Initial version", versions[0].ChangeDescription)
	assert.Equal(t, 2, versions[0].Diff.Additions)

	// General requires president, so board members are not approvers there.
	assert.True(t, hasNotification(f.notifications(t, "president"), NotificationDocumentCreated, doc.ID))
	assert.True(t, hasNotification(f.notifications(t, "admin"), NotificationDocumentCreated, doc.ID))
	assert.False(t, hasNotification(f.notifications(t, "board"), NotificationDocumentCreated, doc.ID))
}

func TestCreateDocumentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDocument(ctx, f.alice, CreateDocumentInput{Title: "  ", CategoryID: f.general})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.CreateDocument(ctx, f.alice, CreateDocumentInput{Title: "Orphan", CategoryID: "cat_missing"})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.CreateDocument(ctx, f.alice, CreateDocumentInput{
		Title:      "Form",
		CategoryID: f.general,
		FormFields: []forms.Spec{{Name: "color", Type: "select"}},
	})
	requireStatus(t, err, http.StatusBadRequest)

	public := Actor{UserID: "visitor", Role: rbac.RolePublic}
	_, err = f.svc.CreateDocument(ctx, public, CreateDocumentInput{Title: "Nope", CategoryID: f.general})
	requireStatus(t, err, http.StatusForbidden)
}

func TestDuplicateTitlesGetDistinctSlugs(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, f.alice, "Budget", "a", false)
	second := f.create(t, f.bob, "Budget", "b", false)
	assert.Equal(t, "budget", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
}

func TestFormFieldsSetFillableFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.CreateDocument(ctx, f.alice, CreateDocumentInput{
		Title:      "Pool Pass Application",
		CategoryID: f.general,
		FormFields: []forms.Spec{
			{Name: "resident", Type: "text", Position: 1, Required: true},
			{Name: "signature", Type: "signature", Position: 2},
		},
	})
	require.NoError(t, err)
	assert.True(t, doc.HasFillableFields)
	require.Len(t, doc.FormFields, 2)
	assert.Equal(t, "resident", doc.FormFields[0].Name)

	empty := []forms.Spec{}
	updated, err := f.svc.UpdateDocument(ctx, f.alice, doc.ID, UpdateDocumentInput{FormFields: &empty})
	require.NoError(t, err)
	assert.False(t, updated.HasFillableFields)
	assert.Empty(t, updated.FormFields)
}

func TestVersionNumbersIncreaseWithoutGaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.create(t, f.alice, "Bylaws", "one", false)
	f.edit(t, f.alice, doc.ID, "one\ntwo")
	f.edit(t, f.alice, doc.ID, "one\ntwo\nthree")

	title := "Bylaws 2024"
	_, err := f.svc.UpdateDocument(ctx, f.alice, doc.ID, UpdateDocumentInput{Title: &title})
	require.NoError(t, err)

	versions, err := f.svc.ListVersions(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3, "title-only edits do not create versions")
	for i, v := range versions {
		assert.Equal(t, 3-i, v.VersionNumber)
	}
	assert.Equal(t, 1, versions[0].Diff.Additions)
	assert.Equal(t, 0, versions[0].Diff.Deletions)
}

func TestConcurrentEditsGetDistinctVersionNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Shared", "base", false)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := fmt.Sprintf("base\nedit %d", i)
			_, err := f.svc.UpdateDocument(ctx, f.admin, doc.ID, UpdateDocumentInput{ContentMarkdown: &content})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := f.mem.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, v := range versions {
		assert.False(t, seen[v.VersionNumber], "duplicate version %d", v.VersionNumber)
		seen[v.VersionNumber] = true
	}
	for n := 1; n <= len(versions); n++ {
		assert.True(t, seen[n], "missing version %d", n)
	}
	assert.GreaterOrEqual(t, len(versions), 2)
}

func TestCompareVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Rules", "a\nb", false)
	f.edit(t, f.alice, doc.ID, "a\nc\nd")

	versions, err := f.svc.ListVersions(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	v2, v1 := versions[0], versions[1]

	cmp, err := f.svc.CompareVersions(ctx, f.alice, v2.ID, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp.FromVersion)
	assert.Equal(t, 2, cmp.ToVersion)
	assert.Equal(t, 2, cmp.Additions)
	assert.Equal(t, 1, cmp.Deletions)

	same, err := f.svc.CompareVersions(ctx, f.alice, v1.ID, v1.ID)
	require.NoError(t, err)
	assert.Zero(t, same.Additions)
	assert.Zero(t, same.Deletions)

	other := f.create(t, f.alice, "Other", "x", false)
	otherVersions, err := f.svc.ListVersions(ctx, f.alice, other.ID)
	require.NoError(t, err)
	_, err = f.svc.CompareVersions(ctx, f.alice, v1.ID, otherVersions[0].ID)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestRestoreVersionAppendsAndIsRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Policy", "original", false)
	f.edit(t, f.alice, doc.ID, "changed")

	versions, err := f.svc.ListVersions(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	v1 := versions[len(versions)-1]

	restored, err := f.svc.RestoreVersion(ctx, f.alice, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", restored.ContentMarkdown)
	assert.Equal(t, store.StatusPending, restored.Status)

	again, err := f.svc.RestoreVersion(ctx, f.alice, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.ContentMarkdown)

	versions, err = f.svc.ListVersions(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4, "restores never delete history")
	assert.Equal(t, "Restored from version 1", versions[0].ChangeDescription)
	assert.Equal(t, "Restored from version 1", versions[1].ChangeDescription)
	assert.False(t, versions[0].Diff.Changed(), "second restore has an empty diff")

	_, err = f.svc.RestoreVersion(ctx, f.bob, v1.ID)
	requireStatus(t, err, http.StatusForbidden)
}

func TestApprovalLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Parking Policy", "Park nicely.", true)

	request, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID, Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalPending, request.Status)
	assert.NotNil(t, request.VersionID)

	current, err := f.mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnderReview, current.Status)
	assert.True(t, hasNotification(f.notifications(t, "president"), NotificationApprovalRequested, doc.ID))

	reviewed, err := f.svc.ReviewApproval(ctx, f.president, request.ID, ReviewInput{Status: store.ApprovalApproved, Notes: "Looks good"})
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "president", *reviewed.ReviewedBy)

	current, err = f.mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, current.Status)
	require.NotNil(t, current.ApprovedBy)
	assert.Equal(t, "president", *current.ApprovedBy)
	assert.NotNil(t, current.ApprovedAt)
	assert.True(t, hasNotification(f.notifications(t, "alice"), NotificationApprovalDecision, doc.ID))

	_, err = f.svc.PublishDocument(ctx, f.alice, doc.ID)
	requireStatus(t, err, http.StatusForbidden)
	live, err := f.svc.PublishDocument(ctx, f.president, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusLive, live.Status)
	_, err = f.svc.PublishDocument(ctx, f.president, doc.ID)
	requireStatus(t, err, http.StatusConflict)

	f.svc.Wait()
	subjects := []string{}
	for _, m := range f.mailer.messages() {
		subjects = append(subjects, m.Subject)
	}
	assert.Len(t, subjects, 2, "request and decision mails: %v", subjects)
}

func TestSecondPendingRequestConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Fees", "x", false)

	_, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
	require.NoError(t, err)
	_, err = f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
	requireStatus(t, err, http.StatusConflict)

	pending, _, err := f.mem.ListApprovalRequests(ctx, store.ApprovalFilter{DocumentID: doc.ID, Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRequestApprovalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Fees", "x", false)

	_, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID, Priority: "whenever"})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.RequestApproval(ctx, f.bob, ApprovalInput{DocumentID: doc.ID})
	requireStatus(t, err, http.StatusForbidden)

	_, err = f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: "doc_missing"})
	requireStatus(t, err, http.StatusNotFound)
}

func TestRejectionAndChangeRequestReturnToPending(t *testing.T) {
	for _, decision := range []store.ApprovalStatus{store.ApprovalRejected, store.ApprovalChangesRequested} {
		t.Run(string(decision), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			doc := f.create(t, f.alice, "Pets", "Dogs on leash.", false)

			request, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
			require.NoError(t, err)
			reviewed, err := f.svc.ReviewApproval(ctx, f.admin, request.ID, ReviewInput{Status: decision, Notes: "Add cats"})
			require.NoError(t, err)
			assert.Equal(t, decision, reviewed.Status)
			assert.Equal(t, "Add cats", reviewed.ReviewNotes)

			current, err := f.mem.GetDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, store.StatusPending, current.Status)
			assert.Nil(t, current.ApprovedBy)

			_, err = f.svc.ReviewApproval(ctx, f.admin, request.ID, ReviewInput{Status: store.ApprovalApproved})
			requireStatus(t, err, http.StatusConflict)

			_, err = f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
			require.NoError(t, err, "a new request is allowed once the previous one is final")
		})
	}
}

func TestReviewRejectsUnknownDecision(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReviewApproval(context.Background(), f.admin, "apr_any", ReviewInput{Status: store.ApprovalCancelled})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestBoardMemberApprovalDependsOnCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	generalDoc := f.create(t, f.alice, "General Notice", "x", false)
	request, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: generalDoc.ID})
	require.NoError(t, err)
	_, err = f.svc.ReviewApproval(ctx, f.board, request.ID, ReviewInput{Status: store.ApprovalApproved})
	requireStatus(t, err, http.StatusForbidden)
	_, err = f.svc.ReviewApproval(ctx, f.committee, request.ID, ReviewInput{Status: store.ApprovalApproved})
	requireStatus(t, err, http.StatusForbidden)

	minutes, err := f.svc.CreateDocument(ctx, f.alice, CreateDocumentInput{Title: "March Minutes", CategoryID: f.minutes, ContentMarkdown: "x"})
	require.NoError(t, err)
	assert.True(t, hasNotification(f.notifications(t, "board"), NotificationDocumentCreated, minutes.ID))

	request, err = f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: minutes.ID})
	require.NoError(t, err)
	reviewed, err := f.svc.ReviewApproval(ctx, f.board, request.ID, ReviewInput{Status: store.ApprovalApproved})
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalApproved, reviewed.Status)
}

func TestEditingApprovedDocumentRequiresReapproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Quiet Hours", "10pm", true)

	request, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
	require.NoError(t, err)
	_, err = f.svc.ReviewApproval(ctx, f.president, request.ID, ReviewInput{Status: store.ApprovalApproved})
	require.NoError(t, err)

	edited := f.edit(t, f.alice, doc.ID, "11pm")
	assert.Equal(t, store.StatusPending, edited.Status)
	assert.Nil(t, edited.ApprovedBy)
	assert.Nil(t, edited.ApprovedAt)
	assert.True(t, hasNotification(f.notifications(t, "president"), NotificationReapprovalRequired, doc.ID))

	versions, err := f.svc.ListVersions(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, versions[0].VersionNumber)

	public := true
	metaOnly, err := f.svc.UpdateDocument(ctx, f.alice, doc.ID, UpdateDocumentInput{IsPublic: &public})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, metaOnly.Status)
}

func TestCancelApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Garden", "x", false)

	request, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
	require.NoError(t, err)

	_, err = f.svc.CancelApproval(ctx, f.bob, request.ID)
	requireStatus(t, err, http.StatusForbidden)
	_, err = f.svc.CancelApproval(ctx, f.president, request.ID)
	requireStatus(t, err, http.StatusForbidden)

	cancelled, err := f.svc.CancelApproval(ctx, f.alice, request.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalCancelled, cancelled.Status)

	current, err := f.mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, current.Status)

	_, err = f.svc.CancelApproval(ctx, f.admin, request.ID)
	requireStatus(t, err, http.StatusConflict)

	second, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
	require.NoError(t, err)
	_, err = f.svc.CancelApproval(ctx, f.admin, second.ID)
	require.NoError(t, err, "admins may cancel any request")
}

func TestListApprovalsScopedToRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.alice, "A", "x", false)
	b := f.create(t, f.bob, "B", "x", false)
	_, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: a.ID})
	require.NoError(t, err)
	_, err = f.svc.RequestApproval(ctx, f.bob, ApprovalInput{DocumentID: b.ID})
	require.NoError(t, err)

	own, total, err := f.svc.ListApprovals(ctx, f.alice, ApprovalQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, a.ID, own[0].DocumentID)

	_, total, err = f.svc.ListApprovals(ctx, f.board, ApprovalQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	stats, err := f.svc.ApprovalStats(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["pending"])
	assert.Equal(t, 0, stats["approved"])
}

func TestArchiveDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Old Rules", "x", false)
	_, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
	require.NoError(t, err)

	requireStatus(t, f.svc.ArchiveDocument(ctx, f.bob, doc.ID), http.StatusForbidden)
	requireStatus(t, f.svc.ArchiveDocument(ctx, f.board, doc.ID), http.StatusForbidden)
	require.NoError(t, f.svc.ArchiveDocument(ctx, f.alice, doc.ID))
	requireStatus(t, f.svc.ArchiveDocument(ctx, f.alice, doc.ID), http.StatusConflict)

	_, err = f.mem.PendingApprovalForDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "archiving cancels the open review")

	docs, _, err := f.svc.ListDocuments(ctx, f.admin, DocumentQuery{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	archived, _, err := f.svc.ListDocuments(ctx, f.admin, DocumentQuery{Status: "archived"})
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	content := "new"
	_, err = f.svc.UpdateDocument(ctx, f.alice, doc.ID, UpdateDocumentInput{ContentMarkdown: &content})
	requireStatus(t, err, http.StatusConflict)
}

func TestDocumentVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	published := f.create(t, f.bob, "Published", "x", true)
	request, err := f.svc.RequestApproval(ctx, f.bob, ApprovalInput{DocumentID: published.ID})
	require.NoError(t, err)
	_, err = f.svc.ReviewApproval(ctx, f.president, request.ID, ReviewInput{Status: store.ApprovalApproved})
	require.NoError(t, err)

	draft := f.create(t, f.bob, "Public Draft", "x", true)
	private := f.create(t, f.bob, "Private", "x", false)
	own := f.create(t, f.alice, "Mine", "x", false)

	docs, total, err := f.svc.ListDocuments(ctx, f.alice, DocumentQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	ids := map[string]bool{}
	for _, d := range docs {
		ids[d.ID] = true
	}
	assert.True(t, ids[published.ID])
	assert.True(t, ids[own.ID])

	_, err = f.svc.GetDocument(ctx, f.alice, draft.ID)
	requireStatus(t, err, http.StatusForbidden)
	_, err = f.svc.GetDocument(ctx, f.alice, private.ID)
	requireStatus(t, err, http.StatusForbidden)

	viewed, err := f.svc.GetDocument(ctx, f.board, private.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), viewed.ViewCount)

	_, total, err = f.svc.ListDocuments(ctx, f.board, DocumentQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	_, _, err = f.svc.ListDocuments(ctx, f.board, DocumentQuery{Status: "drafty"})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestDocumentStatsScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.alice, "A1", "x", false)
	f.create(t, f.alice, "A2", "x", false)
	f.create(t, f.bob, "B1", "x", false)

	own, err := f.svc.DocumentStats(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, 2, own.Total)
	assert.Len(t, own.Recent, 2)

	all, err := f.svc.DocumentStats(ctx, f.president)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 3, all.ByStatus["pending"])
}

func TestDocumentActivityRecordsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Logged", "x", false)
	f.edit(t, f.alice, doc.ID, "y")

	entries, err := f.svc.DocumentActivity(ctx, f.alice, doc.ID, 0)
	require.NoError(t, err)
	actions := map[string]bool{}
	for _, e := range entries {
		actions[e.Action] = true
	}
	assert.True(t, actions["create"])
	assert.True(t, actions["update"])

	_, err = f.svc.DocumentActivity(ctx, f.bob, doc.ID, 0)
	requireStatus(t, err, http.StatusForbidden)
}

func TestCategoryTreeAndMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parent, err := f.svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Governance"})
	require.NoError(t, err)
	child, err := f.svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Bylaws", ParentID: &parent.ID})
	require.NoError(t, err)
	grandchild, err := f.svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Amendments", ParentID: &child.ID})
	require.NoError(t, err)
	assert.Equal(t, "Governance > Bylaws > Amendments", grandchild.FullPath)
	assert.Equal(t, "president", grandchild.RequiredApprovalRole)

	_, err = f.svc.UpdateCategory(ctx, f.admin, parent.ID, CategoryUpdate{ParentID: &grandchild.ID})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = f.svc.UpdateCategory(ctx, f.admin, parent.ID, CategoryUpdate{ParentID: &parent.ID})
	requireStatus(t, err, http.StatusBadRequest)

	root := ""
	moved, err := f.svc.UpdateCategory(ctx, f.admin, grandchild.ID, CategoryUpdate{ParentID: &root})
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
	assert.Equal(t, "Amendments", moved.FullPath)

	tree, err := f.svc.CategoryTree(ctx)
	require.NoError(t, err)
	names := []string{}
	for _, n := range tree {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"Amendments", "General", "Governance", "Meeting Minutes"}, names)

	_, err = f.svc.CreateCategory(ctx, f.board, CategoryInput{Name: "Nope"})
	requireStatus(t, err, http.StatusForbidden)
	_, err = f.svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Bad", RequiredApprovalRole: "king"})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestDeleteCategoryRequiresEmptyLeaf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parent, err := f.svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Finance"})
	require.NoError(t, err)
	_, err = f.svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Budgets", ParentID: &parent.ID})
	require.NoError(t, err)

	requireStatus(t, f.svc.DeleteCategory(ctx, f.admin, parent.ID), http.StatusConflict)
	f.create(t, f.alice, "Doc", "x", false)
	requireStatus(t, f.svc.DeleteCategory(ctx, f.admin, f.general), http.StatusConflict)

	empty, err := f.svc.CreateCategory(ctx, f.admin, CategoryInput{Name: "Empty"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteCategory(ctx, f.admin, empty.ID))
	_, err = f.svc.GetCategory(ctx, empty.ID)
	requireStatus(t, err, http.StatusNotFound)
}

func TestUserManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.ListUsers(ctx, f.board, UserQuery{})
	requireStatus(t, err, http.StatusForbidden)

	users, total, err := f.svc.ListUsers(ctx, f.president, UserQuery{Role: "volunteer"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, users, 2)

	role := "committee_member"
	updated, err := f.svc.UpdateUser(ctx, f.admin, "alice", UserUpdate{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "committee_member", updated.Role)

	inactive := false
	_, err = f.svc.UpdateUser(ctx, f.admin, "admin", UserUpdate{Active: &inactive})
	requireStatus(t, err, http.StatusBadRequest)
	requireStatus(t, f.svc.DeactivateUser(ctx, f.admin, "admin"), http.StatusBadRequest)

	require.NoError(t, f.svc.DeactivateUser(ctx, f.admin, "bob"))
	bob, err := f.mem.GetUserByID(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, bob.Active)

	stats, err := f.svc.UserStats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 5, stats.Active)
	assert.Equal(t, 0, stats.ByRole["public"])

	created, err := f.svc.CreateUser(ctx, f.admin, CreateUserInput{Email: "Treasurer@Example.org", Password: "password123", Role: "board_member"})
	require.NoError(t, err)
	assert.Equal(t, "treasurer@example.org", created.Email)
	assert.Equal(t, "board_member", created.Role)
}

func TestRegisterLoginAndTokenLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, RegisterInput{
		Email:           "new@example.org",
		Password:        "password123",
		PasswordConfirm: "password123",
		FirstName:       "New",
		LastName:        "Member",
	}, Actor{IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "volunteer", result.User.Role)
	assert.NotEmpty(t, result.Token)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "new@example.org", Password: "password123", PasswordConfirm: "password123"}, Actor{})
	requireStatus(t, err, http.StatusConflict)
	_, err = f.svc.Register(ctx, RegisterInput{Email: "other@example.org", Password: "password123", PasswordConfirm: "password124"}, Actor{})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.Login(ctx, "new@example.org", "wrong-password", Actor{})
	requireStatus(t, err, http.StatusUnauthorized)
	login, err := f.svc.Login(ctx, "new@example.org", "password123", Actor{})
	require.NoError(t, err)

	actor, err := f.svc.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, actor.UserID)
	assert.Equal(t, "New Member", actor.Name)

	require.NoError(t, f.svc.Logout(ctx, actor))
	_, err = f.svc.Authenticate(ctx, login.Token)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = f.svc.Authenticate(ctx, "not-a-token")
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestDeactivatedUserFailsAuthenticationImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "bob@example.org", "password123", Actor{})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, login.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateUser(ctx, f.admin, "bob"))
	_, err = f.svc.Authenticate(ctx, login.Token)
	requireStatus(t, err, http.StatusUnauthorized)
	_, err = f.svc.Login(ctx, "bob@example.org", "password123", Actor{})
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestProfileAndPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := "Alice"
	profile, err := f.svc.UpdateProfile(ctx, f.alice, ProfileInput{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.FirstName)

	err = f.svc.ChangePassword(ctx, f.alice, "wrong", "newpassword1", "newpassword1")
	requireStatus(t, err, http.StatusBadRequest)
	err = f.svc.ChangePassword(ctx, f.alice, "password123", "newpassword1", "different")
	requireStatus(t, err, http.StatusBadRequest)
	require.NoError(t, f.svc.ChangePassword(ctx, f.alice, "password123", "newpassword1", "newpassword1"))

	_, err = f.svc.Login(ctx, "alice@example.org", "newpassword1", Actor{})
	require.NoError(t, err)
}

func TestNotificationsOnlyForRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Notice", "x", false)

	items, total, err := f.svc.ListNotifications(ctx, f.president, true, store.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, doc.ID, items[0].Data["document_id"])

	requireStatus(t, f.svc.MarkNotificationRead(ctx, f.alice, items[0].ID), http.StatusNotFound)
	require.NoError(t, f.svc.MarkNotificationRead(ctx, f.president, items[0].ID))

	_, total, err = f.svc.ListNotifications(ctx, f.president, true, store.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	assert.Zero(t, total)

	n, err := f.svc.MarkAllNotificationsRead(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearchRequiresQueryAndAppliesVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.bob, "Pool hours", "pool opens at 9", false)
	mine := f.create(t, f.alice, "Pool toys", "no pool noodles", false)

	_, err := f.svc.Search(ctx, f.alice, "   ", store.Page{Number: 1, Limit: 20})
	requireStatus(t, err, http.StatusBadRequest)

	resp, err := f.svc.Search(ctx, f.alice, "pool", store.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, mine.ID, resp.Results[0].ID)

	resp, err = f.svc.Search(ctx, f.admin, "pool", store.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestApprovalsForDocumentReturnsFullHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "History", "x", false)

	for _, decision := range []store.ApprovalStatus{store.ApprovalRejected, store.ApprovalChangesRequested} {
		request, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
		require.NoError(t, err)
		_, err = f.svc.ReviewApproval(ctx, f.president, request.ID, ReviewInput{Status: decision, Notes: "Needs work"})
		require.NoError(t, err)
	}
	_, err := f.svc.RequestApproval(ctx, f.alice, ApprovalInput{DocumentID: doc.ID})
	require.NoError(t, err)

	items, err := f.svc.ApprovalsForDocument(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestArchivedChecksComeAfterAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Retired", "x", false)
	versions, err := f.svc.ListVersions(ctx, f.alice, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	require.NoError(t, f.svc.ArchiveDocument(ctx, f.alice, doc.ID))

	title := "Taken over"
	_, err = f.svc.UpdateDocument(ctx, f.bob, doc.ID, UpdateDocumentInput{Title: &title})
	requireStatus(t, err, http.StatusForbidden)
	_, err = f.svc.RestoreVersion(ctx, f.bob, versions[0].ID)
	requireStatus(t, err, http.StatusForbidden)

	_, err = f.svc.UpdateDocument(ctx, f.alice, doc.ID, UpdateDocumentInput{Title: &title})
	requireStatus(t, err, http.StatusConflict)
	_, err = f.svc.RestoreVersion(ctx, f.alice, versions[0].ID)
	requireStatus(t, err, http.StatusConflict)
}

func TestListActivityScopedToActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.alice, "Alice Doc", "x", true)
	f.create(t, f.bob, "Bob Doc", "x", true)
	f.edit(t, f.alice, a.ID, "y")

	all, total, err := f.svc.ListActivity(ctx, f.admin, ActivityQuery{EntityType: "document"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)
	assert.Equal(t, "update", all[0].Action, "newest first")

	byEntity, _, err := f.svc.ListActivity(ctx, f.admin, ActivityQuery{EntityType: "document", EntityID: a.ID})
	require.NoError(t, err)
	assert.Len(t, byEntity, 2)

	own, total, err := f.svc.ListActivity(ctx, f.bob, ActivityQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, own, 1)
	require.NotNil(t, own[0].UserID)
	assert.Equal(t, "bob", *own[0].UserID)

	other, total, err := f.svc.ListActivity(ctx, f.bob, ActivityQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, other)

	paged, total, err := f.svc.ListActivity(ctx, f.admin, ActivityQuery{UserID: "alice", Page: store.Page{Number: 2, Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, paged, 1)
	assert.Equal(t, "create", paged[0].Action)
}

func TestRefreshTokenRevokesPreviousToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	login, err := f.svc.Login(ctx, "alice@example.org", "password123", Actor{})
	require.NoError(t, err)
	actor, err := f.svc.Authenticate(ctx, login.Token)
	require.NoError(t, err)

	refreshed, err := f.svc.RefreshToken(ctx, actor)
	require.NoError(t, err)
	assert.NotEqual(t, login.Token, refreshed.Token)
	assert.Equal(t, "alice", refreshed.User.ID)

	_, err = f.svc.Authenticate(ctx, login.Token)
	requireStatus(t, err, http.StatusUnauthorized)
	again, err := f.svc.Authenticate(ctx, refreshed.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.UserID)
}
