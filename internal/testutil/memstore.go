// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"communitydms/api/internal/store"
)

// MemStore is an in-memory store.Store. WithTx serializes callers and
// rolls back by restoring a snapshot when fn fails.
type MemStore struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	data *memData
	inTx bool
}

type memData struct {
	users         map[string]store.User
	categories    map[string]store.Category
	documents     map[string]store.Document
	fields        map[string][]store.FormField
	versions      map[string]store.DocumentVersion
	approvals     map[string]store.ApprovalRequest
	notifications map[string]store.Notification
	activity      []store.ActivityEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		mu:   &sync.Mutex{},
		txMu: &sync.Mutex{},
		data: &memData{
			users:         map[string]store.User{},
			categories:    map[string]store.Category{},
			documents:     map[string]store.Document{},
			fields:        map[string][]store.FormField{},
			versions:      map[string]store.DocumentVersion{},
			approvals:     map[string]store.ApprovalRequest{},
			notifications: map[string]store.Notification{},
		},
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		users:         make(map[string]store.User, len(d.users)),
		categories:    make(map[string]store.Category, len(d.categories)),
		documents:     make(map[string]store.Document, len(d.documents)),
		fields:        make(map[string][]store.FormField, len(d.fields)),
		versions:      make(map[string]store.DocumentVersion, len(d.versions)),
		approvals:     make(map[string]store.ApprovalRequest, len(d.approvals)),
		notifications: make(map[string]store.Notification, len(d.notifications)),
		activity:      append([]store.ActivityEntry(nil), d.activity...),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.documents {
		c.documents[k] = v
	}
	for k, v := range d.fields {
		c.fields[k] = append([]store.FormField(nil), v...)
	}
	for k, v := range d.versions {
		c.versions[k] = v
	}
	for k, v := range d.approvals {
		c.approvals[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	return c
}

func (m *MemStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	tx := &MemStore{mu: m.mu, txMu: m.txMu, data: m.data, inTx: true}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		*m.data = *snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemStore) Ping(context.Context) error { return nil }

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, store.ErrNotFound)
}

func duplicate(op, constraint string) error {
	return fmt.Errorf("%s: %w (%s)", op, store.ErrDuplicate, constraint)
}

func page[T any](items []T, p store.Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := len(items)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return items[start:end]
}

// --- users ---

func (m *MemStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, u := range m.data.users {
		if u.Email == user.Email {
			return duplicate("insert user", "users_email_lower_idx")
		}
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.data.users[user.ID] = user
	return nil
}

func (m *MemStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data.users[userID]
	if !ok {
		return store.User{}, notFound("get user")
	}
	return u, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.data.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, notFound("get user by email")
}

func (m *MemStore) UpdateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data.users[user.ID]
	if !ok {
		return notFound("update user")
	}
	user.Email = strings.ToLower(user.Email)
	for _, u := range m.data.users {
		if u.ID != user.ID && u.Email == user.Email {
			return duplicate("update user", "users_email_lower_idx")
		}
	}
	user.CreatedAt = existing.CreatedAt
	user.LastLoginAt = existing.LastLoginAt
	user.UpdatedAt = time.Now().UTC()
	m.data.users[user.ID] = user
	return nil
}

func (m *MemStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data.users[userID]
	if !ok {
		return nil
	}
	u.LastLoginAt = &at
	m.data.users[userID] = u
	return nil
}

func (m *MemStore) ListUsers(_ context.Context, filter store.UserFilter) ([]store.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(filter.Search))
	items := make([]store.User, 0)
	for _, u := range m.data.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.Email+" "+u.FirstName+" "+u.LastName), q) {
			continue
		}
		items = append(items, u)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return page(items, filter.Page), len(items), nil
}

func (m *MemStore) ListActiveUsersByRole(_ context.Context, roles []string) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, r := range roles {
		want[r] = true
	}
	items := make([]store.User, 0)
	for _, u := range m.data.users {
		if u.Active && want[u.Role] {
			items = append(items, u)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Email < items[j].Email })
	return items, nil
}

func (m *MemStore) UserStats(context.Context) (store.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := store.UserStats{ByRole: map[string]int{}}
	for _, u := range m.data.users {
		stats.Total++
		stats.ByRole[u.Role]++
		if u.Active {
			stats.Active++
		}
	}
	return stats, nil
}

// --- categories ---

func (m *MemStore) CreateCategory(_ context.Context, category store.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.data.categories {
		if c.Slug == category.Slug {
			return duplicate("insert category", "document_categories_slug_key")
		}
	}
	if category.ParentID != nil {
		if _, ok := m.data.categories[*category.ParentID]; !ok {
			return fmt.Errorf("insert category: %w", store.ErrForeignKey)
		}
	}
	now := time.Now().UTC()
	category.CreatedAt, category.UpdatedAt = now, now
	category.DocumentCount = 0
	m.data.categories[category.ID] = category
	return nil
}

func (m *MemStore) categoryWithCount(c store.Category) store.Category {
	c.DocumentCount = 0
	for _, d := range m.data.documents {
		if d.CategoryID == c.ID {
			c.DocumentCount++
		}
	}
	return c
}

func (m *MemStore) GetCategory(_ context.Context, categoryID string) (store.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data.categories[categoryID]
	if !ok {
		return store.Category{}, notFound("get category")
	}
	return m.categoryWithCount(c), nil
}

func (m *MemStore) UpdateCategory(_ context.Context, category store.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data.categories[category.ID]
	if !ok {
		return notFound("update category")
	}
	for _, c := range m.data.categories {
		if c.ID != category.ID && c.Slug == category.Slug {
			return duplicate("update category", "document_categories_slug_key")
		}
	}
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = time.Now().UTC()
	m.data.categories[category.ID] = category
	return nil
}

func (m *MemStore) DeleteCategory(_ context.Context, categoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.categories[categoryID]; !ok {
		return notFound("delete category")
	}
	for _, d := range m.data.documents {
		if d.CategoryID == categoryID {
			return fmt.Errorf("delete category: %w", store.ErrForeignKey)
		}
	}
	delete(m.data.categories, categoryID)
	return nil
}

func (m *MemStore) ListCategories(context.Context) ([]store.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Category, 0, len(m.data.categories))
	for _, c := range m.data.categories {
		items = append(items, m.categoryWithCount(c))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *MemStore) CategorySlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.data.categories {
		if c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) CountChildCategories(_ context.Context, categoryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.data.categories {
		if c.ParentID != nil && *c.ParentID == categoryID {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CountCategoryDocuments(_ context.Context, categoryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.categoryWithCount(store.Category{ID: categoryID}).DocumentCount, nil
}

// --- documents ---

func (m *MemStore) decorate(d store.Document) store.Document {
	if c, ok := m.data.categories[d.CategoryID]; ok {
		d.CategoryName = c.Name
	}
	if u, ok := m.data.users[d.AuthorID]; ok {
		d.AuthorName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return d
}

func (m *MemStore) CreateDocument(_ context.Context, doc store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.data.documents {
		if d.Slug == doc.Slug {
			return duplicate("insert document", "documents_slug_key")
		}
	}
	if _, ok := m.data.categories[doc.CategoryID]; !ok {
		return fmt.Errorf("insert document: %w (documents_category_id_fkey)", store.ErrForeignKey)
	}
	doc.UpdatedAt = doc.CreatedAt
	m.data.documents[doc.ID] = doc
	return nil
}

func (m *MemStore) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data.documents[documentID]
	if !ok {
		return store.Document{}, notFound("get document")
	}
	return m.decorate(d), nil
}

func (m *MemStore) LockDocument(ctx context.Context, documentID string) (store.Document, error) {
	return m.GetDocument(ctx, documentID)
}

func (m *MemStore) UpdateDocument(_ context.Context, doc store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data.documents[doc.ID]
	if !ok {
		return notFound("update document")
	}
	for _, d := range m.data.documents {
		if d.ID != doc.ID && d.Slug == doc.Slug {
			return duplicate("update document", "documents_slug_key")
		}
	}
	if _, ok := m.data.categories[doc.CategoryID]; !ok {
		return fmt.Errorf("update document: %w (documents_category_id_fkey)", store.ErrForeignKey)
	}
	doc.CreatedAt = existing.CreatedAt
	doc.ViewCount = existing.ViewCount
	doc.DownloadCount = existing.DownloadCount
	doc.CategoryName, doc.AuthorName = "", ""
	m.data.documents[doc.ID] = doc
	return nil
}

func (m *MemStore) ListDocuments(_ context.Context, filter store.DocumentFilter) ([]store.Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(filter.Search))
	items := make([]store.Document, 0)
	for _, d := range m.data.documents {
		if filter.Status != "" {
			if string(d.Status) != filter.Status {
				continue
			}
		} else if d.Status == store.StatusArchived {
			continue
		}
		if filter.CategoryID != "" && d.CategoryID != filter.CategoryID {
			continue
		}
		if filter.AuthorID != "" && d.AuthorID != filter.AuthorID {
			continue
		}
		if filter.IsPublic != nil && d.IsPublic != *filter.IsPublic {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(d.Title+" "+d.ContentMarkdown), q) {
			continue
		}
		if filter.Visibility.Restricted && d.AuthorID != filter.Visibility.ViewerID && !(d.IsPublic && d.Status.Published()) {
			continue
		}
		items = append(items, m.decorate(d))
	}
	sortDocuments(items, filter.SortBy, strings.EqualFold(filter.SortOrder, "asc"))
	return page(items, filter.Page), len(items), nil
}

func sortDocuments(items []store.Document, sortBy string, asc bool) {
	less := func(a, b store.Document) int {
		switch sortBy {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "view_count":
			switch {
			case a.ViewCount < b.ViewCount:
				return -1
			case a.ViewCount > b.ViewCount:
				return 1
			}
			return 0
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := less(items[i], items[j])
		if c == 0 {
			return items[i].ID < items[j].ID
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func (m *MemStore) DocumentSlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.data.documents {
		if d.Slug == slug && d.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) IncrementViewCount(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.data.documents[documentID]; ok {
		d.ViewCount++
		m.data.documents[documentID] = d
	}
	return nil
}

func (m *MemStore) IncrementDownloadCount(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.data.documents[documentID]; ok {
		d.DownloadCount++
		m.data.documents[documentID] = d
	}
	return nil
}

func (m *MemStore) DocumentStats(_ context.Context, authorID string) (store.DocumentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := store.DocumentStats{ByStatus: map[string]int{}, ByCategory: map[string]int{}}
	for _, d := range m.data.documents {
		if authorID != "" && d.AuthorID != authorID {
			continue
		}
		d = m.decorate(d)
		stats.Total++
		stats.ByStatus[string(d.Status)]++
		stats.ByCategory[d.CategoryName]++
	}
	return stats, nil
}

// --- form fields ---

func (m *MemStore) ReplaceFormFields(_ context.Context, documentID string, fields []store.FormField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	out := make([]store.FormField, 0, len(fields))
	now := time.Now().UTC()
	for _, f := range fields {
		if seen[f.Name] {
			return duplicate("insert form field", "form_fields_document_id_field_name_key")
		}
		seen[f.Name] = true
		f.DocumentID = documentID
		f.CreatedAt, f.UpdatedAt = now, now
		out = append(out, f)
	}
	m.data.fields[documentID] = out
	return nil
}

func (m *MemStore) ListFormFields(_ context.Context, documentID string) ([]store.FormField, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]store.FormField{}, m.data.fields[documentID]...)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// --- versions ---

func (m *MemStore) decorateVersion(v store.DocumentVersion) store.DocumentVersion {
	if u, ok := m.data.users[v.AuthorID]; ok {
		v.AuthorName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return v
}

func (m *MemStore) CreateVersion(_ context.Context, version store.DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.data.versions {
		if v.DocumentID == version.DocumentID && v.VersionNumber == version.VersionNumber {
			return duplicate("insert version", "document_versions_document_id_version_number_key")
		}
	}
	m.data.versions[version.ID] = version
	return nil
}

func (m *MemStore) GetVersion(_ context.Context, versionID string) (store.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data.versions[versionID]
	if !ok {
		return store.DocumentVersion{}, notFound("get version")
	}
	return m.decorateVersion(v), nil
}

func (m *MemStore) LatestVersion(ctx context.Context, documentID string) (store.DocumentVersion, error) {
	items, _ := m.ListVersions(ctx, documentID)
	if len(items) == 0 {
		return store.DocumentVersion{}, notFound("latest version")
	}
	return items[0], nil
}

func (m *MemStore) ListVersions(_ context.Context, documentID string) ([]store.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.DocumentVersion, 0)
	for _, v := range m.data.versions {
		if v.DocumentID == documentID {
			items = append(items, m.decorateVersion(v))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].VersionNumber > items[j].VersionNumber })
	return items, nil
}

// --- approvals ---

func (m *MemStore) decorateApproval(a store.ApprovalRequest) store.ApprovalRequest {
	if d, ok := m.data.documents[a.DocumentID]; ok {
		a.DocumentTitle = d.Title
	}
	if u, ok := m.data.users[a.RequestedBy]; ok {
		a.RequesterName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return a
}

func (m *MemStore) CreateApprovalRequest(_ context.Context, req store.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.Status == store.ApprovalPending {
		for _, a := range m.data.approvals {
			if a.DocumentID == req.DocumentID && a.Status == store.ApprovalPending {
				return duplicate("insert approval request", "approval_requests_one_pending_idx")
			}
		}
	}
	req.UpdatedAt = req.RequestedAt
	m.data.approvals[req.ID] = req
	return nil
}

func (m *MemStore) GetApprovalRequest(_ context.Context, requestID string) (store.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data.approvals[requestID]
	if !ok {
		return store.ApprovalRequest{}, notFound("get approval request")
	}
	return m.decorateApproval(a), nil
}

func (m *MemStore) LockApprovalRequest(ctx context.Context, requestID string) (store.ApprovalRequest, error) {
	return m.GetApprovalRequest(ctx, requestID)
}

func (m *MemStore) UpdateApprovalRequest(_ context.Context, req store.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data.approvals[req.ID]
	if !ok {
		return notFound("update approval request")
	}
	existing.Status = req.Status
	existing.ReviewNotes = req.ReviewNotes
	existing.ReviewedBy = req.ReviewedBy
	existing.ReviewedAt = req.ReviewedAt
	existing.UpdatedAt = time.Now().UTC()
	m.data.approvals[req.ID] = existing
	return nil
}

func (m *MemStore) ListApprovalRequests(_ context.Context, filter store.ApprovalFilter) ([]store.ApprovalRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.ApprovalRequest, 0)
	for _, a := range m.data.approvals {
		if filter.Status != "" && string(a.Status) != filter.Status {
			continue
		}
		if filter.DocumentID != "" && a.DocumentID != filter.DocumentID {
			continue
		}
		if filter.RequestedBy != "" && a.RequestedBy != filter.RequestedBy {
			continue
		}
		items = append(items, m.decorateApproval(a))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].RequestedAt.Equal(items[j].RequestedAt) {
			return items[i].RequestedAt.After(items[j].RequestedAt)
		}
		return items[i].ID < items[j].ID
	})
	return page(items, filter.Page), len(items), nil
}

func (m *MemStore) PendingApprovalForDocument(_ context.Context, documentID string) (store.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.data.approvals {
		if a.DocumentID == documentID && a.Status == store.ApprovalPending {
			return m.decorateApproval(a), nil
		}
	}
	return store.ApprovalRequest{}, notFound("pending approval request")
}

func (m *MemStore) ApprovalStats(_ context.Context, requestedBy string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{}
	for _, a := range m.data.approvals {
		if requestedBy == "" || a.RequestedBy == requestedBy {
			stats[string(a.Status)]++
		}
	}
	return stats, nil
}

// --- notifications ---

func (m *MemStore) CreateNotification(_ context.Context, n store.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.users[n.UserID]; !ok {
		return fmt.Errorf("insert notification: %w", store.ErrForeignKey)
	}
	m.data.notifications[n.ID] = n
	return nil
}

func (m *MemStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, p store.Page) ([]store.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Notification, 0)
	for _, n := range m.data.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		items = append(items, n)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return page(items, p), len(items), nil
}

func (m *MemStore) MarkNotificationRead(_ context.Context, notificationID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.data.notifications[notificationID]
	if !ok || n.UserID != userID {
		return notFound("mark notification read")
	}
	n.IsRead = true
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	m.data.notifications[notificationID] = n
	return nil
}

func (m *MemStore) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, n := range m.data.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			m.data.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (m *MemStore) DeleteReadNotificationsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, n := range m.data.notifications {
		if n.IsRead && n.ReadAt != nil && n.ReadAt.Before(cutoff) {
			delete(m.data.notifications, id)
			count++
		}
	}
	return count, nil
}

// --- activity ---

func (m *MemStore) AppendActivity(_ context.Context, entry store.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.activity = append(m.data.activity, entry)
	return nil
}

func (m *MemStore) ListActivity(_ context.Context, filter store.ActivityFilter) ([]store.ActivityEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.ActivityEntry, 0)
	for i := len(m.data.activity) - 1; i >= 0; i-- {
		e := m.data.activity[i]
		if filter.UserID != "" && (e.UserID == nil || *e.UserID != filter.UserID) {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.DocumentID != "" && (e.DocumentID == nil || *e.DocumentID != filter.DocumentID) {
			continue
		}
		if e.UserID != nil {
			if u, ok := m.data.users[*e.UserID]; ok {
				e.UserName = strings.TrimSpace(u.FirstName + " " + u.LastName)
			}
		}
		items = append(items, e)
	}
	return page(items, filter.Page), len(items), nil
}

// Activity returns every appended entry in insertion order.
func (m *MemStore) Activity() []store.ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.ActivityEntry(nil), m.data.activity...)
}

var _ store.Store = (*MemStore)(nil)
