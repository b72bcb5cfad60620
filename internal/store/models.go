package store

import (
	"time"

	"communitydms/api/internal/diff"
)

type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusUnderReview DocumentStatus = "under_review"
	StatusApproved    DocumentStatus = "approved"
	StatusLive        DocumentStatus = "live"
	StatusArchived    DocumentStatus = "archived"
)

// Published reports whether the status makes a public document visible to
// every role.
func (s DocumentStatus) Published() bool {
	return s == StatusApproved || s == StatusLive
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusLive, StatusArchived:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "pending"
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalRejected         ApprovalStatus = "rejected"
	ApprovalChangesRequested ApprovalStatus = "changes_requested"
	ApprovalCancelled        ApprovalStatus = "cancelled"
)

func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalPending
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

type Category struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Slug                 string    `json:"slug"`
	Description          string    `json:"description"`
	ParentID             *string   `json:"parent_id"`
	RequiredApprovalRole string    `json:"required_approval_role"`
	DocumentCount        int       `json:"document_count"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type Document struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Slug              string         `json:"slug"`
	CategoryID        string         `json:"category_id"`
	CategoryName      string         `json:"category_name,omitempty"`
	Status            DocumentStatus `json:"status"`
	ContentMarkdown   string         `json:"content_markdown"`
	ContentHTML       string         `json:"content_html"`
	Excerpt           string         `json:"excerpt"`
	AuthorID          string         `json:"author_id"`
	AuthorName        string         `json:"author_name,omitempty"`
	ApprovedBy        *string        `json:"approved_by"`
	ApprovedAt        *time.Time     `json:"approved_at"`
	IsPublic          bool           `json:"is_public"`
	HasFillableFields bool           `json:"has_fillable_fields"`
	ViewCount         int64          `json:"view_count"`
	DownloadCount     int64          `json:"download_count"`
	ArchivedAt        *time.Time     `json:"archived_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type DocumentVersion struct {
	ID                string      `json:"id"`
	DocumentID        string      `json:"document_id"`
	VersionNumber     int         `json:"version_number"`
	ContentMarkdown   string      `json:"content_markdown"`
	ChangeDescription string      `json:"change_description"`
	Diff              diff.Result `json:"content_diff"`
	IsMajor           bool        `json:"is_major"`
	AuthorID          string      `json:"author_id"`
	AuthorName        string      `json:"author_name,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

type FormField struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	Name        string         `json:"field_name"`
	Type        string         `json:"field_type"`
	Position    int            `json:"position"`
	Required    bool           `json:"required"`
	Placeholder string         `json:"placeholder_text"`
	Options     []string       `json:"options,omitempty"`
	Validation  map[string]any `json:"validation_rules,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type ApprovalRequest struct {
	ID            string         `json:"id"`
	DocumentID    string         `json:"document_id"`
	DocumentTitle string         `json:"document_title,omitempty"`
	VersionID     *string        `json:"version_id"`
	RequestedBy   string         `json:"requested_by"`
	RequesterName string         `json:"requester_name,omitempty"`
	Status        ApprovalStatus `json:"status"`
	Priority      string         `json:"priority"`
	Notes         string         `json:"notes"`
	ReviewNotes   string         `json:"review_notes"`
	DueDate       *time.Time     `json:"due_date"`
	ReviewedBy    *string        `json:"reviewed_by"`
	ReviewedAt    *time.Time     `json:"reviewed_at"`
	RequestedAt   time.Time      `json:"requested_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at"`
	CreatedAt time.Time      `json:"created_at"`
}

type ActivityEntry struct {
	ID         string         `json:"id"`
	UserID     *string        `json:"user_id"`
	UserName   string         `json:"user_name,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	DocumentID *string        `json:"document_id"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Limit  int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// Visibility restricts listings to what a non-privileged viewer may see.
// A zero value means no restriction.
type Visibility struct {
	Restricted bool
	ViewerID   string
}

type DocumentFilter struct {
	Status     string
	CategoryID string
	AuthorID   string
	Search     string
	IsPublic   *bool
	SortBy     string
	SortOrder  string
	Visibility Visibility
	Page       Page
}

type ApprovalFilter struct {
	Status      string
	DocumentID  string
	RequestedBy string
	Page        Page
}

// ActivityFilter narrows the activity log. Empty fields match everything.
type ActivityFilter struct {
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	DocumentID string
	Page       Page
}

type UserFilter struct {
	Role   string
	Active *bool
	Search string
	Page   Page
}

type DocumentStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
}

type UserStats struct {
	Total  int            `json:"total_users"`
	Active int            `json:"active_users"`
	ByRole map[string]int `json:"users_by_role"`
}
