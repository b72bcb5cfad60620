package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate value")
	ErrForeignKey = errors.New("referenced row does not exist")
	// ErrTxConflict marks a transaction aborted by a deadlock or a
	// serialization failure. Retrying the whole operation is safe.
	ErrTxConflict = errors.New("transaction conflict")
)

// Store is the persistence contract used by the application service. The
// Store passed to a WithTx callback is bound to that transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, user User) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error)
	ListActiveUsersByRole(ctx context.Context, roles []string) ([]User, error)
	UserStats(ctx context.Context) (UserStats, error)

	CreateCategory(ctx context.Context, category Category) error
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, categoryID string) error
	ListCategories(ctx context.Context) ([]Category, error)
	CategorySlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	CountChildCategories(ctx context.Context, categoryID string) (int, error)
	CountCategoryDocuments(ctx context.Context, categoryID string) (int, error)

	CreateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, documentID string) (Document, error)
	LockDocument(ctx context.Context, documentID string) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, int, error)
	DocumentSlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	IncrementViewCount(ctx context.Context, documentID string) error
	IncrementDownloadCount(ctx context.Context, documentID string) error
	DocumentStats(ctx context.Context, authorID string) (DocumentStats, error)

	ReplaceFormFields(ctx context.Context, documentID string, fields []FormField) error
	ListFormFields(ctx context.Context, documentID string) ([]FormField, error)

	CreateVersion(ctx context.Context, version DocumentVersion) error
	GetVersion(ctx context.Context, versionID string) (DocumentVersion, error)
	LatestVersion(ctx context.Context, documentID string) (DocumentVersion, error)
	ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error)

	CreateApprovalRequest(ctx context.Context, req ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, requestID string) (ApprovalRequest, error)
	LockApprovalRequest(ctx context.Context, requestID string) (ApprovalRequest, error)
	UpdateApprovalRequest(ctx context.Context, req ApprovalRequest) error
	ListApprovalRequests(ctx context.Context, filter ApprovalFilter) ([]ApprovalRequest, int, error)
	PendingApprovalForDocument(ctx context.Context, documentID string) (ApprovalRequest, error)
	ApprovalStats(ctx context.Context, requestedBy string) (map[string]int, error)

	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, page Page) ([]Notification, int, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)

	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, int, error)
}

// translate maps driver errors onto the package sentinels so callers never
// see raw SQLSTATEs.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w (%s)", op, ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%s: %w (%s)", op, ErrForeignKey, pgErr.ConstraintName)
		case "40P01", "40001":
			return fmt.Errorf("%s: %w (%s)", op, ErrTxConflict, pgErr.Code)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
