package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
	q  dbtx
	tx bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer
// transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.tx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{db: s.db, q: tx, tx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate("commit tx", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

// --- users ---

const userColumns = `id, email, password_hash, first_name, last_name, role, active, last_login_at, created_at, updated_at`

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.Active, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, active)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7)
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role, user.Active)
	return translate("insert user", err)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
	if err != nil {
		return User{}, translate("get user", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, strings.TrimSpace(email)))
	if err != nil {
		return User{}, translate("get user by email", err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user User) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE users
		SET email=LOWER($2), password_hash=$3, first_name=$4, last_name=$5, role=$6, active=$7, updated_at=NOW()
		WHERE id=$1
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role, user.Active)
	if err != nil {
		return translate("update user", err)
	}
	return requireRow("update user", res)
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE users SET last_login_at=$2 WHERE id=$1`, userID, at)
	return translate("touch last login", err)
}

func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active=$%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(email ILIKE $%[1]d OR first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d)", len(args)))
	}
	clause := whereClause(where)

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, translate("count users", err)
	}

	args, limit := pageClause(args, filter.Page)
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+clause+` ORDER BY created_at DESC, id`+limit, args...)
	if err != nil {
		return nil, 0, translate("list users", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

func (s *PostgresStore) ListActiveUsersByRole(ctx context.Context, roles []string) ([]User, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE active AND role = ANY($1)
		ORDER BY email
	`, roles)
	if err != nil {
		return nil, translate("list users by role", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) UserStats(ctx context.Context) (UserStats, error) {
	stats := UserStats{ByRole: map[string]int{}}
	rows, err := s.q.QueryContext(ctx, `SELECT role, COUNT(*), COUNT(*) FILTER (WHERE active) FROM users GROUP BY role`)
	if err != nil {
		return UserStats{}, translate("user stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			role          string
			total, active int
		)
		if err := rows.Scan(&role, &total, &active); err != nil {
			return UserStats{}, fmt.Errorf("scan user stats: %w", err)
		}
		stats.ByRole[role] = total
		stats.Total += total
		stats.Active += active
	}
	if err := rows.Err(); err != nil {
		return UserStats{}, fmt.Errorf("iterate user stats: %w", err)
	}
	return stats, nil
}

// --- categories ---

const categoryColumns = `c.id, c.name, c.slug, c.description, c.parent_id, c.required_approval_role, c.created_at, c.updated_at`

func (s *PostgresStore) CreateCategory(ctx context.Context, category Category) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO document_categories (id, name, slug, description, parent_id, required_approval_role)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, category.ID, category.Name, category.Slug, category.Description, category.ParentID, category.RequiredApprovalRole)
	return translate("insert category", err)
}

func (s *PostgresStore) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	var c Category
	err := s.q.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`, (SELECT COUNT(*) FROM documents d WHERE d.category_id = c.id)
		FROM document_categories c
		WHERE c.id=$1
	`, categoryID).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID, &c.RequiredApprovalRole, &c.CreatedAt, &c.UpdatedAt, &c.DocumentCount)
	if err != nil {
		return Category{}, translate("get category", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, category Category) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE document_categories
		SET name=$2, slug=$3, description=$4, parent_id=$5, required_approval_role=$6, updated_at=NOW()
		WHERE id=$1
	`, category.ID, category.Name, category.Slug, category.Description, category.ParentID, category.RequiredApprovalRole)
	if err != nil {
		return translate("update category", err)
	}
	return requireRow("update category", res)
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, categoryID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM document_categories WHERE id=$1`, categoryID)
	if err != nil {
		return translate("delete category", err)
	}
	return requireRow("delete category", res)
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+categoryColumns+`, COUNT(d.id)
		FROM document_categories c
		LEFT JOIN documents d ON d.category_id = c.id
		GROUP BY c.id
		ORDER BY c.name
	`)
	if err != nil {
		return nil, translate("list categories", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID, &c.RequiredApprovalRole, &c.CreatedAt, &c.UpdatedAt, &c.DocumentCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CategorySlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM document_categories WHERE slug=$1 AND id<>$2)`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, translate("check category slug", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountChildCategories(ctx context.Context, categoryID string) (int, error) {
	return s.count(ctx, "count child categories", `SELECT COUNT(*) FROM document_categories WHERE parent_id=$1`, categoryID)
}

func (s *PostgresStore) CountCategoryDocuments(ctx context.Context, categoryID string) (int, error) {
	return s.count(ctx, "count category documents", `SELECT COUNT(*) FROM documents WHERE category_id=$1`, categoryID)
}

// --- documents ---

const documentSelect = `
	SELECT d.id, d.title, d.slug, d.category_id, c.name, d.status, d.content_markdown, d.content_html, d.excerpt,
		d.author_id, TRIM(u.first_name || ' ' || u.last_name), d.approved_by, d.approved_at, d.is_public,
		d.has_fillable_fields, d.view_count, d.download_count, d.archived_at, d.created_at, d.updated_at
	FROM documents d
	JOIN document_categories c ON c.id = d.category_id
	JOIN users u ON u.id = d.author_id
`

func scanDocument(row scanner) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Title, &d.Slug, &d.CategoryID, &d.CategoryName, &d.Status, &d.ContentMarkdown, &d.ContentHTML, &d.Excerpt,
		&d.AuthorID, &d.AuthorName, &d.ApprovedBy, &d.ApprovedAt, &d.IsPublic,
		&d.HasFillableFields, &d.ViewCount, &d.DownloadCount, &d.ArchivedAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO documents (id, title, slug, category_id, status, content_markdown, content_html, excerpt,
			author_id, is_public, has_fillable_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, doc.ID, doc.Title, doc.Slug, doc.CategoryID, doc.Status, doc.ContentMarkdown, doc.ContentHTML, doc.Excerpt,
		doc.AuthorID, doc.IsPublic, doc.HasFillableFields, doc.CreatedAt)
	return translate("insert document", err)
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	d, err := scanDocument(s.q.QueryRowContext(ctx, documentSelect+` WHERE d.id=$1`, documentID))
	if err != nil {
		return Document{}, translate("get document", err)
	}
	return d, nil
}

// LockDocument reads the document with a row lock held until the enclosing
// transaction ends. Version numbering and status transitions go through it.
func (s *PostgresStore) LockDocument(ctx context.Context, documentID string) (Document, error) {
	d, err := scanDocument(s.q.QueryRowContext(ctx, documentSelect+` WHERE d.id=$1 FOR UPDATE OF d`, documentID))
	if err != nil {
		return Document{}, translate("lock document", err)
	}
	return d, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc Document) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, slug=$3, category_id=$4, status=$5, content_markdown=$6, content_html=$7, excerpt=$8,
			approved_by=$9, approved_at=$10, is_public=$11, has_fillable_fields=$12, archived_at=$13, updated_at=$14
		WHERE id=$1
	`, doc.ID, doc.Title, doc.Slug, doc.CategoryID, doc.Status, doc.ContentMarkdown, doc.ContentHTML, doc.Excerpt,
		doc.ApprovedBy, doc.ApprovedAt, doc.IsPublic, doc.HasFillableFields, doc.ArchivedAt, doc.UpdatedAt)
	if err != nil {
		return translate("update document", err)
	}
	return requireRow("update document", res)
}

var documentSortColumns = map[string]string{
	"created_at": "d.created_at",
	"updated_at": "d.updated_at",
	"title":      "d.title",
	"status":     "d.status",
	"view_count": "d.view_count",
}

func documentOrder(sortBy, sortOrder string) string {
	column, ok := documentSortColumns[sortBy]
	if !ok {
		column = "d.created_at"
	}
	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}
	return " ORDER BY " + column + " " + direction + ", d.id"
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("d.status=$%d", len(args)))
	} else {
		where = append(where, "d.status<>'archived'")
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("d.category_id=$%d", len(args)))
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		where = append(where, fmt.Sprintf("d.author_id=$%d", len(args)))
	}
	if filter.IsPublic != nil {
		args = append(args, *filter.IsPublic)
		where = append(where, fmt.Sprintf("d.is_public=$%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, q)
		where = append(where, fmt.Sprintf("(d.search_vector @@ plainto_tsquery('english', $%[1]d) OR d.title ILIKE '%%' || $%[1]d || '%%')", len(args)))
	}
	if filter.Visibility.Restricted {
		args = append(args, filter.Visibility.ViewerID)
		where = append(where, fmt.Sprintf("(d.author_id=$%d OR (d.is_public AND d.status IN ('approved', 'live')))", len(args)))
	}
	clause := whereClause(where)

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents d`+clause, args...).Scan(&total); err != nil {
		return nil, 0, translate("count documents", err)
	}

	args, limit := pageClause(args, filter.Page)
	query := documentSelect + clause + documentOrder(filter.SortBy, filter.SortOrder) + limit
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, translate("list documents", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) DocumentSlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE slug=$1 AND id<>$2)`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, translate("check document slug", err)
	}
	return exists, nil
}

func (s *PostgresStore) IncrementViewCount(ctx context.Context, documentID string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE documents SET view_count = view_count + 1 WHERE id=$1`, documentID)
	return translate("increment view count", err)
}

func (s *PostgresStore) IncrementDownloadCount(ctx context.Context, documentID string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE documents SET download_count = download_count + 1 WHERE id=$1`, documentID)
	return translate("increment download count", err)
}

// DocumentStats counts all documents, or only authorID's when it is set.
func (s *PostgresStore) DocumentStats(ctx context.Context, authorID string) (DocumentStats, error) {
	stats := DocumentStats{ByStatus: map[string]int{}, ByCategory: map[string]int{}}

	rows, err := s.q.QueryContext(ctx, `
		SELECT d.status, c.name, COUNT(*)
		FROM documents d
		JOIN document_categories c ON c.id = d.category_id
		WHERE $1 = '' OR d.author_id = $1
		GROUP BY d.status, c.name
	`, authorID)
	if err != nil {
		return DocumentStats{}, translate("document stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status, category string
			n                int
		)
		if err := rows.Scan(&status, &category, &n); err != nil {
			return DocumentStats{}, fmt.Errorf("scan document stats: %w", err)
		}
		stats.Total += n
		stats.ByStatus[status] += n
		stats.ByCategory[category] += n
	}
	if err := rows.Err(); err != nil {
		return DocumentStats{}, fmt.Errorf("iterate document stats: %w", err)
	}
	return stats, nil
}

// --- form fields ---

func (s *PostgresStore) ReplaceFormFields(ctx context.Context, documentID string, fields []FormField) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM form_fields WHERE document_id=$1`, documentID); err != nil {
		return translate("clear form fields", err)
	}
	for _, f := range fields {
		options, err := nullableJSON(f.Options, len(f.Options) > 0)
		if err != nil {
			return fmt.Errorf("encode field options: %w", err)
		}
		rules, err := nullableJSON(f.Validation, len(f.Validation) > 0)
		if err != nil {
			return fmt.Errorf("encode field rules: %w", err)
		}
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO form_fields (id, document_id, field_name, field_type, position, required, placeholder_text, options, validation_rules)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, f.ID, documentID, f.Name, f.Type, f.Position, f.Required, f.Placeholder, options, rules); err != nil {
			return translate("insert form field", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListFormFields(ctx context.Context, documentID string) ([]FormField, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, document_id, field_name, field_type, position, required, placeholder_text, options, validation_rules, created_at, updated_at
		FROM form_fields
		WHERE document_id=$1
		ORDER BY position, field_name
	`, documentID)
	if err != nil {
		return nil, translate("list form fields", err)
	}
	defer rows.Close()

	items := make([]FormField, 0)
	for rows.Next() {
		var (
			f              FormField
			options, rules []byte
		)
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Name, &f.Type, &f.Position, &f.Required, &f.Placeholder, &options, &rules, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan form field: %w", err)
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &f.Options); err != nil {
				return nil, fmt.Errorf("decode field options: %w", err)
			}
		}
		if len(rules) > 0 {
			if err := json.Unmarshal(rules, &f.Validation); err != nil {
				return nil, fmt.Errorf("decode field rules: %w", err)
			}
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate form fields: %w", err)
	}
	return items, nil
}

// --- versions ---

const versionSelect = `
	SELECT v.id, v.document_id, v.version_number, v.content_markdown, v.change_description, v.content_diff,
		v.is_major, v.author_id, TRIM(u.first_name || ' ' || u.last_name), v.created_at
	FROM document_versions v
	JOIN users u ON u.id = v.author_id
`

func scanVersion(row scanner) (DocumentVersion, error) {
	var (
		v       DocumentVersion
		rawDiff []byte
	)
	if err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.ContentMarkdown, &v.ChangeDescription, &rawDiff,
		&v.IsMajor, &v.AuthorID, &v.AuthorName, &v.CreatedAt); err != nil {
		return DocumentVersion{}, err
	}
	if len(rawDiff) > 0 {
		if err := json.Unmarshal(rawDiff, &v.Diff); err != nil {
			return DocumentVersion{}, fmt.Errorf("decode version diff: %w", err)
		}
	}
	return v, nil
}

func (s *PostgresStore) CreateVersion(ctx context.Context, version DocumentVersion) error {
	rawDiff, err := json.Marshal(version.Diff)
	if err != nil {
		return fmt.Errorf("encode version diff: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, version_number, content_markdown, change_description, content_diff, is_major, author_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, version.ID, version.DocumentID, version.VersionNumber, version.ContentMarkdown, version.ChangeDescription, rawDiff,
		version.IsMajor, version.AuthorID, version.CreatedAt)
	return translate("insert version", err)
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (DocumentVersion, error) {
	v, err := scanVersion(s.q.QueryRowContext(ctx, versionSelect+` WHERE v.id=$1`, versionID))
	if err != nil {
		return DocumentVersion{}, translate("get version", err)
	}
	return v, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, documentID string) (DocumentVersion, error) {
	v, err := scanVersion(s.q.QueryRowContext(ctx, versionSelect+` WHERE v.document_id=$1 ORDER BY v.version_number DESC LIMIT 1`, documentID))
	if err != nil {
		return DocumentVersion{}, translate("latest version", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.q.QueryContext(ctx, versionSelect+` WHERE v.document_id=$1 ORDER BY v.version_number DESC`, documentID)
	if err != nil {
		return nil, translate("list versions", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

// --- approval requests ---

const approvalSelect = `
	SELECT a.id, a.document_id, d.title, a.version_id, a.requested_by, TRIM(u.first_name || ' ' || u.last_name),
		a.status, a.priority, a.notes, a.review_notes, a.due_date, a.reviewed_by, a.reviewed_at, a.requested_at, a.updated_at
	FROM approval_requests a
	JOIN documents d ON d.id = a.document_id
	JOIN users u ON u.id = a.requested_by
`

func scanApproval(row scanner) (ApprovalRequest, error) {
	var a ApprovalRequest
	err := row.Scan(&a.ID, &a.DocumentID, &a.DocumentTitle, &a.VersionID, &a.RequestedBy, &a.RequesterName,
		&a.Status, &a.Priority, &a.Notes, &a.ReviewNotes, &a.DueDate, &a.ReviewedBy, &a.ReviewedAt, &a.RequestedAt, &a.UpdatedAt)
	return a, err
}

func (s *PostgresStore) CreateApprovalRequest(ctx context.Context, req ApprovalRequest) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO approval_requests (id, document_id, version_id, requested_by, status, priority, notes, due_date, requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, req.ID, req.DocumentID, req.VersionID, req.RequestedBy, req.Status, req.Priority, req.Notes, req.DueDate, req.RequestedAt)
	return translate("insert approval request", err)
}

func (s *PostgresStore) GetApprovalRequest(ctx context.Context, requestID string) (ApprovalRequest, error) {
	a, err := scanApproval(s.q.QueryRowContext(ctx, approvalSelect+` WHERE a.id=$1`, requestID))
	if err != nil {
		return ApprovalRequest{}, translate("get approval request", err)
	}
	return a, nil
}

func (s *PostgresStore) LockApprovalRequest(ctx context.Context, requestID string) (ApprovalRequest, error) {
	a, err := scanApproval(s.q.QueryRowContext(ctx, approvalSelect+` WHERE a.id=$1 FOR UPDATE OF a`, requestID))
	if err != nil {
		return ApprovalRequest{}, translate("lock approval request", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateApprovalRequest(ctx context.Context, req ApprovalRequest) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE approval_requests
		SET status=$2, review_notes=$3, reviewed_by=$4, reviewed_at=$5, updated_at=NOW()
		WHERE id=$1
	`, req.ID, req.Status, req.ReviewNotes, req.ReviewedBy, req.ReviewedAt)
	if err != nil {
		return translate("update approval request", err)
	}
	return requireRow("update approval request", res)
}

func (s *PostgresStore) ListApprovalRequests(ctx context.Context, filter ApprovalFilter) ([]ApprovalRequest, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("a.status=$%d", len(args)))
	}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		where = append(where, fmt.Sprintf("a.document_id=$%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		where = append(where, fmt.Sprintf("a.requested_by=$%d", len(args)))
	}
	clause := whereClause(where)

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_requests a`+clause, args...).Scan(&total); err != nil {
		return nil, 0, translate("count approval requests", err)
	}

	args, limit := pageClause(args, filter.Page)
	rows, err := s.q.QueryContext(ctx, approvalSelect+clause+" ORDER BY a.requested_at DESC, a.id"+limit, args...)
	if err != nil {
		return nil, 0, translate("list approval requests", err)
	}
	defer rows.Close()

	items := make([]ApprovalRequest, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan approval request: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate approval requests: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) PendingApprovalForDocument(ctx context.Context, documentID string) (ApprovalRequest, error) {
	a, err := scanApproval(s.q.QueryRowContext(ctx, approvalSelect+` WHERE a.document_id=$1 AND a.status='pending'`, documentID))
	if err != nil {
		return ApprovalRequest{}, translate("pending approval request", err)
	}
	return a, nil
}

func (s *PostgresStore) ApprovalStats(ctx context.Context, requestedBy string) (map[string]int, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM approval_requests
		WHERE $1 = '' OR requested_by = $1
		GROUP BY status
	`, requestedBy)
	if err != nil {
		return nil, translate("approval stats", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan approval stats: %w", err)
		}
		stats[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval stats: %w", err)
	}
	return stats, nil
}

// --- notifications ---

func (s *PostgresStore) CreateNotification(ctx context.Context, n Notification) error {
	data, err := json.Marshal(nonNilMap(n.Data))
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, data, n.CreatedAt)
	return translate("insert notification", err)
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, page Page) ([]Notification, int, error) {
	var total int
	if err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND (NOT $2 OR NOT is_read)
	`, userID, unreadOnly).Scan(&total); err != nil {
		return nil, 0, translate("count notifications", err)
	}

	args, limit := pageClause([]any{userID, unreadOnly}, page)
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, data, is_read, read_at, created_at
		FROM notifications
		WHERE user_id=$1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id`+limit, args...)
	if err != nil {
		return nil, 0, translate("list notifications", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var (
			n    Notification
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, 0, fmt.Errorf("decode notification data: %w", err)
			}
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE, read_at=COALESCE(read_at, $3)
		WHERE id=$1 AND user_id=$2
	`, notificationID, userID, at)
	if err != nil {
		return translate("mark notification read", err)
	}
	return requireRow("mark notification read", res)
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE, read_at=$2 WHERE user_id=$1 AND NOT is_read`, userID, at)
	if err != nil {
		return 0, translate("mark all notifications read", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM notifications WHERE is_read AND read_at < $1`, cutoff)
	if err != nil {
		return 0, translate("delete read notifications", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- activity log ---

func (s *PostgresStore) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	details, err := json.Marshal(nonNilMap(entry.Details))
	if err != nil {
		return fmt.Errorf("encode activity details: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, action, entity_type, entity_id, document_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.DocumentID, details,
		entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return translate("insert activity", err)
}

func (s *PostgresStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("l.user_id=$%d", len(args)))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		where = append(where, fmt.Sprintf("l.entity_type=$%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("l.entity_id=$%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where = append(where, fmt.Sprintf("l.action=$%d", len(args)))
	}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		where = append(where, fmt.Sprintf("l.document_id=$%d", len(args)))
	}
	clause := whereClause(where)

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs l`+clause, args...).Scan(&total); err != nil {
		return nil, 0, translate("count activity", err)
	}

	args, limit := pageClause(args, filter.Page)
	rows, err := s.q.QueryContext(ctx, `
		SELECT l.id, l.user_id, COALESCE(TRIM(u.first_name || ' ' || u.last_name), ''), l.action, l.entity_type, l.entity_id,
			l.document_id, l.details, l.ip_address, l.user_agent, l.created_at
		FROM activity_logs l
		LEFT JOIN users u ON u.id = l.user_id`+clause+`
		ORDER BY l.created_at DESC, l.id`+limit, args...)
	if err != nil {
		return nil, 0, translate("list activity", err)
	}
	defer rows.Close()

	items := make([]ActivityEntry, 0)
	for rows.Next() {
		var (
			e       ActivityEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &e.Action, &e.EntityType, &e.EntityID,
			&e.DocumentID, &details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decode activity details: %w", err)
			}
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate activity: %w", err)
	}
	return items, total, nil
}

// --- helpers ---

func (s *PostgresStore) count(ctx context.Context, op, query string, args ...any) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, translate(op, err)
	}
	return n, nil
}

// pageClause appends the LIMIT/OFFSET arguments for p. A non-positive
// limit selects every row.
func pageClause(args []any, p Page) ([]any, string) {
	if p.Limit <= 0 {
		return args, ""
	}
	args = append(args, p.Limit, p.Offset())
	return args, fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func requireRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func nullableJSON(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
