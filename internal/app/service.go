package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"communitydms/api/internal/auth"
	"communitydms/api/internal/authpw"
	"communitydms/api/internal/email"
	"communitydms/api/internal/export"
	"communitydms/api/internal/gitrepo"
	"communitydms/api/internal/markdown"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/search"
	"communitydms/api/internal/session"
	"communitydms/api/internal/store"
	"communitydms/api/internal/util"
)

// Actor is the authenticated caller together with request metadata used for
// the activity log.
type Actor struct {
	UserID    string
	Email     string
	Name      string
	Role      rbac.Role
	TokenID   string
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

func (a Actor) subject() rbac.Subject {
	return rbac.Subject{UserID: a.UserID, Role: a.Role}
}

func (a Actor) can(action rbac.Action) bool {
	return rbac.Can(a.Role, action)
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexDocument(doc store.Document)
	DeleteDocument(id string)
}

type versionMirror interface {
	CommitVersion(v gitrepo.Version) (gitrepo.Commit, error)
	MarkPublished(documentID string, versionNumber int, actor string) error
}

// Deps are the collaborators of the Service. Mailer, Mirror and Search are
// optional.
type Deps struct {
	Store       store.Store
	Tokens      *auth.TokenService
	Passwords   *authpw.Service
	Revocations session.RevocationStore
	Markdown    *markdown.Renderer
	Export      *export.Service
	Search      searchIndex
	Mirror      versionMirror
	Mailer      Mailer
	MailTimeout time.Duration
	BaseURL     string
	Logger      *slog.Logger
}

type Service struct {
	store       store.Store
	tokens      *auth.TokenService
	passwords   *authpw.Service
	revocations session.RevocationStore
	markdown    *markdown.Renderer
	export      *export.Service
	search      searchIndex
	mirror      versionMirror
	mailer      Mailer
	mailTimeout time.Duration
	baseURL     string
	logger      *slog.Logger
	now         func() time.Time
	background  sync.WaitGroup
}

func New(d Deps) *Service {
	s := &Service{
		store:       d.Store,
		tokens:      d.Tokens,
		passwords:   d.Passwords,
		revocations: d.Revocations,
		markdown:    d.Markdown,
		export:      d.Export,
		search:      d.Search,
		mirror:      d.Mirror,
		mailer:      d.Mailer,
		mailTimeout: d.MailTimeout,
		baseURL:     strings.TrimRight(d.BaseURL, "/"),
		logger:      d.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.logger == nil {
		s.logger = util.DiscardLogger()
	}
	if s.markdown == nil {
		s.markdown = markdown.NewRenderer()
	}
	if s.passwords == nil {
		s.passwords = authpw.NewService(d.Store)
	}
	if s.revocations == nil {
		s.revocations = session.NewMemoryStore()
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewPgFTS(d.Store), s.logger)
	}
	if s.mailTimeout <= 0 {
		s.mailTimeout = 10 * time.Second
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Wait blocks until background email deliveries have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// effects collects the side effects of a mutation. They run only after the
// transaction commits and never fail the request.
type effects struct {
	notifications []store.Notification
	activity      []store.ActivityEntry
	mail          []email.Message
	index         []store.Document
	unindex       []string
	mirror        []gitrepo.Version
	published     *gitrepo.Version
}

func (e *effects) notify(userID, kind, title, message string, data map[string]any) {
	e.notifications = append(e.notifications, store.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Data:    data,
	})
}

func (e *effects) log(actor Actor, action, entityType, entityID string, documentID string, details map[string]any) {
	entry := store.ActivityEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		id := actor.UserID
		entry.UserID = &id
	}
	if documentID != "" {
		entry.DocumentID = &documentID
	}
	e.activity = append(e.activity, entry)
}

func (s *Service) apply(e *effects) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := s.now()

	for _, entry := range e.activity {
		entry.ID = util.NewID("act")
		entry.CreatedAt = now
		if err := s.store.AppendActivity(ctx, entry); err != nil {
			s.logger.Warn("append activity failed", "action", entry.Action, "entity_id", entry.EntityID, "error", err)
		}
	}
	for _, n := range e.notifications {
		n.ID = util.NewID("ntf")
		n.CreatedAt = now
		if n.Data == nil {
			n.Data = map[string]any{}
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.logger.Warn("create notification failed", "type", n.Type, "user_id", n.UserID, "error", err)
		}
	}
	for _, doc := range e.index {
		s.search.IndexDocument(doc)
	}
	for _, id := range e.unindex {
		s.search.DeleteDocument(id)
	}
	if s.mirror != nil {
		for _, v := range e.mirror {
			if _, err := s.mirror.CommitVersion(v); err != nil {
				s.logger.Warn("mirror version failed", "document_id", v.DocumentID, "version", v.VersionNumber, "error", err)
			}
		}
		if p := e.published; p != nil {
			if err := s.mirror.MarkPublished(p.DocumentID, p.VersionNumber, p.AuthorName); err != nil {
				s.logger.Warn("mirror publish tag failed", "document_id", p.DocumentID, "error", err)
			}
		}
	}
	for _, msg := range e.mail {
		s.sendMail(msg)
	}
}

func (s *Service) sendMail(msg email.Message) {
	if s.mailer == nil || len(msg.To) == 0 {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.mailTimeout)
		defer cancel()
		if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, email.ErrNotConfigured) {
			s.logger.Warn("email delivery failed", "subject", msg.Subject, "error", err)
		}
	}()
}

// approvers returns the active users allowed to review documents in the
// given category, excluding the acting user.
func (s *Service) approvers(ctx context.Context, st store.Store, categoryID, excludeUserID string) ([]store.User, error) {
	required := rbac.RolePresident
	if categoryID != "" {
		category, err := st.GetCategory(ctx, categoryID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			required = rbac.Role(category.RequiredApprovalRole)
		}
	}
	candidates, err := st.ListActiveUsersByRole(ctx, []string{
		string(rbac.RoleAdmin), string(rbac.RolePresident), string(rbac.RoleBoardMember),
	})
	if err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	out := make([]store.User, 0, len(candidates))
	for _, u := range candidates {
		if u.ID == excludeUserID {
			continue
		}
		if rbac.CanApproveIn(rbac.Role(u.Role), required) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Service) documentURL(documentID string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/documents/" + documentID
}

// translateStoreError maps storage sentinels onto domain errors. Anything
// unrecognised is returned unchanged and becomes a 500 at the boundary.
func translateStoreError(err error, entity string) error {
	var domainErr *DomainError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, store.ErrNotFound):
		return notFoundError(entity)
	case errors.Is(err, store.ErrDuplicate):
		return conflictError(entity+" already exists", nil)
	case errors.Is(err, store.ErrForeignKey):
		return validationError("Referenced record does not exist", nil)
	case errors.Is(err, store.ErrTxConflict):
		return retryError()
	}
	return err
}

func strPtr(v string) *string {
	return &v
}
