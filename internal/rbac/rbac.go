package rbac

import "strings"

type Role string
type Action string

const (
	RoleAdmin           Role = "admin"
	RolePresident       Role = "president"
	RoleBoardMember     Role = "board_member"
	RoleCommitteeMember Role = "committee_member"
	RoleVolunteer       Role = "volunteer"
	RolePublic          Role = "public"
)

// Role-level capabilities. Ownership-dependent checks live in CanPerform.
const (
	ActionViewAllDocuments   Action = "documents.view_all"
	ActionCreateDocument     Action = "documents.create"
	ActionEditAnyDocument    Action = "documents.edit_any"
	ActionArchiveAnyDocument Action = "documents.archive_any"
	ActionApproveDocument    Action = "documents.approve"
	ActionPublishDocument    Action = "documents.publish"
	ActionRequestAnyApproval Action = "approvals.request_any"
	ActionViewAllApprovals   Action = "approvals.view_all"
	ActionCancelAnyApproval  Action = "approvals.cancel_any"
	ActionManageCategories   Action = "categories.manage"
	ActionManageUsers        Action = "users.manage"
)

// Per-document actions checked by CanPerform.
const (
	ActionView            Action = "view"
	ActionEdit            Action = "edit"
	ActionApprove         Action = "approve"
	ActionArchive         Action = "archive"
	ActionRequestApproval Action = "request_approval"
)

var allActions = []Action{
	ActionViewAllDocuments, ActionCreateDocument, ActionEditAnyDocument,
	ActionArchiveAnyDocument, ActionApproveDocument, ActionPublishDocument,
	ActionRequestAnyApproval, ActionViewAllApprovals, ActionCancelAnyApproval,
	ActionManageCategories, ActionManageUsers,
}

// capabilities is the whole role matrix; nothing else in the module grants
// permissions by comparing role names.
var capabilities = map[Role][]Action{
	RoleAdmin: allActions,
	RolePresident: {
		ActionViewAllDocuments, ActionCreateDocument, ActionEditAnyDocument,
		ActionArchiveAnyDocument, ActionApproveDocument, ActionPublishDocument,
		ActionRequestAnyApproval, ActionViewAllApprovals,
		ActionManageCategories, ActionManageUsers,
	},
	RoleBoardMember: {
		ActionViewAllDocuments, ActionCreateDocument, ActionEditAnyDocument,
		ActionApproveDocument, ActionRequestAnyApproval, ActionViewAllApprovals,
	},
	RoleCommitteeMember: {ActionCreateDocument},
	RoleVolunteer:       {ActionCreateDocument},
	RolePublic:          {},
}

// boardApprovable lists the category approval requirements a board member
// satisfies. Anything stricter needs a president or admin.
var boardApprovable = map[Role]bool{
	RoleBoardMember:     true,
	RoleCommitteeMember: true,
	RoleVolunteer:       true,
	RolePublic:          true,
}

func Can(role Role, action Action) bool {
	for _, allowed := range capabilities[role] {
		if allowed == action {
			return true
		}
	}
	return false
}

// CanApproveIn reports whether role may review documents in a category
// whose required approval role is required.
func CanApproveIn(role Role, required Role) bool {
	if !Can(role, ActionApproveDocument) {
		return false
	}
	if role == RoleBoardMember {
		return boardApprovable[required]
	}
	return true
}

// Subject is the acting user.
type Subject struct {
	UserID string
	Role   Role
}

// Resource is the slice of a document the policy needs.
type Resource struct {
	AuthorID             string
	IsPublic             bool
	Published            bool
	RequiredApprovalRole Role
}

// CanPerform is the per-document access predicate. It never errors; the
// caller turns false into a Forbidden response.
func CanPerform(s Subject, action Action, r Resource) bool {
	owner := s.UserID != "" && s.UserID == r.AuthorID
	switch action {
	case ActionView:
		return Can(s.Role, ActionViewAllDocuments) || owner || (r.IsPublic && r.Published)
	case ActionEdit:
		return Can(s.Role, ActionEditAnyDocument) || owner
	case ActionArchive:
		return Can(s.Role, ActionArchiveAnyDocument) || owner
	case ActionRequestApproval:
		return Can(s.Role, ActionRequestAnyApproval) || owner
	case ActionApprove:
		return CanApproveIn(s.Role, r.RequiredApprovalRole)
	default:
		return false
	}
}

func Valid(role string) bool {
	_, ok := capabilities[Role(role)]
	return ok
}

// Normalize maps free-form input ("Board Member", "BOARD_MEMBER") onto a
// known role, falling back to volunteer.
func Normalize(role string) Role {
	r := Role(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(role)), " ", "_"))
	if _, ok := capabilities[r]; ok {
		return r
	}
	return RoleVolunteer
}

func AllRoles() []Role {
	return []Role{RoleAdmin, RolePresident, RoleBoardMember, RoleCommitteeMember, RoleVolunteer, RolePublic}
}
