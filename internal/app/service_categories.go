package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
	"communitydms/api/internal/util"
)

const categoryPathSeparator = " > "

type CategoryView struct {
	store.Category
	FullPath string `json:"full_path"`
}

type CategoryNode struct {
	CategoryView
	Children []*CategoryNode `json:"children"`
}

type CategoryInput struct {
	Name                 string
	Description          string
	ParentID             *string
	RequiredApprovalRole string
}

// CategoryUpdate is partial. An empty, non-nil ParentID moves the category
// to the root.
type CategoryUpdate struct {
	Name                 *string
	Description          *string
	ParentID             *string
	RequiredApprovalRole *string
}

type CategoryStats struct {
	Total      int            `json:"total_categories"`
	Root       int            `json:"root_categories"`
	Documents  int            `json:"total_documents"`
	ByCategory map[string]int `json:"documents_by_category"`
}

func (s *Service) ListCategories(ctx context.Context) ([]CategoryView, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return withPaths(categories), nil
}

// CategoryTree nests categories under their parents. Siblings are ordered by
// name.
func (s *Service) CategoryTree(ctx context.Context) ([]*CategoryNode, error) {
	views, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*CategoryNode, len(views))
	for _, v := range views {
		nodes[v.ID] = &CategoryNode{CategoryView: v, Children: []*CategoryNode{}}
	}
	roots := []*CategoryNode{}
	for _, v := range views {
		node := nodes[v.ID]
		if v.ParentID != nil {
			if parent, ok := nodes[*v.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	return roots, nil
}

func sortNodes(nodes []*CategoryNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

func (s *Service) GetCategory(ctx context.Context, categoryID string) (CategoryView, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return CategoryView{}, fmt.Errorf("list categories: %w", err)
	}
	for _, v := range withPaths(categories) {
		if v.ID == categoryID {
			return v, nil
		}
	}
	return CategoryView{}, notFoundError("Category")
}

func (s *Service) CreateCategory(ctx context.Context, actor Actor, in CategoryInput) (CategoryView, error) {
	if !actor.can(rbac.ActionManageCategories) {
		return CategoryView{}, authorizationError("")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return CategoryView{}, validationError("Name is required", map[string]any{"name": "required"})
	}
	role, err := approvalRole(in.RequiredApprovalRole)
	if err != nil {
		return CategoryView{}, err
	}

	now := s.now()
	category := store.Category{
		ID:                   util.NewID("cat"),
		Name:                 name,
		Description:          strings.TrimSpace(in.Description),
		RequiredApprovalRole: role,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	fx := &effects{}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if in.ParentID != nil && *in.ParentID != "" {
			if _, err := tx.GetCategory(ctx, *in.ParentID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return validationError("Parent category does not exist", map[string]any{"parent_id": *in.ParentID})
				}
				return err
			}
			category.ParentID = strPtr(*in.ParentID)
		}
		slug, err := util.UniqueSlug(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
			return tx.CategorySlugExists(ctx, candidate, "")
		})
		if err != nil {
			return err
		}
		category.Slug = slug
		if err := tx.CreateCategory(ctx, category); err != nil {
			return translateStoreError(err, "Category")
		}
		fx.log(actor, "create", "category", category.ID, "", map[string]any{"name": name})
		return nil
	})
	if err != nil {
		return CategoryView{}, err
	}
	s.apply(fx)
	return s.GetCategory(ctx, category.ID)
}

// UpdateCategory applies a partial update. A move is rejected when the new
// parent is the category itself or one of its descendants.
func (s *Service) UpdateCategory(ctx context.Context, actor Actor, categoryID string, in CategoryUpdate) (CategoryView, error) {
	if !actor.can(rbac.ActionManageCategories) {
		return CategoryView{}, authorizationError("")
	}
	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		category, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return translateStoreError(err, "Category")
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return validationError("Name is required", map[string]any{"name": "required"})
			}
			if name != category.Name {
				slug, err := util.UniqueSlug(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
					return tx.CategorySlugExists(ctx, candidate, category.ID)
				})
				if err != nil {
					return err
				}
				category.Name, category.Slug = name, slug
			}
		}
		if in.Description != nil {
			category.Description = strings.TrimSpace(*in.Description)
		}
		if in.RequiredApprovalRole != nil {
			role, err := approvalRole(*in.RequiredApprovalRole)
			if err != nil {
				return err
			}
			category.RequiredApprovalRole = role
		}
		if in.ParentID != nil {
			if *in.ParentID == "" {
				category.ParentID = nil
			} else {
				if err := checkMove(ctx, tx, category.ID, *in.ParentID); err != nil {
					return err
				}
				category.ParentID = strPtr(*in.ParentID)
			}
		}
		if err := tx.UpdateCategory(ctx, category); err != nil {
			return translateStoreError(err, "Category")
		}
		fx.log(actor, "update", "category", category.ID, "", map[string]any{"name": category.Name})
		return nil
	})
	if err != nil {
		return CategoryView{}, err
	}
	s.apply(fx)
	return s.GetCategory(ctx, categoryID)
}

// checkMove walks the ancestor chain of the proposed parent and fails if
// categoryID appears in it.
func checkMove(ctx context.Context, st store.Store, categoryID, parentID string) error {
	if parentID == categoryID {
		return validationError("A category cannot be its own parent", nil)
	}
	visited := map[string]bool{}
	current := parentID
	for current != "" {
		if visited[current] {
			return validationError("Category hierarchy contains a cycle", nil)
		}
		visited[current] = true
		parent, err := st.GetCategory(ctx, current)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) && current == parentID {
				return validationError("Parent category does not exist", map[string]any{"parent_id": parentID})
			}
			return translateStoreError(err, "Category")
		}
		if parent.ID == categoryID {
			return validationError("Cannot move a category under one of its descendants", nil)
		}
		if parent.ParentID == nil {
			break
		}
		current = *parent.ParentID
		if current == categoryID {
			return validationError("Cannot move a category under one of its descendants", nil)
		}
	}
	return nil
}

// DeleteCategory removes an empty leaf category.
func (s *Service) DeleteCategory(ctx context.Context, actor Actor, categoryID string) error {
	if !actor.can(rbac.ActionManageCategories) {
		return authorizationError("")
	}
	fx := &effects{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		category, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return translateStoreError(err, "Category")
		}
		children, err := tx.CountChildCategories(ctx, categoryID)
		if err != nil {
			return err
		}
		if children > 0 {
			return conflictError("Cannot delete a category that has subcategories", map[string]any{"subcategories": children})
		}
		documents, err := tx.CountCategoryDocuments(ctx, categoryID)
		if err != nil {
			return err
		}
		if documents > 0 {
			return conflictError("Cannot delete a category that contains documents", map[string]any{"documents": documents})
		}
		if err := tx.DeleteCategory(ctx, categoryID); err != nil {
			return translateStoreError(err, "Category")
		}
		fx.log(actor, "delete", "category", categoryID, "", map[string]any{"name": category.Name})
		return nil
	})
	if err != nil {
		return err
	}
	s.apply(fx)
	return nil
}

func (s *Service) CategoryStats(ctx context.Context, actor Actor) (CategoryStats, error) {
	if !actor.can(rbac.ActionManageCategories) {
		return CategoryStats{}, authorizationError("")
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return CategoryStats{}, fmt.Errorf("list categories: %w", err)
	}
	stats := CategoryStats{Total: len(categories), ByCategory: map[string]int{}}
	for _, c := range categories {
		if c.ParentID == nil {
			stats.Root++
		}
		stats.Documents += c.DocumentCount
		stats.ByCategory[c.Name] = c.DocumentCount
	}
	return stats, nil
}

func approvalRole(role string) (string, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return string(rbac.RolePresident), nil
	}
	if !rbac.Valid(role) {
		return "", validationError("Invalid required approval role", map[string]any{"required_approval_role": role})
	}
	return role, nil
}

// withPaths attaches "Parent > Child" paths. A broken parent chain stops
// the path where it breaks.
func withPaths(categories []store.Category) []CategoryView {
	byID := make(map[string]store.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	out := make([]CategoryView, 0, len(categories))
	for _, c := range categories {
		parts := []string{c.Name}
		seen := map[string]bool{c.ID: true}
		for p := c.ParentID; p != nil; {
			parent, ok := byID[*p]
			if !ok || seen[parent.ID] {
				break
			}
			seen[parent.ID] = true
			parts = append([]string{parent.Name}, parts...)
			p = parent.ParentID
		}
		out = append(out, CategoryView{Category: c, FullPath: strings.Join(parts, categoryPathSeparator)})
	}
	return out
}
