package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/invoice"
)

type familyRepository struct {
	db *DB
}

var _ family.Repository = (*familyRepository)(nil) // interface compliance check

func NewFamilyRepository(db *DB) family.Repository {
	return &familyRepository{db: db}
}

func parentFields(p family.ParentProfile) record {
	return record{
		"id":         p.ID,
		"user_id":    p.UserID,
		"name":       p.Name,
		"email":      p.Email,
		"phone":      p.Phone,
		"status":     p.Status,
		"created_at": p.CreatedAt,
	}
}

func childFields(c family.ChildProfile) record {
	return record{
		"id":                c.ID,
		"parent_profile_id": c.ParentProfileID,
		"name":              c.Name,
		"date_of_birth":     c.DateOfBirth,
		"gender":            c.Gender,
		"status":            c.Status,
		"created_at":        c.CreatedAt,
	}
}

func (t *tables) childrenOf(parentID string) []family.ChildProfile {
	children := []family.ChildProfile{}
	for _, c := range t.children {
		if c.ParentProfileID == parentID {
			children = append(children, c)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Name != children[j].Name {
			return children[i].Name < children[j].Name
		}
		return children[i].ID < children[j].ID
	})
	return children
}

func (t *tables) childWithParent(c family.ChildProfile) family.ChildProfile {
	if p, ok := t.parents[c.ParentProfileID]; ok {
		c.Parent = &p
	}
	return c
}

func (repo *familyRepository) CreateParent(ctx context.Context, p family.ParentProfile) (family.ParentProfile, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		p.ID = uuid.New().String()
		p.Children = nil
		t.parents[p.ID] = p
		return nil
	})
	return p, err
}

func (repo *familyRepository) UpdateParent(ctx context.Context, p family.ParentProfile) (family.ParentProfile, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.parents[p.ID]; !ok {
			return family.ErrParentNotFound
		}
		p.Children = nil
		t.parents[p.ID] = p
		return nil
	})
	return p, err
}

func (repo *familyRepository) DeleteParent(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.parents[id]; !ok {
			return family.ErrParentNotFound
		}
		delete(t.parents, id)
		return nil
	})
}

func (repo *familyRepository) GetParent(ctx context.Context, id string) (family.ParentProfile, error) {
	var p family.ParentProfile
	err := repo.db.view(ctx, func(t *tables) error {
		var ok bool
		if p, ok = t.parents[id]; !ok {
			return family.ErrParentNotFound
		}
		p.Children = t.childrenOf(id)
		return nil
	})
	return p, err
}

func (repo *familyRepository) GetParentByUser(ctx context.Context, userID string) (family.ParentProfile, error) {
	var found family.ParentProfile
	err := repo.db.view(ctx, func(t *tables) error {
		if userID == "" {
			return family.ErrParentNotFound
		}
		for _, p := range t.parents {
			if p.UserID == userID {
				found = p
				found.Children = t.childrenOf(p.ID)
				return nil
			}
		}
		return family.ErrParentNotFound
	})
	return found, err
}

func (repo *familyRepository) QueryParents(ctx context.Context, q core.Query) (parents []family.ParentProfile, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		if parents, total, err = run(values(t.parents), parentFields, q); err != nil {
			return err
		}
		if q.Includes("children") {
			for i := range parents {
				parents[i].Children = t.childrenOf(parents[i].ID)
			}
		}
		return nil
	})
	return parents, total, err
}

func (repo *familyRepository) CountChildren(ctx context.Context, parentID string) (int, error) {
	var n int
	err := repo.db.view(ctx, func(t *tables) error {
		n = count(t.children, func(c family.ChildProfile) bool { return c.ParentProfileID == parentID })
		return nil
	})
	return n, err
}

func (repo *familyRepository) CreateChild(ctx context.Context, c family.ChildProfile) (family.ChildProfile, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		c.ID = uuid.New().String()
		c.Parent = nil
		t.children[c.ID] = c
		return nil
	})
	return c, err
}

func (repo *familyRepository) UpdateChild(ctx context.Context, c family.ChildProfile) (family.ChildProfile, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.children[c.ID]; !ok {
			return family.ErrChildNotFound
		}
		c.Parent = nil
		t.children[c.ID] = c
		return nil
	})
	return c, err
}

func (repo *familyRepository) DeleteChild(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.children[id]; !ok {
			return family.ErrChildNotFound
		}
		delete(t.children, id)
		return nil
	})
}

func (repo *familyRepository) GetChild(ctx context.Context, id string) (family.ChildProfile, error) {
	var c family.ChildProfile
	err := repo.db.view(ctx, func(t *tables) error {
		var ok bool
		if c, ok = t.children[id]; !ok {
			return family.ErrChildNotFound
		}
		c = t.childWithParent(c)
		return nil
	})
	return c, err
}

func (repo *familyRepository) QueryChildren(ctx context.Context, q core.Query) (children []family.ChildProfile, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		if children, total, err = run(values(t.children), childFields, q); err != nil {
			return err
		}
		if q.Includes("parent") {
			for i := range children {
				children[i] = t.childWithParent(children[i])
			}
		}
		return nil
	})
	return children, total, err
}

func (repo *familyRepository) CountChildDependents(ctx context.Context, id string) (map[string]int, error) {
	deps := make(map[string]int, 3)
	err := repo.db.view(ctx, func(t *tables) error {
		deps["invoice"] = count(t.invoices, func(inv invoice.Invoice) bool { return inv.ChildID == id })
		deps["enrollment"] = count(t.enrollments, func(e enrollment.Enrollment) bool { return e.ChildID == id })
		deps["attendance record"] = count(t.attendances, func(a attendance.Attendance) bool { return a.ChildID == id })
		return nil
	})
	return deps, err
}
