package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/family"
)

const (
	parentProfilesTable = "parent_profiles"
	childProfilesTable  = "child_profiles"
)

var (
	parentProfileColumns = qualified(parentProfilesTable,
		"user_id", "name", "email", "phone", "address", "status", "created_at", "updated_at")
	childProfileColumns = qualified(childProfilesTable,
		"parent_profile_id", "name", "date_of_birth", "gender", "status", "created_at", "updated_at")
)

type parentProfileRow struct {
	ID        string      `db:"id"`
	UserID    null.String `db:"user_id"`
	Name      string      `db:"name"`
	Email     string      `db:"email"`
	Phone     string      `db:"phone"`
	Address   string      `db:"address"`
	Status    string      `db:"status"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r parentProfileRow) parent() family.ParentProfile {
	return family.ParentProfile{
		ID:        r.ID,
		UserID:    r.UserID.String,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Address:   r.Address,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type childProfileRow struct {
	ID              string    `db:"id"`
	ParentProfileID string    `db:"parent_profile_id"`
	Name            string    `db:"name"`
	DateOfBirth     core.Date `db:"date_of_birth"`
	Gender          string    `db:"gender"`
	Status          string    `db:"status"`
	PhotoPath       string    `db:"photo_path"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r childProfileRow) child() family.ChildProfile {
	return family.ChildProfile{
		ID:              r.ID,
		ParentProfileID: r.ParentProfileID,
		Name:            r.Name,
		DateOfBirth:     r.DateOfBirth,
		Gender:          r.Gender,
		Status:          r.Status,
		PhotoPath:       r.PhotoPath,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type familyRepository struct {
	base
}

var _ family.Repository = (*familyRepository)(nil) // interface compliance check

func NewFamilyRepository(db *sqlx.DB) *familyRepository {
	return &familyRepository{base{db: db}}
}

// Parents

func (repo familyRepository) CreateParent(ctx context.Context, p family.ParentProfile) (family.ParentProfile, error) {
	p.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(parentProfilesTable).
		Columns("id", "user_id", "name", "email", "phone", "address", "status", "created_at", "updated_at").
		Values(p.ID, null.NewString(p.UserID, p.UserID != ""), p.Name, p.Email, p.Phone, p.Address, p.Status,
			p.CreatedAt.UTC(), p.UpdatedAt.UTC()))
	if err != nil {
		return family.ParentProfile{}, errors.Wrap(err, "inserting parent")
	}
	return p, nil
}

func (repo familyRepository) UpdateParent(ctx context.Context, p family.ParentProfile) (family.ParentProfile, error) {
	err := repo.runOne(ctx, psql.Update(parentProfilesTable).SetMap(map[string]interface{}{
		"user_id":    null.NewString(p.UserID, p.UserID != ""),
		"name":       p.Name,
		"email":      p.Email,
		"phone":      p.Phone,
		"address":    p.Address,
		"status":     p.Status,
		"updated_at": p.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": p.ID}), family.ErrParentNotFound)
	if err != nil {
		return family.ParentProfile{}, notFound(err, family.ErrParentNotFound, "updating parent")
	}
	p.Children = nil
	return p, nil
}

func (repo familyRepository) DeleteParent(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Delete(parentProfilesTable).Where(sq.Eq{"id": id}), family.ErrParentNotFound)
	return notFound(err, family.ErrParentNotFound, "deleting parent")
}

func (repo familyRepository) getParent(ctx context.Context, cond sq.Sqlizer) (family.ParentProfile, error) {
	var row parentProfileRow
	if err := repo.get(ctx, &row, psql.Select("*").From(parentProfilesTable).Where(cond)); err != nil {
		return family.ParentProfile{}, notFound(err, family.ErrParentNotFound, "getting parent")
	}
	parents := []family.ParentProfile{row.parent()}
	if err := repo.loadChildren(ctx, parents); err != nil {
		return family.ParentProfile{}, err
	}
	return parents[0], nil
}

func (repo familyRepository) GetParent(ctx context.Context, id string) (family.ParentProfile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return family.ParentProfile{}, family.ErrParentNotFound
	}
	return repo.getParent(ctx, sq.Eq{"id": id})
}

func (repo familyRepository) GetParentByUser(ctx context.Context, userID string) (family.ParentProfile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return family.ParentProfile{}, family.ErrParentNotFound
	}
	return repo.getParent(ctx, sq.Eq{"user_id": userID})
}

func (repo familyRepository) QueryParents(ctx context.Context, q core.Query) ([]family.ParentProfile, int, error) {
	var rows []parentProfileRow
	total, err := repo.page(ctx, parentProfilesTable, parentProfileColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying parents")
	}
	parents := make([]family.ParentProfile, 0, len(rows))
	for _, row := range rows {
		parents = append(parents, row.parent())
	}
	if q.Includes("children") {
		if err = repo.loadChildren(ctx, parents); err != nil {
			return nil, 0, err
		}
	}
	return parents, total, nil
}

// loadChildren eager-loads the children of parents with one query.
func (repo familyRepository) loadChildren(ctx context.Context, parents []family.ParentProfile) error {
	parentIDs := distinct(parents, func(p family.ParentProfile) string { return p.ID })
	if len(parentIDs) == 0 {
		return nil
	}
	var rows []childProfileRow
	err := repo.selectAll(ctx, &rows, psql.Select("*").From(childProfilesTable).
		Where(sq.Eq{"parent_profile_id": parentIDs}).
		OrderBy("name ASC", "id ASC"))
	if err != nil {
		return errors.Wrap(err, "loading children")
	}
	byParent := make(map[string][]family.ChildProfile, len(parentIDs))
	for _, row := range rows {
		byParent[row.ParentProfileID] = append(byParent[row.ParentProfileID], row.child())
	}
	for i := range parents {
		parents[i].Children = byParent[parents[i].ID]
		if parents[i].Children == nil {
			parents[i].Children = []family.ChildProfile{}
		}
	}
	return nil
}

func (repo familyRepository) CountChildren(ctx context.Context, parentID string) (int, error) {
	return repo.count(ctx, childProfilesTable, sq.Eq{"parent_profile_id": parentID})
}

// Children

func (repo familyRepository) CreateChild(ctx context.Context, c family.ChildProfile) (family.ChildProfile, error) {
	c.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(childProfilesTable).
		Columns("id", "parent_profile_id", "name", "date_of_birth", "gender", "status", "photo_path", "created_at", "updated_at").
		Values(c.ID, c.ParentProfileID, c.Name, c.DateOfBirth, c.Gender, c.Status, c.PhotoPath,
			c.CreatedAt.UTC(), c.UpdatedAt.UTC()))
	if err != nil {
		return family.ChildProfile{}, errors.Wrap(err, "inserting child")
	}
	return c, nil
}

func (repo familyRepository) UpdateChild(ctx context.Context, c family.ChildProfile) (family.ChildProfile, error) {
	err := repo.runOne(ctx, psql.Update(childProfilesTable).SetMap(map[string]interface{}{
		"parent_profile_id": c.ParentProfileID,
		"name":              c.Name,
		"date_of_birth":     c.DateOfBirth,
		"gender":            c.Gender,
		"status":            c.Status,
		"photo_path":        c.PhotoPath,
		"updated_at":        c.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": c.ID}), family.ErrChildNotFound)
	if err != nil {
		return family.ChildProfile{}, notFound(err, family.ErrChildNotFound, "updating child")
	}
	c.Parent = nil
	return c, nil
}

func (repo familyRepository) DeleteChild(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Delete(childProfilesTable).Where(sq.Eq{"id": id}), family.ErrChildNotFound)
	return notFound(err, family.ErrChildNotFound, "deleting child")
}

func (repo familyRepository) GetChild(ctx context.Context, id string) (family.ChildProfile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return family.ChildProfile{}, family.ErrChildNotFound
	}
	var row childProfileRow
	if err := repo.get(ctx, &row, psql.Select("*").From(childProfilesTable).Where(sq.Eq{"id": id})); err != nil {
		return family.ChildProfile{}, notFound(err, family.ErrChildNotFound, "getting child")
	}
	children := []family.ChildProfile{row.child()}
	if err := repo.loadParents(ctx, children); err != nil {
		return family.ChildProfile{}, err
	}
	return children[0], nil
}

func (repo familyRepository) QueryChildren(ctx context.Context, q core.Query) ([]family.ChildProfile, int, error) {
	var rows []childProfileRow
	total, err := repo.page(ctx, childProfilesTable, childProfileColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying children")
	}
	children := make([]family.ChildProfile, 0, len(rows))
	for _, row := range rows {
		children = append(children, row.child())
	}
	if q.Includes("parent") {
		if err = repo.loadParents(ctx, children); err != nil {
			return nil, 0, err
		}
	}
	return children, total, nil
}

// loadParents eager-loads the parent of children with one query.
func (repo familyRepository) loadParents(ctx context.Context, children []family.ChildProfile) error {
	parentIDs := distinct(children, func(c family.ChildProfile) string { return c.ParentProfileID })
	if len(parentIDs) == 0 {
		return nil
	}
	var rows []parentProfileRow
	if err := repo.selectAll(ctx, &rows, psql.Select("*").From(parentProfilesTable).Where(sq.Eq{"id": parentIDs})); err != nil {
		return errors.Wrap(err, "loading parents")
	}
	parents := make(map[string]family.ParentProfile, len(rows))
	for _, row := range rows {
		parents[row.ID] = row.parent()
	}
	for i := range children {
		if p, ok := parents[children[i].ParentProfileID]; ok {
			children[i].Parent = &p
		}
	}
	return nil
}

// childrenByID batch-loads children for eager loading.
func (repo familyRepository) childrenByID(ctx context.Context, ids []string) (map[string]family.ChildProfile, error) {
	children := make(map[string]family.ChildProfile, len(ids))
	if len(ids) == 0 {
		return children, nil
	}
	var rows []childProfileRow
	if err := repo.selectAll(ctx, &rows, psql.Select("*").From(childProfilesTable).Where(sq.Eq{"id": ids})); err != nil {
		return nil, errors.Wrap(err, "loading children")
	}
	for _, row := range rows {
		children[row.ID] = row.child()
	}
	return children, nil
}

func (repo familyRepository) CountChildDependents(ctx context.Context, id string) (map[string]int, error) {
	deps := make(map[string]int, 3)
	for name, table := range map[string]string{
		"invoice":           invoicesTable,
		"enrollment":        enrollmentsTable,
		"attendance record": attendancesTable,
	} {
		n, err := repo.count(ctx, table, sq.Eq{"child_id": id})
		if err != nil {
			return nil, errors.Wrapf(err, "counting %ss", name)
		}
		deps[name] = n
	}
	return deps, nil
}
