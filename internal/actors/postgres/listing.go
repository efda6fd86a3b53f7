package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/pagination"
	"github.com/rbroggi/userdir/internal/core/ports"
)

// ListUsers fetches one keyset page of the requested variant: up to pageSize+1 rows
// bounded by the cursor, returned in descending identity order. For Previous
// navigation the rows are fetched in ascending order (the ones closest above the
// cursor) and reversed before returning. Trimming the probe row and computing the
// page flags is the pagination package's job.
func (p *PostgresDB) ListUsers(ctx context.Context, query ports.ListUsersQuery) ([]model.User, error) {
	req := query.PageRequest

	ids, err := p.listIDs(ctx, query.Variant, req)
	if err != nil {
		return nil, err
	}
	if req.Navigation == pagination.NavigationPrevious {
		reverse(ids)
	}
	if len(ids) == 0 {
		return []model.User{}, nil
	}

	switch query.Variant {
	case model.VariantPending:
		return p.assemblePending(ctx, ids)
	case model.VariantActive:
		return p.assembleActive(ctx, ids)
	case model.VariantDeleted:
		return p.assembleDeleted(ctx, ids)
	case model.VariantAny:
		return p.assembleAny(ctx, ids)
	default:
		return nil, fmt.Errorf("unknown variant %q: %w", query.Variant, model.ErrInvalidInput)
	}
}

// listIDs runs the keyset query against the partition table of the variant.
func (p *PostgresDB) listIDs(ctx context.Context, variant model.Variant, req pagination.PageRequest) ([]int64, error) {
	var table interface{}
	switch variant {
	case model.VariantPending:
		table = (*pendingUserDB)(nil)
	case model.VariantActive:
		table = (*activeUserDB)(nil)
	case model.VariantDeleted:
		table = (*deletedUserDB)(nil)
	case model.VariantAny:
		table = (*userDB)(nil)
	default:
		return nil, fmt.Errorf("unknown variant %q: %w", variant, model.ErrInvalidInput)
	}

	q := p.db.ModelContext(ctx, table).Column("user_id").Limit(req.PageSize + 1)
	if req.Navigation == pagination.NavigationPrevious {
		if req.Cursor != nil {
			q = q.Where("user_id > ?", *req.Cursor)
		}
		q = q.Order("user_id ASC")
	} else {
		if req.Cursor != nil {
			q = q.Where("user_id < ?", *req.Cursor)
		}
		q = q.Order("user_id DESC")
	}

	var ids []int64
	if err := q.Select(&ids); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	return ids, nil
}

func (p *PostgresDB) assemblePending(ctx context.Context, ids []int64) ([]model.User, error) {
	var rows []pendingUserDB
	if err := p.db.ModelContext(ctx, &rows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	byID := make(map[int64]pendingUserDB, len(rows))
	for _, row := range rows {
		byID[row.UserID] = row
	}

	profiles, emails, err := p.loadProfilesAndEmails(ctx, ids)
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			continue
		}
		users = append(users, model.PendingUser{
			ID:              id,
			Profile:         profiles[id],
			Emails:          emails[id],
			ActivationToken: row.ActivationToken,
			ExpiresAt:       row.ExpiresAt,
		})
	}
	return users, nil
}

func (p *PostgresDB) assembleActive(ctx context.Context, ids []int64) ([]model.User, error) {
	admins, err := p.loadAdminSet(ctx, ids)
	if err != nil {
		return nil, err
	}
	profiles, emails, err := p.loadProfilesAndEmails(ctx, ids)
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, model.ActiveUser{
			ID:      id,
			Profile: profiles[id],
			Emails:  emails[id],
			Admin:   admins[id],
		})
	}
	return users, nil
}

func (p *PostgresDB) assembleDeleted(ctx context.Context, ids []int64) ([]model.User, error) {
	var rows []deletedUserDB
	if err := p.db.ModelContext(ctx, &rows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	byID := make(map[int64]deletedUserDB, len(rows))
	for _, row := range rows {
		byID[row.UserID] = row
	}

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			continue
		}
		users = append(users, model.DeletedUser{ID: id, DeletedAt: row.DeletedAt})
	}
	return users, nil
}

// assembleAny classifies each identity by batch-loading every partition table and
// hydrates the matching variant per id, preserving the listing order.
func (p *PostgresDB) assembleAny(ctx context.Context, ids []int64) ([]model.User, error) {
	var pendingRows []pendingUserDB
	if err := p.db.ModelContext(ctx, &pendingRows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	pendingByID := make(map[int64]pendingUserDB, len(pendingRows))
	for _, row := range pendingRows {
		pendingByID[row.UserID] = row
	}

	var deletedRows []deletedUserDB
	if err := p.db.ModelContext(ctx, &deletedRows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	deletedByID := make(map[int64]deletedUserDB, len(deletedRows))
	for _, row := range deletedRows {
		deletedByID[row.UserID] = row
	}

	var activeRows []activeUserDB
	if err := p.db.ModelContext(ctx, &activeRows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	activeSet := make(map[int64]bool, len(activeRows))
	for _, row := range activeRows {
		activeSet[row.UserID] = true
	}

	admins, err := p.loadAdminSet(ctx, ids)
	if err != nil {
		return nil, err
	}
	profiles, emails, err := p.loadProfilesAndEmails(ctx, ids)
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		switch {
		case activeSet[id]:
			users = append(users, model.ActiveUser{ID: id, Profile: profiles[id], Emails: emails[id], Admin: admins[id]})
		case pendingByID[id].UserID == id:
			row := pendingByID[id]
			users = append(users, model.PendingUser{ID: id, Profile: profiles[id], Emails: emails[id], ActivationToken: row.ActivationToken, ExpiresAt: row.ExpiresAt})
		case deletedByID[id].UserID == id:
			users = append(users, model.DeletedUser{ID: id, DeletedAt: deletedByID[id].DeletedAt})
		}
	}
	return users, nil
}

func (p *PostgresDB) loadAdminSet(ctx context.Context, ids []int64) (map[int64]bool, error) {
	var rows []adminUserDB
	if err := p.db.ModelContext(ctx, &rows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	admins := make(map[int64]bool, len(rows))
	for _, row := range rows {
		admins[row.UserID] = true
	}
	return admins, nil
}

func (p *PostgresDB) loadProfilesAndEmails(ctx context.Context, ids []int64) (map[int64]model.UserProfile, map[int64][]model.Email, error) {
	profiles, err := p.loadProfiles(ctx, p.db, ids)
	if err != nil {
		return nil, nil, err
	}
	emails, err := p.loadEmails(ctx, p.db, ids)
	if err != nil {
		return nil, nil, err
	}
	return profiles, emails, nil
}

func (p *PostgresDB) loadProfiles(ctx context.Context, db orm.DB, ids []int64) (map[int64]model.UserProfile, error) {
	var rows []userProfileDB
	if err := db.ModelContext(ctx, &rows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	profiles := make(map[int64]model.UserProfile, len(rows))
	for _, row := range rows {
		profiles[row.UserID] = model.UserProfile{Username: row.Username, DisplayName: row.DisplayName}
	}
	return profiles, nil
}

// loadEmails returns each user's email set with the primary flag applied, primary
// first and then by creation order, matching what the directory surfaces render.
func (p *PostgresDB) loadEmails(ctx context.Context, db orm.DB, ids []int64) (map[int64][]model.Email, error) {
	var rows []userEmailDB
	if err := db.ModelContext(ctx, &rows).WhereIn("user_id IN (?)", ids).Order("created_at ASC").Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}

	var primaryRows []userPrimaryEmailDB
	if err := db.ModelContext(ctx, &primaryRows).WhereIn("user_id IN (?)", ids).Select(); err != nil && err != pg.ErrNoRows {
		return nil, translateErr(err)
	}
	primary := make(map[int64]string, len(primaryRows))
	for _, row := range primaryRows {
		primary[row.UserID] = row.Email
	}

	emails := make(map[int64][]model.Email, len(ids))
	for _, row := range rows {
		emails[row.UserID] = append(emails[row.UserID], model.Email{
			Address: row.Email,
			Primary: primary[row.UserID] == row.Email,
		})
	}
	for id := range emails {
		set := emails[id]
		sort.SliceStable(set, func(i, j int) bool {
			return set[i].Primary && !set[j].Primary
		})
	}
	return emails, nil
}

func reverse(ids []int64) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
