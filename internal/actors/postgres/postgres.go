package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/google/uuid"
	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/ports"
)

// PostgresDB is a postgres adapter for persistence. Partition membership is kept in
// separate tables (pending_users, active_users, deleted_users) keyed by user_id, and
// every lifecycle transition mutates them inside one transaction, so a concurrent
// reader never observes a user in two partitions or none.
type PostgresDB struct {
	db      *pg.DB
	nowFunc func() time.Time
}

// PostgresDBArgs are the mandatory arguments for the creation of a PostgresDB.
type PostgresDBArgs struct {
	// DB is a postgres database handle
	DB *pg.DB
}

// PostgresDBOptArgs are the optional arguments for building a PostgresDB.
type PostgresDBOptArgs = func(*PostgresDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) PostgresDBOptArgs {
	return func(p *PostgresDB) {
		p.nowFunc = nowFunc
	}
}

// NewPostgresDB creates a new PostgresDB.
func NewPostgresDB(args PostgresDBArgs, optArgs ...PostgresDBOptArgs) (*PostgresDB, error) {
	if args.DB == nil {
		return nil, errors.New("nil db handle")
	}
	p := &PostgresDB{db: args.DB, nowFunc: func() time.Time { return time.Now().UTC() }}
	for _, opt := range optArgs {
		opt(p)
	}
	return p, nil
}

var _ ports.Repository = (*PostgresDB)(nil)

// RegisterUser allocates the next user identity and stores the identity, profile,
// email and pending rows in one transaction.
func (p *PostgresDB) RegisterUser(ctx context.Context, user *model.PendingUser) error {
	if user == nil {
		return errors.New("nil user passed to register method")
	}

	return p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		var userID int64
		if _, err := tx.QueryOneContext(ctx, pg.Scan(&userID), "INSERT INTO users DEFAULT VALUES RETURNING user_id"); err != nil {
			return translateErr(err)
		}

		profile := &userProfileDB{
			UserID:      userID,
			Username:    user.Profile.Username,
			DisplayName: user.Profile.DisplayName,
		}
		if _, err := tx.ModelContext(ctx, profile).Insert(); err != nil {
			return translateErr(err)
		}

		for _, email := range user.Emails {
			if err := p.insertEmail(ctx, tx, userID, email); err != nil {
				return err
			}
		}

		pending := &pendingUserDB{
			UserID:          userID,
			ActivationToken: user.ActivationToken,
			ExpiresAt:       user.ExpiresAt,
		}
		if _, err := tx.ModelContext(ctx, pending).Insert(); err != nil {
			return translateErr(err)
		}

		user.ID = userID
		return nil
	})
}

// GetPendingUserByToken loads the pending user owning the activation token.
func (p *PostgresDB) GetPendingUserByToken(ctx context.Context, token uuid.UUID) (*model.PendingUser, error) {
	pending := new(pendingUserDB)
	err := p.db.ModelContext(ctx, pending).Where("activation_token = ?", token).Select()
	if err == pg.ErrNoRows {
		return nil, fmt.Errorf("no pending user with the given activation token: %w", model.ErrNotFound)
	} else if err != nil {
		return nil, translateErr(err)
	}

	profiles, err := p.loadProfiles(ctx, p.db, []int64{pending.UserID})
	if err != nil {
		return nil, err
	}
	emails, err := p.loadEmails(ctx, p.db, []int64{pending.UserID})
	if err != nil {
		return nil, err
	}

	return &model.PendingUser{
		ID:              pending.UserID,
		Profile:         profiles[pending.UserID],
		Emails:          emails[pending.UserID],
		ActivationToken: pending.ActivationToken,
		ExpiresAt:       pending.ExpiresAt,
	}, nil
}

// ActivateUser swaps the pending partition row for an active one. Profile and email
// rows are untouched.
func (p *PostgresDB) ActivateUser(ctx context.Context, userID int64) error {
	return p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		res, err := tx.ModelContext(ctx, (*pendingUserDB)(nil)).Where("user_id = ?", userID).Delete()
		if err != nil {
			return translateErr(err)
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("user %d is not pending: %w", userID, model.ErrNotFound)
		}
		if _, err := tx.ModelContext(ctx, &activeUserDB{UserID: userID}).Insert(); err != nil {
			return translateErr(err)
		}
		return nil
	})
}

// PurgePendingUser hard-deletes a pending user and all its rows. The pending row is
// deleted first and, when no such row exists, the purge is a no-op: the user either
// activated in the meantime or was already purged, and neither must be touched.
func (p *PostgresDB) PurgePendingUser(ctx context.Context, userID int64) error {
	return p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		res, err := tx.ModelContext(ctx, (*pendingUserDB)(nil)).Where("user_id = ?", userID).Delete()
		if err != nil {
			return translateErr(err)
		}
		if res.RowsAffected() == 0 {
			return nil
		}
		return p.purgeUserRows(ctx, tx, userID, true)
	})
}

// FindUser loads the user in its current partition variant.
func (p *PostgresDB) FindUser(ctx context.Context, userID int64) (model.User, error) {
	return p.findUser(ctx, p.db, userID)
}

// EmailExists reports whether the address is claimed by any user.
func (p *PostgresDB) EmailExists(ctx context.Context, address string) (bool, error) {
	exists, err := p.db.ModelContext(ctx, (*userEmailDB)(nil)).Where("email = ?", address).Exists()
	if err != nil {
		return false, translateErr(err)
	}
	return exists, nil
}

// PromoteToAdmin inserts the privilege row conditionally. ON CONFLICT DO NOTHING
// makes the check-then-act race-free: of two concurrent promotions exactly one
// inserts a row, the other observes zero affected rows.
func (p *PostgresDB) PromoteToAdmin(ctx context.Context, userID int64) error {
	return p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		active, err := tx.ModelContext(ctx, (*activeUserDB)(nil)).Where("user_id = ?", userID).Exists()
		if err != nil {
			return translateErr(err)
		}
		if !active {
			return fmt.Errorf("user %d is not active: %w", userID, model.ErrWrongState)
		}

		res, err := tx.ModelContext(ctx, &adminUserDB{UserID: userID}).OnConflict("DO NOTHING").Insert()
		if err != nil {
			return translateErr(err)
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("user %d is already an admin: %w", userID, model.ErrInvariantViolation)
		}
		return nil
	})
}

// DeleteActiveUser moves an active user to the deleted partition. The pre-purge
// snapshot is captured inside the transaction, written into the audit event and
// returned to the caller.
func (p *PostgresDB) DeleteActiveUser(ctx context.Context, query ports.DeleteActiveUserQuery) (*model.ActiveUser, error) {
	var snapshot *model.ActiveUser
	err := p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		user, err := p.findUser(ctx, tx, query.UserID)
		if err != nil {
			return err
		}
		active, ok := user.(model.ActiveUser)
		if !ok {
			if _, deleted := user.(model.DeletedUser); deleted {
				return fmt.Errorf("user %d is already deleted: %w", query.UserID, model.ErrWrongState)
			}
			return fmt.Errorf("user %d is not active: %w", query.UserID, model.ErrWrongState)
		}

		if _, err := tx.ModelContext(ctx, (*adminUserDB)(nil)).Where("user_id = ?", query.UserID).Delete(); err != nil {
			return translateErr(err)
		}
		res, err := tx.ModelContext(ctx, (*activeUserDB)(nil)).Where("user_id = ?", query.UserID).Delete()
		if err != nil {
			return translateErr(err)
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("user %d left the active partition concurrently: %w", query.UserID, model.ErrWrongState)
		}
		if err := p.purgeUserRows(ctx, tx, query.UserID, false); err != nil {
			return err
		}
		if _, err := tx.ModelContext(ctx, &deletedUserDB{UserID: query.UserID, DeletedAt: query.DeletedAt}).Insert(); err != nil {
			return translateErr(err)
		}

		if err := p.appendAuditEvent(ctx, tx, active, query); err != nil {
			return err
		}

		snapshot = &active
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// AddEmail inserts the address and, when requested, reassigns primary status to it
// in the same transaction.
func (p *PostgresDB) AddEmail(ctx context.Context, userID int64, email model.Email) error {
	return p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		return p.insertEmail(ctx, tx, userID, email)
	})
}

// RemoveEmail deletes the address from the user's email set.
func (p *PostgresDB) RemoveEmail(ctx context.Context, userID int64, address string) error {
	res, err := p.db.ModelContext(ctx, (*userEmailDB)(nil)).
		Where("user_id = ?", userID).
		Where("email = ?", address).
		Delete()
	if err != nil {
		return translateErr(err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("email %q not found on user %d: %w", address, userID, model.ErrNotFound)
	}
	return nil
}

// SetPrimaryEmail reassigns primary status to the address.
func (p *PostgresDB) SetPrimaryEmail(ctx context.Context, userID int64, address string) error {
	return p.setPrimary(ctx, p.db, userID, address)
}

func (p *PostgresDB) insertEmail(ctx context.Context, db orm.DB, userID int64, email model.Email) error {
	row := &userEmailDB{UserID: userID, Email: email.Address, CreatedAt: p.nowFunc()}
	if _, err := db.ModelContext(ctx, row).Insert(); err != nil {
		return translateErr(err)
	}
	if email.Primary {
		return p.setPrimary(ctx, db, userID, email.Address)
	}
	return nil
}

func (p *PostgresDB) setPrimary(ctx context.Context, db orm.DB, userID int64, address string) error {
	row := &userPrimaryEmailDB{UserID: userID, Email: address}
	if _, err := db.ModelContext(ctx, row).OnConflict("(user_id) DO UPDATE SET email = EXCLUDED.email").Insert(); err != nil {
		return translateErr(err)
	}
	return nil
}

// purgeUserRows deletes primary-email, email and profile rows. When dropIdentity is
// set the users row goes too: a pending purge removes the account entirely, while a
// deletion keeps the identity row because it persists in the deleted partition. The
// user_id sequence never decrements, so a dropped identity is never reused.
func (p *PostgresDB) purgeUserRows(ctx context.Context, db orm.DB, userID int64, dropIdentity bool) error {
	if _, err := db.ModelContext(ctx, (*userPrimaryEmailDB)(nil)).Where("user_id = ?", userID).Delete(); err != nil {
		return translateErr(err)
	}
	if _, err := db.ModelContext(ctx, (*userEmailDB)(nil)).Where("user_id = ?", userID).Delete(); err != nil {
		return translateErr(err)
	}
	if _, err := db.ModelContext(ctx, (*userProfileDB)(nil)).Where("user_id = ?", userID).Delete(); err != nil {
		return translateErr(err)
	}
	if dropIdentity {
		if _, err := db.ModelContext(ctx, (*userDB)(nil)).Where("user_id = ?", userID).Delete(); err != nil {
			return translateErr(err)
		}
	}
	return nil
}

func (p *PostgresDB) appendAuditEvent(ctx context.Context, db orm.DB, active model.ActiveUser, query ports.DeleteActiveUserQuery) error {
	snapshot := model.UserSnapshot{
		Username:    active.Profile.Username,
		DisplayName: active.Profile.DisplayName,
		Emails:      active.Emails,
	}
	info, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("error marshaling user snapshot: %w", err)
	}

	if query.AdminUserID != nil {
		ban := model.BanEvent{
			UserID:      query.UserID,
			AdminUserID: *query.AdminUserID,
			UserInfo:    snapshot,
			Reason:      query.BanReason,
			BannedAt:    query.DeletedAt,
		}
		row := &userBanEventDB{
			UserID:        ban.UserID,
			AdminUserID:   ban.AdminUserID,
			UserInfoAtBan: string(info),
			BanReason:     ban.Reason,
			BannedAt:      ban.BannedAt,
		}
		if _, err := db.ModelContext(ctx, row).Insert(); err != nil {
			return translateErr(err)
		}
		return nil
	}

	deletion := model.DeletionEvent{
		UserID:    query.UserID,
		UserInfo:  snapshot,
		DeletedAt: query.DeletedAt,
	}
	row := &userDeletionEventDB{
		UserID:             deletion.UserID,
		UserInfoAtDeletion: string(info),
		DeletedAt:          deletion.DeletedAt,
	}
	if _, err := db.ModelContext(ctx, row).Insert(); err != nil {
		return translateErr(err)
	}
	return nil
}

// findUser classifies the identity by partition membership and hydrates the
// corresponding variant.
func (p *PostgresDB) findUser(ctx context.Context, db orm.DB, userID int64) (model.User, error) {
	exists, err := db.ModelContext(ctx, (*userDB)(nil)).Where("user_id = ?", userID).Exists()
	if err != nil {
		return nil, translateErr(err)
	}
	if !exists {
		return nil, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}

	deleted := new(deletedUserDB)
	err = db.ModelContext(ctx, deleted).Where("user_id = ?", userID).Select()
	if err == nil {
		return model.DeletedUser{ID: userID, DeletedAt: deleted.DeletedAt}, nil
	} else if err != pg.ErrNoRows {
		return nil, translateErr(err)
	}

	profiles, err := p.loadProfiles(ctx, db, []int64{userID})
	if err != nil {
		return nil, err
	}
	emails, err := p.loadEmails(ctx, db, []int64{userID})
	if err != nil {
		return nil, err
	}

	pending := new(pendingUserDB)
	err = db.ModelContext(ctx, pending).Where("user_id = ?", userID).Select()
	if err == nil {
		return model.PendingUser{
			ID:              userID,
			Profile:         profiles[userID],
			Emails:          emails[userID],
			ActivationToken: pending.ActivationToken,
			ExpiresAt:       pending.ExpiresAt,
		}, nil
	} else if err != pg.ErrNoRows {
		return nil, translateErr(err)
	}

	active, err := db.ModelContext(ctx, (*activeUserDB)(nil)).Where("user_id = ?", userID).Exists()
	if err != nil {
		return nil, translateErr(err)
	}
	if !active {
		return nil, fmt.Errorf("user %d belongs to no partition: %w", userID, model.ErrNotFound)
	}
	admin, err := db.ModelContext(ctx, (*adminUserDB)(nil)).Where("user_id = ?", userID).Exists()
	if err != nil {
		return nil, translateErr(err)
	}

	return model.ActiveUser{
		ID:      userID,
		Profile: profiles[userID],
		Emails:  emails[userID],
		Admin:   admin,
	}, nil
}

// translateErr maps constraint violations onto the domain invariant error; anything
// else propagates as a store failure.
func translateErr(err error) error {
	var pgErr pg.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return fmt.Errorf("constraint violated: %v: %w", err, model.ErrInvariantViolation)
	}
	return err
}

type userDB struct {
	tableName struct{} `pg:"users"`

	// UserID is the user identity. Allocated by the user_id sequence.
	UserID int64 `pg:"user_id,pk"`
}

type userProfileDB struct {
	tableName struct{} `pg:"user_profiles"`

	UserID      int64  `pg:"user_id,pk"`
	Username    string `pg:"username"`
	DisplayName string `pg:"display_name"`
}

type userEmailDB struct {
	tableName struct{} `pg:"user_emails"`

	UserID    int64     `pg:"user_id"`
	Email     string    `pg:"email,pk"`
	CreatedAt time.Time `pg:"created_at"`
}

type userPrimaryEmailDB struct {
	tableName struct{} `pg:"user_primary_emails"`

	UserID int64  `pg:"user_id,pk"`
	Email  string `pg:"email"`
}

type pendingUserDB struct {
	tableName struct{} `pg:"pending_users"`

	UserID          int64     `pg:"user_id,pk"`
	ActivationToken uuid.UUID `pg:"activation_token,type:uuid"`
	ExpiresAt       time.Time `pg:"expires_at"`
}

type activeUserDB struct {
	tableName struct{} `pg:"active_users"`

	UserID int64 `pg:"user_id,pk"`
}

type adminUserDB struct {
	tableName struct{} `pg:"admin_users"`

	UserID int64 `pg:"user_id,pk"`
}

type deletedUserDB struct {
	tableName struct{} `pg:"deleted_users"`

	UserID    int64     `pg:"user_id,pk"`
	DeletedAt time.Time `pg:"deleted_at"`
}

type userDeletionEventDB struct {
	tableName struct{} `pg:"user_deletion_events"`

	ID                 int64     `pg:"id,pk"`
	UserID             int64     `pg:"user_id"`
	UserInfoAtDeletion string    `pg:"user_info_at_deletion,type:jsonb"`
	DeletedAt          time.Time `pg:"deleted_at"`
}

type userBanEventDB struct {
	tableName struct{} `pg:"user_ban_events"`

	ID            int64     `pg:"id,pk"`
	UserID        int64     `pg:"user_id"`
	AdminUserID   int64     `pg:"admin_user_id"`
	UserInfoAtBan string    `pg:"user_info_at_ban,type:jsonb"`
	BanReason     string    `pg:"ban_reason"`
	BannedAt      time.Time `pg:"banned_at"`
}
