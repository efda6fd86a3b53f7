package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/pagination"
	"github.com/rbroggi/userdir/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// defaultSweepBatchSize is the listing batch of one sweep run.
const defaultSweepBatchSize = 200

// HouseKeeperArgs contains the mandatory arguments for the HouseKeeper.
type HouseKeeperArgs struct {
	// Repository is the repository for persistence operations.
	Repository ports.Repository
}

// HouseKeeperOptArgs are the optional arguments for building a HouseKeeper.
type HouseKeeperOptArgs = func(*HouseKeeper)

// WithHouseKeeperNowFunc overrides the clock. Useful for testing.
func WithHouseKeeperNowFunc(nowFunc func() time.Time) HouseKeeperOptArgs {
	return func(h *HouseKeeper) {
		h.nowFunc = nowFunc
	}
}

// WithSweepBatchSize overrides the listing batch size.
func WithSweepBatchSize(size int) HouseKeeperOptArgs {
	return func(h *HouseKeeper) {
		h.batchSize = size
	}
}

// NewHouseKeeper creates a new HouseKeeper.
func NewHouseKeeper(args HouseKeeperArgs, optArgs ...HouseKeeperOptArgs) *HouseKeeper {
	h := &HouseKeeper{
		repository: args.Repository,
		nowFunc:    func() time.Time { return time.Now().UTC() },
		batchSize:  defaultSweepBatchSize,
	}
	for _, opt := range optArgs {
		opt(h)
	}
	return h
}

// HouseKeeper hard-deletes pending users whose activation window has elapsed. Each
// purge is its own atomic unit, so one failing user does not block the cleanup of
// the rest; failures are logged and picked up again by the next run. Purges are
// idempotent: a user that activated or was already purged between the listing and
// the delete attempt is a no-op.
type HouseKeeper struct {
	repository ports.Repository
	nowFunc    func() time.Time
	batchSize  int
}

// CleanUpPendingUsers runs one sweep over the pending partition.
func (h *HouseKeeper) CleanUpPendingUsers(ctx context.Context) error {
	log.Info("cleaning up pending users")

	rows, err := h.repository.ListUsers(ctx, ports.ListUsersQuery{
		Variant: model.VariantPending,
		PageRequest: pagination.PageRequest{
			PageSize:   h.batchSize,
			Navigation: pagination.NavigationNext,
		},
	})
	if err != nil {
		return fmt.Errorf("error listing pending users: %w", err)
	}

	now := h.nowFunc()
	purged := 0
	for _, row := range rows {
		pending, ok := row.(model.PendingUser)
		if !ok {
			log.WithField("user_id", row.UserID()).Error("pending listing returned a non-pending user")
			continue
		}
		if !pending.Expired(now) {
			continue
		}
		if err := h.repository.PurgePendingUser(ctx, pending.ID); err != nil {
			log.WithError(err).WithField("user_id", pending.ID).Error("error purging expired pending user")
			continue
		}
		purged++
	}

	log.WithField("purged", purged).Info("pending user cleanup finished")
	return nil
}
