package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves a voucher code and checks that it is redeemable today.
type Validator interface {
	Validate(ctx context.Context, code string) (*Voucher, error)
}

// RepoValidator implements Validator by looking up vouchers from a Repository
// and checking status and validity window against the current calendar date.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the voucher for the given code and checks, in order:
// existence (ErrNotFound), status (ErrInactive), and the validity window
// (ErrNotStarted / ErrExpired). Window comparison uses calendar dates only;
// the time-of-day component is discarded.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Voucher, error) {
	vc, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup voucher")
	}

	if vc.Status != StatusActive {
		return nil, ErrInactive
	}

	today := truncateToDate(v.now())
	if today.Before(truncateToDate(vc.StartDate)) {
		return nil, ErrNotStarted
	}
	if today.After(truncateToDate(vc.EndDate)) {
		return nil, ErrExpired
	}

	return vc, nil
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
