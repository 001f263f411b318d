package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpos/restobill/internal/domain/voucher"
)

const getVoucherByCodeSQL = `SELECT code, discount_type, value, start_date, end_date, status
	FROM vouchers WHERE UPPER(code) = UPPER($1)`

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository backed by PostgreSQL.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// FindByCode looks up a voucher by its code (case-insensitive).
// Returns voucher.ErrNotFound when no voucher exists for the code; status
// and window checks are the validator's job, so inactive vouchers are
// returned as-is.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	rows, err := r.pool.Query(ctx, getVoucherByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding voucher by code %q: %w", code, err)
	}

	vc, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrNotFound
		}
		return nil, fmt.Errorf("finding voucher by code %q: %w", code, err)
	}
	return &vc, nil
}

func scanVoucher(row pgx.CollectableRow) (voucher.Voucher, error) {
	var (
		vc           voucher.Voucher
		discountType string
		status       string
	)
	err := row.Scan(&vc.Code, &discountType, &vc.Value, &vc.StartDate, &vc.EndDate, &status)
	vc.Type = voucher.Type(discountType)
	vc.Status = voucher.Status(status)
	return vc, err
}
