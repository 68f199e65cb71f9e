package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupons map[string]*Coupon
	findErr error
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCouponRepo) IncrementUsage(_ context.Context, _ string) error {
	return nil
}

func TestValidate_UnknownCode(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{coupons: map[string]*Coupon{}})

	_, err := v.Validate(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidate_Expired(t *testing.T) {
	expiry := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockCouponRepo{coupons: map[string]*Coupon{
		"summer": {Code: "summer", DiscountType: DiscountPercent, ExpiresAt: &expiry},
	}}
	v := NewRepoValidator(repo)
	v.now = func() time.Time { return expiry.Add(time.Hour) }

	_, err := v.Validate(context.Background(), "summer")
	require.ErrorIs(t, err, ErrExpired)
}

func TestValidate_NotYetExpired(t *testing.T) {
	expiry := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockCouponRepo{coupons: map[string]*Coupon{
		"summer": {Code: "summer", DiscountType: DiscountPercent, ExpiresAt: &expiry},
	}}
	v := NewRepoValidator(repo)
	v.now = func() time.Time { return expiry.Add(-time.Hour) }

	c, err := v.Validate(context.Background(), "summer")
	require.NoError(t, err)
	assert.Equal(t, "summer", c.Code)
}

func TestValidate_UsageLimit(t *testing.T) {
	repo := &mockCouponRepo{coupons: map[string]*Coupon{
		"limited":   {Code: "limited", UsageLimit: 5, UsageCount: 5},
		"remaining": {Code: "remaining", UsageLimit: 5, UsageCount: 4},
		"unlimited": {Code: "unlimited", UsageLimit: 0, UsageCount: 1000},
	}}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "limited")
	require.ErrorIs(t, err, ErrUsageLimitReached)

	_, err = v.Validate(context.Background(), "remaining")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), "unlimited")
	require.NoError(t, err)
}

func TestValidate_RepoError(t *testing.T) {
	repo := &mockCouponRepo{findErr: errors.New("connection refused")}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
