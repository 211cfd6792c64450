package plan

import (
	"context"
	"errors"
)

func limit(n int) *int { return &n }

// Defaults is the stock catalogue inserted by SeedDefaults.
func Defaults() []Plan {
	return []Plan{
		{
			Code: CodeFree, PriceNPR: 0, IsActive: true,
			MaxUsers: 5, MaxLeadForms: limit(1), StorageGBPerUser: 1,
			BulkEmailLimit: limit(100), BulkSMS: false,
		},
		{
			Code: CodeStandard, PriceNPR: 500, IsActive: true,
			MaxUsers: 25, MaxLeadForms: limit(10), StorageGBPerUser: 5,
			BulkEmailLimit: limit(5000), BulkSMS: false,
		},
		{
			Code: CodeBusiness, PriceNPR: 1200, IsActive: true,
			MaxUsers: 100, MaxLeadForms: limit(50), StorageGBPerUser: 20,
			BulkEmailLimit: limit(50000), BulkSMS: true,
		},
		{
			Code: CodeEnterprise, PriceNPR: 2500, IsActive: true,
			MaxUsers: 1000, MaxLeadForms: nil, StorageGBPerUser: 100,
			BulkEmailLimit: nil, BulkSMS: true,
		},
	}
}

// SeedDefaults inserts any default plan whose code is not stored yet and
// returns how many were created. Existing plans are left untouched.
func SeedDefaults(ctx context.Context, store Store) (int, error) {
	created := 0
	for _, def := range Defaults() {
		_, err := store.GetByCode(ctx, def.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrPlanNotFound) {
			return created, err
		}
		p := def
		if err := p.Validate(); err != nil {
			return created, err
		}
		if err := store.Create(ctx, &p); err != nil {
			if errors.Is(err, ErrCodeTaken) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
