package plan

import "context"

// Ordering values accepted by List.
const (
	OrderPriceAsc       = "price_npr"
	OrderPriceDesc      = "-price_npr"
	OrderCreatedAsc     = "created_at"
	OrderCreatedDesc    = "-created_at"
	DefaultListOrdering = OrderPriceAsc
)

// ListFilter narrows and orders List results. Nil filters match everything.
type ListFilter struct {
	IsActive *bool
	BulkSMS  *bool
	Ordering string
}

// Store persists subscription plans.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id int64) (*Plan, error)
	GetByCode(ctx context.Context, code Code) (*Plan, error)
	List(ctx context.Context, f ListFilter) ([]*Plan, error)
	Update(ctx context.Context, p *Plan) error
}

// ValidOrdering reports whether o is an accepted List ordering.
func ValidOrdering(o string) bool {
	switch o {
	case "", OrderPriceAsc, OrderPriceDesc, OrderCreatedAsc, OrderCreatedDesc:
		return true
	}
	return false
}
