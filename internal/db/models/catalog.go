package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// LabelMap stores free-form product labels (e.g. {"line": "surgical",
// "vendor": "medline"}) as a JSON column, filterable with bexpr expressions.
type LabelMap map[string]string

// Scan implements sql.Scanner for reading from database
func (lm *LabelMap) Scan(value any) error {
	if value == nil {
		*lm = make(LabelMap)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan LabelMap: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(raw, lm)
}

// Value implements driver.Valuer for writing to database
func (lm LabelMap) Value() (driver.Value, error) {
	if lm == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(lm)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Product represents a catalog item.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID             string     `bun:"id,pk,type:uuid"`
	SKU            string     `bun:"sku,notnull,unique"`
	Name           string     `bun:"name,notnull"`
	Description    string     `bun:"description"`
	Category       string     `bun:"category,notnull"`
	UnitPriceCent  int64      `bun:"unit_price_cent,notnull"` // price in cents, avoids float drift
	UnitOfMeasure  string     `bun:"unit_of_measure,notnull,default:'each'"`
	RxRequired     bool       `bun:"rx_required,notnull,default:false"`
	HazmatClass    string     `bun:"hazmat_class"` // empty when not hazardous
	StockQty       int        `bun:"stock_qty,notnull,default:0"`
	Labels         LabelMap   `bun:"labels,type:jsonb,notnull,default:'{}'"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	DiscontinuedAt *time.Time `bun:"discontinued_at"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (p *Product) ValidateForCreate() error {
	if p.SKU == "" {
		return errors.New("sku is required")
	}
	if len(p.SKU) > 64 {
		return errors.New("sku exceeds maximum length")
	}
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Category == "" {
		return errors.New("category is required")
	}
	if p.UnitPriceCent < 0 {
		return errors.New("unit_price_cent must not be negative")
	}
	if p.StockQty < 0 {
		return errors.New("stock_qty must not be negative")
	}
	return nil
}
