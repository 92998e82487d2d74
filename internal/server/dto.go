package server

import (
	"time"

	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
)

// ProductResponse represents a catalog product in API responses.
type ProductResponse struct {
	ID             string            `json:"id"`
	SKU            string            `json:"sku"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Category       string            `json:"category"`
	UnitPriceCent  int64             `json:"unit_price_cent"`
	UnitOfMeasure  string            `json:"unit_of_measure"`
	RxRequired     bool              `json:"rx_required"`
	HazmatClass    string            `json:"hazmat_class,omitempty"`
	StockQty       int               `json:"stock_qty"`
	Labels         map[string]string `json:"labels"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DiscontinuedAt *time.Time        `json:"discontinued_at,omitempty"`
}

func toProductResponse(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		UnitPriceCent:  p.UnitPriceCent,
		UnitOfMeasure:  p.UnitOfMeasure,
		RxRequired:     p.RxRequired,
		HazmatClass:    p.HazmatClass,
		StockQty:       p.StockQty,
		Labels:         p.Labels,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		DiscontinuedAt: p.DiscontinuedAt,
	}
}

// OrderItemResponse represents one order line in API responses.
type OrderItemResponse struct {
	ProductID     string `json:"product_id"`
	SKU           string `json:"sku"`
	Quantity      int    `json:"quantity"`
	UnitPriceCent int64  `json:"unit_price_cent"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID          string              `json:"id"`
	Number      string              `json:"number"`
	AccountID   string              `json:"account_id"`
	OwnerID     string              `json:"owner_id"`
	TeamID      *string             `json:"team_id,omitempty"`
	Status      string              `json:"status"`
	TotalCent   int64               `json:"total_cent"`
	Notes       string              `json:"notes,omitempty"`
	QuoteID     *string             `json:"quote_id,omitempty"`
	Items       []OrderItemResponse `json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
	SubmittedAt *time.Time          `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time          `json:"approved_at,omitempty"`
	FulfilledAt *time.Time          `json:"fulfilled_at,omitempty"`
	ShippedAt   *time.Time          `json:"shipped_at,omitempty"`
	CancelledAt *time.Time          `json:"cancelled_at,omitempty"`
}

func toOrderResponse(o *models.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Quantity:      item.Quantity,
			UnitPriceCent: item.UnitPriceCent,
		})
	}
	return OrderResponse{
		ID:          o.ID,
		Number:      o.Number,
		AccountID:   o.AccountID,
		OwnerID:     o.OwnerID,
		TeamID:      o.TeamID,
		Status:      string(o.Status),
		TotalCent:   o.TotalCent,
		Notes:       o.Notes,
		QuoteID:     o.QuoteID,
		Items:       items,
		CreatedAt:   o.CreatedAt,
		SubmittedAt: o.SubmittedAt,
		ApprovedAt:  o.ApprovedAt,
		FulfilledAt: o.FulfilledAt,
		ShippedAt:   o.ShippedAt,
		CancelledAt: o.CancelledAt,
	}
}

// QuoteResponse represents a quote in API responses.
type QuoteResponse struct {
	ID              string              `json:"id"`
	Number          string              `json:"number"`
	AccountID       string              `json:"account_id"`
	OwnerID         string              `json:"owner_id"`
	TeamID          *string             `json:"team_id,omitempty"`
	Status          string              `json:"status"`
	DiscountPercent float64             `json:"discount_percent"`
	TotalCent       int64               `json:"total_cent"`
	Notes           string              `json:"notes,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	PricedAt        *time.Time          `json:"priced_at,omitempty"`
	ApprovedAt      *time.Time          `json:"approved_at,omitempty"`
	ApprovedBy      *string             `json:"approved_by,omitempty"`
	ConvertedAt     *time.Time          `json:"converted_at,omitempty"`
}

func toQuoteResponse(q *models.Quote) QuoteResponse {
	items := make([]OrderItemResponse, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, OrderItemResponse{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Quantity:      item.Quantity,
			UnitPriceCent: item.UnitPriceCent,
		})
	}
	return QuoteResponse{
		ID:              q.ID,
		Number:          q.Number,
		AccountID:       q.AccountID,
		OwnerID:         q.OwnerID,
		TeamID:          q.TeamID,
		Status:          string(q.Status),
		DiscountPercent: q.DiscountPercent,
		TotalCent:       q.TotalCent,
		Notes:           q.Notes,
		Items:           items,
		ExpiresAt:       q.ExpiresAt,
		CreatedAt:       q.CreatedAt,
		PricedAt:        q.PricedAt,
		ApprovedAt:      q.ApprovedAt,
		ApprovedBy:      q.ApprovedBy,
		ConvertedAt:     q.ConvertedAt,
	}
}

// AccountResponse represents a customer account in API responses.
type AccountResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Territory       string    `json:"territory,omitempty"`
	TeamID          *string   `json:"team_id,omitempty"`
	OwnerID         *string   `json:"owner_id,omitempty"`
	CreditLimitCent int64     `json:"credit_limit_cent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAccountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:              a.ID,
		Name:            a.Name,
		Type:            a.Type,
		Territory:       a.Territory,
		TeamID:          a.TeamID,
		OwnerID:         a.OwnerID,
		CreditLimitCent: a.CreditLimitCent,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// UserResponse represents a user in API responses. Password hashes never
// leave the service layer.
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	RoleLevel   int        `json:"role_level"`
	Role        string     `json:"role"`
	TeamID      *string    `json:"team_id,omitempty"`
	AccountID   *string    `json:"account_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Disabled    bool       `json:"disabled"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		RoleLevel:   int(u.RoleLevel),
		Role:        u.RoleLevel.String(),
		TeamID:      u.TeamID,
		AccountID:   u.AccountID,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		Disabled:    u.DisabledAt != nil,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID         string    `json:"id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	UserAgent  *string   `json:"user_agent,omitempty"`
	IPAddress  *string   `json:"ip_address,omitempty"`
}

func toSessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
		UserAgent:  s.UserAgent,
		IPAddress:  s.IPAddress,
	}
}

// ServiceAccountResponse represents a service account in API responses.
// Secret hashes never leave the service layer; the unhashed secret appears
// only in create and rotate responses.
type ServiceAccountResponse struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RoleLevel   int       `json:"role_level"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	Disabled    bool      `json:"disabled"`
}

func toServiceAccountResponse(sa *models.ServiceAccount) ServiceAccountResponse {
	return ServiceAccountResponse{
		ID:          sa.ID,
		ClientID:    sa.ClientID,
		Name:        sa.Name,
		Description: sa.Description,
		RoleLevel:   int(sa.RoleLevel),
		Role:        sa.RoleLevel.String(),
		CreatedAt:   sa.CreatedAt,
		Disabled:    sa.Disabled,
	}
}

// PolicyRuleResponse represents one permission threshold in API responses.
type PolicyRuleResponse struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Context  string `json:"context"`
	MinLevel int    `json:"min_level"`
}

func toPolicyRuleResponse(rule rbac.Rule) PolicyRuleResponse {
	return PolicyRuleResponse{
		Resource: string(rule.Resource),
		Action:   string(rule.Action),
		Context:  string(rule.Context),
		MinLevel: int(rule.MinLevel),
	}
}
