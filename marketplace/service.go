// Package marketplace manages product listings and the market price feed.
package marketplace

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/karthikraju391/farmconnect/storage"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Filter struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Location string
	Search   string
	Page     int
	Limit    int
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ProductPage struct {
	Products   []*models.Product `json:"products"`
	Pagination Pagination        `json:"pagination"`
}

type AddProductRequest struct {
	ProductName  string              `json:"productName" validate:"required,max=100"`
	Category     models.Category     `json:"category" validate:"required,oneof=vegetables fruits grains dairy poultry others"`
	Description  string              `json:"description" validate:"max=1000"`
	Quantity     models.Quantity     `json:"quantity"`
	PricePerUnit decimal.Decimal     `json:"pricePerUnit"`
	QualityGrade models.QualityGrade `json:"qualityGrade" validate:"omitempty,oneof=organic grade-a grade-b regular"`
	HarvestDate  *time.Time          `json:"harvestDate"`
	Images       []string            `json:"images" validate:"max=10,dive,url"`
	// Tags is a comma separated list.
	Tags string `json:"tags"`
}

// UpdateProductRequest is a partial update; nil fields are left alone.
type UpdateProductRequest struct {
	ProductName  *string              `json:"productName" validate:"omitempty,min=1,max=100"`
	Category     *models.Category     `json:"category" validate:"omitempty,oneof=vegetables fruits grains dairy poultry others"`
	Description  *string              `json:"description" validate:"omitempty,max=1000"`
	Quantity     *models.Quantity     `json:"quantity"`
	PricePerUnit *decimal.Decimal     `json:"pricePerUnit"`
	QualityGrade *models.QualityGrade `json:"qualityGrade" validate:"omitempty,oneof=organic grade-a grade-b regular"`
	IsAvailable  *bool                `json:"isAvailable"`
	Tags         []string             `json:"tags"`
}

var minUnitPrice = decimal.NewFromInt(1)

type Service struct {
	products storage.IProductStore
	users    storage.IUserStore
	feed     *PriceFeed
	log      *slog.Logger
	now      func() time.Time
}

func NewService(products storage.IProductStore, users storage.IUserStore, feed *PriceFeed, log *slog.Logger) *Service {
	return &Service{products: products, users: users, feed: feed, log: log, now: time.Now}
}

// List returns available products matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) (ProductPage, error) {
	all, err := s.products.All(ctx)
	if err != nil {
		return ProductPage{}, err
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	location := strings.ToLower(strings.TrimSpace(f.Location))

	matched := lo.Filter(all, func(p *models.Product, _ int) bool {
		if !p.IsAvailable {
			return false
		}
		if f.Category != "" && f.Category != "all" && string(p.Category) != f.Category {
			return false
		}
		if f.MinPrice != nil && p.PricePerUnit.LessThan(*f.MinPrice) {
			return false
		}
		if f.MaxPrice != nil && p.PricePerUnit.GreaterThan(*f.MaxPrice) {
			return false
		}
		if location != "" && !strings.Contains(strings.ToLower(p.Location.District), location) {
			return false
		}
		if search != "" {
			return strings.Contains(strings.ToLower(p.ProductName), search) ||
				strings.Contains(strings.ToLower(p.Description), search) ||
				lo.SomeBy(p.Tags, func(tag string) bool { return strings.Contains(strings.ToLower(tag), search) })
		}
		return true
	})
	sortNewestFirst(matched)

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	pages := (len(matched) + limit - 1) / limit

	// Pages past the end are empty; page is checked first so the offset
	// cannot overflow.
	products := []*models.Product{}
	if page <= pages {
		products = lo.Subset(matched, (page-1)*limit, uint(limit))
	}
	return ProductPage{
		Products: products,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: len(matched),
			Pages: pages,
		},
	}, nil
}

// Mine returns every product of a farmer, available or not, newest first.
func (s *Service) Mine(ctx context.Context, farmerID string) ([]*models.Product, error) {
	all, err := s.products.All(ctx)
	if err != nil {
		return nil, err
	}
	mine := lo.Filter(all, func(p *models.Product, _ int) bool { return p.FarmerID == farmerID })
	sortNewestFirst(mine)
	return mine, nil
}

// Get returns a product and counts the view.
func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	return s.products.Update(ctx, id, func(p *models.Product) error {
		p.Views++
		return nil
	})
}

// Product reads a product without counting a view.
func (s *Service) Product(ctx context.Context, id string) (*models.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *Service) Add(ctx context.Context, farmerID string, role models.Role, req AddProductRequest) (*models.Product, error) {
	const op = "marketplace.Add"
	if role != models.RoleFarmer {
		return nil, apperrors.Authorization(op, "Only farmers can add products")
	}
	if err := models.Validate.Struct(req); err != nil {
		return nil, apperrors.Validation(op, "%v", err)
	}
	if req.Quantity.Value < 1 {
		return nil, apperrors.Validation(op, "quantity must be at least 1")
	}
	if req.PricePerUnit.LessThan(minUnitPrice) {
		return nil, apperrors.Validation(op, "price per unit must be at least 1")
	}
	farmer, err := s.users.GetByID(ctx, farmerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	harvest := now
	if req.HarvestDate != nil {
		harvest = req.HarvestDate.UTC()
	}
	unit := req.Quantity.Unit
	if unit == "" {
		unit = "kg"
	}
	grade := req.QualityGrade
	if grade == "" {
		grade = models.GradeRegular
	}
	tags := lo.Compact(lo.Map(strings.Split(req.Tags, ","), func(t string, _ int) string {
		return strings.TrimSpace(t)
	}))

	p := &models.Product{
		ID:           uuid.NewString(),
		FarmerID:     farmerID,
		ProductName:  strings.TrimSpace(req.ProductName),
		Category:     req.Category,
		Description:  strings.TrimSpace(req.Description),
		Quantity:     models.Quantity{Value: req.Quantity.Value, Unit: unit},
		PricePerUnit: req.PricePerUnit,
		MarketPrice:  s.marketPrice(req.ProductName, req.PricePerUnit),
		Images:       req.Images,
		HarvestDate:  harvest,
		Location:     farmer.Location,
		QualityGrade: grade,
		IsAvailable:  true,
		Tags:         tags,
		CreatedAt:    now,
	}
	if err = s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("Product added", "product", p.ID, "farmer", farmerID, "name", p.ProductName)
	return p, nil
}

// marketPrice quotes the feed, or prices unknown produce at 0.9-1.2x the asking price.
func (s *Service) marketPrice(name string, asking decimal.Decimal) decimal.Decimal {
	if q, ok := s.feed.Lookup(name); ok {
		return q.Price
	}
	factor := decimal.NewFromFloat(0.9 + rand.Float64()*0.3)
	return asking.Mul(factor).Round(0)
}

func (s *Service) Update(ctx context.Context, actorID, id string, req UpdateProductRequest) (*models.Product, error) {
	const op = "marketplace.Update"
	if err := models.Validate.Struct(req); err != nil {
		return nil, apperrors.Validation(op, "%v", err)
	}
	if req.PricePerUnit != nil && req.PricePerUnit.LessThan(minUnitPrice) {
		return nil, apperrors.Validation(op, "price per unit must be at least 1")
	}
	if req.Quantity != nil && req.Quantity.Value < 0 {
		return nil, apperrors.Validation(op, "quantity must not be negative")
	}
	return s.products.Update(ctx, id, func(p *models.Product) error {
		if p.FarmerID != actorID {
			return apperrors.Authorization(op, "Not authorized to update this product")
		}
		if req.ProductName != nil {
			p.ProductName = strings.TrimSpace(*req.ProductName)
		}
		if req.Category != nil {
			p.Category = *req.Category
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Quantity != nil {
			p.Quantity.Value = req.Quantity.Value
			if req.Quantity.Unit != "" {
				p.Quantity.Unit = req.Quantity.Unit
			}
		}
		if req.PricePerUnit != nil {
			p.PricePerUnit = *req.PricePerUnit
		}
		if req.QualityGrade != nil {
			p.QualityGrade = *req.QualityGrade
		}
		if req.IsAvailable != nil {
			p.IsAvailable = *req.IsAvailable
		}
		if req.Tags != nil {
			p.Tags = req.Tags
		}
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	return s.products.Delete(ctx, id, func(p *models.Product) error {
		if p.FarmerID != actorID {
			return apperrors.Authorization("marketplace.Delete", "Not authorized to delete this product")
		}
		return nil
	})
}

// DeductStock takes sold quantity off a product. Stock never goes below
// zero and a product with nothing left is marked unavailable.
func (s *Service) DeductStock(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return apperrors.Validation("marketplace.DeductStock", "quantity must be positive")
	}
	p, err := s.products.Update(ctx, id, func(p *models.Product) error {
		p.Quantity.Value = max(p.Quantity.Value-quantity, 0)
		if p.Quantity.Value == 0 {
			p.IsAvailable = false
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.log.Warn("Sold product no longer listed", "product", id)
			return nil
		}
		return err
	}
	s.log.Debug("Stock deducted", "product", id, "remaining", p.Quantity.Value)
	return nil
}

func sortNewestFirst(products []*models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
}
