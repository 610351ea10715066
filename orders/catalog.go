//go:generate go run go.uber.org/mock/mockgen -source=catalog.go -destination=../mocks/mock_catalog.go -package=mocks
package orders

import (
	"context"

	"github.com/karthikraju391/farmconnect/models"
)

// Catalog is the product side of ordering.
type Catalog interface {
	Product(ctx context.Context, id string) (*models.Product, error)
	DeductStock(ctx context.Context, id string, quantity int) error
}
