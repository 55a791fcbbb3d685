package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/report"
	"sarisari/backend/internal/store"
)

func (s *Service) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx, tenantID)
}

// liveParent resolves a parent category reference; a missing or deleted parent is a
// validation failure rather than a 404 on the category being written.
func liveParent(lookup store.CategoryLookup, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if _, err := lookup(*parentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: parent category %d does not exist", store.ErrValidation, *parentID)
		}
		return err
	}
	return nil
}

func (s *Service) CreateCategory(ctx context.Context, tenantID string, input domain.CategoryInput) (*domain.Category, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.ParentID = optionalID(input.ParentID)
	if err := s.check(input); err != nil {
		return nil, err
	}
	lookup := func(id int64) (*domain.Category, error) { return s.repo.GetCategory(ctx, tenantID, id) }
	if err := liveParent(lookup, input.ParentID); err != nil {
		return nil, err
	}

	category, err := s.repo.CreateCategory(ctx, domain.Category{
		TenantID:    tenantID,
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		ParentID:    input.ParentID,
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// UpdateCategory runs the parent checks inside the repository's atomic unit, against the
// tree as it is when the edit is written.
func (s *Service) UpdateCategory(ctx context.Context, tenantID string, id int64, patch domain.CategoryPatch) (*domain.Category, error) {
	var name string
	if patch.Name != nil {
		var err error
		if name, err = requireName(*patch.Name, "category"); err != nil {
			return nil, err
		}
	}

	return s.repo.UpdateCategory(ctx, tenantID, id, func(category *domain.Category, lookup store.CategoryLookup) error {
		if patch.Name != nil {
			category.Name = name
		}
		if patch.Description != nil {
			category.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ParentID != nil {
			parentID := optionalID(patch.ParentID)
			if err := liveParent(lookup, parentID); err != nil {
				return err
			}
			if err := rejectCycle(lookup, id, parentID); err != nil {
				return err
			}
			category.ParentID = parentID
		}
		return nil
	})
}

// rejectCycle walks up from the proposed parent and fails if it reaches the category itself.
func rejectCycle(lookup store.CategoryLookup, id int64, parentID *int64) error {
	seen := map[int64]struct{}{}
	for cursor := parentID; cursor != nil; {
		if *cursor == id {
			return fmt.Errorf("%w: category %d cannot be its own ancestor", store.ErrValidation, id)
		}
		if _, ok := seen[*cursor]; ok {
			return nil
		}
		seen[*cursor] = struct{}{}

		ancestor, err := lookup(*cursor)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cursor = ancestor.ParentID
	}
	return nil
}

// DeleteCategory soft-deletes a category and every live descendant, returning how many rows changed.
func (s *Service) DeleteCategory(ctx context.Context, tenantID string, id int64) (int, error) {
	deleted, err := s.repo.SoftDeleteCategoryTree(ctx, tenantID, id, s.Now())
	if err != nil {
		return 0, err
	}
	s.logger.WithField("tenant", tenantID).Infof("category %d deleted with %d descendants", id, deleted-1)
	return deleted, nil
}

func (s *Service) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, tenantID)
}

func (s *Service) GetProduct(ctx context.Context, tenantID string, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, tenantID, id)
}

func (s *Service) productCategory(ctx context.Context, tenantID string, categoryID *int64) (*int64, error) {
	categoryID = optionalID(categoryID)
	if categoryID == nil {
		return nil, nil
	}
	if _, err := s.repo.GetCategory(ctx, tenantID, *categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: category %d does not exist", store.ErrValidation, *categoryID)
		}
		return nil, err
	}
	return categoryID, nil
}

func (s *Service) CreateProduct(ctx context.Context, tenantID string, input domain.ProductInput) (*domain.Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Code = strings.TrimSpace(input.Code)
	if err := s.check(input); err != nil {
		return nil, err
	}
	if input.BuyPrice.IsNegative() || input.SellPrice.IsNegative() {
		return nil, fmt.Errorf("%w: prices must not be negative", store.ErrValidation)
	}
	expiration, err := validDate(input.ExpirationDate)
	if err != nil {
		return nil, err
	}
	categoryID, err := s.productCategory(ctx, tenantID, input.CategoryID)
	if err != nil {
		return nil, err
	}

	product, err := s.repo.CreateProduct(ctx, domain.Product{
		TenantID:        tenantID,
		Name:            input.Name,
		Code:            input.Code,
		Brand:           strings.TrimSpace(input.Brand),
		Description:     strings.TrimSpace(input.Description),
		ImageURL:        strings.TrimSpace(input.ImageURL),
		BuyPrice:        input.BuyPrice,
		SellPrice:       input.SellPrice,
		Stock:           input.Stock,
		LowStockLevel:   input.LowStockLevel,
		ExpirationDate:  expiration,
		CategoryID:      categoryID,
		UnitMeasurement: strings.TrimSpace(input.UnitMeasurement),
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, tenantID)
	return product, nil
}

// UpdateProduct applies catalog edits. Stock only moves through sales, refunds and restocks.
// The patch is validated up front and applied to the row the repository holds locked, so
// fields the patch leaves out keep whatever a concurrent restock wrote.
func (s *Service) UpdateProduct(ctx context.Context, tenantID string, id int64, patch domain.ProductPatch) (*domain.Product, error) {
	var (
		name, code, imageURL string
		expiration           *string
		categoryID           *int64
		err                  error
	)
	if patch.Name != nil {
		if name, err = requireName(*patch.Name, "product"); err != nil {
			return nil, err
		}
	}
	if patch.Code != nil {
		code = strings.TrimSpace(*patch.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: product code is required", store.ErrValidation)
		}
	}
	if patch.ImageURL != nil {
		imageURL = strings.TrimSpace(*patch.ImageURL)
		if imageURL != "" {
			if err := s.validate.Var(imageURL, "url"); err != nil {
				return nil, fmt.Errorf("%w: imageUrl must be a valid url", store.ErrValidation)
			}
		}
	}
	if patch.BuyPrice != nil && patch.BuyPrice.IsNegative() {
		return nil, fmt.Errorf("%w: buy price must not be negative", store.ErrValidation)
	}
	if patch.SellPrice != nil && patch.SellPrice.IsNegative() {
		return nil, fmt.Errorf("%w: sell price must not be negative", store.ErrValidation)
	}
	if patch.LowStockLevel != nil && *patch.LowStockLevel < 0 {
		return nil, fmt.Errorf("%w: low stock level must not be negative", store.ErrValidation)
	}
	if patch.ExpirationDate != nil {
		if expiration, err = validDate(patch.ExpirationDate); err != nil {
			return nil, err
		}
	}
	if patch.CategoryID != nil {
		if categoryID, err = s.productCategory(ctx, tenantID, patch.CategoryID); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateProduct(ctx, tenantID, id, func(product *domain.Product) error {
		if patch.Name != nil {
			product.Name = name
		}
		if patch.Code != nil {
			product.Code = code
		}
		if patch.Brand != nil {
			product.Brand = strings.TrimSpace(*patch.Brand)
		}
		if patch.Description != nil {
			product.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ImageURL != nil {
			product.ImageURL = imageURL
		}
		if patch.BuyPrice != nil {
			product.BuyPrice = *patch.BuyPrice
		}
		if patch.SellPrice != nil {
			product.SellPrice = *patch.SellPrice
		}
		if patch.LowStockLevel != nil {
			level := *patch.LowStockLevel
			product.LowStockLevel = &level
		}
		if patch.ExpirationDate != nil {
			product.ExpirationDate = expiration
		}
		if patch.CategoryID != nil {
			product.CategoryID = categoryID
		}
		if patch.UnitMeasurement != nil {
			product.UnitMeasurement = strings.TrimSpace(*patch.UnitMeasurement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, tenantID)
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, tenantID string, id int64) error {
	if err := s.repo.SoftDeleteProduct(ctx, tenantID, id, s.Now()); err != nil {
		return err
	}
	s.changed(ctx, tenantID)
	return nil
}

func (s *Service) ProductSummary(ctx context.Context, tenantID string) (domain.ProductSummary, error) {
	products, err := s.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return domain.ProductSummary{}, err
	}
	return report.Summarize(products, s.today()), nil
}

// RestockProduct adds (or, with a negative quantity, corrects) stock and records the change.
func (s *Service) RestockProduct(ctx context.Context, tenantID string, productID int64, req domain.RestockRequest) (*domain.RestockHistory, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	expiration, err := validDate(req.ExpirationDate)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.Restock(ctx, domain.Restock{
		TenantID:       tenantID,
		ProductID:      productID,
		Quantity:       req.Quantity,
		ExpirationDate: expiration,
		Notes:          strings.TrimSpace(req.Notes),
		At:             s.Now(),
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, tenantID)
	return history, nil
}

func (s *Service) RestockHistory(ctx context.Context, tenantID string, productID int64) ([]domain.RestockHistory, error) {
	if _, err := s.repo.GetProduct(ctx, tenantID, productID); err != nil {
		return nil, err
	}
	return s.repo.ListRestockHistory(ctx, tenantID, productID)
}

func (s *Service) ListPaymentMethods(ctx context.Context, tenantID string) ([]domain.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, tenantID)
}

func (s *Service) CreatePaymentMethod(ctx context.Context, tenantID string, input domain.PaymentMethodInput) (*domain.PaymentMethod, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return nil, err
	}
	return s.repo.CreatePaymentMethod(ctx, domain.PaymentMethod{TenantID: tenantID, Name: input.Name})
}

func (s *Service) UpdatePaymentMethod(ctx context.Context, tenantID string, id int64, input domain.PaymentMethodInput) (*domain.PaymentMethod, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return nil, err
	}
	method, err := s.repo.UpdatePaymentMethod(ctx, domain.PaymentMethod{ID: id, TenantID: tenantID, Name: input.Name})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, tenantID)
	return method, nil
}

func (s *Service) DeletePaymentMethod(ctx context.Context, tenantID string, id int64) error {
	return s.repo.SoftDeletePaymentMethod(ctx, tenantID, id, s.Now())
}

func (s *Service) ListUnitMeasurements(ctx context.Context, tenantID string) ([]domain.UnitMeasurement, error) {
	return s.repo.ListUnitMeasurements(ctx, tenantID)
}

func (s *Service) CreateUnitMeasurement(ctx context.Context, tenantID string, input domain.UnitMeasurementInput) (*domain.UnitMeasurement, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return nil, err
	}
	return s.repo.CreateUnitMeasurement(ctx, domain.UnitMeasurement{
		TenantID:    tenantID,
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
	})
}

func (s *Service) UpdateUnitMeasurement(ctx context.Context, tenantID string, id int64, input domain.UnitMeasurementInput) (*domain.UnitMeasurement, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return nil, err
	}
	return s.repo.UpdateUnitMeasurement(ctx, domain.UnitMeasurement{
		ID:          id,
		TenantID:    tenantID,
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
	})
}

func (s *Service) DeleteUnitMeasurement(ctx context.Context, tenantID string, id int64) error {
	return s.repo.DeleteUnitMeasurement(ctx, tenantID, id)
}

// ProvisionTenant gives a tenant the payment methods checkout expects. Methods that
// already exist are left alone, so it is safe to run again.
func (s *Service) ProvisionTenant(ctx context.Context, tenantID string) error {
	existing, err := s.repo.ListPaymentMethods(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("provision payment methods: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, m := range existing {
		have[strings.ToLower(m.Name)] = true
	}

	for _, name := range []string{"Cash", "GCash"} {
		if have[strings.ToLower(name)] {
			continue
		}
		if _, err := s.repo.CreatePaymentMethod(ctx, domain.PaymentMethod{TenantID: tenantID, Name: name}); err != nil {
			return fmt.Errorf("provision payment method %s: %w", name, err)
		}
	}
	return nil
}
