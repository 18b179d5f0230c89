package repository

import (
	"context"
	"database/sql"

	"github.com/medtrack/medtrack-backend/pkg/database"
	"github.com/medtrack/medtrack-backend/pkg/errors"
)

// Pharmacy is a read-only reference record mirrored from the catalog service
type Pharmacy struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Supplier is a read-only reference record mirrored from the catalog service
type Supplier struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// InventoryItem is a read-only reference record mirrored from the catalog
// service. ReorderLevel drives low-stock alerts.
type InventoryItem struct {
	ID           string  `db:"id" json:"id"`
	GenericName  string  `db:"generic_name" json:"generic_name"`
	BrandName    *string `db:"brand_name" json:"brand_name,omitempty"`
	Strength     *string `db:"strength" json:"strength,omitempty"`
	Form         *string `db:"form" json:"form,omitempty"`
	ReorderLevel int     `db:"reorder_level" json:"reorder_level"`
}

// DisplayName returns the brand name when present, else the generic name
func (i *InventoryItem) DisplayName() string {
	if i.BrandName != nil && *i.BrandName != "" {
		return *i.BrandName
	}
	return i.GenericName
}

// CatalogRepository handles the local mirror of catalog reference data.
// The ledger only reads it; writes happen through the catalog event consumer.
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetPharmacy gets a pharmacy by ID
func (r *CatalogRepository) GetPharmacy(ctx context.Context, id string) (*Pharmacy, error) {
	var p Pharmacy
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM catalog_pharmacies WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("pharmacy")
		}
		return nil, err
	}
	return &p, nil
}

// GetSupplier gets a supplier by ID
func (r *CatalogRepository) GetSupplier(ctx context.Context, id string) (*Supplier, error) {
	var s Supplier
	if err := r.db.GetContext(ctx, &s, `SELECT * FROM catalog_suppliers WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("supplier")
		}
		return nil, err
	}
	return &s, nil
}

// GetItem gets an inventory item by ID
func (r *CatalogRepository) GetItem(ctx context.Context, id string) (*InventoryItem, error) {
	var item InventoryItem
	if err := r.db.GetContext(ctx, &item, `SELECT * FROM catalog_items WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// ListItems lists all known inventory items
func (r *CatalogRepository) ListItems(ctx context.Context) ([]*InventoryItem, error) {
	var items []*InventoryItem
	query := `SELECT * FROM catalog_items ORDER BY generic_name, id`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}

// ItemsByID returns a lookup map of all known items
func (r *CatalogRepository) ItemsByID(ctx context.Context) (map[string]*InventoryItem, error) {
	items, err := r.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*InventoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return byID, nil
}

// UpsertPharmacy creates or updates a mirrored pharmacy record
func (r *CatalogRepository) UpsertPharmacy(ctx context.Context, p *Pharmacy) error {
	query := `
		INSERT INTO catalog_pharmacies (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = $2
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name)
	return err
}

// UpsertSupplier creates or updates a mirrored supplier record
func (r *CatalogRepository) UpsertSupplier(ctx context.Context, s *Supplier) error {
	query := `
		INSERT INTO catalog_suppliers (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = $2
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.Name)
	return err
}

// UpsertItem creates or updates a mirrored inventory item record
func (r *CatalogRepository) UpsertItem(ctx context.Context, item *InventoryItem) error {
	query := `
		INSERT INTO catalog_items (id, generic_name, brand_name, strength, form, reorder_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			generic_name = $2, brand_name = $3, strength = $4, form = $5, reorder_level = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.GenericName, item.BrandName, item.Strength, item.Form, item.ReorderLevel,
	)
	return err
}

// DeleteItem removes a mirrored inventory item record
func (r *CatalogRepository) DeleteItem(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	return err
}
