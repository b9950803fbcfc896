package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/shopify"
)

// ProductStock is the available quantity of one remote product
type ProductStock struct {
	ProductID  int64
	Title      string
	SKU        string
	Available  int
	ByLocation map[string]int
	Untracked  bool // No variant reported a tracked quantity
}

// StockReport lists stock for every remote product
type StockReport struct {
	Locations     []shopify.Location
	Products      []ProductStock
	FailedBatches int
	FailedItems   int
}

// Stock reads the remote catalog and its inventory levels. Inventory lookups
// are batched; failed batches are counted and the affected products reported
// as untracked.
func (o *Orchestrator) Stock(ctx context.Context) (*StockReport, error) {
	remote, err := o.requireRemote()
	if err != nil {
		return nil, err
	}

	locations, err := remote.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	names := make(map[int64]string, len(locations))
	for _, l := range locations {
		names[l.ID] = l.Name
	}

	products, err := remote.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	owner := make(map[int64]int)
	var itemIDs []int64
	report := &StockReport{Locations: locations, Products: make([]ProductStock, len(products))}
	for i, p := range products {
		ps := ProductStock{ProductID: p.ID, Title: p.Title, ByLocation: map[string]int{}, Untracked: true}
		for _, v := range p.Variants {
			if ps.SKU == "" {
				ps.SKU = v.SKU
			}
			if v.InventoryItemID == 0 {
				continue
			}
			owner[v.InventoryItemID] = i
			itemIDs = append(itemIDs, v.InventoryItemID)
		}
		report.Products[i] = ps
	}

	levels, err := remote.InventoryLevels(ctx, itemIDs)
	if err != nil && levels == nil {
		return nil, err
	}
	for _, fb := range levels.FailedBatches {
		report.FailedBatches++
		report.FailedItems += len(fb.ItemIDs)
	}
	for _, lvl := range levels.Levels {
		i, ok := owner[lvl.InventoryItemID]
		if !ok || lvl.Available == nil {
			continue
		}
		ps := &report.Products[i]
		ps.Untracked = false
		ps.Available += *lvl.Available
		name := names[lvl.LocationID]
		if name == "" {
			name = fmt.Sprintf("location %d", lvl.LocationID)
		}
		ps.ByLocation[name] += *lvl.Available
	}

	sort.SliceStable(report.Products, func(a, b int) bool {
		return report.Products[a].Available < report.Products[b].Available
	})

	o.logger.Info("Stock report built",
		zap.Int("products", len(products)),
		zap.Int("inventory_items", len(itemIDs)),
		zap.Int("failed_batches", report.FailedBatches))
	return report, err
}
