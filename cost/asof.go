package cost

import (
	"context"
	"fmt"
	"time"
)

// AsOf returns an engine that prices catalog items from the cost history
// record in force at t. Items are looked up whether or not they are active
// today; an item with no record at t (created later, or deactivated before
// t) is treated as missing and excluded. Software is priced with the
// license model recorded in the snapshot when there is one. Organization,
// requirement and coverage data are read as they are now.
func (e *Engine) AsOf(source HistorySource, t time.Time) *Engine {
	clone := *e
	clone.catalog = &historicalCatalog{source: source, at: t.UTC()}
	return &clone
}

// historicalCatalog overlays history snapshots onto archived catalog items.
type historicalCatalog struct {
	source HistorySource
	at     time.Time
}

func (c *historicalCatalog) GetHardwareItem(ctx context.Context, id HardwareID) (*HardwareItem, error) {
	item, err := c.source.LookupHardwareItem(ctx, id)
	if err != nil || item == nil {
		return item, err
	}
	rec, err := c.source.CostRecordAt(ctx, HardwareRef(id), c.at)
	if err != nil {
		return nil, fmt.Errorf("load cost history for hardware %d: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}
	item.UnitCost = orZero(rec.Snapshot.UnitCost)
	item.Active = true
	return item, nil
}

func (c *historicalCatalog) GetSoftwareItem(ctx context.Context, id SoftwareID) (*SoftwareItem, error) {
	item, err := c.source.LookupSoftwareItem(ctx, id)
	if err != nil || item == nil {
		return item, err
	}
	rec, err := c.source.CostRecordAt(ctx, SoftwareRef(id), c.at)
	if err != nil {
		return nil, fmt.Errorf("load cost history for software %d: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Snapshot.LicenseModel != "" {
		item.LicenseModel = rec.Snapshot.LicenseModel
	}
	item.CostPerLicense = rec.Snapshot.CostPerLicense
	item.TotalCost = rec.Snapshot.TotalCost
	item.Active = true
	return item, nil
}
