/*
Package catalog manages hardware and software catalog items.

PURPOSE:
  The only writer of catalog prices. Every price write and its cost
  history transition commit in ONE transaction, so the catalog row and
  the open history record can never disagree.

OPERATIONS:
  CreateHardware / CreateSoftware:  insert item + initial OPEN history record
  UpdateHardware / UpdateSoftware:  apply typed update; if any cost field
                                    changed, close-then-open history
  DeactivateHardware / DeactivateSoftware: clear Active; close the open
                                    history record so later point-in-time
                                    queries no longer price the item

TYPED UPDATES:
  HardwareUpdate / SoftwareUpdate carry pointer fields. nil means "leave
  unchanged". CostChanged(current) decides whether history is written,
  so renaming an item never creates a history record.

SEE ALSO:
  - cost/history.go: Recorder
  - cost/store.go: TxStore / WriteTx
*/
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/cost"
)

// =============================================================================
// INPUT TYPES
// =============================================================================

// NewHardware describes a hardware item to create.
type NewHardware struct {
	Name     string
	TypeName string
	UnitCost decimal.Decimal
}

// NewSoftware describes a software item to create.
type NewSoftware struct {
	Name           string
	TypeName       string
	LicenseTier    string
	LicenseModel   cost.LicenseModel
	CostPerLicense decimal.NullDecimal
	TotalCost      decimal.NullDecimal
}

// HardwareUpdate lists the fields to change. nil fields are left alone.
type HardwareUpdate struct {
	Name     *string
	TypeName *string
	UnitCost *decimal.Decimal
}

// Apply returns item with the update applied.
func (u HardwareUpdate) Apply(item cost.HardwareItem) cost.HardwareItem {
	if u.Name != nil {
		item.Name = *u.Name
	}
	if u.TypeName != nil {
		item.TypeName = *u.TypeName
	}
	if u.UnitCost != nil {
		item.UnitCost = *u.UnitCost
	}
	return item
}

// CostChanged reports whether applying u changes any cost field of current.
func (u HardwareUpdate) CostChanged(current cost.HardwareItem) bool {
	return !cost.HardwareSnapshot(u.Apply(current)).Equal(cost.HardwareSnapshot(current))
}

// SoftwareUpdate lists the fields to change. nil fields are left alone.
// A non-nil cost pointer holding an invalid NullDecimal clears the cost.
type SoftwareUpdate struct {
	Name           *string
	TypeName       *string
	LicenseTier    *string
	LicenseModel   *cost.LicenseModel
	CostPerLicense *decimal.NullDecimal
	TotalCost      *decimal.NullDecimal
}

// Apply returns item with the update applied.
func (u SoftwareUpdate) Apply(item cost.SoftwareItem) cost.SoftwareItem {
	if u.Name != nil {
		item.Name = *u.Name
	}
	if u.TypeName != nil {
		item.TypeName = *u.TypeName
	}
	if u.LicenseTier != nil {
		item.LicenseTier = *u.LicenseTier
	}
	if u.LicenseModel != nil {
		item.LicenseModel = *u.LicenseModel
	}
	if u.CostPerLicense != nil {
		item.CostPerLicense = *u.CostPerLicense
	}
	if u.TotalCost != nil {
		item.TotalCost = *u.TotalCost
	}
	return item
}

// CostChanged reports whether applying u changes any cost field of current.
func (u SoftwareUpdate) CostChanged(current cost.SoftwareItem) bool {
	return !cost.SoftwareSnapshot(u.Apply(current)).Equal(cost.SoftwareSnapshot(current))
}

// =============================================================================
// SERVICE
// =============================================================================

// Service writes catalog items and their cost history.
type Service struct {
	Store    cost.TxStore
	Recorder *cost.Recorder
	Logger   *zap.Logger
}

// NewService creates a catalog service. The recorder is only used for its
// clock, logger and observer; transactions come from store.
func NewService(store cost.TxStore, recorder *cost.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = cost.NewRecorder(store, logger)
	}
	return &Service{Store: store, Recorder: recorder, Logger: logger}
}

// CreateHardware inserts a hardware item and opens its cost history.
func (s *Service) CreateHardware(ctx context.Context, in NewHardware, changedBy string) (*cost.HardwareItem, error) {
	item := cost.HardwareItem{
		Name:     strings.TrimSpace(in.Name),
		TypeName: strings.TrimSpace(in.TypeName),
		UnitCost: in.UnitCost,
		Active:   true,
	}
	if err := validateHardware(item); err != nil {
		return nil, err
	}

	err := s.Store.WithTx(ctx, func(tx cost.WriteTx) error {
		id, err := tx.CreateHardwareItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		_, err = s.Recorder.RecordInitialCost(ctx, tx, cost.HardwareRef(id), cost.HardwareSnapshot(item), changedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("hardware item created",
		zap.Int64("hardware_id", int64(item.ID)),
		zap.String("name", item.Name),
		zap.String("unit_cost", item.UnitCost.String()))
	return &item, nil
}

// CreateSoftware inserts a software item and opens its cost history.
func (s *Service) CreateSoftware(ctx context.Context, in NewSoftware, changedBy string) (*cost.SoftwareItem, error) {
	item := cost.SoftwareItem{
		Name:           strings.TrimSpace(in.Name),
		TypeName:       strings.TrimSpace(in.TypeName),
		LicenseTier:    strings.TrimSpace(in.LicenseTier),
		LicenseModel:   in.LicenseModel,
		CostPerLicense: in.CostPerLicense,
		TotalCost:      in.TotalCost,
		Active:         true,
	}
	if err := validateSoftware(item); err != nil {
		return nil, err
	}

	err := s.Store.WithTx(ctx, func(tx cost.WriteTx) error {
		id, err := tx.CreateSoftwareItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		_, err = s.Recorder.RecordInitialCost(ctx, tx, cost.SoftwareRef(id), cost.SoftwareSnapshot(item), changedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("software item created",
		zap.Int64("software_id", int64(item.ID)),
		zap.String("name", item.Name),
		zap.String("license_model", string(item.LicenseModel)))
	return &item, nil
}

// UpdateHardware applies u. A cost change closes the open history record
// and opens a new one in the same transaction.
func (s *Service) UpdateHardware(ctx context.Context, id cost.HardwareID, u HardwareUpdate, changedBy, reason string) (*cost.HardwareItem, error) {
	var updated cost.HardwareItem
	err := s.Store.WithTx(ctx, func(tx cost.WriteTx) error {
		current, err := tx.GetHardwareItem(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &cost.NotFoundError{Entity: "hardware", ID: int64(id)}
		}

		updated = u.Apply(*current)
		updated.Name = strings.TrimSpace(updated.Name)
		if err := validateHardware(updated); err != nil {
			return err
		}
		if err := tx.UpdateHardwareItem(ctx, updated); err != nil {
			return err
		}
		if !u.CostChanged(*current) {
			return nil
		}
		_, err = s.Recorder.RecordCostChange(ctx, tx, cost.HardwareRef(id), cost.HardwareSnapshot(updated), changedBy, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateSoftware applies u. A cost change closes the open history record
// and opens a new one in the same transaction.
func (s *Service) UpdateSoftware(ctx context.Context, id cost.SoftwareID, u SoftwareUpdate, changedBy, reason string) (*cost.SoftwareItem, error) {
	var updated cost.SoftwareItem
	err := s.Store.WithTx(ctx, func(tx cost.WriteTx) error {
		current, err := tx.GetSoftwareItem(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &cost.NotFoundError{Entity: "software", ID: int64(id)}
		}

		updated = u.Apply(*current)
		updated.Name = strings.TrimSpace(updated.Name)
		if err := validateSoftware(updated); err != nil {
			return err
		}
		if err := tx.UpdateSoftwareItem(ctx, updated); err != nil {
			return err
		}
		if !u.CostChanged(*current) {
			return nil
		}
		_, err = s.Recorder.RecordCostChange(ctx, tx, cost.SoftwareRef(id), cost.SoftwareSnapshot(updated), changedBy, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeactivateHardware hides a hardware item from cost calculations and
// closes its open cost record. Earlier records are kept as is.
func (s *Service) DeactivateHardware(ctx context.Context, id cost.HardwareID) error {
	err := s.Store.WithTx(ctx, func(tx cost.WriteTx) error {
		current, err := tx.GetHardwareItem(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &cost.NotFoundError{Entity: "hardware", ID: int64(id)}
		}
		current.Active = false
		if err := tx.UpdateHardwareItem(ctx, *current); err != nil {
			return err
		}
		return s.Recorder.RetireCost(ctx, tx, cost.HardwareRef(id))
	})
	if err == nil {
		s.Logger.Info("hardware item deactivated", zap.Int64("hardware_id", int64(id)))
	}
	return err
}

// DeactivateSoftware hides a software item from cost calculations and
// closes its open cost record. Earlier records are kept as is.
func (s *Service) DeactivateSoftware(ctx context.Context, id cost.SoftwareID) error {
	err := s.Store.WithTx(ctx, func(tx cost.WriteTx) error {
		current, err := tx.GetSoftwareItem(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &cost.NotFoundError{Entity: "software", ID: int64(id)}
		}
		current.Active = false
		if err := tx.UpdateSoftwareItem(ctx, *current); err != nil {
			return err
		}
		return s.Recorder.RetireCost(ctx, tx, cost.SoftwareRef(id))
	})
	if err == nil {
		s.Logger.Info("software item deactivated", zap.Int64("software_id", int64(id)))
	}
	return err
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateHardware(item cost.HardwareItem) error {
	if item.Name == "" {
		return &cost.ValidationError{Field: "name", Message: "is required"}
	}
	if item.UnitCost.IsNegative() {
		return &cost.ValidationError{Field: "unit_cost", Message: "must not be negative"}
	}
	return nil
}

func validateSoftware(item cost.SoftwareItem) error {
	if item.Name == "" {
		return &cost.ValidationError{Field: "name", Message: "is required"}
	}
	if !item.LicenseModel.Valid() {
		return fmt.Errorf("license model %q: %w", item.LicenseModel, cost.ErrInvalidLicenseModel)
	}
	if item.CostPerLicense.Valid && item.CostPerLicense.Decimal.IsNegative() {
		return &cost.ValidationError{Field: "cost_per_license", Message: "must not be negative"}
	}
	if item.TotalCost.Valid && item.TotalCost.Decimal.IsNegative() {
		return &cost.ValidationError{Field: "total_cost", Message: "must not be negative"}
	}
	return nil
}
