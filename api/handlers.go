/*
handlers.go - HTTP API handlers for the budget cost engine

PURPOSE:
  Exposes the cost engine and catalog service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Costs:
    GET    /api/positions/{id}/cost      Position breakdown
    GET    /api/divisions/{id}/cost      Division rollup
    GET    /api/departments/{id}/cost    Department rollup
    GET    /api/departments/cost         Departments visible under a scope
    GET    /api/organization/cost        Organization rollup

    Every cost endpoint accepts ?as_of=RFC3339 to price catalog items
    from the cost history in force at that instant.

  Coverage:
    GET    /api/software/{id}/coverage   Resolved tenant coverage

  Catalog:
    GET    /api/hardware/{id}            Hardware item
    POST   /api/hardware                 Create (opens cost history)
    PATCH  /api/hardware/{id}            Update (cost change => transition)
    DELETE /api/hardware/{id}            Deactivate
    (same four for /api/software)

  History:
    GET    /api/history/{kind}/{id}      All records, or ?at=RFC3339 for one

  Exports:
    GET    /api/exports/departments.csv  /api/exports/departments.xlsx
    GET    /api/exports/positions.csv    /api/exports/positions.xlsx

SCOPE:
  department_id and division_id query parameters (repeatable) narrow
  /api/departments/cost and the exports. None means organization-wide.
  The caller's authorization layer decides what it may pass.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found or inactive
  - 409: History conflict (concurrent edit, out-of-order change)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/catalog"
	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/export"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers read directly.
type Store interface {
	cost.ReadStore
	cost.HistorySource
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Engine  *cost.Engine
	Catalog *catalog.Service
	Logger  *zap.Logger
}

// NewHandler creates a handler. engine must read from store.
func NewHandler(store Store, engine *cost.Engine, svc *catalog.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Store: store, Engine: engine, Catalog: svc, Logger: logger}
}

// engineFor returns the engine to use for r, honoring ?as_of.
func (h *Handler) engineFor(r *http.Request) (*cost.Engine, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return h.Engine, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, &cost.ValidationError{Field: "as_of", Message: "must be RFC3339"}
	}
	return h.Engine.AsOf(h.Store, t), nil
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// COST HANDLERS
// =============================================================================

// GetPositionCost returns the full breakdown of one position.
func (h *Handler) GetPositionCost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	engine, err := h.engineFor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := engine.CalculatePositionCost(r.Context(), cost.PositionID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionCostDTO(*summary))
}

// GetDivisionCost returns a division rollup with its positions.
func (h *Handler) GetDivisionCost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	engine, err := h.engineFor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := engine.AggregateDivision(r.Context(), cost.DivisionID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionCostDTO(*summary))
}

// GetDepartmentCost returns a department rollup with its divisions.
func (h *Handler) GetDepartmentCost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	engine, err := h.engineFor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := engine.AggregateDepartment(r.Context(), cost.DepartmentID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDepartmentCostDTO(*summary))
}

// ListDepartmentCosts returns one summary per department visible under
// the request scope, ordered by department name.
func (h *Handler) ListDepartmentCosts(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.scopedDepartments(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]DepartmentCostDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toDepartmentCostDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOrganizationCost returns the organization rollup.
func (h *Handler) GetOrganizationCost(w http.ResponseWriter, r *http.Request) {
	engine, err := h.engineFor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := engine.AggregateOrganization(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationCostDTO(*summary))
}

// GetCoverage returns the positions and headcount a software item's
// coverage rules resolve to.
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	item, err := h.Store.GetSoftwareItem(r.Context(), cost.SoftwareID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Software item not found", nil)
		return
	}

	cov, err := h.Engine.ResolveCoverage(r.Context(), item.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(*cov))
}

func (h *Handler) scopedDepartments(r *http.Request) ([]cost.DepartmentCostSummary, error) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		return nil, err
	}
	engine, err := h.engineFor(r)
	if err != nil {
		return nil, err
	}
	depts, err := cost.FilterDepartments(r.Context(), h.Store, scope)
	if err != nil {
		return nil, err
	}
	return engine.DepartmentBreakdown(r.Context(), depts)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// GetHardware returns an active hardware item.
func (h *Handler) GetHardware(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	item, err := h.Store.GetHardwareItem(r.Context(), cost.HardwareID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Hardware item not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toHardwareItemDTO(*item))
}

// CreateHardware creates a hardware item and opens its cost history.
func (h *Handler) CreateHardware(w http.ResponseWriter, r *http.Request) {
	var req CreateHardwareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Catalog.CreateHardware(r.Context(), catalog.NewHardware{
		Name:     req.Name,
		TypeName: req.TypeName,
		UnitCost: req.UnitCost,
	}, changedBy(req.ChangedBy))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHardwareItemDTO(*item))
}

// UpdateHardware applies a partial update to a hardware item.
func (h *Handler) UpdateHardware(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req UpdateHardwareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Catalog.UpdateHardware(r.Context(), cost.HardwareID(id), req.toUpdate(), changedBy(req.ChangedBy), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHardwareItemDTO(*item))
}

// DeactivateHardware hides a hardware item from cost calculations.
func (h *Handler) DeactivateHardware(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeactivateHardware(r.Context(), cost.HardwareID(id)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSoftware returns an active software item.
func (h *Handler) GetSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	item, err := h.Store.GetSoftwareItem(r.Context(), cost.SoftwareID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Software item not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSoftwareItemDTO(*item))
}

// CreateSoftware creates a software item and opens its cost history.
func (h *Handler) CreateSoftware(w http.ResponseWriter, r *http.Request) {
	var req CreateSoftwareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Catalog.CreateSoftware(r.Context(), catalog.NewSoftware{
		Name:           req.Name,
		TypeName:       req.TypeName,
		LicenseTier:    req.LicenseTier,
		LicenseModel:   cost.LicenseModel(req.LicenseModel),
		CostPerLicense: req.CostPerLicense,
		TotalCost:      req.TotalCost,
	}, changedBy(req.ChangedBy))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSoftwareItemDTO(*item))
}

// UpdateSoftware applies a partial update to a software item.
func (h *Handler) UpdateSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req UpdateSoftwareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Catalog.UpdateSoftware(r.Context(), cost.SoftwareID(id), req.toUpdate(), changedBy(req.ChangedBy), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSoftwareItemDTO(*item))
}

// DeactivateSoftware hides a software item from cost calculations.
func (h *Handler) DeactivateSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeactivateSoftware(r.Context(), cost.SoftwareID(id)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// GetCostHistory lists an item's cost records, or with ?at= the single
// record in force at that instant.
func (h *Handler) GetCostHistory(w http.ResponseWriter, r *http.Request) {
	kind := cost.ItemKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid item kind", fmt.Errorf("kind must be %q or %q", cost.ItemHardware, cost.ItemSoftware))
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	item := cost.ItemRef{Kind: kind, ID: id}

	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339)", err)
			return
		}
		rec, err := h.Store.CostRecordAt(r.Context(), item, at)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "No cost record in force at that time", nil)
			return
		}
		writeJSON(w, http.StatusOK, toCostHistoryDTO(*rec))
		return
	}

	records, err := h.Store.CostRecords(r.Context(), item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]CostHistoryDTO, len(records))
	for i, rec := range records {
		dtos[i] = toCostHistoryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EXPORT HANDLERS
// =============================================================================

// ExportDepartments serves the department report as a download.
func (h *Handler) ExportDepartments(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := h.scopedDepartments(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeExport(w, r, "department-costs", format, export.DepartmentTable(summaries))
	}
}

// ExportPositions serves the position report as a download.
func (h *Handler) ExportPositions(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := h.scopedDepartments(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var positions []cost.PositionCostSummary
		for _, d := range summaries {
			for _, div := range d.Divisions {
				positions = append(positions, div.Positions...)
			}
		}
		h.writeExport(w, r, "position-costs", format, export.PositionTable(positions))
	}
}

func (h *Handler) writeExport(w http.ResponseWriter, r *http.Request, name, format string, t export.Table) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+format))

	var err error
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = export.WriteCSV(w, t)
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = export.WriteXLSX(w, t)
	default:
		writeError(w, http.StatusBadRequest, "Unknown export format", nil)
		return
	}
	if err != nil {
		// Headers are already sent; all that is left is to log.
		h.Logger.Error("export failed",
			zap.String("report", name),
			zap.String("format", format),
			zap.String("request_id", requestID(r)),
			zap.Error(err))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a domain error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var nf *cost.NotFoundError
	switch {
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s not found", nf.Entity), err)
	case cost.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case cost.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflicting cost history change", err)
	case cost.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", fmt.Errorf("id %q is not a positive integer", raw))
		return 0, false
	}
	return id, true
}

// scopeFromQuery reads ?department_id=&division_id=. No parameters means
// organization-wide.
func scopeFromQuery(r *http.Request) (cost.Scope, error) {
	q := r.URL.Query()
	depts, divs := q["department_id"], q["division_id"]
	if len(depts) == 0 && len(divs) == 0 {
		return cost.OrganizationScope(), nil
	}

	var scope cost.Scope
	for _, raw := range depts {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return scope, &cost.ValidationError{Field: "department_id", Message: fmt.Sprintf("%q is not an integer", raw)}
		}
		scope.DepartmentIDs = append(scope.DepartmentIDs, cost.DepartmentID(id))
	}
	for _, raw := range divs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return scope, &cost.ValidationError{Field: "division_id", Message: fmt.Sprintf("%q is not an integer", raw)}
		}
		scope.DivisionIDs = append(scope.DivisionIDs, cost.DivisionID(id))
	}
	return scope, nil
}

func changedBy(s string) string {
	if s == "" {
		return "api"
	}
	return s
}
