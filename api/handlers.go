/*
handlers.go - HTTP API handlers for the consumption engine

PURPOSE:
  Exposes the consumption engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Work packages:
    GET    /api/work-packages                       List work packages
    POST   /api/work-packages                       Create/update work package
    GET    /api/work-packages/{id}                  Get work package
    GET    /api/work-packages/{id}/periods          List validity periods
    POST   /api/work-packages/{id}/periods          Create/update period
    GET    /api/work-packages/{id}/consumption      Per-period consumption
    GET    /api/work-packages/{id}/metrics          Monthly metrics in range
    GET    /api/work-packages/{id}/regularizations  Ledger entries in range
    POST   /api/work-packages/{id}/regularizations  Record return/manual
    GET    /api/work-packages/{id}/tm-report        Monthly T&M report
    GET    /api/work-packages/{id}/assignments      List model assignments
    POST   /api/work-packages/{id}/assignments      Bind a model

  Models:
    GET    /api/models                              List correction models
    POST   /api/models                              Create/update model
    GET    /api/models/{code}                       Get model
    POST   /api/models/{code}/default               Set system default

  Regularizations:
    POST   /api/regularizations/{id}/review         Mark reviewed
    POST   /api/regularizations/{id}/billing-flags  Correct billing state
    DELETE /api/regularizations/{id}                Administrative delete

  Sync (shared-secret protected):
    POST   /api/sync/work-packages/{id}             Sync one work package
    POST   /api/sync/all                            Sync every work package
    POST   /api/sync/stop                           Set the stop flag
    POST   /api/sync/resume                         Clear the stop flag
    GET    /api/sync/runs                           Recent run records

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate regularization)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/ingest"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store bundles every persistence interface the handlers use.
type Store interface {
	ledger.ConfigStore
	ledger.WorklogStore
	ledger.MetricStore
	ledger.RegularizationStore
	ledger.TicketStore
	ledger.SyncRunStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store           Store
	Syncer          *ingest.Syncer
	Regularizations *ledger.RegularizationLedger
	Calculator      *ledger.Calculator
	Classifier      *billing.Classifier
	Resolver        *ledger.Resolver

	// SyncSecret guards the sync trigger endpoints. Empty disables the
	// check (local development).
	SyncSecret string
}

// =============================================================================
// WORK PACKAGES
// =============================================================================

func (h *Handler) ListWorkPackages(w http.ResponseWriter, r *http.Request) {
	wps, err := h.Store.ListWorkPackages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]WorkPackageDTO, 0, len(wps))
	for _, wp := range wps {
		dtos = append(dtos, toWorkPackageDTO(wp))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveWorkPackage(w http.ResponseWriter, r *http.Request) {
	var req SaveWorkPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ID == "" || req.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "id and name are required")
		return
	}

	scope := ledger.ScopeUnit(req.ScopeUnit)
	if scope == "" {
		scope = ledger.ScopeHours
	}

	wp := ledger.WorkPackage{
		ID:                 ledger.WorkPackageID(req.ID),
		Name:               req.Name,
		ClientID:           req.ClientID,
		AccountKey:         req.AccountKey,
		ScopeUnit:          scope,
		ValidTicketTypes:   req.ValidTicketTypes,
		IncludeEvolutiveTM: req.IncludeEvolutiveTM,
		CreatedAt:          time.Now().UTC(),
	}

	if err := h.Store.SaveWorkPackage(r.Context(), wp); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkPackageDTO(wp))
}

func (h *Handler) GetWorkPackage(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toWorkPackageDTO(*wp))
}

// loadWorkPackage fetches the {id} work package or writes a 404.
func (h *Handler) loadWorkPackage(w http.ResponseWriter, r *http.Request) (*ledger.WorkPackage, bool) {
	id := ledger.WorkPackageID(chi.URLParam(r, "id"))
	wp, err := h.Store.GetWorkPackage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if wp == nil {
		writeErrorMessage(w, http.StatusNotFound, "work package not found")
		return nil, false
	}
	return wp, true
}

// =============================================================================
// VALIDITY PERIODS
// =============================================================================

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	periods, err := h.Store.ListPeriods(r.Context(), wp.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]PeriodDTO, 0, len(periods))
	for _, p := range periods {
		dtos = append(dtos, toPeriodDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SavePeriod(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}

	var req SavePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	start, err := ledger.ParseDate(req.Start)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid start date: "+req.Start)
		return
	}
	end, err := ledger.ParseDate(req.End)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid end date: "+req.End)
		return
	}
	if end.Before(start) {
		writeErrorMessage(w, http.StatusBadRequest, "end date before start date")
		return
	}
	if req.TotalQuantity <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "total_quantity must be positive")
		return
	}

	period := ledger.ValidityPeriod{
		ID:              req.ID,
		WorkPackageID:   wp.ID,
		Start:           start,
		End:             end,
		TotalQuantity:   decimal.NewFromFloat(req.TotalQuantity),
		Rate:            decimal.NewFromFloat(req.Rate),
		SurplusStrategy: req.SurplusStrategy,
		CreatedAt:       time.Now().UTC(),
	}
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	if req.RegularizationRate != nil {
		rr := decimal.NewFromFloat(*req.RegularizationRate)
		period.RegularizationRate = &rr
	}

	// Overlap is allowed but logged; the resolver tie-breaks later.
	existing, err := h.Store.ListPeriods(r.Context(), wp.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, warning := range ledger.ValidatePeriodOverlap(append(existing, period)) {
		log.Printf("[API] %v", warning)
	}

	if err := h.Store.SavePeriod(r.Context(), period); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(period))
}

// =============================================================================
// CORRECTION MODELS
// =============================================================================

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.Store.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]ModelDTO, 0, len(models))
	for _, m := range models {
		dtos = append(dtos, toModelDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveModel(w http.ResponseWriter, r *http.Request) {
	var req SaveModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Code == "" {
		writeErrorMessage(w, http.StatusBadRequest, "code is required")
		return
	}

	raw, err := json.Marshal(req.Config)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	cfg, err := factory.ParseCorrectionConfig(string(raw))
	if err != nil {
		writeError(w, err)
		return
	}

	model := ledger.CorrectionModel{
		Code:      req.Code,
		Name:      req.Name,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveModel(r.Context(), model); err != nil {
		writeError(w, err)
		return
	}

	stored, err := h.Store.GetModel(r.Context(), req.Code)
	if err != nil || stored == nil {
		writeJSON(w, http.StatusCreated, toModelDTO(model))
		return
	}
	writeJSON(w, http.StatusCreated, toModelDTO(*stored))
}

func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	model, err := h.Store.GetModel(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	if model == nil {
		writeErrorMessage(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, toModelDTO(*model))
}

func (h *Handler) SetDefaultModel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.Store.SetDefaultModel(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"default": code})
}

// =============================================================================
// MODEL ASSIGNMENTS
// =============================================================================

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	assignments, err := h.Store.ListAssignments(r.Context(), wp.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]AssignmentDTO, 0, len(assignments))
	for _, a := range assignments {
		dtos = append(dtos, toAssignmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveAssignment(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}

	var req SaveAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	model, err := h.Store.GetModel(r.Context(), req.ModelCode)
	if err != nil {
		writeError(w, err)
		return
	}
	if model == nil {
		writeErrorMessage(w, http.StatusNotFound, "model not found: "+req.ModelCode)
		return
	}

	start, err := ledger.ParseDate(req.Start)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid start date: "+req.Start)
		return
	}

	assignment := ledger.ModelAssignment{
		ID:            uuid.NewString(),
		WorkPackageID: wp.ID,
		ModelCode:     req.ModelCode,
		Start:         start,
		CreatedAt:     time.Now().UTC(),
	}
	if req.End != nil {
		end, err := ledger.ParseDate(*req.End)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid end date: "+*req.End)
			return
		}
		if end.Before(start) {
			writeErrorMessage(w, http.StatusBadRequest, "end date before start date")
			return
		}
		assignment.End = &end
	}

	if err := h.Store.SaveAssignment(r.Context(), assignment); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(assignment))
}

// =============================================================================
// REGULARIZATIONS
// =============================================================================

func (h *Handler) ListRegularizations(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	var types []ledger.RegularizationType
	if t := r.URL.Query().Get("type"); t != "" {
		types = append(types, ledger.RegularizationType(t))
	}

	entries, err := h.Regularizations.List(r.Context(), wp.ID, from, to, types...)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]RegularizationDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toRegularizationDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordRegularization(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}

	var req RecordRegularizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid date: "+req.Date)
		return
	}

	entry, err := h.Regularizations.Record(r.Context(), ledger.Regularization{
		WorkPackageID: wp.ID,
		Type:          ledger.RegularizationType(req.Type),
		Quantity:      decimal.NewFromFloat(req.Quantity),
		Date:          date,
		TicketKey:     req.TicketKey,
		Note:          req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRegularizationDTO(entry))
}

func (h *Handler) DeleteRegularization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Regularizations.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *Handler) MarkRegularizationReviewed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Regularizations.MarkReviewed(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reviewed": id})
}

func (h *Handler) SetBillingFlags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req BillingFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := h.Regularizations.SetBillingFlags(r.Context(), id, req.RevenueRecognized, req.Billed); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.Store.GetRegularization(r.Context(), id)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, map[string]string{"updated": id})
		return
	}
	writeJSON(w, http.StatusOK, toRegularizationDTO(*updated))
}

// =============================================================================
// CONSUMPTION AND METRICS
// =============================================================================

// GetConsumption computes and returns the consumption state of every
// validity period of the work package.
func (h *Handler) GetConsumption(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	periods, err := h.Store.ListPeriods(r.Context(), wp.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]ConsumptionDTO, 0, len(periods))
	for _, period := range periods {
		pc, err := h.Calculator.ComputePeriodConsumption(r.Context(), period)
		if err != nil {
			writeError(w, err)
			return
		}
		dtos = append(dtos, toConsumptionDTO(pc))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	metrics, err := h.Store.MetricsInRange(r.Context(), wp.ID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]MetricDTO, 0, len(metrics))
	for _, m := range metrics {
		dtos = append(dtos, toMetricDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// T&M REPORTS
// =============================================================================

// GetTMReport returns the monthly T&M evolutivo report. Query params:
// year, month.
func (h *Handler) GetTMReport(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	if !wp.IncludeEvolutiveTM {
		writeErrorMessage(w, http.StatusBadRequest, "work package does not track evolutive T&M")
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "year query param required")
		return
	}
	monthNum, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || monthNum < 1 || monthNum > 12 {
		writeErrorMessage(w, http.StatusBadRequest, "month query param must be 1-12")
		return
	}

	month := ledger.MonthKey{Year: year, Month: time.Month(monthNum)}
	report, err := h.Classifier.MonthlyTM(r.Context(), wp.ID, month)
	if err != nil {
		writeError(w, err)
		return
	}

	dto := TMReportDTO{
		WorkPackageID: string(report.WorkPackageID),
		Month:         report.Month.String(),
		TotalHours:    toFloat(report.TotalHours),
	}
	for _, line := range report.Lines {
		dto.Lines = append(dto.Lines, TMLineDTO{
			IssueKey:    line.IssueKey,
			IssueType:   line.IssueType,
			BillingMode: line.BillingMode,
			WorkedHours: toFloat(line.WorkedHours),
			Authors:     line.Authors,
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// SYNC
// =============================================================================

// requireSyncSecret checks the X-Sync-Secret header. Writes 401 and
// returns false on mismatch.
func (h *Handler) requireSyncSecret(w http.ResponseWriter, r *http.Request) bool {
	if h.SyncSecret == "" {
		return true
	}
	if r.Header.Get("X-Sync-Secret") != h.SyncSecret {
		writeErrorMessage(w, http.StatusUnauthorized, "invalid sync secret")
		return false
	}
	return true
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if !h.requireSyncSecret(w, r) {
		return
	}
	if h.Syncer == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	wp, ok := h.loadWorkPackage(w, r)
	if !ok {
		return
	}
	window, ok := parseSyncWindow(w, r)
	if !ok {
		return
	}

	run, err := h.Syncer.SyncWorkPackage(r.Context(), wp.ID, window)
	if err != nil {
		// The run record carries the failure detail; surface both.
		writeJSON(w, statusFor(err), toSyncRunDTO(run))
		return
	}
	writeJSON(w, http.StatusOK, toSyncRunDTO(run))
}

func (h *Handler) TriggerSyncAll(w http.ResponseWriter, r *http.Request) {
	if !h.requireSyncSecret(w, r) {
		return
	}
	if h.Syncer == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	window, ok := parseSyncWindow(w, r)
	if !ok {
		return
	}

	result, err := h.Syncer.SyncAll(r.Context(), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

func (h *Handler) StopSync(w http.ResponseWriter, r *http.Request) {
	if !h.requireSyncSecret(w, r) {
		return
	}
	if err := h.Store.SetSyncStopped(r.Context(), true); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (h *Handler) ResumeSync(w http.ResponseWriter, r *http.Request) {
	if !h.requireSyncSecret(w, r) {
		return
	}
	if err := h.Store.SetSyncStopped(r.Context(), false); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": false})
}

func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	wpID := ledger.WorkPackageID(r.URL.Query().Get("work_package_id"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.Store.ListSyncRuns(r.Context(), wpID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]SyncRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toSyncRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// parseSyncWindow reads the window from the request body. An empty body
// defaults to the last three full months through today; a malformed body
// is a client error, not a default.
func parseSyncWindow(w http.ResponseWriter, r *http.Request) (ingest.Window, bool) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err != io.EOF {
			writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
			return ingest.Window{}, false
		}
		req = SyncRequest{}
	}
	if req.From == "" {
		today := ledger.Today()
		return ingest.Window{From: today.AddMonths(-3), To: today}, true
	}

	from, err := ledger.ParseDate(req.From)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid from date: "+req.From)
		return ingest.Window{}, false
	}
	to, err := ledger.ParseDate(req.To)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid to date: "+req.To)
		return ingest.Window{}, false
	}
	return ingest.Window{From: from, To: to}, true
}

// parseWindow reads from/to query params. Missing params default to the
// current calendar year.
func parseWindow(w http.ResponseWriter, r *http.Request) (ledger.Date, ledger.Date, bool) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	if fromStr == "" && toStr == "" {
		today := ledger.Today()
		from := ledger.NewDate(today.Year(), time.January, 1)
		to := ledger.NewDate(today.Year(), time.December, 31)
		return from, to, true
	}

	from, err := ledger.ParseDate(fromStr)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid from date: "+fromStr)
		return ledger.Date{}, ledger.Date{}, false
	}
	to, err := ledger.ParseDate(toStr)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid to date: "+toStr)
		return ledger.Date{}, ledger.Date{}, false
	}
	if to.Before(from) {
		writeErrorMessage(w, http.StatusBadRequest, "to before from")
		return ledger.Date{}, ledger.Date{}, false
	}
	return from, to, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrDuplicateRegularization):
		return http.StatusConflict
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
