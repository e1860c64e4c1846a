/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNT ENCODING:
  Quantities and hours cross the wire as JSON numbers (float64). The
  engine keeps decimal.Decimal internally; the conversion happens only
  at this boundary.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: CorrectionJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/ingest"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// WORK PACKAGES
// =============================================================================

// WorkPackageDTO represents a work package in API responses.
type WorkPackageDTO struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	ClientID           string   `json:"client_id,omitempty"`
	AccountKey         string   `json:"account_key,omitempty"`
	ScopeUnit          string   `json:"scope_unit"`
	ValidTicketTypes   []string `json:"valid_ticket_types,omitempty"`
	IncludeEvolutiveTM bool     `json:"include_evolutive_tm"`
	CreatedAt          string   `json:"created_at,omitempty"`
}

// SaveWorkPackageRequest creates or updates a work package.
type SaveWorkPackageRequest struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	ClientID           string   `json:"client_id,omitempty"`
	AccountKey         string   `json:"account_key,omitempty"`
	ScopeUnit          string   `json:"scope_unit,omitempty"`
	ValidTicketTypes   []string `json:"valid_ticket_types,omitempty"`
	IncludeEvolutiveTM bool     `json:"include_evolutive_tm"`
}

// =============================================================================
// VALIDITY PERIODS
// =============================================================================

// PeriodDTO represents a validity period.
type PeriodDTO struct {
	ID                 string   `json:"id"`
	WorkPackageID      string   `json:"work_package_id"`
	Start              string   `json:"start"`
	End                string   `json:"end"`
	TotalQuantity      float64  `json:"total_quantity"`
	Rate               float64  `json:"rate"`
	RegularizationRate *float64 `json:"regularization_rate,omitempty"`
	SurplusStrategy    string   `json:"surplus_strategy,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
}

// SavePeriodRequest creates or updates a validity period.
type SavePeriodRequest struct {
	ID                 string   `json:"id,omitempty"`
	Start              string   `json:"start"`
	End                string   `json:"end"`
	TotalQuantity      float64  `json:"total_quantity"`
	Rate               float64  `json:"rate"`
	RegularizationRate *float64 `json:"regularization_rate,omitempty"`
	SurplusStrategy    string   `json:"surplus_strategy,omitempty"`
}

// =============================================================================
// CORRECTION MODELS
// =============================================================================

// ModelDTO represents a correction model.
type ModelDTO struct {
	Code      string                 `json:"code"`
	Name      string                 `json:"name"`
	Config    factory.CorrectionJSON `json:"config"`
	IsDefault bool                   `json:"is_default"`
	Version   int                    `json:"version"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

// SaveModelRequest creates or updates a correction model.
type SaveModelRequest struct {
	Code   string                 `json:"code"`
	Name   string                 `json:"name"`
	Config factory.CorrectionJSON `json:"config"`
}

// AssignmentDTO represents a model assignment.
type AssignmentDTO struct {
	ID            string  `json:"id"`
	WorkPackageID string  `json:"work_package_id"`
	ModelCode     string  `json:"model_code"`
	Start         string  `json:"start"`
	End           *string `json:"end,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// SaveAssignmentRequest binds a model to a work package for a date range.
type SaveAssignmentRequest struct {
	ModelCode string  `json:"model_code"`
	Start     string  `json:"start"`
	End       *string `json:"end,omitempty"`
}

// =============================================================================
// REGULARIZATIONS
// =============================================================================

// RegularizationDTO represents a ledger entry.
type RegularizationDTO struct {
	ID                    string  `json:"id"`
	WorkPackageID         string  `json:"work_package_id"`
	Type                  string  `json:"type"`
	Quantity              float64 `json:"quantity"`
	Date                  string  `json:"date"`
	TicketKey             string  `json:"ticket_key,omitempty"`
	Note                  string  `json:"note,omitempty"`
	ReviewedForDuplicates bool    `json:"reviewed_for_duplicates"`
	RevenueRecognized     bool    `json:"revenue_recognized"`
	Billed                bool    `json:"billed"`
	PeriodID              string  `json:"period_id,omitempty"`
	CreatedAt             string  `json:"created_at,omitempty"`
}

// RecordRegularizationRequest records a return or manual consumption.
type RecordRegularizationRequest struct {
	Type      string  `json:"type"`
	Quantity  float64 `json:"quantity"`
	Date      string  `json:"date"`
	TicketKey string  `json:"ticket_key,omitempty"`
	Note      string  `json:"note,omitempty"`
}

// BillingFlagsRequest corrects the billing state of an excess entry.
// Omitted fields are left untouched.
type BillingFlagsRequest struct {
	RevenueRecognized *bool `json:"revenue_recognized,omitempty"`
	Billed            *bool `json:"billed,omitempty"`
}

// =============================================================================
// CONSUMPTION AND METRICS
// =============================================================================

// MetricDTO represents one monthly consumption figure.
type MetricDTO struct {
	WorkPackageID string  `json:"work_package_id"`
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	ConsumedHours float64 `json:"consumed_hours"`
	EntryCount    int     `json:"entry_count"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// ConsumptionDTO is the computed consumption state of one period.
type ConsumptionDTO struct {
	Period         PeriodDTO `json:"period"`
	MetricsTotal   float64   `json:"metrics_total"`
	ReturnsTotal   float64   `json:"returns_total"`
	ManualTotal    float64   `json:"manual_total"`
	Consumed       float64   `json:"consumed"`
	Remaining      float64   `json:"remaining"`
	OverContracted bool      `json:"over_contracted"`
	Excess         float64   `json:"excess,omitempty"`
}

// =============================================================================
// T&M REPORTS
// =============================================================================

// TMLineDTO is one T&M-billable issue line in a monthly report.
type TMLineDTO struct {
	IssueKey    string   `json:"issue_key"`
	IssueType   string   `json:"issue_type"`
	BillingMode string   `json:"billing_mode"`
	WorkedHours float64  `json:"worked_hours"`
	Authors     []string `json:"authors,omitempty"`
}

// TMReportDTO is the monthly T&M evolutivo report.
type TMReportDTO struct {
	WorkPackageID string      `json:"work_package_id"`
	Month         string      `json:"month"`
	Lines         []TMLineDTO `json:"lines"`
	TotalHours    float64     `json:"total_hours"`
}

// =============================================================================
// SYNC
// =============================================================================

// SyncRequest triggers an ingestion run over a date window.
type SyncRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SyncRunDTO represents one pipeline run.
type SyncRunDTO struct {
	ID            string `json:"id"`
	WorkPackageID string `json:"work_package_id"`
	WindowStart   string `json:"window_start"`
	WindowEnd     string `json:"window_end"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	EntriesSynced int    `json:"entries_synced"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// BatchResultDTO summarizes one all-work-packages sync.
type BatchResultDTO struct {
	Runs    []SyncRunDTO `json:"runs"`
	Stopped bool         `json:"stopped"`
	Failed  int          `json:"failed"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toWorkPackageDTO(wp ledger.WorkPackage) WorkPackageDTO {
	return WorkPackageDTO{
		ID:                 string(wp.ID),
		Name:               wp.Name,
		ClientID:           wp.ClientID,
		AccountKey:         wp.AccountKey,
		ScopeUnit:          string(wp.ScopeUnit),
		ValidTicketTypes:   wp.ValidTicketTypes,
		IncludeEvolutiveTM: wp.IncludeEvolutiveTM,
		CreatedAt:          formatTime(wp.CreatedAt),
	}
}

func toPeriodDTO(p ledger.ValidityPeriod) PeriodDTO {
	dto := PeriodDTO{
		ID:              p.ID,
		WorkPackageID:   string(p.WorkPackageID),
		Start:           p.Start.String(),
		End:             p.End.String(),
		TotalQuantity:   toFloat(p.TotalQuantity),
		Rate:            toFloat(p.Rate),
		SurplusStrategy: p.SurplusStrategy,
		CreatedAt:       formatTime(p.CreatedAt),
	}
	if p.RegularizationRate != nil {
		v := toFloat(*p.RegularizationRate)
		dto.RegularizationRate = &v
	}
	return dto
}

func toModelDTO(m ledger.CorrectionModel) ModelDTO {
	cfg := factory.CorrectionJSONOf(m.Config)
	cfg.Code = m.Code
	cfg.Name = m.Name
	return ModelDTO{
		Code:      m.Code,
		Name:      m.Name,
		Config:    cfg,
		IsDefault: m.IsDefault,
		Version:   m.Version,
		CreatedAt: formatTime(m.CreatedAt),
	}
}

func toAssignmentDTO(a ledger.ModelAssignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:            a.ID,
		WorkPackageID: string(a.WorkPackageID),
		ModelCode:     a.ModelCode,
		Start:         a.Start.String(),
		CreatedAt:     formatTime(a.CreatedAt),
	}
	if a.End != nil {
		v := a.End.String()
		dto.End = &v
	}
	return dto
}

func toRegularizationDTO(r ledger.Regularization) RegularizationDTO {
	return RegularizationDTO{
		ID:                    r.ID,
		WorkPackageID:         string(r.WorkPackageID),
		Type:                  string(r.Type),
		Quantity:              toFloat(r.Quantity),
		Date:                  r.Date.String(),
		TicketKey:             r.TicketKey,
		Note:                  r.Note,
		ReviewedForDuplicates: r.ReviewedForDuplicates,
		RevenueRecognized:     r.RevenueRecognized,
		Billed:                r.Billed,
		PeriodID:              r.PeriodID,
		CreatedAt:             formatTime(r.CreatedAt),
	}
}

func toMetricDTO(m ledger.MonthlyMetric) MetricDTO {
	return MetricDTO{
		WorkPackageID: string(m.WorkPackageID),
		Year:          m.Year,
		Month:         int(m.Month),
		ConsumedHours: toFloat(m.ConsumedHours),
		EntryCount:    m.EntryCount,
		UpdatedAt:     formatTime(m.UpdatedAt),
	}
}

func toConsumptionDTO(pc *ledger.PeriodConsumption) ConsumptionDTO {
	return ConsumptionDTO{
		Period:         toPeriodDTO(pc.Period),
		MetricsTotal:   toFloat(pc.MetricsTotal),
		ReturnsTotal:   toFloat(pc.ReturnsTotal),
		ManualTotal:    toFloat(pc.ManualTotal),
		Consumed:       toFloat(pc.Consumed),
		Remaining:      toFloat(pc.Remaining),
		OverContracted: pc.OverContracted,
		Excess:         toFloat(pc.Excess),
	}
}

func toSyncRunDTO(run ledger.SyncRun) SyncRunDTO {
	dto := SyncRunDTO{
		ID:            run.ID,
		WorkPackageID: string(run.WorkPackageID),
		WindowStart:   run.WindowStart.String(),
		WindowEnd:     run.WindowEnd.String(),
		Status:        string(run.Status),
		Error:         run.Error,
		EntriesSynced: run.EntriesSynced,
		StartedAt:     formatTime(run.StartedAt),
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = formatTime(*run.CompletedAt)
	}
	return dto
}

func toBatchResultDTO(res ingest.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{Stopped: res.Stopped, Failed: res.Failed}
	for _, run := range res.Runs {
		dto.Runs = append(dto.Runs, toSyncRunDTO(run))
	}
	return dto
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
