package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/pkg/config"
	"github.com/medtrack/medtrack-backend/pkg/errors"
	"github.com/medtrack/medtrack-backend/pkg/logger"
)

// Severity is an alert severity band
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ExpiryAlert flags a batch that is expired or expiring within the lookahead
type ExpiryAlert struct {
	BatchID         string    `json:"batch_id"`
	BatchNo         string    `json:"batch_no"`
	ItemID          string    `json:"item_id"`
	ItemName        string    `json:"item_name"`
	ExpiryDate      time.Time `json:"expiry_date"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	QtyOnHandUnits  int       `json:"qty_on_hand_units"`
	Expired         bool      `json:"expired"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
}

// LowStockAlert flags an item whose total stock is at or below its reorder level
type LowStockAlert struct {
	ItemID       string   `json:"item_id"`
	ItemName     string   `json:"item_name"`
	TotalStock   int      `json:"total_stock"`
	ReorderLevel int      `json:"reorder_level"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
}

// FifoWarning flags a batch that was skipped over: a later-expiring batch of
// the same item has been drawn down while this one still holds stock.
type FifoWarning struct {
	ItemID         string     `json:"item_id"`
	ItemName       string     `json:"item_name"`
	BatchID        string     `json:"batch_id"`
	BatchNo        string     `json:"batch_no"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	QtyOnHandUnits int        `json:"qty_on_hand_units"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
}

// ForecastAlert flags stock projected to outlast the demand before its expiry
type ForecastAlert struct {
	BatchID         string    `json:"batch_id"`
	BatchNo         string    `json:"batch_no"`
	ItemID          string    `json:"item_id"`
	ItemName        string    `json:"item_name"`
	ExpiryDate      time.Time `json:"expiry_date"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	QtyOnHandUnits  int       `json:"qty_on_hand_units"`
	AvgDailyUsage   float64   `json:"avg_daily_usage"`
	ProjectedUsage  float64   `json:"projected_usage"`
	RiskUnits       int       `json:"risk_units"`
	Severity        Severity  `json:"severity"`
	SuggestedAction string    `json:"suggested_action"`
}

// AlertSummary counts alerts by severity
type AlertSummary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

func (s *AlertSummary) add(sev Severity) {
	switch sev {
	case SeverityCritical:
		s.Critical++
	case SeverityWarning:
		s.Warning++
	case SeverityInfo:
		s.Info++
	}
	s.Total++
}

// AlertReport is the combined read-side alert view for one pharmacy
type AlertReport struct {
	ExpiringSoon []*ExpiryAlert   `json:"expiring_soon"`
	LowStock     []*LowStockAlert `json:"low_stock"`
	FifoWarnings []*FifoWarning   `json:"fifo_warnings"`
	Summary      AlertSummary     `json:"summary"`
}

// ForecastReport is the expiry-risk forecast view for one pharmacy
type ForecastReport struct {
	Alerts  []*ForecastAlert `json:"alerts"`
	Summary AlertSummary     `json:"summary"`
}

// AlertService derives alerts from the current batch and movement state.
// It never writes; every report is recomputed from the ledger on request.
type AlertService struct {
	batchRepo    *repository.BatchRepository
	movementRepo *repository.MovementRepository
	catalogRepo  *repository.CatalogRepository
	cfg          config.AlertsConfig
	logger       *logger.Logger
	now          func() time.Time
}

// NewAlertService creates a new alert service
func NewAlertService(
	batchRepo *repository.BatchRepository,
	movementRepo *repository.MovementRepository,
	catalogRepo *repository.CatalogRepository,
	cfg config.AlertsConfig,
	log *logger.Logger,
) *AlertService {
	return &AlertService{
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		catalogRepo:  catalogRepo,
		cfg:          cfg,
		logger:       log,
		now:          time.Now,
	}
}

// GetAlerts builds the expiring-soon, low-stock and FIFO-violation report for
// a pharmacy. A zero days value falls back to the configured lookahead.
func (s *AlertService) GetAlerts(ctx context.Context, pharmacyID string, days int) (*AlertReport, error) {
	if pharmacyID == "" {
		return nil, errors.Validation(map[string]string{"pharmacy_id": "this field is required"})
	}
	if days < 0 {
		return nil, errors.Validation(map[string]string{"days": "must not be negative"})
	}
	if days == 0 {
		days = s.cfg.LookaheadDays
	}
	if _, err := s.catalogRepo.GetPharmacy(ctx, pharmacyID); err != nil {
		return nil, err
	}

	// Depleted batches are needed too: a drawn-down newer batch is what
	// makes an older batch with stock a rotation violation.
	batches, err := s.batchRepo.List(ctx, pharmacyID, repository.BatchFilter{})
	if err != nil {
		return nil, err
	}
	stocks, err := s.batchRepo.TotalStockByItem(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	items, err := s.catalogRepo.ItemsByID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &AlertReport{
		ExpiringSoon: computeExpiryAlerts(batches, items, now, days),
		LowStock:     computeLowStockAlerts(stocks, items),
		FifoWarnings: computeFifoWarnings(batches, items),
	}
	for _, a := range report.ExpiringSoon {
		report.Summary.add(a.Severity)
	}
	for _, a := range report.LowStock {
		report.Summary.add(a.Severity)
	}
	for _, a := range report.FifoWarnings {
		report.Summary.add(a.Severity)
	}

	s.logger.Debug().
		Str("pharmacy_id", pharmacyID).
		Int("lookahead_days", days).
		Int("total_alerts", report.Summary.Total).
		Msg("alert report built")

	return report, nil
}

// GetForecastAlerts projects trailing demand against remaining shelf life and
// flags the units at risk of expiring unsold.
func (s *AlertService) GetForecastAlerts(ctx context.Context, pharmacyID string) (*ForecastReport, error) {
	if pharmacyID == "" {
		return nil, errors.Validation(map[string]string{"pharmacy_id": "this field is required"})
	}
	if _, err := s.catalogRepo.GetPharmacy(ctx, pharmacyID); err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListActive(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	items, err := s.catalogRepo.ItemsByID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := now.AddDate(0, 0, -s.cfg.UsageWindowDays)
	usageRows, err := s.movementRepo.UsageByItem(ctx, pharmacyID, since)
	if err != nil {
		return nil, err
	}
	usage := make(map[string]int, len(usageRows))
	for _, row := range usageRows {
		usage[row.ItemID] = row.QtyUnits
	}

	report := &ForecastReport{
		Alerts: computeForecastAlerts(batches, items, usage, now, s.cfg.LookaheadDays, s.cfg.UsageWindowDays),
	}
	for _, a := range report.Alerts {
		report.Summary.add(a.Severity)
	}
	return report, nil
}

// daysUntil counts whole calendar days from now to the given date, negative
// when the date is in the past. Both sides are truncated to UTC midnight.
func daysUntil(now, date time.Time) int {
	n := now.UTC().Truncate(24 * time.Hour)
	d := date.UTC().Truncate(24 * time.Hour)
	return int(d.Sub(n).Hours() / 24)
}

// expirySeverity maps days-until-expiry to a severity band
func expirySeverity(days int) Severity {
	switch {
	case days <= 30:
		return SeverityCritical
	case days <= 90:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func computeExpiryAlerts(batches []*repository.Batch, items map[string]*repository.InventoryItem, now time.Time, lookaheadDays int) []*ExpiryAlert {
	alerts := make([]*ExpiryAlert, 0)
	for _, batch := range batches {
		if batch.ExpiryDate == nil || batch.QtyOnHandUnits <= 0 {
			continue
		}
		days := daysUntil(now, *batch.ExpiryDate)
		if days > lookaheadDays {
			continue
		}

		alert := &ExpiryAlert{
			BatchID:         batch.ID,
			BatchNo:         batch.BatchNo,
			ItemID:          batch.ItemID,
			ItemName:        itemName(items, batch.ItemID),
			ExpiryDate:      *batch.ExpiryDate,
			DaysUntilExpiry: days,
			QtyOnHandUnits:  batch.QtyOnHandUnits,
			Expired:         days < 0,
			Severity:        expirySeverity(days),
		}
		if alert.Expired {
			alert.Message = fmt.Sprintf("batch %s expired %d days ago with %d units on hand", batch.BatchNo, -days, batch.QtyOnHandUnits)
		} else {
			alert.Message = fmt.Sprintf("batch %s expires in %d days with %d units on hand", batch.BatchNo, days, batch.QtyOnHandUnits)
		}
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].DaysUntilExpiry < alerts[j].DaysUntilExpiry
	})
	return alerts
}

func computeLowStockAlerts(stocks []*repository.ItemStock, items map[string]*repository.InventoryItem) []*LowStockAlert {
	alerts := make([]*LowStockAlert, 0)
	for _, stock := range stocks {
		item, ok := items[stock.ItemID]
		if !ok || item.ReorderLevel <= 0 {
			continue
		}
		if stock.TotalUnits > item.ReorderLevel {
			continue
		}

		var severity Severity
		switch {
		case stock.TotalUnits == 0:
			severity = SeverityCritical
		case stock.TotalUnits*2 <= item.ReorderLevel:
			severity = SeverityWarning
		default:
			severity = SeverityInfo
		}

		alerts = append(alerts, &LowStockAlert{
			ItemID:       stock.ItemID,
			ItemName:     item.DisplayName(),
			TotalStock:   stock.TotalUnits,
			ReorderLevel: item.ReorderLevel,
			Severity:     severity,
			Message:      fmt.Sprintf("%s has %d units on hand, reorder level is %d", item.DisplayName(), stock.TotalUnits, item.ReorderLevel),
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].TotalStock < alerts[j].TotalStock
	})
	return alerts
}

// computeFifoWarnings scans each item's batches for a dated batch that still
// holds stock while a later-expiring batch of the same item has already been
// drawn down. One warning is emitted per skipped batch.
func computeFifoWarnings(batches []*repository.Batch, items map[string]*repository.InventoryItem) []*FifoWarning {
	byItem := make(map[string][]*repository.Batch)
	for _, batch := range batches {
		byItem[batch.ItemID] = append(byItem[batch.ItemID], batch)
	}

	warnings := make([]*FifoWarning, 0)
	for itemID, group := range byItem {
		if len(group) < 2 {
			continue
		}
		for _, older := range group {
			if older.ExpiryDate == nil || older.QtyOnHandUnits <= 0 {
				continue
			}
			for _, newer := range group {
				if newer.ID == older.ID || !expiresAfter(newer, older) {
					continue
				}
				if newer.QtyOnHandUnits < newer.QtyReceivedUnits {
					warnings = append(warnings, &FifoWarning{
						ItemID:         itemID,
						ItemName:       itemName(items, itemID),
						BatchID:        older.ID,
						BatchNo:        older.BatchNo,
						ExpiryDate:     older.ExpiryDate,
						QtyOnHandUnits: older.QtyOnHandUnits,
						Severity:       SeverityWarning,
						Message:        fmt.Sprintf("batch %s (expires %s) still holds %d units while batch %s with a later expiry has been used", older.BatchNo, older.ExpiryDate.Format("2006-01-02"), older.QtyOnHandUnits, newer.BatchNo),
					})
					break
				}
			}
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].ItemID != warnings[j].ItemID {
			return warnings[i].ItemID < warnings[j].ItemID
		}
		return warnings[i].BatchNo < warnings[j].BatchNo
	})
	return warnings
}

// expiresAfter reports whether a expires strictly after b. A batch without an
// expiry date sorts after every dated batch.
func expiresAfter(a, b *repository.Batch) bool {
	if b.ExpiryDate == nil {
		return false
	}
	if a.ExpiryDate == nil {
		return true
	}
	return a.ExpiryDate.After(*b.ExpiryDate)
}

func computeForecastAlerts(batches []*repository.Batch, items map[string]*repository.InventoryItem, usage map[string]int, now time.Time, lookaheadDays, usageWindowDays int) []*ForecastAlert {
	alerts := make([]*ForecastAlert, 0)
	for _, batch := range batches {
		if batch.ExpiryDate == nil || batch.QtyOnHandUnits <= 0 {
			continue
		}
		days := daysUntil(now, *batch.ExpiryDate)
		if days < 0 || days > lookaheadDays {
			continue
		}

		avgDaily := float64(usage[batch.ItemID]) / float64(usageWindowDays)
		projected := avgDaily * float64(days)
		risk := int(math.Round(float64(batch.QtyOnHandUnits) - projected))
		if risk <= 0 {
			continue
		}

		alert := &ForecastAlert{
			BatchID:         batch.ID,
			BatchNo:         batch.BatchNo,
			ItemID:          batch.ItemID,
			ItemName:        itemName(items, batch.ItemID),
			ExpiryDate:      *batch.ExpiryDate,
			DaysUntilExpiry: days,
			QtyOnHandUnits:  batch.QtyOnHandUnits,
			AvgDailyUsage:   avgDaily,
			ProjectedUsage:  projected,
			RiskUnits:       risk,
			Severity:        expirySeverity(days),
		}
		if avgDaily == 0 {
			alert.SuggestedAction = fmt.Sprintf("no recorded demand in the last %d days, consider transferring %d units", usageWindowDays, risk)
		} else {
			alert.SuggestedAction = fmt.Sprintf("projected demand covers %.0f units, consider discounting or transferring the remaining %d", projected, risk)
		}
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].DaysUntilExpiry != alerts[j].DaysUntilExpiry {
			return alerts[i].DaysUntilExpiry < alerts[j].DaysUntilExpiry
		}
		return alerts[i].RiskUnits > alerts[j].RiskUnits
	})
	return alerts
}

func itemName(items map[string]*repository.InventoryItem, itemID string) string {
	if item, ok := items[itemID]; ok {
		return item.DisplayName()
	}
	return itemID
}
