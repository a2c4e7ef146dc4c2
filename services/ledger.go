package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/models"
)

// AddPointsInput describes a credit (or a signed correction) to one balance.
type AddPointsInput struct {
	IndividualID  uint
	Amount        int
	Type          string
	Description   string
	AccessEventID *uint
	AdminID       *uint
	// At stamps the ledger row; zero means now.
	At time.Time
}

// DebitInput describes a consume or manual subtraction.
type DebitInput struct {
	IndividualID uint
	Amount       int
	Description  string
	AdminID      *uint
}

// BulkItem is one entry of a bulk request.
type BulkItem struct {
	IndividualID uint   `json:"individual_id"`
	Amount       int    `json:"amount"`
	Description  string `json:"description"`
}

// BulkResult reports the outcome of one bulk entry.
type BulkResult struct {
	IndividualID  uint   `json:"individual_id"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	TransactionID uint   `json:"transaction_id,omitempty"`
}

func validTxType(t string) bool {
	switch t {
	case models.TxEntry, models.TxMonthlyBonus, models.TxManualAdd, models.TxManualSubtract, models.TxConsume:
		return true
	}
	return false
}

// AddPoints appends a ledger row and moves the cached balance by the same
// amount in one transaction. A referenced access event is marked processed.
// Sign is the caller's responsibility; zero is rejected.
func (e *Engine) AddPoints(ctx context.Context, in AddPointsInput) (models.PointTransaction, error) {
	if in.Amount == 0 {
		return models.PointTransaction{}, ErrInvalidAmount
	}
	if !validTxType(in.Type) {
		return models.PointTransaction{}, ErrInvalidTxType
	}
	at := in.At
	if at.IsZero() {
		at = e.Now()
	}
	row := models.PointTransaction{
		IndividualID:    in.IndividualID,
		Points:          in.Amount,
		TransactionType: in.Type,
		Description:     in.Description,
		AccessEventID:   in.AccessEventID,
		AdminID:         in.AdminID,
		CreatedAt:       at.UTC(),
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Individual{}).Where("id = ?", in.IndividualID).
			Update("current_points", gorm.Expr("current_points + ?", in.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIndividualNotFound
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if in.AccessEventID != nil {
			return tx.Model(&models.AccessEvent{}).Where("id = ?", *in.AccessEventID).
				Update("points_processed", true).Error
		}
		return nil
	})
	if err != nil {
		return models.PointTransaction{}, err
	}
	e.log.Info("points added",
		zap.Uint("individual_id", in.IndividualID),
		zap.Int("points", in.Amount),
		zap.String("type", in.Type),
	)
	return row, nil
}

// ConsumePoints spends points. The balance never goes below zero.
func (e *Engine) ConsumePoints(ctx context.Context, in DebitInput) (models.PointTransaction, error) {
	return e.debit(ctx, in, models.TxConsume)
}

// SubtractPoints is an administrative deduction with the same bound as ConsumePoints.
func (e *Engine) SubtractPoints(ctx context.Context, in DebitInput) (models.PointTransaction, error) {
	return e.debit(ctx, in, models.TxManualSubtract)
}

// debit decrements only while current_points >= amount, so concurrent debits
// cannot overdraw and a rejected debit writes nothing.
func (e *Engine) debit(ctx context.Context, in DebitInput, txType string) (models.PointTransaction, error) {
	if in.Amount <= 0 {
		return models.PointTransaction{}, ErrInvalidAmount
	}
	row := models.PointTransaction{
		IndividualID:    in.IndividualID,
		Points:          -in.Amount,
		TransactionType: txType,
		Description:     in.Description,
		AdminID:         in.AdminID,
		CreatedAt:       e.Now(),
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Individual{}).
			Where("id = ? AND current_points >= ?", in.IndividualID, in.Amount).
			Update("current_points", gorm.Expr("current_points - ?", in.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.Individual{}).Where("id = ?", in.IndividualID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrIndividualNotFound
			}
			return ErrInsufficientPoints
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return models.PointTransaction{}, err
	}
	e.log.Info("points debited",
		zap.Uint("individual_id", in.IndividualID),
		zap.Int("points", -in.Amount),
		zap.String("type", txType),
	)
	return row, nil
}

// BulkAddPoints credits each item as a manual_add. Items are independent.
func (e *Engine) BulkAddPoints(ctx context.Context, items []BulkItem, adminID *uint) []BulkResult {
	out := make([]BulkResult, 0, len(items))
	for _, it := range items {
		r := BulkResult{IndividualID: it.IndividualID}
		if it.Amount <= 0 {
			r.Error = ErrInvalidAmount.Error()
			out = append(out, r)
			continue
		}
		row, err := e.AddPoints(ctx, AddPointsInput{
			IndividualID: it.IndividualID,
			Amount:       it.Amount,
			Type:         models.TxManualAdd,
			Description:  it.Description,
			AdminID:      adminID,
		})
		if err != nil {
			r.Error = err.Error()
		} else {
			r.OK, r.TransactionID = true, row.ID
		}
		out = append(out, r)
	}
	return out
}

// BulkConsumePoints debits each item as a consume. Items are independent.
func (e *Engine) BulkConsumePoints(ctx context.Context, items []BulkItem, adminID *uint) []BulkResult {
	out := make([]BulkResult, 0, len(items))
	for _, it := range items {
		r := BulkResult{IndividualID: it.IndividualID}
		row, err := e.ConsumePoints(ctx, DebitInput{
			IndividualID: it.IndividualID,
			Amount:       it.Amount,
			Description:  it.Description,
			AdminID:      adminID,
		})
		if err != nil {
			r.Error = err.Error()
		} else {
			r.OK, r.TransactionID = true, row.ID
		}
		out = append(out, r)
	}
	return out
}

// Discrepancy is an individual whose cached balance differs from the ledger sum.
type Discrepancy struct {
	IndividualID uint   `json:"individual_id"`
	Name         string `json:"name"`
	Cached       int    `json:"cached"`
	LedgerSum    int    `json:"ledger_sum"`
	Fixed        bool   `json:"fixed"`
}

// ReconcileReport summarises a reconciliation run.
type ReconcileReport struct {
	Checked       int           `json:"checked"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Reconcile compares every cached balance at the site (or one individual when
// individualID is non-zero) with its ledger sum. With fix, drifted balances are
// overwritten by the ledger sum.
func (e *Engine) Reconcile(ctx context.Context, siteID string, individualID uint, fix bool) (ReconcileReport, error) {
	report := ReconcileReport{Discrepancies: []Discrepancy{}}
	var people []models.Individual
	q := e.db.WithContext(ctx).Select("id", "name", "current_points")
	if individualID != 0 {
		q = q.Where("id = ?", individualID)
	} else {
		q = q.Where("site_id = ?", siteID)
	}
	if err := q.Order("id").Find(&people).Error; err != nil {
		return report, err
	}
	if individualID != 0 && len(people) == 0 {
		return report, ErrIndividualNotFound
	}

	type sumRow struct {
		IndividualID uint
		Total        int
	}
	sums := make(map[uint]int, len(people))
	for start := 0; start < len(people); start += 500 {
		end := start + 500
		if end > len(people) {
			end = len(people)
		}
		ids := make([]uint, 0, end-start)
		for _, p := range people[start:end] {
			ids = append(ids, p.ID)
		}
		var rows []sumRow
		err := e.db.WithContext(ctx).Model(&models.PointTransaction{}).
			Select("individual_id, COALESCE(SUM(points), 0) AS total").
			Where("individual_id IN ?", ids).
			Group("individual_id").
			Scan(&rows).Error
		if err != nil {
			return report, err
		}
		for _, r := range rows {
			sums[r.IndividualID] = r.Total
		}
	}

	for _, p := range people {
		report.Checked++
		sum := sums[p.ID]
		if sum == p.CurrentPoints {
			continue
		}
		d := Discrepancy{IndividualID: p.ID, Name: p.Name, Cached: p.CurrentPoints, LedgerSum: sum}
		if fix {
			err := e.db.WithContext(ctx).Model(&models.Individual{}).Where("id = ?", p.ID).
				Update("current_points", sum).Error
			if err != nil {
				return report, err
			}
			d.Fixed = true
			e.log.Warn("balance reconciled", zap.Uint("individual_id", p.ID), zap.Int("cached", p.CurrentPoints), zap.Int("ledger_sum", sum))
		}
		report.Discrepancies = append(report.Discrepancies, d)
	}
	return report, nil
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	SiteID       string
	IndividualID uint
	Type         string
	Page         int
	PageSize     int
}

// ListTransactions pages ledger rows newest first.
func (e *Engine) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.PointTransaction, int64, error) {
	page, size := normalizePage(f.Page, f.PageSize)
	q := e.db.WithContext(ctx).Model(&models.PointTransaction{})
	if f.IndividualID != 0 {
		q = q.Where("individual_id = ?", f.IndividualID)
	} else if f.SiteID != "" {
		q = q.Where("individual_id IN (?)", e.db.Model(&models.Individual{}).Select("id").Where("site_id = ?", f.SiteID))
	}
	if f.Type != "" {
		q = q.Where("transaction_type = ?", f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.PointTransaction
	err := q.Order("created_at DESC, id DESC").Offset((page - 1) * size).Limit(size).Find(&rows).Error
	return rows, total, err
}

// hasPointsOn reports whether any credit was recorded for the individual on at's local day.
func (e *Engine) hasPointsOn(ctx context.Context, individualID uint, at time.Time) (bool, error) {
	from := DayStart(at)
	var n int64
	err := e.db.WithContext(ctx).Model(&models.PointTransaction{}).
		Where("individual_id = ? AND points > 0 AND created_at >= ? AND created_at < ?",
			individualID, from.UTC(), from.AddDate(0, 0, 1).UTC()).
		Count(&n).Error
	return n > 0, err
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return page, size
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
