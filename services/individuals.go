package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/schoolgate/models"
)

// IndividualInput creates an individual.
type IndividualInput struct {
	SiteID   string
	Name     string
	CardUID  string
	Role     string
	ClassTag string
}

// IndividualPatch updates the non-nil fields of an individual.
type IndividualPatch struct {
	Name                    *string
	CardUID                 *string
	Role                    *string
	ClassTag                *string
	Status                  *string
	HasCustomAccessTime     *bool
	AccessStartTime         *string
	AccessEndTime           *string
	HasCustomBonusThreshold *bool
	BonusThreshold          *int
}

// IndividualFilter narrows ListIndividuals.
type IndividualFilter struct {
	SiteID   string
	Role     string
	Status   string
	ClassTag string
	Inside   *bool
	Query    string
	Page     int
	PageSize int
}

// CreateIndividual registers a person with a zero balance.
func (e *Engine) CreateIndividual(ctx context.Context, in IndividualInput) (models.Individual, error) {
	ind := models.Individual{
		SiteID:   in.SiteID,
		Name:     strings.TrimSpace(in.Name),
		CardUID:  strings.TrimSpace(in.CardUID),
		Role:     in.Role,
		ClassTag: strings.TrimSpace(in.ClassTag),
		Status:   models.StatusActive,
	}
	if ind.Name == "" || ind.CardUID == "" || ind.Role == "" {
		return ind, ErrInvalidIndividual
	}
	if !models.ValidRole(ind.Role) {
		return ind, ErrInvalidRole
	}
	if taken, err := e.cardTaken(ctx, ind.CardUID, 0); err != nil {
		return ind, err
	} else if taken {
		return ind, ErrDuplicateCard
	}
	return ind, e.db.WithContext(ctx).Create(&ind).Error
}

// UpdateIndividual applies patch. Custom times are validated before saving.
func (e *Engine) UpdateIndividual(ctx context.Context, id uint, patch IndividualPatch) (models.Individual, error) {
	ind, err := e.findIndividual(ctx, id)
	if err != nil {
		return ind, err
	}
	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return ind, ErrInvalidIndividual
		}
		updates["name"] = name
	}
	if patch.CardUID != nil {
		card := strings.TrimSpace(*patch.CardUID)
		if card == "" {
			return ind, ErrInvalidCard
		}
		if taken, err := e.cardTaken(ctx, card, id); err != nil {
			return ind, err
		} else if taken {
			return ind, ErrDuplicateCard
		}
		updates["card_uid"] = card
	}
	if patch.Role != nil {
		if !models.ValidRole(*patch.Role) {
			return ind, ErrInvalidRole
		}
		updates["role"] = *patch.Role
	}
	if patch.ClassTag != nil {
		updates["class_tag"] = strings.TrimSpace(*patch.ClassTag)
	}
	if patch.Status != nil {
		if !models.ValidStatus(*patch.Status) {
			return ind, ErrInvalidStatus
		}
		updates["status"] = *patch.Status
	}
	if patch.HasCustomAccessTime != nil {
		updates["has_custom_access_time"] = *patch.HasCustomAccessTime
	}
	for col, v := range map[string]*string{"access_start_time": patch.AccessStartTime, "access_end_time": patch.AccessEndTime} {
		if v == nil {
			continue
		}
		if *v == "" {
			updates[col] = nil
			continue
		}
		norm, err := NormalizeTimeOfDay(*v)
		if err != nil {
			return ind, err
		}
		updates[col] = norm
	}
	if start, end := mergedWindow(ind, updates); start != "" && end != "" {
		if err := ValidateWindow(start, end); err != nil {
			return ind, err
		}
	}
	if patch.HasCustomBonusThreshold != nil {
		updates["has_custom_bonus_threshold"] = *patch.HasCustomBonusThreshold
	}
	if patch.BonusThreshold != nil {
		if *patch.BonusThreshold < 1 {
			return ind, ErrInvalidThreshold
		}
		updates["bonus_threshold"] = *patch.BonusThreshold
	}
	if len(updates) == 0 {
		return ind, nil
	}
	if err := e.db.WithContext(ctx).Model(&models.Individual{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return ind, err
	}
	return e.findIndividual(ctx, id)
}

// GetIndividual loads one individual with guardians.
func (e *Engine) GetIndividual(ctx context.Context, id uint) (models.Individual, error) {
	var ind models.Individual
	err := e.db.WithContext(ctx).Preload("Guardians").First(&ind, id).Error
	if isNotFound(err) {
		return ind, ErrIndividualNotFound
	}
	return ind, err
}

// ListIndividuals pages individuals ordered by name.
func (e *Engine) ListIndividuals(ctx context.Context, f IndividualFilter) ([]models.Individual, int64, error) {
	page, size := normalizePage(f.Page, f.PageSize)
	q := e.db.WithContext(ctx).Model(&models.Individual{})
	if f.SiteID != "" {
		q = q.Where("site_id = ?", f.SiteID)
	}
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ClassTag != "" {
		q = q.Where("class_tag = ?", f.ClassTag)
	}
	if f.Inside != nil {
		if *f.Inside {
			q = q.Where("last_event_type = ?", models.EventEntry)
		} else {
			q = q.Where("last_event_type IS NULL OR last_event_type <> ?", models.EventEntry)
		}
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + s + "%"
		q = q.Where("name LIKE ? OR card_uid LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Individual
	err := q.Order("name, id").Offset((page - 1) * size).Limit(size).Find(&rows).Error
	return rows, total, err
}

// AddGuardian links a LINE recipient to an individual.
func (e *Engine) AddGuardian(ctx context.Context, individualID uint, name, lineUserID string) (models.Guardian, error) {
	g := models.Guardian{IndividualID: individualID, Name: strings.TrimSpace(name), LineUserID: strings.TrimSpace(lineUserID)}
	if g.LineUserID == "" {
		return g, ErrInvalidIndividual
	}
	if _, err := e.findIndividual(ctx, individualID); err != nil {
		return g, err
	}
	return g, e.db.WithContext(ctx).Create(&g).Error
}

// RemoveGuardian unlinks a guardian from an individual.
func (e *Engine) RemoveGuardian(ctx context.Context, individualID, guardianID uint) error {
	res := e.db.WithContext(ctx).Where("id = ? AND individual_id = ?", guardianID, individualID).Delete(&models.Guardian{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// EventFilter narrows ListAccessEvents.
type EventFilter struct {
	SiteID       string
	IndividualID uint
	EventType    string
	From, To     time.Time
	Page         int
	PageSize     int
}

// ListAccessEvents pages the event log newest first.
func (e *Engine) ListAccessEvents(ctx context.Context, f EventFilter) ([]models.AccessEvent, int64, error) {
	page, size := normalizePage(f.Page, f.PageSize)
	q := e.db.WithContext(ctx).Model(&models.AccessEvent{})
	if f.SiteID != "" {
		q = q.Where("site_id = ?", f.SiteID)
	}
	if f.IndividualID != 0 {
		q = q.Where("individual_id = ?", f.IndividualID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if !f.From.IsZero() {
		q = q.Where("occurred_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("occurred_at < ?", f.To.UTC())
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.AccessEvent
	err := q.Order("occurred_at DESC, id DESC").Offset((page - 1) * size).Limit(size).Find(&rows).Error
	return rows, total, err
}

func (e *Engine) cardTaken(ctx context.Context, card string, exceptID uint) (bool, error) {
	var n int64
	err := e.db.WithContext(ctx).Model(&models.Individual{}).Where("card_uid = ? AND id <> ?", card, exceptID).Count(&n).Error
	return n > 0, err
}

// mergedWindow returns the custom window ind would have after updates.
func mergedWindow(ind models.Individual, updates map[string]interface{}) (start, end string) {
	if ind.AccessStartTime != nil {
		start = *ind.AccessStartTime
	}
	if ind.AccessEndTime != nil {
		end = *ind.AccessEndTime
	}
	if v, ok := updates["access_start_time"]; ok {
		start, _ = v.(string)
	}
	if v, ok := updates["access_end_time"]; ok {
		end, _ = v.(string)
	}
	return start, end
}
