package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Create inserts the invoice with its items and payments in one
// transaction.
func (r *repo) Create(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(invoice).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByUID(ctx context.Context, db *gorm.DB, uid string) (*domain.Invoice, error) {
	return r.findOne(ctx, db, "uid = ?", strings.TrimSpace(uid))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Where(query, args...).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

// Delete removes the invoice; items and payments go with it.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("emecf_invoice_id = ?", id).Delete(&domain.InvoiceItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("emecf_invoice_id = ?", id).Delete(&domain.InvoicePayment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Invoice{}).Error
	})
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, uid string, from []domain.Status, change domain.StatusChange) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	statuses := make([]string, 0, len(from))
	for _, status := range from {
		statuses = append(statuses, string(status))
	}

	result := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("uid = ? AND status IN ?", strings.TrimSpace(uid), statuses).
		Updates(map[string]any{
			"status":          string(change.Status),
			"code_mec_ef_dgi": change.CodeMECeFDGI,
			"qr_code":         change.QRCode,
			"date_time":       change.DateTime,
			"counters":        change.Counters,
			"nim":             change.NIM,
			"error_code":      change.ErrorCode,
			"error_desc":      change.ErrorDesc,
			"finalized_at":    change.FinalizedAt,
			"updated_at":      change.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})

	if filter.Status != nil {
		stmt = stmt.Where("status = ?", string(*filter.Status))
	}
	if ifu := strings.TrimSpace(filter.IFU); ifu != "" {
		stmt = stmt.Where("ifu = ?", ifu)
	}
	if filter.Kind != nil {
		stmt = stmt.Where("type = ?", string(*filter.Kind))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + escapeLike(search) + "%"
		stmt = stmt.Where(
			`(uid LIKE ? ESCAPE '!' OR ifu LIKE ? ESCAPE '!' OR client_name LIKE ? ESCAPE '!' OR operator_name LIKE ? ESCAPE '!')`,
			like, like, like, like,
		)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	if filter.AfterCreatedAt != nil {
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			*filter.AfterCreatedAt, *filter.AfterCreatedAt, filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	err := stmt.Order("created_at desc, id desc").Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// escapeLike uses '!' as escape character so the same clause works on every
// supported dialect.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)
	return replacer.Replace(value)
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.Status]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *repo) SumConfirmedTotal(ctx context.Context, db *gorm.DB) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("SUM(total)").
		Where("status = ?", string(domain.StatusConfirmed)).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *repo) CountCreatedBetween(ctx context.Context, db *gorm.DB, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&count).Error
	return count, err
}

// ConfirmedSince buckets confirmed invoices created at or after since by
// calendar month (UTC), oldest first.
func (r *repo) ConfirmedSince(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.MonthlyStat, error) {
	var rows []struct {
		CreatedAt time.Time
		Total     decimal.Decimal
	}
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("created_at, total").
		Where("status = ? AND created_at >= ?", string(domain.StatusConfirmed), since).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	buckets := map[string]*domain.MonthlyStat{}
	for _, row := range rows {
		month := row.CreatedAt.UTC().Format("2006-01")
		bucket, ok := buckets[month]
		if !ok {
			bucket = &domain.MonthlyStat{Month: month, Total: decimal.Zero}
			buckets[month] = bucket
		}
		bucket.Count++
		bucket.Total = bucket.Total.Add(row.Total)
	}

	stats := make([]domain.MonthlyStat, 0, len(buckets))
	for _, bucket := range buckets {
		stats = append(stats, *bucket)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Month < stats[j].Month })
	return stats, nil
}

func (r *repo) Recent(ctx context.Context, db *gorm.DB, limit int) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) CreateReconciliationTask(ctx context.Context, db *gorm.DB, task *domain.ReconciliationTask) error {
	return db.WithContext(ctx).Create(task).Error
}

func (r *repo) ListReconciliationTasks(ctx context.Context, db *gorm.DB, includeResolved bool, limit int) ([]domain.ReconciliationTask, error) {
	var tasks []domain.ReconciliationTask
	stmt := db.WithContext(ctx).Model(&domain.ReconciliationTask{})
	if !includeResolved {
		stmt = stmt.Where("resolved_at IS NULL")
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ResolveReconciliationTask marks an open task resolved. It reports false
// when the task does not exist or was already resolved.
func (r *repo) ResolveReconciliationTask(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.ReconciliationTask{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
