package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatusChange is the set of columns written by a lifecycle transition.
type StatusChange struct {
	Status       Status
	CodeMECeFDGI *string
	QRCode       *string
	DateTime     *string
	Counters     *string
	NIM          *string
	ErrorCode    *string
	ErrorDesc    *string
	FinalizedAt  *time.Time
	UpdatedAt    time.Time
}

type ListFilter struct {
	Status      *Status
	IFU         string
	Kind        *InvoiceKind
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// Cursor positions the page strictly after (CreatedAt, ID) in
	// descending order.
	AfterCreatedAt *time.Time
	AfterID        snowflake.ID
	Limit          int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByUID(ctx context.Context, db *gorm.DB, uid string) (*Invoice, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// Transition applies change only while the current status is one of
	// from. It reports whether a row was updated.
	Transition(ctx context.Context, db *gorm.DB, uid string, from []Status, change StatusChange) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)

	CountByStatus(ctx context.Context, db *gorm.DB) (map[Status]int64, error)
	SumConfirmedTotal(ctx context.Context, db *gorm.DB) (decimal.Decimal, error)
	CountCreatedBetween(ctx context.Context, db *gorm.DB, from, to time.Time) (int64, error)
	ConfirmedSince(ctx context.Context, db *gorm.DB, since time.Time) ([]MonthlyStat, error)
	Recent(ctx context.Context, db *gorm.DB, limit int) ([]Invoice, error)

	CreateReconciliationTask(ctx context.Context, db *gorm.DB, task *ReconciliationTask) error
	ListReconciliationTasks(ctx context.Context, db *gorm.DB, includeResolved bool, limit int) ([]ReconciliationTask, error)
	ResolveReconciliationTask(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
