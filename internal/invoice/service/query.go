package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/smallbiznis/sygmef/pkg/db/pagination"
)

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Size()

	filter := domain.ListFilter{
		Status:      req.Status,
		IFU:         req.IFU,
		Kind:        req.Kind,
		Search:      req.Search,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
		Limit:       limit + 1,
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		createdAt, id, err := decodePageToken(token)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidPageToken
		}
		filter.AfterCreatedAt = &createdAt
		filter.AfterID = id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	invoices, info := pagination.BuildCursorPageInfo(items, limit, encodePageToken)
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	return domain.ListInvoiceResponse{PageInfo: info, Invoices: invoices}, nil
}

func encodePageToken(invoice domain.Invoice) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        invoice.ID.String(),
		CreatedAt: invoice.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

func decodePageToken(token string) (time.Time, snowflake.ID, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return time.Time{}, 0, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return time.Time{}, 0, err
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return time.Time{}, 0, err
	}
	return createdAt, id, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || invoiceID <= 0 {
		return domain.Invoice{}, domain.ErrInvalidInvoiceID
	}
	invoice, err := s.repo.FindByID(ctx, s.db, snowflake.ID(invoiceID))
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) GetByUID(ctx context.Context, uid string) (domain.Invoice, error) {
	uid, err := normalizeUID(uid)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice, err := s.repo.FindByUID(ctx, s.db, uid)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

// PendingDetails asks the remote API for an invoice that is not finalized
// yet. Nothing is stored.
func (s *Service) PendingDetails(ctx context.Context, uid string) (domain.RemoteInvoiceDetails, error) {
	uid, err := normalizeUID(uid)
	if err != nil {
		return nil, err
	}
	return s.gateway.QueryPending(ctx, uid)
}

func (s *Service) Stats(ctx context.Context, req domain.StatsRequest) (domain.Stats, error) {
	months := req.Months
	if months <= 0 {
		months = defaultStatsMonths
	}
	recentLimit := req.RecentLimit
	if recentLimit <= 0 {
		recentLimit = defaultStatsRecentLimit
	}

	now := s.clock.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts, err := s.repo.CountByStatus(ctx, s.db)
	if err != nil {
		return domain.Stats{}, err
	}
	confirmedTotal, err := s.repo.SumConfirmedTotal(ctx, s.db)
	if err != nil {
		return domain.Stats{}, err
	}
	today, err := s.repo.CountCreatedBetween(ctx, s.db, startOfDay, startOfDay.AddDate(0, 0, 1))
	if err != nil {
		return domain.Stats{}, err
	}
	monthly, err := s.repo.ConfirmedSince(ctx, s.db, now.AddDate(0, -months, 0))
	if err != nil {
		return domain.Stats{}, err
	}
	recent, err := s.repo.Recent(ctx, s.db, recentLimit)
	if err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{
		Pending:        counts[domain.StatusPending],
		Confirmed:      counts[domain.StatusConfirmed],
		Cancelled:      counts[domain.StatusCancelled],
		Errored:        counts[domain.StatusError],
		ConfirmedTotal: confirmedTotal,
		CreatedToday:   today,
		Monthly:        monthly,
		Recent:         recent,
	}
	for _, count := range counts {
		stats.Total += count
	}
	if stats.Monthly == nil {
		stats.Monthly = []domain.MonthlyStat{}
	}
	if stats.Recent == nil {
		stats.Recent = []domain.Invoice{}
	}
	return stats, nil
}
