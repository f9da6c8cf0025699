package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type submitPayload struct {
	Invoice *domain.Invoice `json:"invoice"`
	Remote  json.RawMessage `json:"remote,omitempty"`
}

type finalizePayload struct {
	From   domain.Status   `json:"from"`
	Target domain.Status   `json:"target"`
	Remote json.RawMessage `json:"remote,omitempty"`
}

type reconciliationInput struct {
	kind    domain.ReconciliationKind
	uid     string
	action  string
	payload any
	cause   error
}

// recordReconciliation logs a remote outcome that local storage does not
// reflect and stores it best effort. log must already carry the invoice
// uid. It returns the task id, or "" when the task itself could not be
// stored.
func (s *Service) recordReconciliation(ctx context.Context, log *zap.Logger, in reconciliationInput) string {
	raw, err := json.Marshal(in.payload)
	if err != nil {
		raw = []byte("{}")
	}

	s.fiscal.IncReconciliationTask(string(in.kind))
	log.Error("reconciliation required",
		zap.String("reconciliation_kind", string(in.kind)),
		zap.ByteString("payload", raw),
		zap.Error(in.cause),
	)

	task := &domain.ReconciliationTask{
		ID:        s.genID.Generate(),
		Kind:      in.kind,
		UID:       in.uid,
		Action:    in.action,
		Payload:   datatypes.JSON(raw),
		CreatedAt: s.clock.Now(),
	}
	if in.cause != nil {
		task.LastError = in.cause.Error()
	}
	if err := s.repo.CreateReconciliationTask(ctx, s.db, task); err != nil {
		log.Error("reconciliation task not stored",
			zap.String("reconciliation_kind", string(in.kind)),
			zap.Error(err),
		)
		return ""
	}
	return task.ID.String()
}

func (s *Service) ListReconciliationTasks(ctx context.Context, req domain.ListReconciliationRequest) ([]domain.ReconciliationTask, error) {
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = defaultTaskLimit
	case limit > maxTaskLimit:
		limit = maxTaskLimit
	}
	return s.repo.ListReconciliationTasks(ctx, s.db, req.IncludeResolved, limit)
}

func (s *Service) ResolveReconciliationTask(ctx context.Context, id string) error {
	taskID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrReconciliationTask
	}
	resolved, err := s.repo.ResolveReconciliationTask(ctx, s.db, taskID, s.clock.Now())
	if err != nil {
		return err
	}
	if !resolved {
		return domain.ErrReconciliationTask
	}
	s.log.Info("reconciliation task resolved", zap.String("task_id", taskID.String()))
	return nil
}
