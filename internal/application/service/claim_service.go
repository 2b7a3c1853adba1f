package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/pkg/utils"
)

// CreateClaimInput is a lecturer's new claim
type CreateClaimInput struct {
	LecturerID int64     `json:"lecturer_id"`
	ClaimMonth time.Time `json:"claim_month"`
	TotalHours float64   `json:"total_hours"`
	HourlyRate float64   `json:"hourly_rate"`
	Notes      string    `json:"notes"`
	Submit     bool      `json:"submit"`
}

// UpdateDraftInput edits a claim that has not been submitted
type UpdateDraftInput struct {
	ClaimID    int64     `json:"claim_id"`
	LecturerID int64     `json:"lecturer_id"`
	ClaimMonth time.Time `json:"claim_month"`
	TotalHours float64   `json:"total_hours"`
	HourlyRate float64   `json:"hourly_rate"`
	Notes      string    `json:"notes"`
}

// ClaimService manages the lecturer side of a claim before approval starts
type ClaimService interface {
	Create(ctx context.Context, in CreateClaimInput) (*entity.Claim, error)
	UpdateDraft(ctx context.Context, in UpdateDraftInput) (*entity.Claim, error)
}

type claimServiceImpl struct {
	store    port.ClaimStore
	workflow WorkflowService
	logger   Logger
}

// NewClaimService creates a new ClaimService
func NewClaimService(store port.ClaimStore, workflowService WorkflowService, logger Logger) ClaimService {
	return &claimServiceImpl{
		store:    store,
		workflow: workflowService,
		logger:   logger,
	}
}

// Create stores a new Draft claim. With Submit set, the owner's Submit
// transition runs straight after, so the submission is audited and announced
// like any other step. If that submission fails the Draft stays stored and
// is returned alongside the error so the caller can retry it by ID.
func (s *claimServiceImpl) Create(ctx context.Context, in CreateClaimInput) (*entity.Claim, error) {
	claim := &entity.Claim{
		LecturerID: in.LecturerID,
		ClaimMonth: in.ClaimMonth,
		TotalHours: in.TotalHours,
		HourlyRate: in.HourlyRate,
		Notes:      utils.SanitizeString(in.Notes),
		Status:     workflow.StatusDraft,
	}
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	claim.CalculateAmount()

	if err := s.store.Create(ctx, claim); err != nil {
		s.logger.Error("Failed to create claim", "lecturer_id", in.LecturerID, "error", err)
		return nil, readError("create claim", err)
	}

	s.logger.Info("Claim created",
		"claim_id", claim.ID,
		"lecturer_id", claim.LecturerID,
		"amount", claim.Amount,
	)

	if !in.Submit {
		return claim, nil
	}

	res, err := s.workflow.Transition(ctx, TransitionInput{
		ClaimID:        claim.ID,
		Action:         workflow.ActionSubmit,
		ActorID:        claim.LecturerID,
		ActorRole:      workflow.RoleLecturer,
		ExpectedStatus: workflow.StatusDraft,
	})
	if err != nil {
		return claim, fmt.Errorf("submit claim %d: %w", claim.ID, err)
	}
	return res.Claim, nil
}

// UpdateDraft rewrites the editable fields and recomputes the amount
func (s *claimServiceImpl) UpdateDraft(ctx context.Context, in UpdateDraftInput) (*entity.Claim, error) {
	claim, err := s.store.Get(ctx, in.ClaimID)
	if err != nil {
		return nil, readError("get claim", err)
	}
	if !claim.OwnedBy(in.LecturerID) {
		return nil, fmt.Errorf("%w: claim %d belongs to another lecturer", workflow.ErrInvalidTransition, claim.ID)
	}
	if claim.Status != workflow.StatusDraft {
		return nil, fmt.Errorf("%w: claim %d is %q and can no longer be edited",
			workflow.ErrInvalidTransition, claim.ID, claim.Status)
	}

	claim.ClaimMonth = in.ClaimMonth
	claim.TotalHours = in.TotalHours
	claim.HourlyRate = in.HourlyRate
	claim.Notes = utils.SanitizeString(in.Notes)
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	claim.CalculateAmount()

	if err := s.store.UpdateDraft(ctx, claim); err != nil {
		s.logger.Error("Failed to update draft", "claim_id", claim.ID, "error", err)
		return nil, readError("update draft", err)
	}

	s.logger.Info("Draft updated", "claim_id", claim.ID, "amount", claim.Amount, "version", claim.Version)
	return claim, nil
}
