package entity

import (
	"fmt"
	"time"

	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/pkg/utils"
)

// Claim field limits
const (
	MinTotalHours   = 0.5
	MaxTotalHours   = 200
	MinHourlyRate   = 100
	MaxHourlyRate   = 1000
	MaxNotesLength  = 500
	RejectionPrefix = "[REJECTED] "
)

// Claim is a lecturer's monthly request for payment
type Claim struct {
	ID            int64           `json:"id"`
	LecturerID    int64           `json:"lecturer_id" validate:"gt=0"`
	ClaimMonth    time.Time       `json:"claim_month" validate:"required"`
	TotalHours    float64         `json:"total_hours" validate:"gte=0.5,lte=200"`
	HourlyRate    float64         `json:"hourly_rate" validate:"gte=100,lte=1000"`
	Amount        float64         `json:"amount"`
	Notes         string          `json:"notes" validate:"max=500"`
	Status        workflow.Status `json:"status"`
	SubmittedDate time.Time       `json:"submitted_date"`
	ApprovedDate  *time.Time      `json:"approved_date,omitempty"`
	ApprovedBy    *int64          `json:"approved_by,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CalculateAmount sets Amount from hours and rate, rounded to cents
func (c *Claim) CalculateAmount() {
	c.Amount = utils.RoundCents(c.TotalHours * c.HourlyRate)
}

// Validate checks the editable fields
func (c *Claim) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrInvalidArgument, err)
	}
	return nil
}

// OwnedBy returns true if the lecturer owns the claim
func (c *Claim) OwnedBy(lecturerID int64) bool {
	return c.LecturerID == lecturerID
}

// Clone returns a deep copy
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ApprovedDate != nil {
		t := *c.ApprovedDate
		cp.ApprovedDate = &t
	}
	if c.ApprovedBy != nil {
		id := *c.ApprovedBy
		cp.ApprovedBy = &id
	}
	return &cp
}

// RejectedNotes returns notes with the rejection marker applied
func RejectedNotes(notes string) string {
	return RejectionPrefix + notes
}

// ClaimFilter narrows claim listings
type ClaimFilter struct {
	Status     workflow.Status
	LecturerID int64
	Limit      int
	Offset     int
}
