package entity

import "github.com/garyjia/claim-workflow/internal/domain/workflow"

// StatusTotal is the count and summed amount of claims in one status
type StatusTotal struct {
	Status workflow.Status `json:"status"`
	Count  int             `json:"count"`
	Amount float64         `json:"amount"`
}

// Stats is the dashboard summary over all claims
type Stats struct {
	TotalClaims    int                     `json:"total_claims"`
	PendingByStage map[workflow.Status]int `json:"pending_by_stage"`
	Pending        int                     `json:"pending"`
	Approved       int                     `json:"approved"`
	Rejected       int                     `json:"rejected"`
	Paid           int                     `json:"paid"`
	ApprovedAmount float64                 `json:"approved_amount"`
}

// NewStats folds per-status totals into a Stats summary
func NewStats(totals []StatusTotal) *Stats {
	s := &Stats{PendingByStage: make(map[workflow.Status]int)}
	for _, t := range totals {
		s.TotalClaims += t.Count
		switch {
		case t.Status.IsPending():
			s.PendingByStage[t.Status] += t.Count
			s.Pending += t.Count
		case t.Status == workflow.StatusApproved:
			s.Approved += t.Count
			s.ApprovedAmount += t.Amount
		case t.Status == workflow.StatusRejected:
			s.Rejected += t.Count
		case t.Status == workflow.StatusPaid:
			s.Paid += t.Count
		}
	}
	return s
}
