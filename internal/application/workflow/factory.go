package workflow

import (
	domainwf "github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// ClaimTable builds the transition table for lecturer claims
func ClaimTable() domainwf.TransitionTable {
	builder := domainwf.NewTableBuilder()

	// Draft: only the owner may submit
	builder.Configure(domainwf.StatusDraft).
		PermitWith(domainwf.RoleLecturer, domainwf.ActionSubmit, domainwf.StatusSubmitted,
			domainwf.EffectOwnerOnly|domainwf.EffectStampSubmission)

	// Submitted and With Coordinator are both coordinator entry points
	for _, status := range []domainwf.Status{domainwf.StatusSubmitted, domainwf.StatusWithCoordinator} {
		builder.Configure(status).
			Permit(domainwf.RoleCoordinator, domainwf.ActionApprove, domainwf.StatusWithManager).
			PermitWith(domainwf.RoleCoordinator, domainwf.ActionReject, domainwf.StatusRejected, domainwf.EffectRejectionNote)
	}

	builder.Configure(domainwf.StatusWithManager).
		PermitWith(domainwf.RoleManager, domainwf.ActionApprove, domainwf.StatusApproved, domainwf.EffectStampApproval).
		PermitWith(domainwf.RoleManager, domainwf.ActionReject, domainwf.StatusRejected, domainwf.EffectRejectionNote)

	builder.Configure(domainwf.StatusApproved).
		Permit(domainwf.RoleHR, domainwf.ActionProcessPayment, domainwf.StatusPaid)

	// Paid and Rejected are terminal

	return builder.Build()
}
