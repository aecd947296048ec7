package server

import (
	"argus/internal/domain"
)

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

type mandateOutput struct {
	Body domain.Mandate
}

type mandateListInput struct {
	Status     string `query:"status" enum:"open,in-progress,completed,cancelled,expired" required:"false" doc:"Filter by mandate status."`
	AssignedTo string `query:"assigned_to" required:"false" doc:"Filter by assigned investigator id."`
	AgencyID   string `query:"agency_id" required:"false" doc:"Filter by owning agency id."`
}

type mandateListOutput struct {
	Body struct {
		Mandates []domain.Mandate `json:"mandates"`
	}
}

type mandateIDInput struct {
	MandateID string `path:"mandateID"`
}

type candidatureListInput struct {
	MandateID string `path:"mandateID"`
	Status    string `query:"status" enum:"interested,accepted,rejected" required:"false" doc:"Filter by candidature status."`
}

type candidatureListOutput struct {
	Body struct {
		Candidatures []domain.Candidature `json:"candidatures"`
	}
}

type candidatureActionInput struct {
	MandateID     string `path:"mandateID"`
	CandidatureID string `path:"candidatureID"`
}

type acceptInput struct {
	MandateID     string `path:"mandateID"`
	CandidatureID string `path:"candidatureID"`
	Body          struct {
		InvestigatorID string `json:"investigator_id"`
	}
}

type assignInput struct {
	MandateID string `path:"mandateID"`
	Body      struct {
		InvestigatorID string `json:"investigator_id"`
	}
}

type outcomeOutput struct {
	Body struct {
		Mandate  domain.Mandate `json:"mandate"`
		Redirect string         `json:"redirect,omitempty" doc:"Suggested navigation target after the transition."`
	}
}

type notificationListInput struct {
	Limit int `query:"limit" required:"false" minimum:"1" maximum:"200" doc:"Maximum notifications to return."`
}

type notificationListOutput struct {
	Body struct {
		Notifications []domain.Notification `json:"notifications"`
	}
}

type notificationReadInput struct {
	NotificationID string `path:"notificationID"`
}

type notificationReadOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

type eventListInput struct {
	After int64 `query:"after" required:"false" doc:"Return events with an id greater than this value."`
	Limit int   `query:"limit" required:"false" minimum:"1" maximum:"500" doc:"Maximum events to return."`
}

type eventListOutput struct {
	Body struct {
		Events []domain.Event `json:"events"`
	}
}
