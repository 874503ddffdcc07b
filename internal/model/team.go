package model

type Team struct {
	ID      int64          `json:"id"`
	Name    string         `json:"name"`
	LeadID  int64          `json:"team_lead_id"`
	Lead    *UserSummary   `json:"team_lead,omitempty"`
	Members []*UserSummary `json:"members"`
}

type TeamCreate struct {
	Name   string `json:"name" validate:"required,max=100"`
	LeadID int64  `json:"team_lead_id" validate:"required"`
}

type TeamUpdate struct {
	Name string `json:"name" validate:"required,max=100"`
}
