package model

type DashboardStats struct {
	AssignedOpenCount int `json:"assigned_tasks_count"`
	DueSoonCount      int `json:"due_soon_tasks_count"`
	CompletedCount    int `json:"completed_tasks_count"`
	ProjectsCount     int `json:"projects_count"`
}

type DashboardTask struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	ProjectID   int64       `json:"project_id"`
	ProjectName string      `json:"project_name"`
	Status      IssueStatus `json:"status"`
}
