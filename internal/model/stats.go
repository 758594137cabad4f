package model

// DashboardStats summarises task and notification state for one user.
type DashboardStats struct {
	TotalTasks          int            `json:"total_tasks"`
	ByStatus            map[string]int `json:"by_status"`
	ByPriority          map[int]int    `json:"by_priority"`
	AssignedToMe        int            `json:"assigned_to_me"`
	Overdue             int            `json:"overdue"`
	Projects            int            `json:"projects"`
	UnreadNotifications int            `json:"unread_notifications"`
	CachedIssues        int            `json:"cached_issues"`
	LiveConnections     int            `json:"live_connections"`
}
