package gtd

import "time"

// Task is a todo kept in the local store
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Due         string     `json:"due,omitempty"` // natural language, as proposed
	Priority    int        `json:"priority"`
	Labels      []string   `json:"labels,omitempty"`
	Project     string     `json:"project,omitempty"` // project ID
	Status      string     `json:"status"`            // open, completed
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Project groups tasks
type Project struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Data is the on-disk document
type Data struct {
	Projects []Project `json:"projects"`
	Tasks    []Task    `json:"tasks"`
}
