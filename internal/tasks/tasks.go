// Package tasks holds the types shared by todo backends.
package tasks

import (
	"context"
	"fmt"
)

// Project is a named container for tasks
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewTask is a task to create
type NewTask struct {
	Content   string
	DueString string
	Priority  int
	Labels    []string
	ProjectID string
}

// Task is a created task
type Task struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	ProjectID string `json:"project_id,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Backend creates tasks and manages projects
type Backend interface {
	Name() string
	ListProjects(ctx context.Context) ([]Project, error)
	CreateProject(ctx context.Context, name string) (Project, error)
	CreateTask(ctx context.Context, t NewTask) (Task, error)
}

// GetOrCreateProject returns the project whose name matches exactly,
// creating it if none does.
func GetOrCreateProject(ctx context.Context, b Backend, name string) (Project, error) {
	projects, err := b.ListProjects(ctx)
	if err != nil {
		return Project{}, fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		if p.Name == name {
			return p, nil
		}
	}
	p, err := b.CreateProject(ctx, name)
	if err != nil {
		return Project{}, fmt.Errorf("create project %q: %w", name, err)
	}
	return p, nil
}
