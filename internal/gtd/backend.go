package gtd

import (
	"context"

	"github.com/vthunder/toolbot/internal/tasks"
)

// Backend exposes the store as a todo backend. Every write is saved
// immediately.
type Backend struct {
	store *GTDStore
}

// NewBackend loads the store at path
func NewBackend(path string) (*Backend, error) {
	store := NewGTDStore(path)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return &Backend{store: store}, nil
}

// Name implements tasks.Backend
func (b *Backend) Name() string { return "local task list" }

// ListProjects implements tasks.Backend
func (b *Backend) ListProjects(ctx context.Context) ([]tasks.Project, error) {
	var out []tasks.Project
	for _, p := range b.store.GetProjects() {
		out = append(out, tasks.Project{ID: p.ID, Name: p.Title})
	}
	return out, nil
}

// CreateProject implements tasks.Backend
func (b *Backend) CreateProject(ctx context.Context, name string) (tasks.Project, error) {
	p := &Project{Title: name}
	b.store.AddProject(p)
	if err := b.store.Save(); err != nil {
		return tasks.Project{}, err
	}
	return tasks.Project{ID: p.ID, Name: p.Title}, nil
}

// CreateTask implements tasks.Backend
func (b *Backend) CreateTask(ctx context.Context, t tasks.NewTask) (tasks.Task, error) {
	task := &Task{
		Title:    t.Content,
		Due:      t.DueString,
		Priority: t.Priority,
		Labels:   t.Labels,
		Project:  t.ProjectID,
	}
	if err := b.store.AddTask(task); err != nil {
		return tasks.Task{}, err
	}
	if err := b.store.Save(); err != nil {
		return tasks.Task{}, err
	}
	return tasks.Task{ID: task.ID, Content: task.Title, ProjectID: task.Project}, nil
}
