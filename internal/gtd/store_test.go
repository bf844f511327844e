package gtd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vthunder/toolbot/internal/tasks"
)

func TestGTDStore_LoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "todos.json")
	store := NewGTDStore(path)

	// Should start empty
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(store.data.Tasks) != 0 {
		t.Errorf("Expected 0 tasks, got %d", len(store.data.Tasks))
	}

	store.AddProject(&Project{Title: "Errands"})
	if err := store.AddTask(&Task{Title: "Buy milk"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("todos.json not created")
	}

	store2 := NewGTDStore(path)
	if err := store2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(store2.data.Projects) != 1 || len(store2.data.Tasks) != 1 {
		t.Errorf("Expected 1 project and 1 task, got %d/%d", len(store2.data.Projects), len(store2.data.Tasks))
	}
}

func TestGTDStore_AddTaskDefaults(t *testing.T) {
	store := NewGTDStore(filepath.Join(t.TempDir(), "todos.json"))

	task := &Task{Title: "Buy milk"}
	if err := store.AddTask(task); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("Expected task ID to be set")
	}
	if task.Status != "open" {
		t.Errorf("Expected status 'open', got '%s'", task.Status)
	}
	if task.Priority != 1 {
		t.Errorf("Expected priority 1, got %d", task.Priority)
	}
}

func TestGTDStore_Validation(t *testing.T) {
	store := NewGTDStore(filepath.Join(t.TempDir(), "todos.json"))

	if err := store.AddTask(&Task{Title: "  "}); err == nil {
		t.Error("Expected error for empty title")
	}
	if err := store.AddTask(&Task{Title: "x", Priority: 7}); err == nil {
		t.Error("Expected error for priority out of range")
	}
	if err := store.AddTask(&Task{Title: "x", Project: "nope"}); err == nil {
		t.Error("Expected error for unknown project")
	}
}

func TestGTDStore_CompleteTask(t *testing.T) {
	store := NewGTDStore(filepath.Join(t.TempDir(), "todos.json"))
	task := &Task{Title: "Call mom"}
	store.AddTask(task)

	if err := store.CompleteTask(task.ID); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	got := store.GetTask(task.ID)
	if got.Status != "completed" || got.CompletedAt == nil {
		t.Errorf("Expected completed task, got %+v", got)
	}
	if len(store.GetTasks("")) != 0 {
		t.Error("Completed task should not be listed as open")
	}
	if err := store.CompleteTask("missing"); err == nil {
		t.Error("Expected error for missing task")
	}
}

func TestBackend_CreateTaskInProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todos.json")
	b, err := NewBackend(path)
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	ctx := context.Background()

	p, err := tasks.GetOrCreateProject(ctx, b, "Errands")
	if err != nil {
		t.Fatalf("GetOrCreateProject failed: %v", err)
	}
	again, _ := tasks.GetOrCreateProject(ctx, b, "Errands")
	if again.ID != p.ID {
		t.Errorf("Expected existing project %s, got %s", p.ID, again.ID)
	}

	task, err := b.CreateTask(ctx, tasks.NewTask{Content: "Buy milk", Priority: 2, ProjectID: p.ID, DueString: "tomorrow"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" || task.ProjectID != p.ID {
		t.Errorf("Unexpected task %+v", task)
	}

	// Persisted immediately
	reloaded, _ := NewBackend(path)
	open := reloaded.store.GetTasks(p.ID)
	if len(open) != 1 || open[0].Due != "tomorrow" {
		t.Errorf("Expected persisted task, got %+v", open)
	}
}
