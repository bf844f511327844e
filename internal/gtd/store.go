package gtd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// GTDStore is a JSON file backed todo list
type GTDStore struct {
	path string
	data Data
	mu   sync.RWMutex
}

// NewGTDStore creates a store persisted at path
func NewGTDStore(path string) *GTDStore {
	return &GTDStore{
		path: path,
		data: Data{Projects: []Project{}, Tasks: []Task{}},
	}
}

// Load reads the store from disk
func (s *GTDStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		// File doesn't exist yet, start with empty store
		s.data = Data{Projects: []Project{}, Tasks: []Task{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read GTD store: %w", err)
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("failed to parse GTD store: %w", err)
	}
	if s.data.Projects == nil {
		s.data.Projects = []Project{}
	}
	if s.data.Tasks == nil {
		s.data.Tasks = []Task{}
	}
	return nil
}

// Save writes the store to disk
func (s *GTDStore) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal GTD store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write GTD store: %w", err)
	}
	return nil
}

// idCounter ensures unique IDs even when called within the same nanosecond
var idCounter int64

func generateID() string {
	count := atomic.AddInt64(&idCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), count)
}

// AddProject adds a project, assigning an ID if needed
func (s *GTDStore) AddProject(p *Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = generateID()
	}
	s.data.Projects = append(s.data.Projects, *p)
}

// GetProjects returns a copy of all projects
func (s *GTDStore) GetProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Project, len(s.data.Projects))
	copy(result, s.data.Projects)
	return result
}

// AddTask adds a task after validating it
func (s *GTDStore) AddTask(task *Task) error {
	if err := s.ValidateTask(task); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = generateID()
	}
	if task.Status == "" {
		task.Status = "open"
	}
	if task.Priority == 0 {
		task.Priority = 1
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	s.data.Tasks = append(s.data.Tasks, *task)
	return nil
}

// GetTasks returns open tasks, optionally limited to one project
func (s *GTDStore) GetTasks(projectID string) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Task
	for _, t := range s.data.Tasks {
		if t.Status != "open" {
			continue
		}
		if projectID != "" && t.Project != projectID {
			continue
		}
		result = append(result, t)
	}
	return result
}

// GetTask returns a task by ID
func (s *GTDStore) GetTask(id string) *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.data.Tasks {
		if s.data.Tasks[i].ID == id {
			t := s.data.Tasks[i]
			return &t
		}
	}
	return nil
}

// CompleteTask marks a task completed
func (s *GTDStore) CompleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Tasks {
		if s.data.Tasks[i].ID == id {
			now := time.Now()
			s.data.Tasks[i].Status = "completed"
			s.data.Tasks[i].CompletedAt = &now
			return nil
		}
	}
	return fmt.Errorf("task not found: %s", id)
}
