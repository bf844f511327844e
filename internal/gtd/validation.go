package gtd

import (
	"fmt"
	"strings"
)

// ValidateTask checks a task before it is stored
func (s *GTDStore) ValidateTask(task *Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if task.Priority < 0 || task.Priority > 4 {
		return fmt.Errorf("invalid priority %d: must be 1-4", task.Priority)
	}

	if task.Project != "" {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, p := range s.data.Projects {
			if p.ID == task.Project {
				return nil
			}
		}
		return fmt.Errorf("project not found: %s", task.Project)
	}
	return nil
}
