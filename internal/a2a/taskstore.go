package a2a

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TaskStore holds the tasks an agent has created for asynchronous work.
// Tasks live for the process lifetime; abandoned tasks are never deleted,
// clients simply stop polling them.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewTaskStore returns an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task)}
}

// Create registers a new task in the submitted state and returns a copy.
func (s *TaskStore) Create(contextID string) Task {
	task := Task{
		ID:        "task-" + strings.ToLower(uuid.NewString()[:8]),
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateSubmitted},
	}
	s.mu.Lock()
	s.tasks[task.ID] = &task
	s.mu.Unlock()
	return task
}

// Get returns a copy of the task and whether it exists.
func (s *TaskStore) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// SetWorking marks a task as in progress.
func (s *TaskStore) SetWorking(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok {
		task.Status = TaskStatus{State: TaskStateWorking}
	}
}

// Complete marks a task completed with a single text artifact.
func (s *TaskStore) Complete(id, name, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok {
		task.Status = TaskStatus{State: TaskStateCompleted}
		task.Artifacts = []Artifact{{
			Name:  name,
			Parts: []Part{{Kind: "text", Text: text}},
		}}
	}
}

// Fail marks a task failed with the given message.
func (s *TaskStore) Fail(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok {
		task.Status = TaskStatus{State: TaskStateFailed, Message: msg}
	}
}
