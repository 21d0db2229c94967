package state

import "github.com/khaosresearch/dramax/internal/db"

// Store bundles the two repositories that make up the State Store
// contract of spec.md §6, grounded in the teacher's Repositories
// aggregate (internal/db/repositories/base.go).
type Store struct {
	Workflows *WorkflowRepo
	Tasks     *TaskRepo
}

func New(database db.Database) *Store {
	conn := database.Conn()
	return &Store{
		Workflows: NewWorkflowRepo(conn),
		Tasks:     NewTaskRepo(conn),
	}
}
