package memory

import (
	"fmt"

	"github.com/DukeRupert/hireready/internal/repository"
)

// Stand-ins for the constraint errors Postgres would raise.
var (
	errForeignKey      = fmt.Errorf("memory: %w", repository.ErrForeignKeyViolation)
	errUniqueViolation = fmt.Errorf("memory: %w", repository.ErrUniqueViolation)
	errCheckViolation  = fmt.Errorf("memory: %w", repository.ErrCheckViolation)
)
