package ports

import "github.com/qcr/abb-libegm/internal/domain"

// Planner produces the reference for the current cycle. out is pre-seeded with the
// previous command (or the feedback on the first message of a session) and must
// only be modified, never replaced.
type Planner interface {
	Plan(initial, current domain.Input, cfg domain.Configuration, out *domain.Output)
}
