package shared

import "context"

// Role enumerates the access roles known to the system.
type Role string

const (
	// RoleAdmin can manage inventory, costing, settings and users.
	RoleAdmin Role = "admin"
	// RoleTechnician works assigned jobs and consumes stock through them.
	RoleTechnician Role = "technician"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTechnician
}

// Actor identifies the authenticated caller of a core operation.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return is
// false for unauthenticated requests.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
