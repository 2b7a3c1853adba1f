package workflow

import "fmt"

// Role identifies the kind of actor performing a workflow action
type Role string

const (
	RoleLecturer    Role = "Lecturer"
	RoleCoordinator Role = "Coordinator"
	RoleManager     Role = "Manager"
	RoleHR          Role = "HR"
)

var validRoles = map[Role]bool{
	RoleLecturer:    true,
	RoleCoordinator: true,
	RoleManager:     true,
	RoleHR:          true,
}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// ParseRole resolves a role name case-insensitively
func ParseRole(s string) (Role, error) {
	want := normalize(s)
	for r := range validRoles {
		if normalize(string(r)) == want {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
}
