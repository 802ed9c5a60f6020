package session

import "crm-dashboard/internal/domain"

// State is the session lifecycle
type State int

const (
	Initializing State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of the session
type Snapshot struct {
	State           State        `json:"-"`
	User            *domain.User `json:"user"`
	IsLoading       bool         `json:"isLoading"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

// Result is returned by user-initiated actions
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Navigator receives the coordinator's navigation signals
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) {
	f(path)
}

// Navigation targets
const (
	LandingPath = "/dashboard/dashboard"
	LoginPath   = "/auth/login"
)
