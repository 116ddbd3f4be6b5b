package domain

// User identifies an authenticated account
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Company  string `json:"company,omitempty"`
	Role     string `json:"role"`
}

// Credentials pairs an identity with its access and refresh tokens. Owned
// exclusively by the session manager; other components only ever read a
// token value at call time.
type Credentials struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionState is the credential lifecycle state
type SessionState int

const (
	// Initializing is the state at process start, before persisted
	// credentials have been resolved.
	Initializing SessionState = iota
	Unauthenticated
	Authenticated
	// Refreshing is only observable inside a refresh attempt, never as a
	// resting state.
	Refreshing
)

func (s SessionState) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// RegisterProfile is the registration payload
type RegisterProfile struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=255"`
	Company  string `json:"company,omitempty" validate:"max=255"`
}

// LoginInput is the login payload
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
