package accounts

import "errors"

var (
	ErrNotFound        = errors.New("account not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrUsernameTaken   = errors.New("username is already taken")
	ErrEmailTaken      = errors.New("email is already registered")
	ErrInvalidSession  = errors.New("invalid or expired session")
	ErrInvalidLogin    = errors.New("invalid login credentials")
)

// Username login bridge failures. Their messages are shown to users as-is.
var (
	ErrCredentialsRequired = errors.New("Username and password are required.")
	ErrInvalidCredentials  = errors.New("Invalid username or password.")
	ErrMissingEmail        = errors.New("User not found or missing email.")
)

// IsLoginBridgeError reports whether err is one of the username login
// bridge failures.
func IsLoginBridgeError(err error) bool {
	return errors.Is(err, ErrCredentialsRequired) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrMissingEmail)
}

// ValidationError reports invalid sign-up input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
