package forms

import "github.com/wolfman30/ridgeline-site/internal/apierr"

var (
	// ErrInvalidBody is returned when the request body is not a JSON object.
	ErrInvalidBody = apierr.Validation("", "Invalid request body")

	// ErrInvalidEmail is returned when the email is missing or malformed
	ErrInvalidEmail = apierr.Validation("email", "A valid email address is required")

	// ErrMissingName is returned when no name was supplied
	ErrMissingName = apierr.Validation("name", "Name is required")

	// ErrMissingMessage is returned when the contact message is empty
	ErrMissingMessage = apierr.Validation("message", "Message is required")

	// ErrInvalidCSRF is returned when the lead-capture token is absent or rejected
	ErrInvalidCSRF = apierr.Authorization("Invalid or expired security token, please refresh the page and try again", nil)
)
