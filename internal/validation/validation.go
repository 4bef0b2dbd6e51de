// Package validation checks user input before it reaches the database.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"carecircle/internal/models"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const maxTitleLength = 200

// Error names the field that failed and why
type Error struct {
	Field   string
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return Error{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return Error{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks if a password meets requirements
func ValidatePassword(password string) error {
	if password == "" {
		return Error{Field: "password", Message: "password is required"}
	}
	if len(password) < 8 {
		return Error{Field: "password", Message: "password must be at least 8 characters"}
	}
	return nil
}

// ValidateName checks a person's display name
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return Error{Field: "name", Message: "name is required"}
	}
	if len(name) < 2 {
		return Error{Field: "name", Message: "name must be at least 2 characters"}
	}
	return nil
}

// ValidateTitle checks the title of a task or reminder
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return Error{Field: "title", Message: "title is required"}
	}
	if len(title) > maxTitleLength {
		return Error{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", maxTitleLength)}
	}
	return nil
}

// ValidateID checks a senior or record identifier
func ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return Error{Field: field, Message: field + " is required"}
	}
	return nil
}

var taskStatuses = map[string]bool{
	models.StatusPending:    true,
	models.StatusInProgress: true,
	models.StatusCompleted:  true,
	models.StatusMissed:     true,
	models.StatusCancelled:  true,
}

// ValidateTaskStatus accepts the statuses a task may be moved to
func ValidateTaskStatus(status string) error {
	if !taskStatuses[status] {
		return Error{Field: "status", Message: fmt.Sprintf("unknown task status %q", status)}
	}
	return nil
}
