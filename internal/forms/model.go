package forms

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/ridgeline-site/internal/notify"
	"github.com/wolfman30/ridgeline-site/internal/sanitize"
)

const (
	FormContact = "contact"
	FormLead    = "lead-capture"
)

// LooseString decodes a JSON string, number or boolean into its text form.
// Browsers send downloadedGuide both as a guide title and as a flag.
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*s = LooseString(data)
		return nil
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			return err
		}
		*s = LooseString(data)
		return nil
	}
}

// ContactRequest is the body of POST /contact.
type ContactRequest struct {
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Message      string `json:"message"`
	Phone        string `json:"phone"`
	PracticeArea string `json:"practiceArea"`
}

// Validate checks the required contact fields. A field that is only
// markup counts as missing.
func (r *ContactRequest) Validate() error {
	if !sanitize.ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	if !present(r.FirstName) && !present(r.LastName) {
		return ErrMissingName
	}
	if !present(r.Message) {
		return ErrMissingMessage
	}
	return nil
}

// LeadRequest is the body of POST /lead-capture.
type LeadRequest struct {
	Email           string      `json:"email"`
	Name            string      `json:"name"`
	Industry        string      `json:"industry"`
	LeadSource      string      `json:"leadSource"`
	DownloadedGuide LooseString `json:"downloadedGuide"`
	DownloadURL     string      `json:"downloadUrl"`
	CSRFToken       string      `json:"csrfToken"`
}

// Validate checks the required lead-capture fields.
func (r *LeadRequest) Validate() error {
	if !sanitize.ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	if !present(r.Name) {
		return ErrMissingName
	}
	return nil
}

func present(s string) bool {
	return strings.TrimSpace(s) != "" && sanitize.Text(s) != ""
}

// Submission is an accepted, sanitized form submission. It lives for the
// duration of one request.
type Submission struct {
	ID              string
	Form            string
	Name            string
	Email           string
	Phone           string
	Message         string
	Category        string
	LeadSource      string
	DownloadedGuide string
	DownloadURL     string
	Timestamp       time.Time
}

// NewContactSubmission sanitizes a validated contact request.
func NewContactSubmission(id string, r ContactRequest, now time.Time) Submission {
	return Submission{
		ID:        id,
		Form:      FormContact,
		Name:      sanitize.Join(r.FirstName, r.LastName),
		Email:     sanitize.Email(r.Email),
		Phone:     sanitize.Optional(r.Phone),
		Message:   sanitize.Text(r.Message),
		Category:  sanitize.Optional(r.PracticeArea),
		Timestamp: now.UTC(),
	}
}

// NewLeadSubmission sanitizes a validated lead-capture request.
func NewLeadSubmission(id string, r LeadRequest, now time.Time) Submission {
	return Submission{
		ID:              id,
		Form:            FormLead,
		Name:            sanitize.Text(r.Name),
		Email:           sanitize.Email(r.Email),
		Category:        sanitize.Optional(r.Industry),
		LeadSource:      sanitize.Optional(r.LeadSource),
		DownloadedGuide: sanitize.Optional(string(r.DownloadedGuide)),
		DownloadURL:     sanitize.Optional(r.DownloadURL),
		Timestamp:       now.UTC(),
	}
}

// Notification converts the submission for delivery to recipients.
func (s Submission) Notification(recipients []string) notify.Notification {
	n := notify.Notification{
		ID:         s.ID,
		Form:       s.Form,
		Recipients: recipients,
		ReplyTo:    s.Email,
		Timestamp:  s.Timestamp,
	}
	switch s.Form {
	case FormLead:
		n.Subject = "New lead: " + s.Name
		n.Fields = []notify.Field{
			{Key: "name", Label: "Name", Value: s.Name},
			{Key: "email", Label: "Email", Value: s.Email},
			{Key: "industry", Label: "Industry", Value: s.Category},
			{Key: "leadSource", Label: "Lead source", Value: s.LeadSource},
			{Key: "downloadedGuide", Label: "Downloaded guide", Value: s.DownloadedGuide},
			{Key: "downloadUrl", Label: "Download URL", Value: s.DownloadURL},
		}
	default:
		n.Subject = "New contact form submission from " + s.Name
		n.Fields = []notify.Field{
			{Key: "name", Label: "Name", Value: s.Name},
			{Key: "email", Label: "Email", Value: s.Email},
			{Key: "phone", Label: "Phone", Value: s.Phone},
			{Key: "practiceArea", Label: "Practice area", Value: s.Category},
			{Key: "message", Label: "Message", Value: s.Message},
		}
	}
	return n
}

// ContactData is echoed back on a successful contact submission.
type ContactData struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PracticeArea string `json:"practiceArea"`
	Timestamp    string `json:"timestamp"`
}

// LeadData is echoed back on a successful lead-capture submission.
type LeadData struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Industry        string `json:"industry"`
	DownloadedGuide string `json:"downloadedGuide"`
	Timestamp       string `json:"timestamp"`
}

// Response is the 200 body of both form endpoints.
type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}
