package notify

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"
)

var htmlTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
<h2>{{.Subject}}</h2>
<table cellpadding="6" style="border-collapse: collapse;">
{{- range .Fields}}
<tr><th align="left" valign="top">{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
</table>
<p style="color: #7b8794; font-size: 12px;">Submitted {{.Submitted}}{{with .ID}} &middot; ref {{.}}{{end}}</p>
</body>
</html>
`))

// BuildEmail renders the subject, plain text and HTML bodies for n.
// The returned message has no recipient set.
func BuildEmail(n Notification) (EmailMessage, error) {
	subject := html.UnescapeString(n.Subject)
	if subject == "" {
		subject = fmt.Sprintf("New %s submission", n.Form)
	}
	submitted := n.Timestamp.UTC().Format(time.RFC1123)

	// Subject and field values arrive entity-escaped; the template escapes again on output.
	fields := make([]Field, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = Field{Key: f.Key, Label: f.Label, Value: html.UnescapeString(f.Value)}
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", subject)
	for _, f := range fields {
		fmt.Fprintf(&text, "%s: %s\n", f.Label, f.Value)
	}
	fmt.Fprintf(&text, "\nSubmitted %s\n", submitted)

	var body bytes.Buffer
	err := htmlTemplate.Execute(&body, struct {
		Subject   string
		Fields    []Field
		Submitted string
		ID        string
	}{subject, fields, submitted, n.ID})
	if err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render email: %w", err)
	}

	return EmailMessage{
		ReplyTo: n.ReplyTo,
		Subject: subject,
		Body:    text.String(),
		HTML:    body.String(),
	}, nil
}
