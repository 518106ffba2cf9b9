package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Jane Doe  ", "Jane Doe"},
		{"unclosed script", "Jo<script>", "Jo"},
		{"script with body", "hi<script>alert(1)</script> there", "hi there"},
		{"formatting tags", "<b>bold</b> move", "bold move"},
		{"event handler", `<img src=x onerror="alert(1)">Hello`, "Hello"},
		{"stray angle bracket", "a < b", "a &lt; b"},
		{"ampersand", "Tom & Jerry", "Tom &amp; Jerry"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestTextNeverEmitsTags(t *testing.T) {
	inputs := []string{
		"<script>document.cookie</script>",
		"<iframe src='https://evil.example'></iframe>",
		"<a href=\"javascript:alert(1)\">x</a>",
		"<<script>script>alert(1)<</script>/script>",
	}
	for _, in := range inputs {
		out := Text(in)
		assert.NotContains(t, out, "<", "input %q", in)
		assert.NotContains(t, strings.ToLower(out), "<script", "input %q", in)
	}
}

func TestOptional(t *testing.T) {
	assert.Equal(t, NotSpecified, Optional(""))
	assert.Equal(t, NotSpecified, Optional("<script></script>"))
	assert.Equal(t, "Lobbying", Optional(" Lobbying "))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "Jo Doe", Join("Jo<script>", "Doe"))
	assert.Equal(t, "Doe", Join("", " Doe "))
	assert.Equal(t, "", Join("", ""))
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.com", "first.last+tag@example.co.uk", " padded@example.org "}
	invalid := []string{"", "no-at-sign", "two@@example.com", "x@y", "spaces in@example.com", strings.Repeat("a", 250) + "@example.com"}
	for _, v := range valid {
		assert.True(t, ValidEmail(v), v)
	}
	for _, v := range invalid {
		assert.False(t, ValidEmail(v), v)
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a@b.com", "a@b.com"},
		{"  Jane.Doe@Example.COM ", "jane.doe@example.com"},
		{"J.a.n.e+newsletter@gmail.com", "jane@gmail.com"},
		{"jane.doe@googlemail.com", "janedoe@gmail.com"},
		{"jane+work@outlook.com", "jane@outlook.com"},
		{"jane-spam@yahoo.com", "jane@yahoo.com"},
		{"jane+x@icloud.com", "jane@icloud.com"},
		{"+only@gmail.com", "+only@gmail.com"},
		{"not-an-email", "not-an-email"},
		{"a@b@c.com", "a@b@c.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Email(tt.in), tt.in)
	}
}
