package forms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ridgeline-site/internal/csrf"
	"github.com/wolfman30/ridgeline-site/internal/notify"
	"github.com/wolfman30/ridgeline-site/internal/observability/metrics"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *recordingNotifier) Name() string { return "recording" }

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type fixture struct {
	handler  *Handler
	notifier *recordingNotifier
	csrf     *csrf.Service
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc, err := csrf.NewService([]byte("forms-test-secret"), csrf.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	n := &recordingNotifier{}
	reg := prometheus.NewRegistry()
	m := metrics.NewSiteMetrics(reg)
	h, err := NewHandler(Config{
		Notifier:   n,
		CSRF:       svc,
		Recipients: []string{"info@ridgelinepa.com"},
		Logger:     logging.Discard(),
		Metrics:    m,
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{handler: h, notifier: n, csrf: svc, registry: reg}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.csrf.Issue()
	require.NoError(t, err)
	return tok.String()
}

func post(h http.HandlerFunc, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestNewHandler_RequiresCollaborators(t *testing.T) {
	svc, err := csrf.NewService([]byte("s"))
	require.NoError(t, err)

	_, err = NewHandler(Config{CSRF: svc, Recipients: []string{"a@b.com"}})
	assert.Error(t, err)
	_, err = NewHandler(Config{Notifier: &recordingNotifier{}, Recipients: []string{"a@b.com"}})
	assert.Error(t, err)
	_, err = NewHandler(Config{Notifier: &recordingNotifier{}, CSRF: svc})
	assert.Error(t, err)
}

func TestContact_SanitizesAndEchoes(t *testing.T) {
	f := newFixture(t)

	rec := post(f.handler.Contact, `{"email":"a@b.com","firstName":"Jo<script>","lastName":"Doe","message":"hi"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string      `json:"message"`
		Data    ContactData `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, "Jo Doe", resp.Data.Name)
	assert.Equal(t, "a@b.com", resp.Data.Email)
	assert.Equal(t, "Not specified", resp.Data.PracticeArea)
	assert.Equal(t, "2026-05-04T10:30:00Z", resp.Data.Timestamp)

	require.Len(t, f.notifier.sent, 1)
	note := f.notifier.sent[0]
	assert.Equal(t, FormContact, note.Form)
	assert.Equal(t, []string{"info@ridgelinepa.com"}, note.Recipients)
	assert.Equal(t, "a@b.com", note.ReplyTo)
	assert.Equal(t, "Jo Doe", note.Data()["name"])
	assert.Equal(t, "hi", note.Data()["message"])
	assert.NotEmpty(t, note.ID)

	expected := `
# HELP ridgeline_forms_submissions_total Form submissions by form and outcome
# TYPE ridgeline_forms_submissions_total counter
ridgeline_forms_submissions_total{form="contact",outcome="accepted"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "ridgeline_forms_submissions_total"))
}

func TestContact_EscapesMessage(t *testing.T) {
	f := newFixture(t)

	rec := post(f.handler.Contact, `{"email":"a@b.com","firstName":"Jo","message":"  a < b <img src=x onerror=alert(1)>  ","practiceArea":"Energy"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.notifier.sent, 1)
	data := f.notifier.sent[0].Data()
	assert.Equal(t, "a &lt; b", data["message"])
	assert.Equal(t, "Energy", data["practiceArea"])
	assert.Equal(t, "Jo", data["name"])
}

func TestContact_ValidationFailuresDoNotNotify(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing email", `{"firstName":"Jo","message":"hi"}`, "email"},
		{"bad email", `{"email":"not-an-email","firstName":"Jo","message":"hi"}`, "email"},
		{"missing name", `{"email":"a@b.com","firstName":"  ","message":"hi"}`, "name"},
		{"missing message", `{"email":"a@b.com","lastName":"Doe","message":""}`, "message"},
		{"markup-only name", `{"email":"a@b.com","firstName":"<b></b>","lastName":"<i> </i>","message":"hi"}`, "name"},
		{"markup-only message", `{"email":"a@b.com","firstName":"Jo","message":"<script>alert(1)</script>"}`, "message"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := post(f.handler.Contact, tc.body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.field, decodeError(t, rec).Field)
			assert.Empty(t, f.notifier.sent)
		})
	}
}

func TestContact_MalformedBody(t *testing.T) {
	for _, body := range []string{``, `{"email":`, `[1,2]`, `{"email":"a@b.com"} trailing`} {
		f := newFixture(t)
		rec := post(f.handler.Contact, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Empty(t, f.notifier.sent)
	}
}

func TestContact_OversizedBody(t *testing.T) {
	f := newFixture(t)
	big := `{"email":"a@b.com","firstName":"Jo","message":"` + strings.Repeat("x", MaxBodyBytes) + `"}`

	rec := post(f.handler.Contact, big, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.notifier.sent)
}

func TestContact_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.Contact(rec, httptest.NewRequest(http.MethodGet, "/contact", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Empty(t, f.notifier.sent)
}

func TestContact_RelayFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("relay returned 502")

	rec := post(f.handler.Contact, `{"email":"a@b.com","firstName":"Jo","message":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.notifier.sent, 1)
	expected := `
# HELP ridgeline_notify_deliveries_total Downstream notification attempts by provider and status
# TYPE ridgeline_notify_deliveries_total counter
ridgeline_notify_deliveries_total{provider="recording",status="failed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "ridgeline_notify_deliveries_total"))
	assert.Equal(t, uint64(1), latencySamples(t, f.registry, "recording"))
}

func latencySamples(t *testing.T, reg *prometheus.Registry, target string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "ridgeline_upstream_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "target" && lp.GetValue() == target {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}

func TestLeadCapture_WithBodyToken(t *testing.T) {
	f := newFixture(t)
	body := `{"email":"Pat.Smith+guide@GoogleMail.com","name":"Pat <b>Smith</b>","industry":"Healthcare","downloadedGuide":"2026 Session Outlook","csrfToken":"` + f.token(t) + `"}`

	rec := post(f.handler.LeadCapture, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string   `json:"message"`
		Data    LeadData `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Pat Smith", resp.Data.Name)
	assert.Equal(t, "patsmith@gmail.com", resp.Data.Email)
	assert.Equal(t, "Healthcare", resp.Data.Industry)
	assert.Equal(t, "2026 Session Outlook", resp.Data.DownloadedGuide)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, FormLead, f.notifier.sent[0].Form)
	assert.Equal(t, "Not specified", f.notifier.sent[0].Data()["leadSource"])
}

func TestLeadCapture_HeaderTokenAndBooleanGuide(t *testing.T) {
	f := newFixture(t)
	body := `{"email":"a@b.com","name":"Pat","downloadedGuide":true,"csrfToken":"garbage"}`

	rec := post(f.handler.LeadCapture, body, map[string]string{csrf.HeaderName: f.token(t)})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data LeadData `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "true", resp.Data.DownloadedGuide)
}

func TestLeadCapture_CSRFFailures(t *testing.T) {
	f := newFixture(t)
	valid := f.token(t)

	expiredSvc, err := csrf.NewService([]byte("forms-test-secret"), csrf.WithClock(func() time.Time { return fixedNow.Add(-3 * time.Hour) }))
	require.NoError(t, err)
	expiredTok, err := expiredSvc.Issue()
	require.NoError(t, err)

	otherSvc, err := csrf.NewService([]byte("another-secret"), csrf.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	foreignTok, err := otherSvc.Issue()
	require.NoError(t, err)

	cases := map[string]string{
		"missing":   "",
		"malformed": "abc",
		"tampered":  "0" + valid[1:],
		"expired":   expiredTok.String(),
		"foreign":   foreignTok.String(),
	}
	if valid[0] == '0' {
		cases["tampered"] = "1" + valid[1:]
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(f.handler.LeadCapture, `{"email":"a@b.com","name":"Pat","csrfToken":"`+tok+`"}`, nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec).Error)
		})
	}
	assert.Empty(t, f.notifier.sent)
}

func TestLeadCapture_CSRFCheckedBeforeValidation(t *testing.T) {
	f := newFixture(t)
	rec := post(f.handler.LeadCapture, `{"email":"bad"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLeadCapture_Validation(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t)

	rec := post(f.handler.LeadCapture, `{"email":"a@b.com","name":" ","csrfToken":"`+tok+`"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeError(t, rec).Field)

	rec = post(f.handler.LeadCapture, `{"email":"a@b.com","name":"<b></b>","csrfToken":"`+tok+`"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeError(t, rec).Field)

	rec = post(f.handler.LeadCapture, `{"email":"nope","name":"Pat","csrfToken":"`+tok+`"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decodeError(t, rec).Field)

	assert.Empty(t, f.notifier.sent)
}

func TestLeadNotification_EmailSubjectEscapedOnce(t *testing.T) {
	sub := NewLeadSubmission("sub-9", LeadRequest{Email: "tj@example.com", Name: "Tom & Jerry's"}, time.Now())

	msg, err := notify.BuildEmail(sub.Notification([]string{"info@ridgelinepa.com"}))
	require.NoError(t, err)

	assert.Equal(t, "New lead: Tom & Jerry's", msg.Subject)
	assert.Contains(t, msg.Body, "Name: Tom & Jerry's")
	assert.Contains(t, msg.HTML, "<h2>New lead: Tom &amp; Jerry&#39;s</h2>")
	assert.NotContains(t, msg.HTML, "&amp;amp;")
	assert.NotContains(t, msg.HTML, "&amp;#39;")
}

func TestLeadCapture_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.LeadCapture(rec, httptest.NewRequest(http.MethodPut, "/lead-capture", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLooseString(t *testing.T) {
	cases := map[string]string{
		`"guide"`: "guide",
		`true`:    "true",
		`false`:   "false",
		`3`:       "3",
		`null`:    "",
	}
	for in, want := range cases {
		var s LooseString
		require.NoError(t, json.Unmarshal([]byte(in), &s), in)
		assert.Equal(t, want, string(s))
	}

	var s LooseString
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &s))
}
