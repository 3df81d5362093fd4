package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcompanion/internal/config"
	"healthcompanion/internal/core"
	"healthcompanion/internal/llm"
	"healthcompanion/internal/session"
	"healthcompanion/pkg"
)

type fakeClient struct {
	mu      sync.Mutex
	reply   string
	sendErr error
	prompts []string
}

func (f *fakeClient) NewConversation(string) llm.Conversation {
	return &fakeConversation{client: f}
}

func (f *fakeClient) sentPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

type fakeConversation struct{ client *fakeClient }

func (c *fakeConversation) Send(ctx context.Context, prompt string) (llm.Stream, error) {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()
	c.client.prompts = append(c.client.prompts, prompt)
	if c.client.sendErr != nil {
		return nil, c.client.sendErr
	}
	return &fakeStream{reply: c.client.reply}, nil
}

type fakeStream struct {
	reply string
	done  bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.reply, nil
}

func (s *fakeStream) Close() error { return nil }

func newTestRouter(t *testing.T, f *fakeClient) chi.Router {
	t.Helper()
	store := session.NewStore()
	ctrl := core.NewController(f, time.Second, nil)
	srv, err := NewServer(store, ctrl, config.ChatConfig{
		Language:          pkg.LanguageEnglish,
		TherapyPreference: pkg.TherapyModern,
	}, nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	srv.AddRoutes(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, r chi.Router) uuid.UUID {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/sessions", pkg.CreateSessionRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[pkg.CreateSessionResponse](t, rec).SessionID
}

func sessionPath(id uuid.UUID, suffix string) string {
	return fmt.Sprintf("/api/sessions/%s%s", id, suffix)
}

func TestCreateAndGetSession(t *testing.T) {
	r := newTestRouter(t, &fakeClient{})
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodGet, sessionPath(id, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[pkg.SessionSnapshot](t, rec)
	assert.Equal(t, id, snap.SessionID)
	require.Len(t, snap.History, 1)
	assert.Equal(t, core.Greeting, snap.History[0].Content)
}

func TestGetUnknownSession(t *testing.T) {
	r := newTestRouter(t, &fakeClient{})
	rec := doJSON(t, r, http.MethodGet, sessionPath(uuid.New(), ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerFlowOverHTTP(t *testing.T) {
	f := &fakeClient{reply: "Summary. [Image of throat]\n- rest"}
	r := newTestRouter(t, f)
	id := createSession(t, r)

	// "fever" trips the classifier: no transport call, form opens.
	rec := doJSON(t, r, http.MethodPost, sessionPath(id, "/messages"), pkg.SubmitRequest{Content: "I have a fever"})
	require.Equal(t, http.StatusOK, rec.Code)
	turn := decode[pkg.TurnResponse](t, rec)
	assert.True(t, turn.AwaitingContext)
	assert.Equal(t, core.ContextRequiredMessage, turn.DisplayText)
	assert.Empty(t, f.sentPrompts())

	// Free text is rejected while the form is open.
	rec = doJSON(t, r, http.MethodPost, sessionPath(id, "/messages"), pkg.SubmitRequest{Content: "hello?"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Submitting the form dispatches the enriched prompt.
	rec = doJSON(t, r, http.MethodPost, sessionPath(id, "/context"), pkg.ContextFormRequest{
		Gender: pkg.GenderMale, AgeRange: "18-45", WeightKg: 70, TherapyPreference: pkg.TherapyModern,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	turn = decode[pkg.TurnResponse](t, rec)
	assert.False(t, turn.AwaitingContext)
	require.Len(t, turn.ImageAids, 1)
	assert.Equal(t, "throat", turn.ImageAids[0].SubjectPhrase)
	assert.Contains(t, turn.ImageAids[0].URL, "image.pollinations.ai")

	prompts := f.sentPrompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "I have a fever")
}

func TestContextFormValidation(t *testing.T) {
	r := newTestRouter(t, &fakeClient{})
	id := createSession(t, r)

	// Open the form first.
	doJSON(t, r, http.MethodPost, sessionPath(id, "/messages"), pkg.SubmitRequest{Content: "back pain"})

	tests := []struct {
		name string
		req  pkg.ContextFormRequest
	}{
		{"bad gender", pkg.ContextFormRequest{Gender: "other", AgeRange: "18-45", WeightKg: 70, TherapyPreference: pkg.TherapyModern}},
		{"bad age range", pkg.ContextFormRequest{Gender: pkg.GenderMale, AgeRange: "200+", WeightKg: 70, TherapyPreference: pkg.TherapyModern}},
		{"weight too low", pkg.ContextFormRequest{Gender: pkg.GenderMale, AgeRange: "18-45", WeightKg: 0, TherapyPreference: pkg.TherapyModern}},
		{"weight too high", pkg.ContextFormRequest{Gender: pkg.GenderMale, AgeRange: "18-45", WeightKg: 301, TherapyPreference: pkg.TherapyModern}},
		{"bad therapy", pkg.ContextFormRequest{Gender: pkg.GenderMale, AgeRange: "18-45", WeightKg: 70, TherapyPreference: "homeopathic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, sessionPath(id, "/context"), tt.req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}

	// The form is still pending after rejected submissions.
	rec := doJSON(t, r, http.MethodGet, sessionPath(id, ""), nil)
	snap := decode[pkg.SessionSnapshot](t, rec)
	assert.True(t, snap.AwaitingContext)
}

func TestMedicineFlowOverHTTP(t *testing.T) {
	f := &fakeClient{reply: "Paracetamol-based analgesic."}
	r := newTestRouter(t, f)
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodPost, sessionPath(id, "/medicine-form"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[map[string]bool](t, rec)["show_medicine_form"])

	rec = doJSON(t, r, http.MethodPost, sessionPath(id, "/medicine"), pkg.MedicineFormRequest{Name: "Dolo 650"})
	require.Equal(t, http.StatusOK, rec.Code)
	turn := decode[pkg.TurnResponse](t, rec)
	assert.False(t, turn.ShowMedicineForm)

	// History shows the short display entry, never the lookup prompt.
	var userEntry pkg.ChatMessage
	for _, m := range turn.History {
		if m.Role == pkg.RoleUser {
			userEntry = m
		}
	}
	assert.Equal(t, "Requesting info for medicine: Dolo 650", userEntry.Content)
}

func TestTransportErrorOverHTTP(t *testing.T) {
	f := &fakeClient{sendErr: assert.AnError}
	r := newTestRouter(t, f)
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodPost, sessionPath(id, "/messages"), pkg.SubmitRequest{Content: "is tea ok at night"})
	require.Equal(t, http.StatusOK, rec.Code, "transport failures surface as assistant messages, not HTTP errors")
	turn := decode[pkg.TurnResponse](t, rec)
	assert.Contains(t, turn.DisplayText, "An error occurred")

	last := turn.History[len(turn.History)-1]
	assert.Equal(t, pkg.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "An error occurred")
}

func TestClearSessionOverHTTP(t *testing.T) {
	f := &fakeClient{reply: "ok"}
	r := newTestRouter(t, f)
	id := createSession(t, r)

	doJSON(t, r, http.MethodPost, sessionPath(id, "/messages"), pkg.SubmitRequest{Content: "is tea ok at night"})

	rec := doJSON(t, r, http.MethodPost, sessionPath(id, "/clear"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[pkg.SessionSnapshot](t, rec)
	require.Len(t, snap.History, 1)
	assert.Equal(t, core.Greeting, snap.History[0].Content)
}

func TestSetLanguageOverHTTP(t *testing.T) {
	r := newTestRouter(t, &fakeClient{})
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodPost, sessionPath(id, "/language"), pkg.LanguageRequest{Language: pkg.LanguageTelugu})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, sessionPath(id, "/language"), pkg.LanguageRequest{Language: "Klingon"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	r := newTestRouter(t, &fakeClient{})
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodDelete, sessionPath(id, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, sessionPath(id, ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetractLastMessage(t *testing.T) {
	f := &fakeClient{reply: "ok"}
	r := newTestRouter(t, f)
	id := createSession(t, r)

	// Nothing beyond the greeting yet.
	rec := doJSON(t, r, http.MethodDelete, sessionPath(id, "/messages/last"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	doJSON(t, r, http.MethodPost, sessionPath(id, "/messages"), pkg.SubmitRequest{Content: "is tea ok at night"})
	rec = doJSON(t, r, http.MethodDelete, sessionPath(id, "/messages/last"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msg := decode[pkg.ChatMessage](t, rec)
	assert.Equal(t, pkg.RoleAssistant, msg.Role)
}
