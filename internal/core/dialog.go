package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"healthcompanion/internal/llm"
	"healthcompanion/internal/session"
	"healthcompanion/pkg"
)

// Sentinel errors returned when a user action is not legal in the session's
// current state.  The HTTP layer maps them to 4xx responses; they never
// produce a transport call.
var (
	ErrEmptyInput     = errors.New("empty input")
	ErrFormOpen       = errors.New("a form is open; free-text input is suppressed")
	ErrNoContextForm  = errors.New("no context form is pending")
	ErrNoMedicineForm = errors.New("the medicine form is not open")
	ErrSessionReset   = errors.New("session was cleared while the request was in flight")
)

// ChunkSink receives reply chunks as they stream in.  It is a presentation
// affordance only; correctness depends solely on the final joined text.
type ChunkSink func(chunk string)

// TurnResult is what one user action produced.
type TurnResult struct {
	// Reply is the raw model text for this turn, empty when no transport
	// call was made (e.g. the context form was requested instead).
	Reply string
	// DisplayText is Reply with image-aid tags stripped, or the fixed
	// assistant message for transport-free turns.
	DisplayText   string
	ImageRequests []pkg.ImageRequest
	// TransportErr records a failed model call.  The failure is already
	// converted into a visible assistant message; it is surfaced here only
	// for logging.
	TransportErr error
}

// Controller sequences intake, optional context collection, model calls and
// display.  It owns no session state itself; every operation works on the
// session it is given, and the session's turn lock guarantees one in-flight
// transport call at a time.
type Controller struct {
	client  llm.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewController builds a controller.  timeout bounds every transport call;
// zero selects the one-minute default.
func NewController(client llm.Client, timeout time.Duration, logger *slog.Logger) *Controller {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{client: client, timeout: timeout, logger: logger}
}

// StartSession registers a new session pre-populated with the greeting and a
// fresh conversation handle.
func (c *Controller) StartSession(store *session.Store, lang pkg.Language) *session.Session {
	s := store.Create(lang, c.client.NewConversation(SystemInstruction))
	s.Mu.Lock()
	s.State.History = append(s.State.History, pkg.ChatMessage{Role: pkg.RoleAssistant, Content: Greeting})
	s.Mu.Unlock()
	return s
}

// Submit handles free-text input from the Idle state.  When the classifier
// demands context it appends the fixed context-required message and opens the
// form without calling the transport; otherwise it dispatches a direct-query
// prompt.
func (c *Controller) Submit(ctx context.Context, s *session.Session, text string, sink ChunkSink) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	s.Turn.Lock()
	defer s.Turn.Unlock()

	s.Mu.Lock()
	if s.State.AwaitingContext || s.State.ShowMedicineForm {
		s.Mu.Unlock()
		return nil, ErrFormOpen
	}
	s.State.History = append(s.State.History, pkg.ChatMessage{Role: pkg.RoleUser, Content: text})

	if NeedsContext(text) {
		s.State.History = append(s.State.History, pkg.ChatMessage{Role: pkg.RoleAssistant, Content: ContextRequiredMessage})
		s.State.AwaitingContext = true
		s.Mu.Unlock()
		return &TurnResult{DisplayText: ContextRequiredMessage}, nil
	}

	prompt := BuildDirectPrompt(text, s.State.Language)
	conv, gen := s.Conv, s.Generation
	s.Mu.Unlock()

	return c.dispatch(ctx, s, conv, gen, prompt, sink)
}

// SubmitContext handles the context form.  The original complaint is
// recovered from history, the structured context is stored (full overwrite),
// and a context-enriched prompt is dispatched.
func (c *Controller) SubmitContext(ctx context.Context, s *session.Session, pctx pkg.PatientContext, sink ChunkSink) (*TurnResult, error) {
	s.Turn.Lock()
	defer s.Turn.Unlock()

	s.Mu.Lock()
	if !s.State.AwaitingContext {
		s.Mu.Unlock()
		return nil, ErrNoContextForm
	}
	s.State.Context = pctx
	s.State.AwaitingContext = false

	symptom := OriginalSymptom(s.State.History)
	display := ContextDisplayText(symptom, pctx)
	prompt := BuildContextPrompt(symptom, pctx, s.State.Language)
	s.State.History = append(s.State.History, pkg.ChatMessage{Role: pkg.RoleUser, Content: display})
	conv, gen := s.Conv, s.Generation
	s.Mu.Unlock()

	return c.dispatch(ctx, s, conv, gen, prompt, sink)
}

// SubmitMedicine handles the medicine form.  History records only the short
// display entry, never the internal lookup prompt.
func (c *Controller) SubmitMedicine(ctx context.Context, s *session.Session, name string, sink ChunkSink) (*TurnResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyInput
	}

	s.Turn.Lock()
	defer s.Turn.Unlock()

	s.Mu.Lock()
	if !s.State.ShowMedicineForm {
		s.Mu.Unlock()
		return nil, ErrNoMedicineForm
	}
	s.State.ShowMedicineForm = false
	s.State.History = append(s.State.History, pkg.ChatMessage{Role: pkg.RoleUser, Content: MedicineDisplayText(name)})
	prompt := BuildMedicinePrompt(name, s.State.Language)
	conv, gen := s.Conv, s.Generation
	s.Mu.Unlock()

	return c.dispatch(ctx, s, conv, gen, prompt, sink)
}

// ToggleMedicineForm flips the medicine form from the Idle state.  It is a
// toggle, not a one-way transition.
func (c *Controller) ToggleMedicineForm(s *session.Session) (bool, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.State.AwaitingContext {
		return false, ErrFormOpen
	}
	s.State.ShowMedicineForm = !s.State.ShowMedicineForm
	return s.State.ShowMedicineForm, nil
}

// SetLanguage switches the output language for subsequent turns.
func (c *Controller) SetLanguage(s *session.Session, lang pkg.Language) {
	s.Mu.Lock()
	s.State.Language = lang
	s.Mu.Unlock()
}

// PopLast retracts the most recent history entry.  It refuses while a form is
// open so the modal flags stay consistent with what the entry announced.
func (c *Controller) PopLast(s *session.Session) (pkg.ChatMessage, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.State.AwaitingContext || s.State.ShowMedicineForm {
		return pkg.ChatMessage{}, false
	}
	n := len(s.State.History)
	if n <= 1 { // keep the greeting
		return pkg.ChatMessage{}, false
	}
	last := s.State.History[n-1]
	s.State.History = s.State.History[:n-1]
	return last, true
}

// Clear resets the session to the greeting state and discards the transport
// handle.  It is legal in any state, including while a transport call is
// outstanding: the generation bump makes the in-flight result land on the
// floor instead of in the reset history.
func (c *Controller) Clear(s *session.Session) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Generation++
	lang := s.State.Language
	s.State = pkg.SessionState{
		Language: lang,
		History:  []pkg.ChatMessage{{Role: pkg.RoleAssistant, Content: Greeting}},
	}
	s.Conv = c.client.NewConversation(SystemInstruction)
}

// dispatch performs the single transport call of a turn and appends the
// post-processed assistant message.  A transport failure becomes a visible
// assistant message; the turn still ends in the Idle state.
func (c *Controller) dispatch(ctx context.Context, s *session.Session, conv llm.Conversation, gen uint64, prompt string, sink ChunkSink) (*TurnResult, error) {
	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	full, sendErr := c.send(tctx, conv, prompt, sink)

	res := &TurnResult{}
	if sendErr != nil {
		c.logger.Error("transport call failed", "session_id", s.ID, "error", sendErr)
		res.TransportErr = sendErr
		res.DisplayText = "An error occurred: " + sendErr.Error()
	} else {
		res.Reply = full
		res.DisplayText, res.ImageRequests = ExtractVisualAid(full)
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Generation != gen {
		// The session was cleared mid-flight; drop the result.
		c.logger.Info("discarding stale transport result", "session_id", s.ID)
		return nil, ErrSessionReset
	}
	s.State.History = append(s.State.History, pkg.ChatMessage{Role: pkg.RoleAssistant, Content: res.DisplayText})
	return res, nil
}

func (c *Controller) send(ctx context.Context, conv llm.Conversation, prompt string, sink ChunkSink) (string, error) {
	stream, err := conv.Send(ctx, prompt)
	if err != nil {
		return "", err
	}
	return llm.Collect(stream, sink)
}
