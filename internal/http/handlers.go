package http

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthcompanion/internal/config"
	"healthcompanion/internal/core"
	"healthcompanion/internal/session"
	"healthcompanion/pkg"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server bundles the dependencies required by the HTTP handlers.
type Server struct {
	Store      *session.Store
	Controller *core.Controller
	Defaults   config.ChatConfig
	Templates  *template.Template
	logger     *slog.Logger
}

// NewServer constructs a Server with the embedded chat page templates.
func NewServer(store *session.Store, ctrl *core.Controller, defaults config.ChatConfig, logger *slog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Store:      store,
		Controller: ctrl,
		Defaults:   defaults,
		Templates:  tmpl,
		logger:     logger,
	}, nil
}

// AddRoutes mounts all endpoints on the router.
func (s *Server) AddRoutes(r chi.Router) {
	r.Get("/", s.handleIndex)
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateSession))
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetSession))
			r.Delete("/", RestHandler(s.DeleteSession))
			r.Post("/messages", RestHandler(s.PostMessage))
			r.Delete("/messages/last", RestHandler(s.RetractLastMessage))
			r.Post("/context", RestHandler(s.PostContext))
			r.Post("/medicine", RestHandler(s.PostMedicine))
			r.Post("/medicine-form", RestHandler(s.ToggleMedicineForm))
			r.Post("/language", RestHandler(s.SetLanguage))
			r.Post("/clear", RestHandler(s.ClearSession))
		})
	})

	r.Get("/ws/sessions/{session_id}", s.handleWebSocket)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Languages []pkg.Language
		AgeRanges []string
	}{pkg.Languages, pkg.AgeRanges}
	if err := s.Templates.ExecuteTemplate(w, "chat.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// CreateSession starts a new conversation pre-populated with the greeting.
func (s *Server) CreateSession(r *http.Request) (any, error) {
	req, err := ParseRequest[pkg.CreateSessionRequest](r)
	if err != nil {
		// An empty body is fine: fall back to server defaults.
		req = pkg.CreateSessionRequest{}
	}
	lang := s.Defaults.Language
	if req.Language != "" {
		if !req.Language.Valid() {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "unsupported language %q", req.Language)
		}
		lang = req.Language
	}
	therapy := s.Defaults.TherapyPreference
	if req.TherapyPreference != "" {
		if !req.TherapyPreference.Valid() {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "unsupported therapy preference %q", req.TherapyPreference)
		}
		therapy = req.TherapyPreference
	}
	sess := s.Controller.StartSession(s.Store, lang)
	// Pre-seed the context form's therapy preference; the form overwrites it.
	sess.Mu.Lock()
	sess.State.Context.TherapyPreference = therapy
	sess.Mu.Unlock()
	s.logger.Info("session created", "session_id", sess.ID, "language", lang)
	return pkg.CreateSessionResponse{SessionID: sess.ID}, nil
}

func (s *Server) GetSession(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	return pkg.SessionSnapshot{SessionID: sess.ID, SessionState: sess.Snapshot()}, nil
}

func (s *Server) DeleteSession(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	s.Store.Delete(sess.ID)
	s.logger.Info("session deleted", "session_id", sess.ID)
	return nil, nil
}

// PostMessage submits free-text input.  While a modal form is open the input
// is rejected, matching the classifier-driven dialogue flow.
func (s *Server) PostMessage(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[pkg.SubmitRequest](r)
	if err != nil {
		return nil, err
	}
	res, err := s.Controller.Submit(r.Context(), sess, req.Content, nil)
	if err != nil {
		return nil, turnError(err)
	}
	return s.turnResponse(sess, res), nil
}

func (s *Server) PostContext(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[pkg.ContextFormRequest](r)
	if err != nil {
		return nil, err
	}
	if err := validateContextForm(req); err != nil {
		return nil, err
	}
	pctx := pkg.PatientContext{
		Gender:            req.Gender,
		AgeRange:          req.AgeRange,
		WeightKg:          req.WeightKg,
		TherapyPreference: req.TherapyPreference,
	}
	res, err := s.Controller.SubmitContext(r.Context(), sess, pctx, nil)
	if err != nil {
		return nil, turnError(err)
	}
	return s.turnResponse(sess, res), nil
}

func (s *Server) PostMedicine(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[pkg.MedicineFormRequest](r)
	if err != nil {
		return nil, err
	}
	res, err := s.Controller.SubmitMedicine(r.Context(), sess, req.Name, nil)
	if err != nil {
		return nil, turnError(err)
	}
	return s.turnResponse(sess, res), nil
}

func (s *Server) ToggleMedicineForm(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	shown, err := s.Controller.ToggleMedicineForm(sess)
	if err != nil {
		return nil, turnError(err)
	}
	return map[string]bool{"show_medicine_form": shown}, nil
}

func (s *Server) SetLanguage(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[pkg.LanguageRequest](r)
	if err != nil {
		return nil, err
	}
	if !req.Language.Valid() {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "unsupported language %q", req.Language)
	}
	s.Controller.SetLanguage(sess, req.Language)
	return nil, nil
}

func (s *Server) ClearSession(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	s.Controller.Clear(sess)
	s.logger.Info("session cleared", "session_id", sess.ID)
	return pkg.SessionSnapshot{SessionID: sess.ID, SessionState: sess.Snapshot()}, nil
}

func (s *Server) RetractLastMessage(r *http.Request) (any, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	msg, ok := s.Controller.PopLast(sess)
	if !ok {
		return nil, CodedErrorf(http.StatusConflict, "nothing to retract")
	}
	return msg, nil
}

func (s *Server) session(r *http.Request) (*session.Session, error) {
	id, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}
	sess, ok := s.Store.Get(id)
	if !ok {
		return nil, CodedErrorf(http.StatusNotFound, "session %s not found", id)
	}
	return sess, nil
}

func (s *Server) turnResponse(sess *session.Session, res *core.TurnResult) pkg.TurnResponse {
	snap := sess.Snapshot()
	return pkg.TurnResponse{
		Reply:            res.Reply,
		DisplayText:      res.DisplayText,
		ImageAids:        core.ImageAids(res.ImageRequests),
		AwaitingContext:  snap.AwaitingContext,
		ShowMedicineForm: snap.ShowMedicineForm,
		History:          snap.History,
	}
}

// turnError maps controller sentinels to HTTP statuses.
func turnError(err error) error {
	switch {
	case errors.Is(err, core.ErrEmptyInput):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, core.ErrFormOpen),
		errors.Is(err, core.ErrNoContextForm),
		errors.Is(err, core.ErrNoMedicineForm),
		errors.Is(err, core.ErrSessionReset):
		return CodedError(http.StatusConflict, err)
	}
	return err
}

// validateContextForm rejects malformed form input at the boundary so it
// never reaches the controller.
func validateContextForm(req pkg.ContextFormRequest) error {
	if !req.Gender.Valid() {
		return CodedErrorf(http.StatusUnprocessableEntity, "invalid gender %q", req.Gender)
	}
	if !pkg.ValidAgeRange(req.AgeRange) {
		return CodedErrorf(http.StatusUnprocessableEntity, "invalid age range %q", req.AgeRange)
	}
	if req.WeightKg < pkg.MinWeightKg || req.WeightKg > pkg.MaxWeightKg {
		return CodedErrorf(http.StatusUnprocessableEntity, "weight must be between %d and %d kg", pkg.MinWeightKg, pkg.MaxWeightKg)
	}
	if !req.TherapyPreference.Valid() {
		return CodedErrorf(http.StatusUnprocessableEntity, "invalid therapy preference %q", req.TherapyPreference)
	}
	return nil
}
