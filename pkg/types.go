package pkg

import "github.com/google/uuid"

// MessageRole describes who authored a message.  There are only two roles:
// the user and the assistant.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one entry in a session's conversation history.  Messages are
// immutable once created; the history is append-only, except that the most
// recent entry may be popped when the user retracts it.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Gender is the value collected by the context form.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUndisclosed Gender = "undisclosed"
)

// Valid reports whether g is one of the accepted gender values.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUndisclosed:
		return true
	}
	return false
}

// Label returns the human-readable form embedded in prompts.
func (g Gender) Label() string {
	switch g {
	case GenderMale:
		return "Male"
	case GenderFemale:
		return "Female"
	default:
		return "Prefer not to say"
	}
}

// AgeRanges is the fixed ordered set of age bracket labels offered by the
// context form.
var AgeRanges = []string{"0-12", "13-17", "18-45", "46-65", "65+"}

// ValidAgeRange reports whether label is one of the configured brackets.
func ValidAgeRange(label string) bool {
	for _, r := range AgeRanges {
		if r == label {
			return true
		}
	}
	return false
}

// TherapyPreference selects the focus of the advice in context-enriched
// prompts.
type TherapyPreference string

const (
	TherapyAyurvedic TherapyPreference = "ayurvedic"
	TherapyModern    TherapyPreference = "modern"
)

func (t TherapyPreference) Valid() bool {
	return t == TherapyAyurvedic || t == TherapyModern
}

// Language is the output language requested from the model.
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageKannada Language = "Kannada"
	LanguageHindi   Language = "Hindi"
	LanguageTelugu  Language = "Telugu"
)

// Languages lists the supported output languages in selector order.
var Languages = []Language{LanguageEnglish, LanguageKannada, LanguageHindi, LanguageTelugu}

func (l Language) Valid() bool {
	for _, sup := range Languages {
		if l == sup {
			return true
		}
	}
	return false
}

// Weight bounds accepted by the context form, in kilograms.
const (
	MinWeightKg = 1
	MaxWeightKg = 300
)

// PatientContext is the structured intake collected before a context-enriched
// model call.  It is fully overwritten on each form submission, never merged.
type PatientContext struct {
	Gender            Gender            `json:"gender"`
	AgeRange          string            `json:"age_range"`
	WeightKg          int               `json:"weight_kg"`
	TherapyPreference TherapyPreference `json:"therapy_preference"`
}

// IsZero reports whether no context has been collected yet.
func (c PatientContext) IsZero() bool {
	return c == PatientContext{}
}

// SessionState holds everything a single conversation session owns.  The
// AwaitingContext and ShowMedicineForm flags are mutually exclusive modal
// markers; free-text input is only accepted while both are false.
type SessionState struct {
	AwaitingContext  bool           `json:"awaiting_context"`
	ShowMedicineForm bool           `json:"show_medicine_form"`
	Language         Language       `json:"language"`
	Context          PatientContext `json:"context"`
	History          []ChatMessage  `json:"history"`
}

// ImageRequest is derived from an image-aid tag found in a single assistant
// response.  It is ephemeral and never persisted.
type ImageRequest struct {
	SubjectPhrase string `json:"subject_phrase"`
}

// --- HTTP wire types ---

// CreateSessionRequest starts a new conversation session.  Both fields are
// optional; omitted values fall back to the server configuration.
type CreateSessionRequest struct {
	Language          Language          `json:"language,omitempty"`
	TherapyPreference TherapyPreference `json:"therapy_preference,omitempty"`
}

type CreateSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
}

// SessionSnapshot is the full client-facing view of a session.
type SessionSnapshot struct {
	SessionID uuid.UUID `json:"session_id"`
	SessionState
}

// SubmitRequest carries a free-text (or voice-transcribed) user message.
type SubmitRequest struct {
	Content string `json:"content"`
}

// ContextFormRequest is the context-form submission.
type ContextFormRequest struct {
	Gender            Gender            `json:"gender"`
	AgeRange          string            `json:"age_range"`
	WeightKg          int               `json:"weight_kg"`
	TherapyPreference TherapyPreference `json:"therapy_preference"`
}

// MedicineFormRequest is the medicine-lookup form submission.
type MedicineFormRequest struct {
	Name string `json:"name"`
}

type LanguageRequest struct {
	Language Language `json:"language"`
}

// ImageAid pairs an extracted image request with the diagram URL the client
// can render.  URL is empty for legacy numeric attachment tags.
type ImageAid struct {
	SubjectPhrase string `json:"subject_phrase"`
	URL           string `json:"url,omitempty"`
}

// TurnResponse is returned after every user action that may advance the
// conversation.
type TurnResponse struct {
	Reply            string        `json:"reply"`
	DisplayText      string        `json:"display_text"`
	ImageAids        []ImageAid    `json:"image_aids,omitempty"`
	AwaitingContext  bool          `json:"awaiting_context"`
	ShowMedicineForm bool          `json:"show_medicine_form"`
	History          []ChatMessage `json:"history"`
}
