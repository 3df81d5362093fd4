package core

// prompts.go holds the fixed instruction strings and the pure prompt-builder
// functions.  Keeping them in one file makes the wording easy to tweak
// without touching the dialogue flow.  The builders are deterministic given
// their arguments; nothing here reads session state.

import (
	"fmt"
	"strings"

	"healthcompanion/pkg"
)

const (
	// SystemInstruction is installed once per conversation handle.  It pins
	// the response structure and the canonical image-aid tag form.
	SystemInstruction = `You are a helpful, strictly non-diagnostic healthcare companion.

Output rules:
1. Be concise. Do not write long paragraphs.
2. Structure every answer as:
   - Disclaimer: "General info only. Consult a doctor."
   - Summary: a 1-2 sentence explanation.
   - Visual context: if the question involves a body part, organ or physical symptom, emit a tag of the form [Image of <subject>] immediately after the summary.
   - Solutions & tips: a bulleted list of 3-5 actionable general tips or home remedies.
3. Answer in the requested language.`

	// Greeting pre-populates the history of every fresh session.
	Greeting = "Welcome! I am your health companion. Ask me about your symptoms."

	// ContextRequiredMessage is appended as the assistant turn when the
	// classifier demands the context form.  No model call is made for it.
	ContextRequiredMessage = "Context required: please fill in the form so I can give you a specific answer."

	// MedicineRequestMarker prefixes the display entry logged for medicine
	// lookups.  Symptom recovery skips history entries carrying it.
	MedicineRequestMarker = "Requesting info"

	// FallbackSymptom is used when no suitable user entry exists in history.
	FallbackSymptom = "General health enquiry."
)

// BuildDirectPrompt wraps a free-text question that needed no context form.
func BuildDirectPrompt(rawInput string, lang pkg.Language) string {
	return fmt.Sprintf(
		"%s\n\nConstraint: Respond in %s. Keep it concise. Structure as: 1. Short summary. 2. An [Image of <subject>] tag if an anatomical illustration would help. 3. Bullet points for solutions.",
		rawInput, lang,
	)
}

// BuildContextPrompt embeds the recovered symptom and the collected patient
// context.  It asks for a deliberately short answer: a 1-2 sentence
// explanation followed by 4-5 bullets, with the image tag right after the
// summary when useful.
func BuildContextPrompt(symptom string, ctx pkg.PatientContext, lang pkg.Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User complaint: %s\n", symptom)
	fmt.Fprintf(&b, "Context: %s, Age %s, Weight %dkg\n", ctx.Gender.Label(), ctx.AgeRange, ctx.WeightKg)
	fmt.Fprintf(&b, "Preferred approach: %s\n\n", ctx.TherapyPreference)
	fmt.Fprintf(&b, "Task: Provide a VERY SHORT, structured response in %s.\n", lang)
	b.WriteString("1. Explain the problem in 1-2 sentences. If it involves a body part, add an [Image of <subject>] tag at the end of the summary.\n")
	fmt.Fprintf(&b, "2. Provide 4-5 bullet points of clear solutions or remedies based on '%s' guidance.\n", ctx.TherapyPreference)
	b.WriteString("Do not lecture. Go straight to the point.")
	return b.String()
}

// BuildMedicinePrompt wraps a medicine name for a general-usage lookup.
func BuildMedicinePrompt(name string, lang pkg.Language) string {
	return fmt.Sprintf(
		"Please explain the general usage, purpose, and common symptoms treated by the medicine: '%s'. Provide a clear note on when it is typically used.\n\nOutput in %s. Keep it brief: usage + key symptoms treated.",
		name, lang,
	)
}

// ContextDisplayText is the one-line history entry logged in place of the
// full context-enriched prompt.
func ContextDisplayText(symptom string, ctx pkg.PatientContext) string {
	return fmt.Sprintf("Regarding '%s'. Context: %s, Age %s, %dkg. Focus: %s.",
		symptom, ctx.Gender.Label(), ctx.AgeRange, ctx.WeightKg, ctx.TherapyPreference)
}

// MedicineDisplayText is the history entry logged in place of the full
// medicine-lookup prompt.
func MedicineDisplayText(name string) string {
	return MedicineRequestMarker + " for medicine: " + name
}

// OriginalSymptom recovers the complaint that triggered the context form: the
// most recent user entry whose content does not start with the medicine
// request marker.  Context summaries logged by previous form submissions
// start with "Regarding" and are also skipped so repeated form rounds keep
// pointing at a real complaint.
func OriginalSymptom(history []pkg.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != pkg.RoleUser {
			continue
		}
		if strings.HasPrefix(m.Content, MedicineRequestMarker) {
			continue
		}
		if strings.HasPrefix(m.Content, "Regarding '") {
			continue
		}
		return m.Content
	}
	return FallbackSymptom
}
