package core

import (
	"net/url"
	"regexp"
	"strings"

	"healthcompanion/pkg"
)

// imageTag matches both tag forms the model may emit: the canonical
// [Image of <phrase>] and the historical [attachment_N] variant, the latter
// with an optional markdown-style (attachment) suffix.  Matching is
// case-insensitive, non-greedy, and must not span newlines.
var imageTag = regexp.MustCompile(`(?i)(?:\[image of[ \t]+([^\[\]\n]+?)\]|\[attachment_(\d+)\](?:\(attachment\))?)`)

// ExtractVisualAid splits a raw model reply into display text and the ordered
// image requests embedded in it.  All tags are removed from the text; the
// remainder is trimmed.  Applying the function to its own display output is a
// no-op.
func ExtractVisualAid(response string) (string, []pkg.ImageRequest) {
	var reqs []pkg.ImageRequest
	display := imageTag.ReplaceAllStringFunc(response, func(tag string) string {
		sub := imageTag.FindStringSubmatch(tag)
		phrase := sub[1]
		if phrase == "" {
			phrase = sub[2]
		}
		reqs = append(reqs, pkg.ImageRequest{SubjectPhrase: strings.TrimSpace(phrase)})
		return ""
	})
	return strings.TrimSpace(display), reqs
}

// ImageURL builds the illustrative-diagram URL for an extracted subject
// phrase.  Legacy numeric attachment captures name no subject, so they get no
// URL.
func ImageURL(subjectPhrase string) string {
	if subjectPhrase == "" || isDigits(subjectPhrase) {
		return ""
	}
	prompt := "medical anatomy diagram of " + subjectPhrase + " clean white background high quality"
	return "https://image.pollinations.ai/prompt/" + url.QueryEscape(prompt) + "?width=600&height=400&nologo=true"
}

// ImageAids resolves extracted requests into client-renderable aids.
func ImageAids(reqs []pkg.ImageRequest) []pkg.ImageAid {
	if len(reqs) == 0 {
		return nil
	}
	aids := make([]pkg.ImageAid, 0, len(reqs))
	for _, r := range reqs {
		aids = append(aids, pkg.ImageAid{SubjectPhrase: r.SubjectPhrase, URL: ImageURL(r.SubjectPhrase)})
	}
	return aids
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
