// Package normalize produces a CleanedMessage from a RawMessage:
// signature, quoted-reply, and disclaimer stripping. Spec §1 lists the
// specific regex libraries for this stripping as an out-of-scope
// external collaborator; this package implements the minimal in-core
// heuristics the pipeline needs to progress a message to NORMALIZED,
// not a general-purpose signature-detection library.
package normalize

import (
	"regexp"
	"strings"

	"github.com/limmutable/collabiq/internal/types"
)

var (
	quoteLine      = regexp.MustCompile(`(?m)^>.*$`)
	onWroteHeader  = regexp.MustCompile(`(?is)^On .+ wrote:\s*$`)
	signatureSplit = regexp.MustCompile(`(?m)^--\s*$`)
	disclaimerRe   = regexp.MustCompile(`(?is)this (e-?mail|message) (and any attachments?)?.*confidential`)
)

// Clean normalizes raw into a CleanedMessage.
func Clean(raw types.RawMessage) types.CleanedMessage {
	body := raw.Body
	removed := types.RemovedParts{}

	if idx := signatureSplit.FindStringIndex(body); idx != nil {
		body = body[:idx[0]]
		removed.Signature = true
	}

	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if quoteLine.MatchString(line) || onWroteHeader.MatchString(line) {
			removed.Quotes = true
			continue
		}
		kept = append(kept, line)
	}
	body = strings.Join(kept, "\n")

	if disclaimerRe.MatchString(body) {
		body = disclaimerRe.ReplaceAllString(body, "")
		removed.Disclaimer = true
	}

	body = strings.TrimSpace(body)

	return types.CleanedMessage{
		RawID:   raw.ID,
		Body:    body,
		Removed: removed,
		IsEmpty: body == "",
	}
}
