// Package blockcheck inspects fetched payloads for signs that the target
// returned an anti-bot challenge page instead of real content.
package blockcheck

import (
	"bytes"
)

type Verdict int

const (
	VerdictOk Verdict = iota
	VerdictTooShort
	VerdictChallenge
)

func (v Verdict) String() string {
	switch v {
	case VerdictOk:
		return "ok"
	case VerdictTooShort:
		return "too-short"
	case VerdictChallenge:
		return "challenge-detected"
	}
	return "unknown"
}

type Result struct {
	Verdict Verdict
	// the challenge marker that matched, empty unless VerdictChallenge
	MatchedPattern string
}

// DefaultMinLength is the payload size below which a response is judged too
// short to be a real page.
const DefaultMinLength = 800

// challenge pages from the common bot-protection vendors contain at least
// one of these, case-insensitively
var challengeMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("verify you are a human"),
	[]byte("are you a robot"),
	[]byte("automated access"),
	[]byte("unusual traffic"),
	[]byte("security challenge"),
	[]byte("access denied"),
	[]byte("attention required"),
	[]byte("just a moment"),
	[]byte("request blocked"),
}

// Classify judges a payload. It is a pure function: the same payload and
// threshold always produce the same result. This is a heuristic, not a
// guarantee. Sites sometimes return partial content alongside a challenge
// banner, so callers may still attempt extraction on VerdictChallenge.
func Classify(payload []byte, minValidLength int) Result {
	if minValidLength <= 0 {
		minValidLength = DefaultMinLength
	}
	if len(payload) < minValidLength {
		return Result{Verdict: VerdictTooShort}
	}

	lowered := bytes.ToLower(payload)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lowered, marker) {
			return Result{
				Verdict:        VerdictChallenge,
				MatchedPattern: string(marker),
			}
		}
	}

	return Result{Verdict: VerdictOk}
}
