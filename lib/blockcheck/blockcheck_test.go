package blockcheck

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// pad grows body past min length with inert filler so length alone never
// triggers TooShort
func pad(body string) []byte {
	filler := strings.Repeat("<p>lorem ipsum dolor sit amet</p>\n", 40)
	return []byte(body + filler)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		min     int
		want    Result
	}{
		{
			name:    "clean page",
			payload: pad("<html><body><h1>Widget</h1><span>$19.99</span></body></html>"),
			want:    Result{Verdict: VerdictOk},
		},
		{
			name:    "too short",
			payload: []byte("<html></html>"),
			want:    Result{Verdict: VerdictTooShort},
		},
		{
			name:    "empty",
			payload: nil,
			want:    Result{Verdict: VerdictTooShort},
		},
		{
			name:    "captcha marker",
			payload: pad("<div>Please solve this CAPTCHA to continue</div>"),
			want:    Result{Verdict: VerdictChallenge, MatchedPattern: "captcha"},
		},
		{
			name:    "cloudflare interstitial",
			payload: pad("<title>Just a moment...</title>"),
			want:    Result{Verdict: VerdictChallenge, MatchedPattern: "just a moment"},
		},
		{
			name:    "mixed case marker",
			payload: pad("<p>Unusual Traffic from your network</p>"),
			want:    Result{Verdict: VerdictChallenge, MatchedPattern: "unusual traffic"},
		},
		{
			name:    "short challenge is judged by length first",
			payload: []byte("captcha"),
			want:    Result{Verdict: VerdictTooShort},
		},
		{
			name:    "custom threshold",
			payload: []byte("<html><body>tiny but valid</body></html>"),
			min:     10,
			want:    Result{Verdict: VerdictOk},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Classify(c.payload, c.min))
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	payload := pad("<div>access denied</div>")
	before := bytes.Clone(payload)

	first := Classify(payload, 0)
	second := Classify(payload, 0)

	require.Equal(t, first, second)
	require.Equal(t, before, payload)
}

func TestVerdictString(t *testing.T) {
	require.Equal(t, "ok", VerdictOk.String())
	require.Equal(t, "too-short", VerdictTooShort.String())
	require.Equal(t, "challenge-detected", VerdictChallenge.String())
}
