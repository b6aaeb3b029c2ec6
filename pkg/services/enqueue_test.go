package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/pkg/models"
)

func TestCountSentences(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"Build a note app.", 1},
		{"Build a note app", 1},
		{"First. Second. Third.", 3},
		{"Really? Yes! Done.", 3},
		{"Trailing punctuation only...", 1},
		{"One. Two without terminator", 2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, countSentences(tc.text), "text: %q", tc.text)
	}
}

func TestValidateIdeaBoundaries(t *testing.T) {
	one := "Build a note app."
	ten := strings.Repeat("A sentence. ", 10)
	eleven := strings.Repeat("A sentence. ", 11)

	assert.NoError(t, validateIdea(one))
	assert.NoError(t, validateIdea(strings.TrimSpace(ten)))

	err := validateIdea(strings.TrimSpace(eleven))
	require.Error(t, err)
	assert.Equal(t, CodeValidationError, AsError(err).Code)

	assert.Error(t, validateIdea(""))
}

func TestValidateIdeaLengthLimit(t *testing.T) {
	atLimit := strings.Repeat("a", MaxIdeaChars-1) + "."
	assert.NoError(t, validateIdea(atLimit))

	overLimit := strings.Repeat("a", MaxIdeaChars+1)
	err := validateIdea(overLimit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestValidateIdeaCountsCharactersNotBytes(t *testing.T) {
	// Two bytes per rune; byte length is nearly double the character limit.
	multibyte := strings.Repeat("é", MaxIdeaChars-1) + "."
	require.Greater(t, len(multibyte), MaxIdeaChars)
	assert.NoError(t, validateIdea(multibyte))

	assert.Error(t, validateIdea(strings.Repeat("é", MaxIdeaChars+1)))
}

func TestInitialRequestBindsStructuredExtraContext(t *testing.T) {
	body := []byte(`{
		"idea": "A valid idea. It has two sentences.",
		"extra_context": {"audience": "devs", "constraints": ["on-prem"]}
	}`)

	var req InitialRequest
	require.NoError(t, json.Unmarshal(body, &req))

	extra, err := normalizeExtraContext(req.ExtraContext)
	require.NoError(t, err)
	assert.JSONEq(t, `{"audience": "devs", "constraints": ["on-prem"]}`, extra)
	assert.NotContains(t, extra, "\n", "object form is stored compact")
}

func TestNormalizeExtraContext(t *testing.T) {
	extra, err := normalizeExtraContext(json.RawMessage(`"plain text context"`))
	require.NoError(t, err)
	assert.Equal(t, "plain text context", extra)

	extra, err = normalizeExtraContext(nil)
	require.NoError(t, err)
	assert.Empty(t, extra)

	extra, err = normalizeExtraContext(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, extra)

	_, err = normalizeExtraContext(json.RawMessage(`[1, 2]`))
	require.Error(t, err)
	assert.Equal(t, CodeValidationError, AsError(err).Code)

	_, err = normalizeExtraContext(json.RawMessage(`42`))
	assert.Error(t, err)

	_, err = normalizeExtraContext(json.RawMessage(`{"broken":`))
	assert.Error(t, err)
}

func TestValidateExtraContextCountsCharactersNotBytes(t *testing.T) {
	assert.NoError(t, validateExtraContext(strings.Repeat("é", MaxExtraContextChars)))

	err := validateExtraContext(strings.Repeat("é", MaxExtraContextChars+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestParsePriority(t *testing.T) {
	p, err := parsePriority("")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, p)

	p, err = parsePriority("high")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, p)

	_, err = parsePriority("urgent")
	assert.Error(t, err)
}

func TestServiceErrorHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeValidationError, 422},
		{CodeParentNotFound, 404},
		{CodeParentNotCompleted, 409},
		{CodeMissingEditInputs, 400},
		{CodeUnsupportedVersion, 400},
		{CodeIdenticalProposals, 400},
		{CodeLLMRateLimit, 503},
		{CodeLLMTimeout, 503},
		{CodeLLMConnection, 503},
		{CodeLLMAuthError, 500},
		{CodeSchemaValidationError, 500},
		{CodeInternalError, 500},
	}
	for _, tc := range cases {
		e := &Error{Code: tc.code, Message: "x"}
		assert.Equal(t, tc.want, e.HTTPStatus(), "code %s", tc.code)
	}
}

func TestAsErrorWrapsUnknown(t *testing.T) {
	err := AsError(assert.AnError)
	assert.Equal(t, CodeInternalError, err.Code)

	svc := &Error{Code: CodeParentNotFound, Message: "gone"}
	assert.Same(t, svc, AsError(svc))
}
