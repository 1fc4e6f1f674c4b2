package fault

import (
	"errors"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidation("message_text", "required"), http.StatusBadRequest},
		{"not found", NewNotFound("message", "m1"), http.StatusNotFound},
		{"upstream", NewUpstream("mail service", errors.New("timeout")), http.StatusBadGateway},
		{"parse", NewParse("reasoning service", "not json", errors.New("bad")), http.StatusInternalServerError},
		{"storage", NewStorage("insert message", errors.New("disk full")), http.StatusInternalServerError},
		{"unknown", errors.New("anything"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatus_WrappedChain(t *testing.T) {
	err := eris.Wrap(NewNotFound("project", "p1"), "reassign")
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestMessage_HidesUpstreamDetail(t *testing.T) {
	err := NewUpstream("billing service", errors.New("dial tcp 10.0.0.3: i/o timeout"))
	msg := Message(err)
	assert.Equal(t, "billing service unavailable", msg)
	assert.NotContains(t, msg, "10.0.0.3")
}

func TestMessage_HidesParseRaw(t *testing.T) {
	err := NewParse("reasoning service", `{"secret": "raw model output"}`, errors.New("missing fields"))
	msg := Message(err)
	assert.Equal(t, "reasoning service returned an unparseable response", msg)
	assert.NotContains(t, msg, "raw model output")
}

func TestMessage_Validation(t *testing.T) {
	assert.Equal(t, "message_text: required", Message(NewValidation("message_text", "required")))
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsValidation(NewValidation("f", "r")))
	assert.True(t, IsNotFound(NewNotFound("message", "m1")))
	assert.True(t, IsParse(NewParse("reasoning service", "", errors.New("x"))))
	assert.False(t, IsValidation(errors.New("plain")))
	assert.False(t, IsParse(NewUpstream("svc", errors.New("x"))))
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("inner")
	assert.ErrorIs(t, NewUpstream("svc", inner), inner)
	assert.ErrorIs(t, NewStorage("op", inner), inner)
	assert.ErrorIs(t, NewParse("svc", "", inner), inner)
}
