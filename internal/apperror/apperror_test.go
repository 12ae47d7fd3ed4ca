package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrMessageNotFound, http.StatusNotFound},
		{"permission", ErrNotChannelOwner, http.StatusForbidden},
		{"empty content", ErrEmptyContent, http.StatusBadRequest},
		{"empty input", ErrEmptyEmoji, http.StatusBadRequest},
		{"duplicate", ErrDuplicateChannelName, http.StatusBadRequest},
		{"protected", ErrDefaultChannelProtected, http.StatusBadRequest},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"store", Store(errors.New("conn reset")), http.StatusInternalServerError},
		{"untyped", errors.New("plain"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", ErrChannelNotFound), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMessageHidesUntypedErrors(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("pq: password authentication failed")))
	assert.Equal(t, "internal server error", Message(Store(errors.New("deadlock"))))
	assert.Equal(t, "channel not found", Message(ErrChannelNotFound))
}

func TestIsMatchesSentinelCopies(t *testing.T) {
	err := Wrap(CodeNotFound, "message not found", errors.New("no rows"))
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.NotErrorIs(t, err, ErrChannelNotFound)

	cause := errors.New("disk full")
	assert.ErrorIs(t, Store(cause), cause)
	assert.Equal(t, CodeStore, CodeOf(Store(cause)))
}
