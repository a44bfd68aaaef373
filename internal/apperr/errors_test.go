package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{Forbidden("not owner"), http.StatusForbidden},
		{NotFound("missing"), http.StatusNotFound},
		{RateLimited("slow down"), http.StatusTooManyRequests},
		{Storage(context.DeadlineExceeded, "db"), http.StatusInternalServerError},
		{Upstream(errors.New("boom"), "s3"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestErrorsIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("toggle: %w", NotFound("story not found or expired"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestStorageKeepsCause(t *testing.T) {
	err := Storage(context.DeadlineExceeded, "insert story")

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Nil(t, Storage(nil, "noop"))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(Storage(errors.New("conn refused 10.0.0.3"), "find")))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("raw")))
	assert.Equal(t, "story not found", PublicMessage(NotFound("story not found")))
}

func TestFieldsOf(t *testing.T) {
	err := Field("latitude", "must be between -90 and 90")

	fields := FieldsOf(err)
	if assert.Len(t, fields, 1) {
		assert.Equal(t, "latitude", fields[0].Field)
	}
	assert.Nil(t, FieldsOf(errors.New("x")))
}
