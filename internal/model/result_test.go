package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultJSON(t *testing.T) {
	cases := []struct {
		name string
		in   Outcome
		want string
	}{
		{"ok", OK(int64(3)), `{"status":"ok","value":3}`},
		{"empty", Empty[float64](), `{"status":"empty"}`},
		{"failure", Failure[int64](errors.New("index not found")), `{"status":"backend_failure","error":"index not found"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := json.Marshal(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(out))
		})
	}
}

func TestResultStatus(t *testing.T) {
	assert.True(t, OK(1).IsOK())
	assert.True(t, Empty[int]().IsEmpty())
	r := Failure[int](errors.New("boom"))
	assert.True(t, r.IsFailure())
	assert.Equal(t, StatusBackendFailure, r.OutcomeStatus())
}
