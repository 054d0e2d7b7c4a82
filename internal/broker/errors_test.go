package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassUnknown},
		{"rate_limited_429", errors.New("429 Too Many Requests"), ClassRateLimited},
		{"rate_limited_phrase", errors.New("rate limit exceeded"), ClassRateLimited},
		{"already_filled", errors.New("order already filled"), ClassAlreadyTerminal},
		{"already_filled_variant", errors.New("already filled"), ClassAlreadyTerminal},
		{"already_in_filled_state", errors.New("cannot replace order: already in filled state"), ClassAlreadyTerminal},
		{"cannot_cancel_filled", errors.New("cannot cancel filled order"), ClassAlreadyTerminal},
		{"alpaca_code_42210000", errors.New("42210000: order already in terminal state"), ClassAlreadyTerminal},
		{"position_missing", errors.New("position does not exist"), ClassAlreadyTerminal},
		{"timeout", errors.New("context deadline exceeded: timeout"), ClassTransient},
		{"connection_reset", errors.New("read: connection reset by peer"), ClassTransient},
		{"gateway_502", errors.New("502 Bad Gateway"), ClassTransient},
		{"unauthorized", errors.New("401 unauthorized"), ClassPermanent},
		{"forbidden", errors.New("403 forbidden"), ClassPermanent},
		{"unrecognized", errors.New("something unexpected happened"), ClassUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("503 service unavailable")))
	assert.True(t, IsRetryable(errors.New("rate limit")))
	assert.False(t, IsRetryable(errors.New("already filled")))
	assert.False(t, IsRetryable(errors.New("unauthorized")))
	assert.False(t, IsRetryable(nil))
}
