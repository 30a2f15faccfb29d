package response

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnown(t *testing.T) {
	errMissing := errors.New("plan not found")
	errTaken := errors.New("plan name already exists")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bare sentinel", errMissing, errMissing},
		{"wrapped once", fmt.Errorf("subscription.Get: %w", errTaken), errTaken},
		{"wrapped twice", fmt.Errorf("a: %w", fmt.Errorf("b: %w", errMissing)), errMissing},
		{"unknown stays as is", assert.AnError, assert.AnError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Known(tt.err, errMissing, errTaken)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Error(), got.Error())
		})
	}
}
