package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindCloneFailure, "should stay nil"))
}

func TestGetKindRoundTrip(t *testing.T) {
	type scenario struct {
		name string
		err  error
		want Kind
	}

	scenarios := []scenario{
		{"direct", New(KindNameCollision, "boom"), KindNameCollision},
		{"wrapped", Wrap(errors.New("root cause"), KindSlirpSocketCouldntBeFound, "retry budget exhausted"), KindSlirpSocketCouldntBeFound},
		{"foreign error", errors.New("plain"), KindUnknown},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			assert.Equal(t, s.want, GetKind(s.err))
		})
	}
}

func TestErrorMessageIncludesUnderlying(t *testing.T) {
	root := errors.New("eexist")
	wrapped := Wrapf(root, KindAlpineManifestMissing, "no %s flavor", "minirootfs")

	assert.Contains(t, wrapped.Error(), "eexist")
	assert.Contains(t, wrapped.Error(), "minirootfs")
	assert.True(t, Is(wrapped, KindAlpineManifestMissing))
}
