package reachability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReachable_EmptyIPIsNeverReachable(t *testing.T) {
	orig := CheckFunc
	defer func() { CheckFunc = orig }()
	CheckFunc = func(ip string) error { t.Fatal("CheckFunc must not be called for an empty ip"); return nil }

	assert.False(t, Reachable(""), "expected empty ip to be unreachable without probing")
}

func TestReachable_ReflectsCheckFuncResult(t *testing.T) {
	orig := CheckFunc
	defer func() { CheckFunc = orig }()

	CheckFunc = func(ip string) error { return nil }
	assert.True(t, Reachable("10.0.0.5"), "expected reachable when CheckFunc succeeds")

	CheckFunc = func(ip string) error { return errors.New("no reply") }
	assert.False(t, Reachable("10.0.0.5"), "expected unreachable when CheckFunc fails")
}
