package probes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pingwatch/internal/model"
)

func TestRunnerOpenSkipsPerTargetErrors(t *testing.T) {
	made := map[string]*scriptedProber{}
	factory := func(target model.Target) (Prober, error) {
		if target.Name == "bad" {
			return nil, fmt.Errorf("%w: boom", ErrSend)
		}
		p := newScriptedProber(target.Name)
		made[target.Name] = p
		return p, nil
	}

	r := NewRunner(factory, SessionConfig{Count: 1, Timeout: time.Second}, nil)
	probers, skipped, err := r.Open([]model.Target{{Name: "a"}, {Name: "bad"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Len(t, probers, 2)
	require.Len(t, skipped, 1)
	assert.Equal(t, "bad", skipped[0].Target.Name)
	assert.ErrorIs(t, skipped[0].Err, ErrSend)
}

func TestRunnerOpenPermissionDeniedAborts(t *testing.T) {
	var opened []*scriptedProber
	factory := func(target model.Target) (Prober, error) {
		if target.Name == "denied" {
			return nil, wrap(ErrPermissionDenied, errors.New("operation not permitted"))
		}
		p := newScriptedProber(target.Name)
		opened = append(opened, p)
		return p, nil
	}

	r := NewRunner(factory, SessionConfig{Count: 1}, nil)
	probers, _, err := r.Open([]model.Target{{Name: "a"}, {Name: "denied"}, {Name: "b"}})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Nil(t, probers)
	require.Len(t, opened, 1)
	assert.True(t, opened[0].closed)
}

func TestRunnerRunFunnelsAllTargets(t *testing.T) {
	a := newScriptedProber("a", false)
	b := newScriptedProber("b")
	r := NewRunner(nil, SessionConfig{Count: 2, Timeout: time.Second, Retry: 1}, nil)

	out := make(chan model.Outcome, 16)
	go r.Run(context.Background(), []Prober{a, b}, out)

	counts := map[string]int{}
	for o := range out {
		counts[o.Target.Name]++
	}
	assert.Equal(t, 3, counts["a"])
	assert.Equal(t, 2, counts["b"])
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
