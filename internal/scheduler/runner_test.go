package scheduler

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLocker struct {
	held     atomic.Bool
	releases atomic.Int32
}

func (l *fakeLocker) TryAcquire(context.Context) (func(context.Context) error, error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, errors.New("held")
	}
	return func(context.Context) error {
		l.releases.Add(1)
		l.held.Store(false)
		return nil
	}, nil
}

func TestRunner_RunOnceSkipsOverlappingTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	job := func(ctx context.Context) error {
		calls.Add(1)
		close(entered)
		<-release
		return nil
	}
	r := New(Config{Name: "warehouse", Interval: time.Hour}, job, nil, nil)

	done := make(chan bool)
	go func() { done <- r.RunOnce(context.Background()) }()
	<-entered

	assert.False(t, r.RunOnce(context.Background()), "second tick must be skipped")
	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunner_DistributedLock(t *testing.T) {
	lock := &fakeLocker{}
	var calls atomic.Int32
	r := New(Config{Name: "refresh", Interval: time.Hour}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, lock, nil)

	assert.True(t, r.RunOnce(context.Background()))
	assert.Equal(t, int32(1), lock.releases.Load())

	lock.held.Store(true) // another instance
	assert.False(t, r.RunOnce(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunner_JobErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := New(Config{Name: "warehouse", Interval: time.Hour}, func(context.Context) error {
		return errors.New("publish failed")
	}, nil, zap.New(core))

	assert.True(t, r.RunOnce(context.Background()))
	require.Equal(t, 1, logs.FilterMessage("sweep failed").Len())
}

func TestRunner_StartStop(t *testing.T) {
	var calls atomic.Int32
	r := New(Config{Name: "refresh", Interval: 5 * time.Millisecond, RunOnStart: true}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil, nil)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()), "second start is a no-op")
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))

	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "no ticks after Stop")
}

func TestRunner_RejectsZeroInterval(t *testing.T) {
	r := New(Config{Name: "x"}, func(context.Context) error { return nil }, nil, nil)
	assert.Error(t, r.Start(context.Background()))
}
