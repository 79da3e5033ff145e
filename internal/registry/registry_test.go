package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(any, Metadata) error { return nil }

// collect dispatches t and returns the filters of invoked entries in order.
func collect(t *testing.T, r *Registry, topic string) []string {
	t.Helper()
	var got []string
	n, errs := r.Dispatch(topic, func(e *Entry) error {
		got = append(got, e.Filter())
		return nil
	})
	require.Empty(t, errs)
	require.Equal(t, n, len(got))
	return got
}

func TestRegister_FirstListenerSignalsNewFilter(t *testing.T) {
	r := New()

	_, isNew := r.Register("foo/bar", noop, nil, 1)
	assert.True(t, isNew)

	_, isNew = r.Register("foo/bar", noop, nil, 2)
	assert.False(t, isNew)

	assert.Equal(t, 2, r.ListenerCount("foo/bar"))
	assert.Equal(t, 1, r.Len())

	infos := r.Filters()
	require.Len(t, infos, 1)
	assert.Equal(t, byte(1), infos[0].QoS, "requested QoS comes from the first subscriber")
}

func TestDispatch_SpecificityOrder(t *testing.T) {
	r := New()
	r.Register("foo/#", noop, nil, 0)
	r.Register("foo/+/bar", noop, nil, 0)
	r.Register("foo/quux/bar", noop, nil, 0)

	got := collect(t, r, "foo/quux/bar")
	assert.Equal(t, []string{"foo/quux/bar", "foo/+/bar", "foo/#"}, got)
}

func TestDispatch_SpecificityOrderIndependentOfRegistration(t *testing.T) {
	r := New()
	r.Register("foo/quux/bar", noop, nil, 0)
	r.Register("foo/+/bar", noop, nil, 0)
	r.Register("foo/#", noop, nil, 0)

	for i := 0; i < 20; i++ {
		assert.Equal(t, []string{"foo/quux/bar", "foo/+/bar", "foo/#"}, collect(t, r, "foo/quux/bar"))
	}
}

func TestDispatch_TiesInRegistrationOrder(t *testing.T) {
	r := New()
	first, _ := r.Register("a/+", noop, nil, 0)
	second, _ := r.Register("+/b", noop, nil, 0)
	third, _ := r.Register("a/+", noop, nil, 0)

	var ids []uint64
	r.Dispatch("a/b", func(e *Entry) error {
		ids = append(ids, e.ID())
		return nil
	})
	assert.Equal(t, []uint64{first.ID(), second.ID(), third.ID()}, ids)
}

func TestDispatch_NoMatch(t *testing.T) {
	r := New()
	r.Register("foo/bar", noop, nil, 0)

	n, errs := r.Dispatch("foo/baz", func(*Entry) error {
		t.Fatal("unexpected invocation")
		return nil
	})
	assert.Zero(t, n)
	assert.Empty(t, errs)
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	r := New()
	r.Register("x", noop, nil, 0)
	r.Register("x", noop, nil, 0)
	r.Register("x", noop, nil, 0)

	calls := 0
	n, errs := r.Dispatch("x", func(e *Entry) error {
		calls++
		switch calls {
		case 1:
			panic("boom")
		case 2:
			return errors.New("failed")
		}
		return nil
	})

	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls, "every listener runs despite earlier failures")
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrListenerPanic)

	var lerr *ListenerError
	require.ErrorAs(t, errs[1], &lerr)
	assert.Equal(t, "x", lerr.Filter)
}

func TestUnregister_ReferenceCounting(t *testing.T) {
	r := New()
	a, _ := r.Register("foo", noop, nil, 0)
	b, _ := r.Register("foo", noop, nil, 0)

	removed, empty := r.Unregister("foo", a)
	assert.Equal(t, 1, removed)
	assert.False(t, empty)
	assert.True(t, r.Has("foo"))

	removed, empty = r.Unregister("foo", b)
	assert.Equal(t, 1, removed)
	assert.True(t, empty)
	assert.False(t, r.Has("foo"))

	assert.Empty(t, collect(t, r, "foo"))
}

func TestUnregister_AllWhenEntryNil(t *testing.T) {
	r := New()
	r.Register("foo/+", noop, nil, 0)
	r.Register("foo/+", noop, nil, 0)

	removed, empty := r.Unregister("foo/+", nil)
	assert.Equal(t, 2, removed)
	assert.True(t, empty)
	assert.Zero(t, r.Len())
}

func TestUnregister_ExactFilterOnly(t *testing.T) {
	r := New()
	r.Register("foo/bar", noop, nil, 0)

	removed, empty := r.Unregister("foo/+", nil)
	assert.Zero(t, removed)
	assert.False(t, empty)
	assert.True(t, r.Has("foo/bar"))
}

func TestUnregister_ForeignEntryIsIgnored(t *testing.T) {
	r := New()
	r.Register("a", noop, nil, 0)
	other, _ := r.Register("b", noop, nil, 0)

	removed, empty := r.Unregister("a", other)
	assert.Zero(t, removed)
	assert.False(t, empty)
	assert.Equal(t, 1, r.ListenerCount("a"))
}

func TestUnregister_RemovesOnlyOnce(t *testing.T) {
	r := New()
	e, _ := r.Register("a", noop, nil, 0)

	_, empty := r.Unregister("a", e)
	assert.True(t, empty)

	_, empty = r.Unregister("a", e)
	assert.False(t, empty, "a second removal must not signal another unsubscribe")
}

func TestGrant(t *testing.T) {
	r := New()
	_, ok := r.Grant("a")
	assert.False(t, ok)

	r.Register("a", noop, nil, 2)
	_, ok = r.Grant("a")
	assert.False(t, ok)

	r.SetGrant("a", 1)
	qos, ok := r.Grant("a")
	assert.True(t, ok)
	assert.Equal(t, byte(1), qos)

	r.SetGrant("missing", 1)
	assert.False(t, r.Has("missing"))
}

func TestReinstate_AfterRemovingLastListener(t *testing.T) {
	r := New()
	a, _ := r.Register("foo/+", noop, nil, 2)
	b, _ := r.Register("foo/+", noop, nil, 0)
	r.SetGrant("foo/+", 1)

	snap, ok := r.Snapshot("foo/+")
	require.True(t, ok)
	assert.Equal(t, "foo/+", snap.Filter())

	_, empty := r.Unregister("foo/+", nil)
	require.True(t, empty)

	r.Reinstate(snap)

	assert.Equal(t, 2, r.ListenerCount("foo/+"))
	qos, ok := r.Grant("foo/+")
	assert.True(t, ok)
	assert.Equal(t, byte(1), qos)

	infos := r.Filters()
	require.Len(t, infos, 1)
	assert.Equal(t, byte(2), infos[0].QoS)

	var ids []uint64
	r.Dispatch("foo/x", func(e *Entry) error {
		ids = append(ids, e.ID())
		return nil
	})
	assert.Equal(t, []uint64{a.ID(), b.ID()}, ids)

	// The reinstated entry is removable again.
	removed, empty := r.Unregister("foo/+", a)
	assert.Equal(t, 1, removed)
	assert.False(t, empty)
}

func TestReinstate_SkipsEntriesStillPresent(t *testing.T) {
	r := New()
	a, _ := r.Register("foo", noop, nil, 0)
	b, _ := r.Register("foo", noop, nil, 0)

	snap, _ := r.Snapshot("foo")
	r.Unregister("foo", a)
	r.Reinstate(snap)

	assert.Equal(t, 2, r.ListenerCount("foo"))
	removed, _ := r.Unregister("foo", b)
	assert.Equal(t, 1, removed)
}

func TestSnapshot_UnknownFilter(t *testing.T) {
	_, ok := New().Snapshot("missing")
	assert.False(t, ok)
}

func TestEntry_AcquireIsExclusive(t *testing.T) {
	r := New()
	e, _ := r.Register("foo", noop, nil, 0)

	require.True(t, e.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, e.Acquire(ctx), "a running invocation must block the next one")

	e.Release()
	assert.True(t, e.Acquire(context.Background()))
	e.Release()
}

func TestRegister_ConcurrentFirstSubscribers(t *testing.T) {
	r := New()

	const workers = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, isNew := r.Register("shared", noop, nil, 0); isNew {
				mu.Lock()
				owners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, owners, "exactly one registration observes the zero-to-one transition")
	assert.Equal(t, workers, r.ListenerCount("shared"))
}

func TestDispatch_ConcurrentWithMutation(t *testing.T) {
	r := New()
	r.Register("a/#", noop, nil, 0)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Dispatch("a/b", func(*Entry) error { return nil })
			}
		}
	}()

	for i := 0; i < 200; i++ {
		e, _ := r.Register("a/+", noop, nil, 0)
		r.Unregister("a/+", e)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}

func TestDispatch_ListenerMayMutateRegistry(t *testing.T) {
	r := New()
	r.Register("a", noop, nil, 0)

	_, errs := r.Dispatch("a", func(e *Entry) error {
		r.Unregister(e.Filter(), e)
		r.Register("b", noop, nil, 0)
		return nil
	})
	assert.Empty(t, errs)
	assert.False(t, r.Has("a"))
	assert.True(t, r.Has("b"))
}

func TestClear(t *testing.T) {
	r := New()
	r.Register("a", noop, nil, 0)
	r.Register("b", noop, nil, 0)
	r.Clear()
	assert.Zero(t, r.Len())
}
