package app

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedInitializesExactlyOnce(t *testing.T) {
	var bootstraps atomic.Int32
	want := &App{}
	sharedBootstrap = func() (*App, error) {
		bootstraps.Add(1)
		return want, nil
	}
	t.Cleanup(func() { sharedBootstrap = bootstrap })

	const callers = 16
	apps := make([]*App, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			apps[i], errs[i] = Shared()
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, bootstraps.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, want, apps[i])
	}
}
