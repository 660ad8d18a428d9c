package snapshot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frigate-speciesid/speciesid/internal/logger"
)

func TestGetLogger(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	got := make([]logger.Logger, 8)
	for i := range got {
		wg.Go(func() { got[i] = GetLogger() })
	}
	wg.Wait()

	for _, l := range got {
		assert.NotNil(t, l)
		assert.Equal(t, got[0], l, "one module logger per package")
	}
}
