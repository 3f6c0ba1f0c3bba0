package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickerFires(t *testing.T) {
	require := require.New(t)

	ticker := New(5 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(200 * time.Millisecond):
		require.Fail("ticker did not fire")
	}
}

func TestTickerStopEndsGoroutine(t *testing.T) {
	ticker := New(5 * time.Millisecond)
	<-ticker.C()
	ticker.Stop()
	time.Sleep(20 * time.Millisecond)
}
