package coordinator_test

import (
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports/mocks"
	"go.trai.ch/refresh/internal/engine/coordinator"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (r *recorder) Broadcast(n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) notifications() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func quietLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()
	return log
}

func newCoordinator(t *testing.T, rec *recorder, readyTimeout time.Duration) *coordinator.Coordinator {
	t.Helper()
	return coordinator.New(rec, quietLogger(t), coordinator.Options{
		FlushDelay:   20 * time.Millisecond,
		ReadyTimeout: readyTimeout,
	})
}

var page = domain.Notification{RefreshPage: true}

func TestRequest_CoalescesWithinWindow(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, 0)

		c.RequestStyles()
		time.Sleep(5 * time.Millisecond)
		c.RequestImages()
		c.RequestStyles()
		assert.Equal(t, domain.RefreshStyles|domain.RefreshImages, c.Pending())

		time.Sleep(25 * time.Millisecond)
		synctest.Wait()

		require.Equal(t, []domain.Notification{{RefreshStyles: true, RefreshImages: true}}, rec.notifications())
		assert.Zero(t, c.Pending())
	})
}

func TestRequest_WindowIsNotExtended(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, 0)

		c.RequestPage()
		time.Sleep(15 * time.Millisecond)
		c.RequestImages()
		time.Sleep(6 * time.Millisecond)
		synctest.Wait()

		require.Equal(t, []domain.Notification{{RefreshPage: true, RefreshImages: true}}, rec.notifications())
	})
}

func TestRequest_SeparateWindows(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, 0)

		c.RequestPage()
		time.Sleep(30 * time.Millisecond)
		synctest.Wait()
		c.RequestStyles()
		time.Sleep(30 * time.Millisecond)
		synctest.Wait()

		assert.Equal(t, []domain.Notification{page, {RefreshStyles: true}}, rec.notifications())
	})
}

func TestFlush(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, 0)

		c.RequestImages()
		c.Flush()
		assert.Equal(t, []domain.Notification{{RefreshImages: true}}, rec.notifications())

		// The cancelled timer must not send again.
		time.Sleep(50 * time.Millisecond)
		synctest.Wait()
		assert.Len(t, rec.notifications(), 1)

		// Nothing pending, nothing sent.
		c.Flush()
		assert.Len(t, rec.notifications(), 1)
	})
}

func TestBroadcastFailureIsContained(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{err: errors.New("client gone")}
		c := newCoordinator(t, rec, 0)

		c.RequestPage()
		time.Sleep(30 * time.Millisecond)
		synctest.Wait()
		assert.Zero(t, c.Pending())

		rec.mu.Lock()
		rec.err = nil
		rec.mu.Unlock()

		c.RequestPage()
		time.Sleep(30 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []domain.Notification{page}, rec.notifications())
	})
}

func TestReady_FirstLaunchSuppressed(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, time.Second)

		c.OnStart(1)
		assert.False(t, c.Ready(1))
		time.Sleep(2 * time.Second)
		synctest.Wait()
		assert.Empty(t, rec.notifications())

		c.OnStart(2)
		assert.True(t, c.Ready(2))
		time.Sleep(30 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []domain.Notification{page}, rec.notifications())

		// The timer was cancelled by the ready signal.
		time.Sleep(2 * time.Second)
		synctest.Wait()
		assert.Len(t, rec.notifications(), 1)
	})
}

func TestReady_AfterTimeoutIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, time.Second)

		c.OnStart(1)
		c.Ready(1)

		c.OnStart(2)
		time.Sleep(time.Second + 30*time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []domain.Notification{page}, rec.notifications())

		assert.False(t, c.Ready(2))
		time.Sleep(50 * time.Millisecond)
		synctest.Wait()
		assert.Len(t, rec.notifications(), 1)
	})
}

func TestReady_TimeoutOnFirstLaunchRefreshes(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, 500*time.Millisecond)

		c.OnStart(1)
		time.Sleep(600 * time.Millisecond)
		synctest.Wait()

		assert.Equal(t, []domain.Notification{page}, rec.notifications())
	})
}

func TestOnStart_SupersedesPreviousWindow(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, time.Second)

		c.OnStart(1)
		c.Ready(1)

		c.OnStart(2)
		time.Sleep(500 * time.Millisecond)
		c.OnStart(3)

		// A late signal from the replaced instance does nothing.
		assert.False(t, c.Ready(2))

		// Generation 2's timer would have fired here.
		time.Sleep(600 * time.Millisecond)
		synctest.Wait()
		assert.Empty(t, rec.notifications())

		assert.True(t, c.Ready(3))
		time.Sleep(30 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []domain.Notification{page}, rec.notifications())
	})
}

func TestReady_WithoutTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, 0)

		c.OnStart(1)
		c.Ready(1)
		c.OnStart(2)
		time.Sleep(time.Hour)
		synctest.Wait()
		assert.Empty(t, rec.notifications())

		assert.True(t, c.Ready(2))
		c.Flush()
		assert.Equal(t, []domain.Notification{page}, rec.notifications())
	})
}

func TestStop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		c := newCoordinator(t, rec, time.Second)

		c.OnStart(1)
		c.RequestPage()
		c.Stop()

		time.Sleep(2 * time.Second)
		synctest.Wait()
		assert.Empty(t, rec.notifications())
		assert.False(t, c.Ready(1))
	})
}
