package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ShutdownManagerTestSuite struct {
	suite.Suite
	server          *echo.Echo
	shutdownManager *ShutdownManager
}

func TestShutdownManagerSuite(t *testing.T) {
	suite.Run(t, new(ShutdownManagerTestSuite))
}

func (suite *ShutdownManagerTestSuite) SetupTest() {
	suite.server = echo.New()
	suite.shutdownManager = NewShutdownManager(suite.server, nil)
	suite.shutdownManager.SetTimeout(5 * time.Second)
}

func (suite *ShutdownManagerTestSuite) TestNewShutdownManager() {
	t := suite.T()

	sm := NewShutdownManager(suite.server, nil)
	assert.NotNil(t, sm)
	assert.Equal(t, suite.server, sm.server)
	assert.Equal(t, 30*time.Second, sm.timeout)
	assert.NotNil(t, sm.logger)
	assert.False(t, sm.IsShuttingDown())
	assert.Len(t, sm.hooks, 0)
}

func (suite *ShutdownManagerTestSuite) TestSetTimeout() {
	t := suite.T()

	suite.shutdownManager.SetTimeout(10 * time.Second)
	assert.Equal(t, 10*time.Second, suite.shutdownManager.timeout)

	suite.shutdownManager.SetTimeout(0)
	assert.Equal(t, 10*time.Second, suite.shutdownManager.timeout)
}

func (suite *ShutdownManagerTestSuite) TestShutdownWithoutHooks() {
	t := suite.T()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.NoError(t, suite.shutdownManager.Shutdown(ctx))
	assert.True(t, suite.shutdownManager.IsShuttingDown())
}

func (suite *ShutdownManagerTestSuite) TestShutdownRunsHooks() {
	t := suite.T()

	var calls int32
	for _, name := range []string{"alert hub", "edit sessions"} {
		suite.shutdownManager.AddShutdownHook(name, func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}
	assert.Len(t, suite.shutdownManager.hooks, 2)

	require.NoError(t, suite.shutdownManager.Shutdown(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func (suite *ShutdownManagerTestSuite) TestShutdownCollectsHookErrors() {
	t := suite.T()

	suite.shutdownManager.AddShutdownHook("ok", func(ctx context.Context) error { return nil })
	suite.shutdownManager.AddShutdownHook("alert hub", func(ctx context.Context) error {
		return errors.New("connections still open")
	})

	err := suite.shutdownManager.Shutdown(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert hub: connections still open")
}

func (suite *ShutdownManagerTestSuite) TestShutdownHookSeesDeadline() {
	t := suite.T()

	suite.shutdownManager.AddShutdownHook("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := suite.shutdownManager.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForShutdown(t *testing.T) {
	sm := NewShutdownManager(echo.New(), nil)
	sm.SetTimeout(time.Second)

	hookRan := make(chan struct{})
	sm.AddShutdownHook("signal", func(ctx context.Context) error {
		close(hookRan)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown(ctx) }()

	assert.False(t, sm.IsShuttingDown())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
	<-hookRan
	assert.True(t, sm.IsShuttingDown())
}
