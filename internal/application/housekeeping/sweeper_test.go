package housekeeping

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCodes struct{ mock.Mock }

func (m *mockCodes) DeleteExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockDevices struct{ mock.Mock }

func (m *mockDevices) DeactivateExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestSweep_CountsBoth(t *testing.T) {
	codes, devices := &mockCodes{}, &mockDevices{}
	codes.On("DeleteExpired", mock.Anything).Return(4, nil)
	devices.On("DeactivateExpired", mock.Anything).Return(1, nil)

	res, err := NewSweeper(codes, devices).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Codes: 4, Devices: 1}, res)
}

func TestSweep_CodeFailureStillSweepsDevices(t *testing.T) {
	codes, devices := &mockCodes{}, &mockDevices{}
	codes.On("DeleteExpired", mock.Anything).Return(0, errors.New("scan failed"))
	devices.On("DeactivateExpired", mock.Anything).Return(2, nil)

	res, err := NewSweeper(codes, devices).Sweep(context.Background())
	assert.ErrorContains(t, err, "scan failed")
	assert.Equal(t, 2, res.Devices)
	devices.AssertExpectations(t)
}

func TestRun_StopsOnCancel(t *testing.T) {
	codes, devices := &mockCodes{}, &mockDevices{}
	var calls atomic.Int32
	codes.On("DeleteExpired", mock.Anything).Return(0, nil).Run(func(mock.Arguments) { calls.Add(1) })
	devices.On("DeactivateExpired", mock.Anything).Return(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(codes, devices).Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return calls.Load() > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_DisabledInterval(t *testing.T) {
	NewSweeper(&mockCodes{}, &mockDevices{}).Run(context.Background(), 0)
}
