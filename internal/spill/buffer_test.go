package spill

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/tempstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAllocator struct {
	mock.Mock
}

func (m *mockAllocator) CreateTempFile(extension string) (string, error) {
	args := m.Called(extension)
	return args.String(0), args.Error(1)
}

func (m *mockAllocator) CleanUp(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func newStore(t *testing.T) *tempstore.Service {
	t.Helper()

	cfg := tempstore.DefaultConfig()
	cfg.Root = t.TempDir()
	store, err := tempstore.New(cfg, nil, nil, nil)
	require.NoError(t, err)
	return store
}

func TestStaysInMemoryUpToLimit(t *testing.T) {
	store := &mockAllocator{}
	buf := New(store, WithHeapLimit(10))

	_, err := buf.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = buf.Write([]byte("world"))
	require.NoError(t, err)

	assert.False(t, buf.OnDisk(), "exactly the limit stays in memory")
	assert.Equal(t, int64(10), buf.Size())
	assert.Empty(t, buf.Path())

	require.NoError(t, buf.Close())
	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(data))

	require.NoError(t, buf.Dispose())
	store.AssertNotCalled(t, "CreateTempFile", mock.Anything)
	store.AssertNotCalled(t, "CleanUp", mock.Anything)
}

func TestMigratesOnceWhenLimitExceeded(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	store := newStore(t)
	buf := New(store, WithHeapLimit(8), WithMetrics(metrics))

	_, err := buf.Write([]byte("12345"))
	require.NoError(t, err)
	assert.False(t, buf.OnDisk())

	_, err = buf.Write([]byte("6789"))
	require.NoError(t, err)
	require.True(t, buf.OnDisk())

	path := buf.Path()
	assert.True(t, strings.HasSuffix(path, Extension))
	assert.True(t, store.Registered(path))

	for i := 0; i < 10; i++ {
		_, err = buf.Write([]byte("x"))
		require.NoError(t, err)
	}
	assert.Equal(t, path, buf.Path(), "migration happens once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SpillMigrations))

	require.NoError(t, buf.Close())
	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "123456789xxxxxxxxxx", string(data))
	assert.Equal(t, int64(len(data)), buf.Size())

	require.NoError(t, buf.Dispose())
	assert.NoFileExists(t, path)
	assert.False(t, store.Registered(path))
}

func TestZeroLimitSpillsFirstWrite(t *testing.T) {
	buf := New(newStore(t), WithHeapLimit(0))

	n, err := buf.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, buf.OnDisk(), "empty writes never migrate")

	_, err = buf.Write([]byte("a"))
	require.NoError(t, err)
	assert.True(t, buf.OnDisk())
	require.NoError(t, buf.Dispose())
}

func TestNegativeOptionsKeepDefaults(t *testing.T) {
	buf := New(nil, WithHeapLimit(-1), WithInitialHeapSize(-5))

	assert.Equal(t, DefaultHeapLimit, buf.heapLimit)
	assert.Equal(t, DefaultInitialHeapSize, buf.initialSize)
	assert.Equal(t, DefaultInitialHeapSize, buf.mem.Cap())
}

func TestLargePayloadIsLossless(t *testing.T) {
	buf := New(newStore(t), WithHeapLimit(64*1024))

	want := make([]byte, 1<<20)
	for i := range want {
		want[i] = byte(i % 251)
	}

	// Uneven chunk sizes straddle the limit and the file writer's buffer.
	for rest := want; len(rest) > 0; {
		n := 7919
		if n > len(rest) {
			n = len(rest)
		}
		_, err := buf.Write(rest[:n])
		require.NoError(t, err)
		rest = rest[n:]
	}
	require.NoError(t, buf.Close())
	assert.True(t, buf.OnDisk())

	got, err := buf.Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want, got))
	require.NoError(t, buf.Dispose())
}

func TestReadersReplayIndependently(t *testing.T) {
	tests := []struct {
		name  string
		limit int64
	}{
		{name: "memory", limit: 1024},
		{name: "file", limit: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := New(newStore(t), WithHeapLimit(tt.limit))
			_, err := io.WriteString(buf, "replay me")
			require.NoError(t, err)
			require.NoError(t, buf.Close())

			r1, err := buf.Reader()
			require.NoError(t, err)
			r2, err := buf.Reader()
			require.NoError(t, err)

			head := make([]byte, 6)
			_, err = io.ReadFull(r1, head)
			require.NoError(t, err)
			assert.Equal(t, "replay", string(head))

			all, err := io.ReadAll(r2)
			require.NoError(t, err)
			assert.Equal(t, "replay me", string(all))

			rest, err := io.ReadAll(r1)
			require.NoError(t, err)
			assert.Equal(t, " me", string(rest))

			require.NoError(t, r1.Close())
			require.NoError(t, r2.Close())

			var out bytes.Buffer
			n, err := buf.WriteTo(&out)
			require.NoError(t, err)
			assert.Equal(t, int64(9), n)
			assert.Equal(t, "replay me", out.String())

			require.NoError(t, buf.Dispose())
		})
	}
}

func TestStateErrors(t *testing.T) {
	buf := New(newStore(t), WithHeapLimit(2))

	_, err := buf.Reader()
	assert.ErrorIs(t, err, ErrNotClosed)
	require.NoError(t, buf.Flush())

	_, err = buf.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, buf.Flush())

	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close(), "close is idempotent")

	_, err = buf.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, buf.Flush(), ErrClosed)

	require.NoError(t, buf.Dispose())
	require.NoError(t, buf.Dispose(), "dispose is idempotent")

	_, err = buf.Reader()
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestDisposeWithoutClose(t *testing.T) {
	store := newStore(t)
	buf := New(store, WithHeapLimit(1))

	_, err := buf.Write([]byte("spilled"))
	require.NoError(t, err)
	path := buf.Path()
	require.FileExists(t, path)

	require.NoError(t, buf.Dispose())
	assert.NoFileExists(t, path)

	_, err = buf.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAllocationFailureKeepsMemoryTier(t *testing.T) {
	store := &mockAllocator{}
	store.On("CreateTempFile", Extension).Return("", errors.New("disk full")).Once()

	buf := New(store, WithHeapLimit(4))
	_, err := buf.Write([]byte("abc"))
	require.NoError(t, err)

	_, err = buf.Write([]byte("defg"))
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, buf.OnDisk())
	assert.Equal(t, int64(3), buf.Size())

	require.NoError(t, buf.Close())
	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	store.AssertExpectations(t)
}

func TestOpenFailureCleansUpPartialFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone", "x.spill")

	store := &mockAllocator{}
	store.On("CreateTempFile", Extension).Return(missing, nil).Once()
	store.On("CleanUp", missing).Return(nil).Once()

	buf := New(store, WithHeapLimit(0))
	_, err := buf.Write([]byte("a"))
	assert.Error(t, err)
	assert.False(t, buf.OnDisk())

	store.AssertExpectations(t)
}

func TestDisposeReportsCleanUpFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.spill")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	store := &mockAllocator{}
	store.On("CreateTempFile", Extension).Return(path, nil).Once()
	store.On("CleanUp", path).Return(errors.New("busy")).Once()

	buf := New(store, WithHeapLimit(0))
	_, err := buf.Write([]byte("data"))
	require.NoError(t, err)

	assert.ErrorContains(t, buf.Dispose(), "busy")
	store.AssertExpectations(t)
}

func TestConcurrentWriters(t *testing.T) {
	buf := New(newStore(t), WithHeapLimit(1024))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = buf.Write([]byte("0123456789"))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, buf.Close())
	assert.Equal(t, int64(8000), buf.Size())
	assert.True(t, buf.OnDisk())

	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Len(t, data, 8000)
	require.NoError(t, buf.Dispose())
}
