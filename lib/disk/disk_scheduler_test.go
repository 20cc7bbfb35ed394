package disk

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NebulousLabs/fastrand"
	"github.com/lintang-b-s/bufpool/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingStore. PageStore yang block di setiap operasi sampai gate dibuka.
type blockingStore struct {
	started chan struct{}
	gate    chan struct{}
	mu      sync.Mutex
	calls   []RequestKind
}

func newBlockingStore() *blockingStore {
	return &blockingStore{started: make(chan struct{}, 16), gate: make(chan struct{})}
}

func (s *blockingStore) record(kind RequestKind) {
	s.started <- struct{}{}
	<-s.gate
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.mu.Unlock()
}

func (s *blockingStore) AllocatePage() (PageID, error) {
	s.record(ALLOCATE)
	return 7, nil
}

func (s *blockingStore) DeletePage(PageID) error {
	s.record(DELETE)
	return nil
}

func (s *blockingStore) ReadPage(PageID, []byte) error {
	s.record(READ)
	return nil
}

func (s *blockingStore) WritePage(PageID, []byte) error {
	s.record(WRITE)
	return errors.New("disk on fire")
}

func TestDiskScheduler(t *testing.T) {
	t.Run("read write through disk manager", func(t *testing.T) {
		dm := newTestDiskManager(t, 0)
		ds := NewDiskScheduler(dm, nil)
		defer ds.Shutdown()

		res, err := Await(ds.ScheduleAllocate())
		require.NoError(t, err)
		pageID := res.PageID
		assert.Equal(t, PageID(0), pageID)

		data := fastrand.Bytes(lib.PAGE_SIZE)
		_, err = Await(ds.ScheduleWrite(pageID, data))
		require.NoError(t, err)

		buf := make([]byte, lib.PAGE_SIZE)
		_, err = Await(ds.ScheduleRead(pageID, buf))
		require.NoError(t, err)
		assert.Equal(t, data, buf)

		_, err = Await(ds.ScheduleDelete(pageID))
		require.NoError(t, err)
		_, err = Await(ds.ScheduleRead(pageID, buf))
		assert.ErrorIs(t, err, ErrPageFreed)
	})

	t.Run("requests from one caller run in submission order", func(t *testing.T) {
		dm := newTestDiskManager(t, 0)
		ds := NewDiskScheduler(dm, nil)
		defer ds.Shutdown()

		res, err := Await(ds.ScheduleAllocate())
		require.NoError(t, err)

		// write lalu read tanpa menunggu write selesai. read harus lihat hasil write terakhir.
		var writes []<-chan DiskResult
		var last []byte
		for i := 0; i < 20; i++ {
			last = fastrand.Bytes(lib.PAGE_SIZE)
			writes = append(writes, ds.ScheduleWrite(res.PageID, last))
		}
		buf := make([]byte, lib.PAGE_SIZE)
		readCh := ds.ScheduleRead(res.PageID, buf)

		for _, ch := range writes {
			_, err := Await(ch)
			require.NoError(t, err)
		}
		_, err = Await(readCh)
		require.NoError(t, err)
		assert.Equal(t, last, buf)
	})

	t.Run("io failure is delivered on the result channel", func(t *testing.T) {
		dm := newTestDiskManager(t, 0)
		ds := NewDiskScheduler(dm, nil)
		defer ds.Shutdown()

		_, err := Await(ds.ScheduleRead(42, make([]byte, lib.PAGE_SIZE)))
		assert.ErrorIs(t, err, ErrPageOutOfRange)

		// worker masih hidup setelah error
		res, err := Await(ds.ScheduleAllocate())
		require.NoError(t, err)
		assert.Equal(t, PageID(0), res.PageID)
	})

	t.Run("shutdown abandons queued requests", func(t *testing.T) {
		store := newBlockingStore()
		ds := NewDiskScheduler(store, nil)

		first := ds.ScheduleAllocate()
		<-store.started // worker sedang eksekusi request pertama

		second := ds.ScheduleWrite(1, make([]byte, lib.PAGE_SIZE))

		shutdownDone := make(chan struct{})
		go func() {
			ds.Shutdown()
			close(shutdownDone)
		}()

		// request kedua diabandon tanpa menunggu worker
		select {
		case _, ok := <-second:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("abandoned request never resolved")
		}

		close(store.gate)
		select {
		case <-shutdownDone:
		case <-time.After(time.Second):
			t.Fatal("shutdown never joined the worker")
		}

		res, err := Await(first)
		require.NoError(t, err)
		assert.Equal(t, PageID(7), res.PageID)

		_, err = Await(second)
		assert.ErrorIs(t, err, ErrRequestAbandoned)
		assert.Equal(t, []RequestKind{ALLOCATE}, store.calls)
	})

	t.Run("submit after shutdown never hangs", func(t *testing.T) {
		dm := newTestDiskManager(t, 0)
		ds := NewDiskScheduler(dm, nil)
		ds.Shutdown()
		ds.Shutdown()
		assert.True(t, ds.IsShutdown())

		_, err := Await(ds.ScheduleAllocate())
		assert.ErrorIs(t, err, ErrRequestAbandoned)
	})

	t.Run("concurrent callers all resolved", func(t *testing.T) {
		dm := newTestDiskManager(t, 0)
		ds := NewDiskScheduler(dm, nil)
		defer ds.Shutdown()

		var wg sync.WaitGroup
		ids := make(chan PageID, 100)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := Await(ds.ScheduleAllocate())
				assert.NoError(t, err)
				ids <- res.PageID
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[PageID]bool)
		for id := range ids {
			assert.False(t, seen[id], "page %d allocated twice", id)
			seen[id] = true
		}
		assert.Len(t, seen, 100)
	})
}

func TestRequestKindString(t *testing.T) {
	assert.Equal(t, "allocate", ALLOCATE.String())
	assert.Equal(t, "write", WRITE.String())
	assert.Equal(t, "RequestKind(9)", RequestKind(9).String())
}
