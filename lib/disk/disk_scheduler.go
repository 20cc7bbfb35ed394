package disk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lintang-b-s/bufpool/lib/concurrent"
)

var ErrRequestAbandoned = errors.New("disk request abandoned before execution")

type RequestKind int

const (
	ALLOCATE RequestKind = iota
	DELETE
	READ
	WRITE
)

func (k RequestKind) String() string {
	switch k {
	case ALLOCATE:
		return "allocate"
	case DELETE:
		return "delete"
	case READ:
		return "read"
	case WRITE:
		return "write"
	}
	return fmt.Sprintf("RequestKind(%d)", int(k))
}

// DiskResult. hasil satu DiskRequest. PageID cuma diisi untuk ALLOCATE.
type DiskResult struct {
	PageID PageID
	Err    error
}

// DiskRequest. satu io task. callback dikirimi tepat satu DiskResult, atau diclose tanpa value kalau request diabandon
// saat shutdown.
type DiskRequest struct {
	Kind     RequestKind
	PageID   PageID
	Data     []byte // buffer tujuan READ / sumber WRITE, panjang PAGE_SIZE
	callback chan DiskResult
}

// PageStore. operasi disk yang dipanggil worker DiskScheduler. diimplementasi DiskManager.
type PageStore interface {
	AllocatePage() (PageID, error)
	DeletePage(pageID PageID) error
	ReadPage(pageID PageID, data []byte) error
	WritePage(pageID PageID, data []byte) error
}

// DiskScheduler. serialize semua akses disk ke satu background worker goroutine.
// request diproses FIFO sesuai urutan masuk queue.
type DiskScheduler struct {
	store  PageStore
	queue  *concurrent.WorkQueue[*DiskRequest]
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once
}

func NewDiskScheduler(store PageStore, logger *slog.Logger) *DiskScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ds := &DiskScheduler{
		store:  store,
		queue:  concurrent.NewWorkQueue[*DiskRequest](),
		logger: logger,
		done:   make(chan struct{}),
	}
	go ds.startWorker()
	return ds
}

// Schedule. enqueue request tanpa block, return channel hasil request.
func (ds *DiskScheduler) Schedule(kind RequestKind, pageID PageID, data []byte) <-chan DiskResult {
	req := &DiskRequest{
		Kind:     kind,
		PageID:   pageID,
		Data:     data,
		callback: make(chan DiskResult, 1),
	}
	if !ds.queue.Push(req) {
		// scheduler sudah shutdown, outcome unknown
		close(req.callback)
	}
	return req.callback
}

func (ds *DiskScheduler) ScheduleAllocate() <-chan DiskResult {
	return ds.Schedule(ALLOCATE, InvalidPageID, nil)
}

func (ds *DiskScheduler) ScheduleDelete(pageID PageID) <-chan DiskResult {
	return ds.Schedule(DELETE, pageID, nil)
}

// ScheduleRead. read page ke data. data tidak boleh disentuh caller sampai hasilnya diterima.
func (ds *DiskScheduler) ScheduleRead(pageID PageID, data []byte) <-chan DiskResult {
	return ds.Schedule(READ, pageID, data)
}

// ScheduleWrite. write data ke page. data tidak boleh diubah caller sampai hasilnya diterima.
func (ds *DiskScheduler) ScheduleWrite(pageID PageID, data []byte) <-chan DiskResult {
	return ds.Schedule(WRITE, pageID, data)
}

// Await. tunggu hasil request. channel yang diclose tanpa hasil (abandoned) jadi ErrRequestAbandoned.
func Await(ch <-chan DiskResult) (DiskResult, error) {
	res, ok := <-ch
	if !ok {
		return DiskResult{PageID: InvalidPageID}, ErrRequestAbandoned
	}
	return res, res.Err
}

func (ds *DiskScheduler) startWorker() {
	defer close(ds.done)
	for {
		req, ok := ds.queue.Pop()
		if !ok {
			return
		}
		ds.dispatch(req)
	}
}

func (ds *DiskScheduler) dispatch(req *DiskRequest) {
	res := DiskResult{PageID: req.PageID}

	switch req.Kind {
	case ALLOCATE:
		res.PageID, res.Err = ds.store.AllocatePage()
	case DELETE:
		res.Err = ds.store.DeletePage(req.PageID)
	case READ:
		res.Err = ds.store.ReadPage(req.PageID, req.Data)
	case WRITE:
		res.Err = ds.store.WritePage(req.PageID, req.Data)
	default:
		res.Err = fmt.Errorf("unknown disk request kind %v", req.Kind)
	}

	if res.Err != nil {
		ds.logger.Error("disk request failed", "kind", req.Kind, "page_id", req.PageID, "error", res.Err)
	}
	req.callback <- res
}

// Shutdown. stop worker. request yang sedang dieksekusi diselesaikan, request yang masih di queue diabandon
// (channel hasilnya diclose). block sampai worker selesai.
func (ds *DiskScheduler) Shutdown() {
	ds.once.Do(func() {
		pending := ds.queue.Close()
		for _, req := range pending {
			close(req.callback)
		}
		if len(pending) > 0 {
			ds.logger.Warn("disk scheduler shut down with pending requests", "abandoned", len(pending))
		} else {
			ds.logger.Debug("disk scheduler shut down")
		}
	})
	<-ds.done
}

func (ds *DiskScheduler) IsShutdown() bool {
	return ds.queue.IsClosed()
}
