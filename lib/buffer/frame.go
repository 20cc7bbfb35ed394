package buffer

import (
	"sync"

	"github.com/lintang-b-s/bufpool/lib/disk"
)

// frameHeader . metadata satu frame di buffer pool. data adalah slice dari satu buffer besar milik BufferPoolManager.
// pageID, pins, isDirty diubah di bawah bpm.mu. rwlatch menjaga isi data (shared buat reader, exclusive buat writer).
type frameHeader struct {
	frameID int
	pageID  disk.PageID // page yang sedang ada di frame, InvalidPageID kalau kosong
	pins    int
	isDirty bool // dirty flag buat nandain kalo page diupdate (harus diwrite ke disk sebelum frame dipakai page lain)
	data    []byte
	rwlatch sync.RWMutex
}

func newFrameHeader(frameID int, data []byte) *frameHeader {
	return &frameHeader{
		frameID: frameID,
		pageID:  disk.InvalidPageID,
		data:    data,
	}
}

func (fh *frameHeader) isPinned() bool {
	return fh.pins > 0
}

func (fh *frameHeader) isEmpty() bool {
	return !fh.pageID.IsValid()
}

// reset. kosongkan frame. isi data tidak dinolkan, page berikutnya akan di-read dari disk ke data.
func (fh *frameHeader) reset() {
	fh.pageID = disk.InvalidPageID
	fh.pins = 0
	fh.isDirty = false
}

// latch. acquire latch frame sesuai mode guard (exclusive buat write guard).
func (fh *frameHeader) latch(exclusive bool) {
	if exclusive {
		fh.rwlatch.Lock()
	} else {
		fh.rwlatch.RLock()
	}
}

// tryLatch. sama seperti latch tapi tidak block.
func (fh *frameHeader) tryLatch(exclusive bool) bool {
	if exclusive {
		return fh.rwlatch.TryLock()
	}
	return fh.rwlatch.TryRLock()
}

func (fh *frameHeader) unlatch(exclusive bool) {
	if exclusive {
		fh.rwlatch.Unlock()
	} else {
		fh.rwlatch.RUnlock()
	}
}
