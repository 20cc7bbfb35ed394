package buffer

import (
	"fmt"

	"github.com/lintang-b-s/bufpool/lib/disk"
)

// ReadPageGuard. shared access ke satu page. page tetap pinned & read latch dipegang sampai Drop.
type ReadPageGuard struct {
	pageID  disk.PageID
	frameID int
	bpm     *BufferPoolManager
	isValid bool
}

func newReadPageGuard(bpm *BufferPoolManager, pageID disk.PageID, frameID int) *ReadPageGuard {
	return &ReadPageGuard{pageID: pageID, frameID: frameID, bpm: bpm, isValid: true}
}

func (g *ReadPageGuard) frame() *frameHeader {
	if !g.isValid {
		panic(fmt.Sprintf("buffer pool: read guard of page %d used after drop", g.pageID))
	}
	return g.bpm.frames[g.frameID]
}

func (g *ReadPageGuard) PageID() disk.PageID {
	return g.pageID
}

// Data. isi page, jangan diubah & jangan dipakai setelah Drop.
func (g *ReadPageGuard) Data() []byte {
	return g.frame().data
}

func (g *ReadPageGuard) Page() *disk.Page {
	return disk.NewPageFromByteSlice(g.frame().data)
}

func (g *ReadPageGuard) IsDirty() bool {
	fh := g.frame()

	g.bpm.mu.Lock()
	defer g.bpm.mu.Unlock()
	return fh.isDirty
}

// Drop. lepas read latch lalu unpin page. aman dipanggil lebih dari sekali.
func (g *ReadPageGuard) Drop() {
	if !g.isValid {
		return
	}
	fh := g.bpm.frames[g.frameID]
	g.isValid = false

	fh.unlatch(false)
	g.bpm.releaseFrame(fh, false)
}

// WritePageGuard. exclusive access ke satu page. page ditandai dirty saat Drop.
type WritePageGuard struct {
	pageID  disk.PageID
	frameID int
	bpm     *BufferPoolManager
	isValid bool
}

func newWritePageGuard(bpm *BufferPoolManager, pageID disk.PageID, frameID int) *WritePageGuard {
	return &WritePageGuard{pageID: pageID, frameID: frameID, bpm: bpm, isValid: true}
}

func (g *WritePageGuard) frame() *frameHeader {
	if !g.isValid {
		panic(fmt.Sprintf("buffer pool: write guard of page %d used after drop", g.pageID))
	}
	return g.bpm.frames[g.frameID]
}

func (g *WritePageGuard) PageID() disk.PageID {
	return g.pageID
}

// Data. isi page yang bisa diubah. slice tidak boleh dipakai setelah Drop.
func (g *WritePageGuard) Data() []byte {
	return g.frame().data
}

func (g *WritePageGuard) Page() *disk.Page {
	return disk.NewPageFromByteSlice(g.frame().data)
}

func (g *WritePageGuard) IsDirty() bool {
	fh := g.frame()

	g.bpm.mu.Lock()
	defer g.bpm.mu.Unlock()
	return fh.isDirty
}

// Drop. lepas write latch, set dirty, lalu unpin page. aman dipanggil lebih dari sekali.
func (g *WritePageGuard) Drop() {
	if !g.isValid {
		return
	}
	fh := g.bpm.frames[g.frameID]
	g.isValid = false

	fh.unlatch(true)
	g.bpm.releaseFrame(fh, true)
}
