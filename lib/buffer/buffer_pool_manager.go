package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/lintang-b-s/bufpool/lib"
	"github.com/lintang-b-s/bufpool/lib/disk"
)

// https://15445.courses.cs.cmu.edu/spring2023/slides/06-bufferpool.pdf

var (
	ErrNoAvailableFrame = errors.New("no available frame")
	ErrPageBusy         = errors.New("page is latched by another guard")
	ErrPagePinned       = errors.New("page is pinned")
	ErrInvalidPageID    = errors.New("invalid page id")
)

type BufferPoolStats struct {
	PoolSize      int
	ResidentPages int
	PinnedPages   int
	DirtyPages    int
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Flushes       uint64
}

/*
BufferPoolManager. menyimpan page dari disk di sejumlah frame tetap. page yang tidak ada di buffer pool diread lewat
DiskScheduler ke frame kosong atau frame hasil evict LRU-K replacer (diflush dulu kalau dirty).

mu cuma menjaga pageTable, freeList, dan metadata frame (pageID, pins, isDirty). isi page dijaga rwlatch masing-masing
frame, jadi io page yang berbeda tidak saling tunggu di mu.
*/
type BufferPoolManager struct {
	mu        sync.Mutex
	available *sync.Cond // dibroadcast kalau ada frame yang jadi evictable/kosong atau flush victim selesai

	poolSize  int
	pool      []byte                   // satu alokasi besar, frame ke-i = pool[i*PAGE_SIZE : (i+1)*PAGE_SIZE]
	frames    []*frameHeader           // frame header, diindex frameID
	pageTable map[disk.PageID]int      // mapping page id dengan frameID. {pageID: frameID}
	freeList  []int                    // list frame yang tidak hold any page data.
	flushing  map[disk.PageID]struct{} // page victim yang sedang diwrite ke disk
	replacer  *LRUKReplacer

	scheduler   *disk.DiskScheduler
	diskManager *disk.DiskManager // nil kalau scheduler dibuat di luar buffer pool
	logger      *slog.Logger

	hits      uint64
	misses    uint64
	evictions uint64
	flushes   uint64
}

// NewBufferPoolManager. initialize buffer pool manager dengan numFrames frame & LRU-K replacer dengan history k.
func NewBufferPoolManager(numFrames int, k int, scheduler *disk.DiskScheduler, logger *slog.Logger) *BufferPoolManager {
	if numFrames <= 0 {
		panic(fmt.Sprintf("buffer pool: invalid pool size %d", numFrames))
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool := make([]byte, numFrames*lib.PAGE_SIZE)
	frames := make([]*frameHeader, numFrames)
	fl := make([]int, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * lib.PAGE_SIZE
		frames[i] = newFrameHeader(i, pool[start:start+lib.PAGE_SIZE:start+lib.PAGE_SIZE])
		fl[i] = i
	}

	bpm := &BufferPoolManager{
		poolSize:  numFrames,
		pool:      pool,
		frames:    frames,
		pageTable: make(map[disk.PageID]int, numFrames),
		freeList:  fl,
		flushing:  make(map[disk.PageID]struct{}),
		replacer:  NewLRUKReplacer(numFrames, k),
		scheduler: scheduler,
		logger:    logger,
	}
	bpm.available = sync.NewCond(&bpm.mu)

	logger.Info("buffer pool initialized", "frames", numFrames, "k", k,
		"memory", humanize.IBytes(uint64(len(pool))))
	return bpm
}

// Open. buat DiskManager, DiskScheduler, dan BufferPoolManager dari opts. Close menutup ketiganya.
func Open(opts *lib.Options) (*BufferPoolManager, error) {
	if opts == nil {
		opts = lib.DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dm, err := disk.NewDiskManagerWithFile(opts.DBDir, opts.FileName, opts.InitialPageCapacity,
		lib.NewLogger(opts.LogLevel, "disk_manager"))
	if err != nil {
		return nil, err
	}
	scheduler := disk.NewDiskScheduler(dm, lib.NewLogger(opts.LogLevel, "disk_scheduler"))

	bpm := NewBufferPoolManager(opts.PoolSize, opts.ReplacerK, scheduler, lib.NewLogger(opts.LogLevel, "buffer_pool"))
	bpm.diskManager = dm
	return bpm, nil
}

func (bpm *BufferPoolManager) Size() int {
	return bpm.poolSize
}

// NewPage. allocate page baru di disk. page belum diload ke buffer pool.
func (bpm *BufferPoolManager) NewPage() (disk.PageID, error) {
	res, err := disk.Await(bpm.scheduler.ScheduleAllocate())
	if err != nil {
		return disk.InvalidPageID, fmt.Errorf("failed to allocate page: %w", err)
	}
	return res.PageID, nil
}

// TryReadPage. ambil shared access ke page tanpa menunggu frame kosong. return ErrNoAvailableFrame kalau semua
// frame pinned, ErrPageBusy kalau page sedang dipegang write guard.
func (bpm *BufferPoolManager) TryReadPage(pageID disk.PageID) (*ReadPageGuard, error) {
	fh, err := bpm.fetchFrame(pageID, false, false)
	if err != nil {
		return nil, err
	}
	return newReadPageGuard(bpm, pageID, fh.frameID), nil
}

// WaitReadPage. ambil shared access ke page, block sampai ada frame yang bisa dipakai.
func (bpm *BufferPoolManager) WaitReadPage(pageID disk.PageID) (*ReadPageGuard, error) {
	fh, err := bpm.fetchFrame(pageID, false, true)
	if err != nil {
		return nil, err
	}
	return newReadPageGuard(bpm, pageID, fh.frameID), nil
}

// TryWritePage. ambil exclusive access ke page tanpa menunggu.
func (bpm *BufferPoolManager) TryWritePage(pageID disk.PageID) (*WritePageGuard, error) {
	fh, err := bpm.fetchFrame(pageID, true, false)
	if err != nil {
		return nil, err
	}
	return newWritePageGuard(bpm, pageID, fh.frameID), nil
}

// WaitWritePage. ambil exclusive access ke page, block sampai ada frame & tidak ada guard lain di page tsb.
func (bpm *BufferPoolManager) WaitWritePage(pageID disk.PageID) (*WritePageGuard, error) {
	fh, err := bpm.fetchFrame(pageID, true, true)
	if err != nil {
		return nil, err
	}
	return newWritePageGuard(bpm, pageID, fh.frameID), nil
}

// reservation. frame yang baru diambil buat page yang belum ada di buffer pool.
type reservation struct {
	frameID int
	victim  disk.PageID            // page lama di frame, InvalidPageID kalau frame dari freeList
	flushCh <-chan disk.DiskResult // hasil write victim kalau victim dirty
}

/*
fetchFrame. pin frame yang berisi pageID & acquire latch nya.

cache hit: pin frame di bawah mu, lalu latch frame tanpa mu.
cache miss: ambil frame dari freeList atau evict dari replacer, install pageTable entry & latch exclusive di bawah mu,
lalu flush victim & read page tanpa mu. thread lain yang minta page yang sama akan hit & menunggu di latch.
*/
func (bpm *BufferPoolManager) fetchFrame(pageID disk.PageID, exclusive, wait bool) (*frameHeader, error) {
	if !pageID.IsValid() {
		return nil, ErrInvalidPageID
	}

	for {
		bpm.mu.Lock()
		frameID, res, err := bpm.findFrameLocked(pageID, wait)
		if err != nil {
			bpm.mu.Unlock()
			return nil, err
		}

		if res == nil {
			fh := bpm.frames[frameID]
			bpm.mu.Unlock()

			if wait {
				fh.latch(exclusive)
			} else if !fh.tryLatch(exclusive) {
				bpm.releaseFrame(fh, false)
				return nil, ErrPageBusy
			}

			if fh.pageID == pageID {
				bpm.recordHit(fh)
				return fh, nil
			}
			// load page gagal selagi kita menunggu latch, ulang dari awal
			fh.unlatch(exclusive)
			bpm.releaseFrame(fh, false)
			continue
		}

		fh := bpm.frames[res.frameID]
		if err := bpm.loadFrame(fh, pageID, res); err != nil {
			return nil, err
		}

		if !exclusive {
			fh.rwlatch.Unlock()
			if wait {
				fh.rwlatch.RLock()
			} else if !fh.rwlatch.TryRLock() {
				bpm.releaseFrame(fh, false)
				return nil, ErrPageBusy
			}
		}
		return fh, nil
	}
}

// findFrameLocked. return frame yang sudah berisi pageID (res == nil), atau reservation frame baru buat pageID.
// frame yang direturn sudah dipin. kalau wait, block di available sampai ada frame.
func (bpm *BufferPoolManager) findFrameLocked(pageID disk.PageID, wait bool) (int, *reservation, error) {
	for {
		if _, busy := bpm.flushing[pageID]; busy {
			// page sedang diwrite ke disk sebagai victim, read sekarang bisa dapat isi lama
			if !wait {
				return -1, nil, ErrPageBusy
			}
			bpm.available.Wait()
			continue
		}

		if frameID, ok := bpm.pageTable[pageID]; ok {
			// akses baru dicatat setelah latch didapat, lihat recordHit
			bpm.pinLocked(bpm.frames[frameID], false)
			return frameID, nil, nil
		}

		if res, ok := bpm.reserveFrameLocked(pageID); ok {
			bpm.misses++
			return res.frameID, res, nil
		}

		if !wait {
			return -1, nil, ErrNoAvailableFrame
		}
		bpm.available.Wait()
	}
}

// reserveFrameLocked. ambil frame dari freeList or evict dari replacer, assign ke pageID dengan pin = 1 & latch
// exclusive. write victim dirty disubmit di sini (masih di bawah mu) supaya read page victim berikutnya antri di
// belakang write tsb.
func (bpm *BufferPoolManager) reserveFrameLocked(pageID disk.PageID) (*reservation, bool) {
	var frameID int

	if len(bpm.freeList) != 0 {
		frameID = bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
	} else {
		var ok bool
		frameID, ok = bpm.replacer.Evict()
		if !ok {
			return nil, false
		}
	}

	fh := bpm.frames[frameID]
	res := &reservation{frameID: frameID, victim: disk.InvalidPageID}

	if !fh.isEmpty() {
		res.victim = fh.pageID
		delete(bpm.pageTable, fh.pageID)
		bpm.evictions++

		if fh.isDirty {
			bpm.flushing[fh.pageID] = struct{}{}
			res.flushCh = bpm.scheduler.ScheduleWrite(fh.pageID, fh.data)
		}
		bpm.logger.Debug("evict page", "victim", res.victim, "frame_id", frameID, "dirty", fh.isDirty,
			"page_id", pageID)
	}

	fh.pageID = pageID
	fh.isDirty = false
	fh.pins = 0
	bpm.pageTable[pageID] = frameID
	bpm.pinLocked(fh, true)

	// pins sebelumnya 0, jadi tidak ada yang pegang latch
	fh.rwlatch.Lock()
	return res, true
}

// loadFrame. flush victim (kalau dirty) lalu read pageID ke frame. dipanggil dengan mu terkunci, return dengan mu
// sudah dilepas. kalau berhasil, latch exclusive frame masih dipegang caller.
func (bpm *BufferPoolManager) loadFrame(fh *frameHeader, pageID disk.PageID, res *reservation) error {
	bpm.mu.Unlock()

	if res.flushCh != nil {
		_, err := disk.Await(res.flushCh)

		bpm.mu.Lock()
		delete(bpm.flushing, res.victim)
		if err != nil {
			// kembalikan victim ke frame, masih dirty
			delete(bpm.pageTable, pageID)
			fh.pageID = res.victim
			fh.isDirty = true
			bpm.pageTable[res.victim] = fh.frameID
			bpm.unpinLocked(fh)
			bpm.available.Broadcast()
			bpm.mu.Unlock()
			fh.rwlatch.Unlock()

			bpm.logger.Error("failed to flush victim page", "victim", res.victim, "error", err)
			return fmt.Errorf("failed to flush victim page %d: %w", res.victim, err)
		}
		bpm.flushes++
		bpm.available.Broadcast()
		bpm.mu.Unlock()
	}

	_, err := disk.Await(bpm.scheduler.ScheduleRead(pageID, fh.data))
	if err != nil {
		bpm.mu.Lock()
		delete(bpm.pageTable, pageID)
		fh.pageID = disk.InvalidPageID
		fh.isDirty = false
		bpm.unpinLocked(fh)
		bpm.available.Broadcast()
		bpm.mu.Unlock()
		fh.rwlatch.Unlock()

		return fmt.Errorf("failed to load page %d: %w", pageID, err)
	}
	return nil
}

// pinLocked. increment pin count & buat frame non-evictable. recordAccess = false buat pin flush dan pin cache hit
// yang belum dapat latch.
func (bpm *BufferPoolManager) pinLocked(fh *frameHeader, recordAccess bool) {
	fh.pins++
	if recordAccess {
		bpm.replacer.RecordAccess(fh.frameID)
	}
	bpm.replacer.SetEvictable(fh.frameID, false)
}

// recordHit. catat akses cache hit ke replacer. dipanggil setelah latch frame didapat, jadi Try yang gagal tidak
// mengubah urutan eviction.
func (bpm *BufferPoolManager) recordHit(fh *frameHeader) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	bpm.hits++
	bpm.replacer.RecordAccess(fh.frameID)
}

// unpinLocked. decrement pin count. kalau pin count jadi 0, frame kosong masuk freeList dan frame berisi page jadi
// evictable.
func (bpm *BufferPoolManager) unpinLocked(fh *frameHeader) {
	if fh.pins <= 0 {
		panic(fmt.Sprintf("buffer pool: unpin frame %d with pin count %d", fh.frameID, fh.pins))
	}

	fh.pins--
	if fh.pins > 0 {
		return
	}

	if fh.isEmpty() {
		bpm.freeFrameLocked(fh)
	} else {
		bpm.replacer.SetEvictable(fh.frameID, true)
	}
	bpm.available.Broadcast()
}

func (bpm *BufferPoolManager) freeFrameLocked(fh *frameHeader) {
	bpm.replacer.Remove(fh.frameID)
	fh.reset()
	bpm.freeList = append(bpm.freeList, fh.frameID)
}

// releaseFrame. dipanggil saat guard didrop (setelah latch frame dilepas). write guard selalu set dirty flag.
func (bpm *BufferPoolManager) releaseFrame(fh *frameHeader, isDirty bool) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if isDirty {
		fh.isDirty = true
	}
	bpm.unpinLocked(fh)
}

// FlushPage. write page ke disk walaupun tidak dirty, lalu clear dirty flag. return false kalau page tidak ada di
// buffer pool. caller tidak boleh sedang memegang write guard page yang sama.
func (bpm *BufferPoolManager) FlushPage(pageID disk.PageID) (bool, error) {
	bpm.mu.Lock()
	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		bpm.mu.Unlock()
		return false, nil
	}
	fh := bpm.frames[frameID]
	bpm.pinLocked(fh, false)
	bpm.mu.Unlock()

	fh.latch(false)
	if fh.pageID != pageID {
		fh.unlatch(false)
		bpm.releaseFrame(fh, false)
		return false, nil
	}

	_, err := disk.Await(bpm.scheduler.ScheduleWrite(pageID, fh.data))
	if err == nil {
		// clear dirty selagi masih pegang latch, writer berikutnya akan set dirty lagi
		bpm.mu.Lock()
		fh.isDirty = false
		bpm.flushes++
		bpm.mu.Unlock()
	}
	fh.unlatch(false)
	bpm.releaseFrame(fh, false)

	if err != nil {
		return false, fmt.Errorf("failed to flush page %d: %w", pageID, err)
	}
	return true, nil
}

// FlushAllPages. flush semua page yang ada di buffer pool.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	pageIDs := make([]disk.PageID, 0, len(bpm.pageTable))
	for pageID := range bpm.pageTable {
		pageIDs = append(pageIDs, pageID)
	}
	bpm.mu.Unlock()

	var errs []error
	for _, pageID := range pageIDs {
		if _, err := bpm.FlushPage(pageID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeletePage. remove page dari buffer pool & disk. page yang masih dipin tidak bisa didelete (ErrPagePinned).
// isi page yang dirty dibuang, page id dikembalikan ke freelist disk manager. delete page yang sudah didelete
// return disk.ErrPageFreed.
func (bpm *BufferPoolManager) DeletePage(pageID disk.PageID) (bool, error) {
	if !pageID.IsValid() {
		return false, ErrInvalidPageID
	}

	bpm.mu.Lock()
	for {
		if _, busy := bpm.flushing[pageID]; !busy {
			break
		}
		bpm.available.Wait()
	}

	if frameID, ok := bpm.pageTable[pageID]; ok {
		fh := bpm.frames[frameID]
		if fh.isPinned() {
			bpm.mu.Unlock()
			return false, ErrPagePinned
		}
		delete(bpm.pageTable, pageID)
		bpm.freeFrameLocked(fh)
		bpm.available.Broadcast()
	}

	// submit di bawah mu, load page id ini setelah dialokasi ulang pasti antri di belakang delete
	ch := bpm.scheduler.ScheduleDelete(pageID)
	bpm.mu.Unlock()

	if _, err := disk.Await(ch); err != nil {
		return false, fmt.Errorf("failed to delete page %d: %w", pageID, err)
	}
	return true, nil
}

// GetPinCount. return pin count page, false kalau page tidak ada di buffer pool.
func (bpm *BufferPoolManager) GetPinCount(pageID disk.PageID) (int, bool) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return 0, false
	}
	return bpm.frames[frameID].pins, true
}

func (bpm *BufferPoolManager) Stats() BufferPoolStats {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	stats := BufferPoolStats{
		PoolSize:      bpm.poolSize,
		ResidentPages: len(bpm.pageTable),
		Hits:          bpm.hits,
		Misses:        bpm.misses,
		Evictions:     bpm.evictions,
		Flushes:       bpm.flushes,
	}
	for _, frameID := range bpm.pageTable {
		fh := bpm.frames[frameID]
		if fh.isPinned() {
			stats.PinnedPages++
		}
		if fh.isDirty {
			stats.DirtyPages++
		}
	}
	return stats
}

// Close. flush semua page, shutdown disk scheduler, dan close database file kalau buffer pool dibuat lewat Open.
// semua guard harus sudah didrop.
func (bpm *BufferPoolManager) Close() error {
	err := bpm.FlushAllPages()
	bpm.scheduler.Shutdown()
	if bpm.diskManager != nil {
		err = errors.Join(err, bpm.diskManager.Close())
	}
	return err
}
