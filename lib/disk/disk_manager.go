package disk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/lintang-b-s/bufpool/lib"
)

var (
	ErrPageOutOfRange  = errors.New("page out of range")
	ErrPageFreed       = errors.New("page has been deleted")
	ErrShortRead       = errors.New("short read")
	ErrShortWrite      = errors.New("short write")
	ErrInvalidPageSize = errors.New("buffer size does not match page size")
	ErrCorruptMeta     = errors.New("corrupt freelist meta file")
)

const metaFileSuffix = ".meta"

// DiskManager. read & write page ke satu database file. page ke-i disimpan di byte [i*pageSize, (i+1)*pageSize).
// io page dipanggil dari worker DiskScheduler. latch menjaga freelist, counter, & file size yang juga dibaca dari luar.
//
// freelist (page id tertinggi yang pernah dialokasi + page yang didelete) disimpan di file <db file>.meta saat Close.
// file meta dihapus waktu open, jadi kalau process mati sebelum Close, open berikutnya menganggap semua page slot di
// file sudah dialokasi.
type DiskManager struct {
	dbDir     string
	filePath  string
	file      *os.File
	pageSize  int
	fileSize  int64
	freelist  *Freelist
	numReads  int
	numWrites int
	logger    *slog.Logger
	latch     sync.Mutex
}

// NewDiskManager. buka (atau buat) database file di dbDir. kalau file baru, preallocate pageCapacity page slot.
func NewDiskManager(dbDir string, pageCapacity int, logger *slog.Logger) (*DiskManager, error) {
	return NewDiskManagerWithFile(dbDir, lib.PAGE_FILE_NAME, pageCapacity, logger)
}

func NewDiskManagerWithFile(dbDir, fileName string, pageCapacity int, logger *slog.Logger) (*DiskManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := os.Stat(dbDir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir %s: %w", dbDir, err)
		}
	}

	filePath := filepath.Join(dbDir, fileName)
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open db file %s: %w", filePath, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	dm := &DiskManager{
		dbDir:    dbDir,
		filePath: filePath,
		file:     f,
		pageSize: lib.PAGE_SIZE,
		fileSize: fi.Size(),
		logger:   logger,
	}

	dm.freelist, err = dm.loadFreelist()
	if err != nil {
		f.Close()
		return nil, err
	}

	if fi.Size() == 0 && pageCapacity > 0 {
		if err := dm.growTo(int64(pageCapacity) * int64(dm.pageSize)); err != nil {
			f.Close()
			return nil, err
		}
	}

	dm.logger.Info("disk manager opened", "file", filePath, "pages", dm.freelist.MaxPage(),
		"free_pages", len(dm.freelist.ReleasedPages()), "size", humanize.IBytes(uint64(dm.fileSize)))
	return dm, nil
}

func (dm *DiskManager) metaPath() string {
	return dm.filePath + metaFileSuffix
}

// loadFreelist. baca freelist dari file meta lalu hapus file meta nya. tanpa file meta, page id berikutnya dimulai
// setelah page utuh terakhir di file.
func (dm *DiskManager) loadFreelist() (*Freelist, error) {
	numPages := PageID(dm.fileSize / int64(dm.pageSize))

	buf, err := os.ReadFile(dm.metaPath())
	if errors.Is(err, os.ErrNotExist) {
		return NewFreelist(numPages), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read meta file: %w", err)
	}

	fr, err := deserializeFreelist(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dm.metaPath(), err)
	}
	if fr.MaxPage() > numPages {
		return nil, fmt.Errorf("%s: max page %d beyond file end: %w", dm.metaPath(), fr.MaxPage(), ErrCorruptMeta)
	}

	if err := os.Remove(dm.metaPath()); err != nil {
		return nil, fmt.Errorf("failed to remove meta file: %w", err)
	}
	return fr, nil
}

// saveFreelist. write freelist ke file meta lewat file sementara + rename.
func (dm *DiskManager) saveFreelist() error {
	dm.latch.Lock()
	buf := dm.freelist.serialize()
	dm.latch.Unlock()

	tmp := dm.metaPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create meta file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write meta file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("could not sync meta file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close meta file: %w", err)
	}
	return os.Rename(tmp, dm.metaPath())
}

// AllocatePage. return page id dari freelist kalau ada, kalau tidak grow file satu page slot.
func (dm *DiskManager) AllocatePage() (PageID, error) {
	dm.latch.Lock()
	pageID, reused := dm.freelist.GetNextPage()
	fileSize := dm.fileSize
	dm.latch.Unlock()

	if reused {
		return pageID, nil
	}

	end := pageID.Offset(dm.pageSize) + int64(dm.pageSize)
	if end > fileSize {
		if err := dm.growTo(end); err != nil {
			// page id belum pernah dipakai, kembalikan maxPage
			dm.latch.Lock()
			dm.freelist.maxPage = pageID
			dm.latch.Unlock()
			return InvalidPageID, err
		}
	}
	return pageID, nil
}

// DeletePage. masukkan page ke freelist. file tidak di-truncate dan isi page tidak dinolkan.
// page yang sudah ada di freelist return ErrPageFreed.
func (dm *DiskManager) DeletePage(pageID PageID) error {
	dm.latch.Lock()
	defer dm.latch.Unlock()

	if pageID >= dm.freelist.MaxPage() {
		return fmt.Errorf("delete page %d: %w", pageID, ErrPageOutOfRange)
	}
	if !dm.freelist.ReleasePage(pageID) {
		return fmt.Errorf("delete page %d: %w", pageID, ErrPageFreed)
	}
	return nil
}

func (dm *DiskManager) isReleased(pageID PageID) bool {
	dm.latch.Lock()
	defer dm.latch.Unlock()
	return dm.freelist.IsReleased(pageID)
}

// ReadPage. read satu page dari disk ke data (panjang data harus pageSize).
func (dm *DiskManager) ReadPage(pageID PageID, data []byte) error {
	if len(data) != dm.pageSize {
		return ErrInvalidPageSize
	}
	if dm.isReleased(pageID) {
		return fmt.Errorf("read page %d: %w", pageID, ErrPageFreed)
	}

	offset := pageID.Offset(dm.pageSize)
	if !pageID.IsValid() || offset+int64(dm.pageSize) > dm.FileSize() {
		return fmt.Errorf("read page %d: %w", pageID, ErrPageOutOfRange)
	}

	n, err := dm.file.ReadAt(data, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		dm.logger.Error("failed to read page", "page_id", pageID, "error", err)
		return fmt.Errorf("read page %d: %w", pageID, err)
	}
	if n != dm.pageSize {
		dm.logger.Error("short read", "page_id", pageID, "bytes", n)
		return fmt.Errorf("read page %d: %w", pageID, ErrShortRead)
	}

	dm.latch.Lock()
	dm.numReads++
	dm.latch.Unlock()
	return nil
}

// WritePage. write satu page ke disk di offset pageID * pageSize.
func (dm *DiskManager) WritePage(pageID PageID, data []byte) error {
	if len(data) != dm.pageSize {
		return ErrInvalidPageSize
	}

	offset := pageID.Offset(dm.pageSize)
	if !pageID.IsValid() || offset+int64(dm.pageSize) > dm.FileSize() {
		return fmt.Errorf("write page %d: %w", pageID, ErrPageOutOfRange)
	}

	n, err := dm.file.WriteAt(data, offset)
	if err != nil {
		dm.logger.Error("failed to write page", "page_id", pageID, "error", err)
		return fmt.Errorf("write page %d: %w", pageID, err)
	}
	if n != dm.pageSize {
		dm.logger.Error("short write", "page_id", pageID, "bytes", n)
		return fmt.Errorf("write page %d: %w", pageID, ErrShortWrite)
	}

	dm.latch.Lock()
	dm.numWrites++
	dm.latch.Unlock()
	return nil
}

// growTo. extend file sampai size byte. isi yang baru berupa byte nol.
func (dm *DiskManager) growTo(size int64) error {
	if err := dm.file.Truncate(size); err != nil {
		dm.logger.Error("failed to grow db file", "size", humanize.IBytes(uint64(size)), "error", err)
		return fmt.Errorf("failed to grow db file: %w", err)
	}

	dm.latch.Lock()
	dm.fileSize = size
	dm.latch.Unlock()
	return nil
}

// Close. simpan freelist ke file meta, fsync & close database file.
func (dm *DiskManager) Close() error {
	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("could not sync file: %w", err)
	}
	if err := dm.saveFreelist(); err != nil {
		dm.logger.Error("failed to save freelist", "error", err)
		return err
	}
	if err := dm.file.Close(); err != nil {
		return fmt.Errorf("could not close file: %w", err)
	}
	dm.file = nil
	return nil
}

func (dm *DiskManager) FileSize() int64 {
	dm.latch.Lock()
	defer dm.latch.Unlock()
	return dm.fileSize
}

// NumPages. jumlah page id yang pernah dialokasi (termasuk yang ada di freelist).
func (dm *DiskManager) NumPages() int {
	dm.latch.Lock()
	defer dm.latch.Unlock()
	return int(dm.freelist.MaxPage())
}

// FreePages. copy page id yang ada di freelist.
func (dm *DiskManager) FreePages() []PageID {
	dm.latch.Lock()
	defer dm.latch.Unlock()
	return append([]PageID(nil), dm.freelist.ReleasedPages()...)
}

func (dm *DiskManager) NumReads() int {
	dm.latch.Lock()
	defer dm.latch.Unlock()
	return dm.numReads
}

func (dm *DiskManager) NumWrites() int {
	dm.latch.Lock()
	defer dm.latch.Unlock()
	return dm.numWrites
}

func (dm *DiskManager) PageSize() int {
	return dm.pageSize
}

func (dm *DiskManager) GetDBDir() string {
	return dm.dbDir
}

func (dm *DiskManager) FilePath() string {
	return dm.filePath
}
