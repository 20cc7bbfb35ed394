package disk

import (
	"strconv"

	"github.com/lintang-b-s/bufpool/lib"
)

// PageID. identifier logical page di database file. page ke-i ada di offset i * PAGE_SIZE.
type PageID uint32

const InvalidPageID = PageID(lib.INVALID_PAGE_ID)

func (id PageID) IsValid() bool {
	return id != InvalidPageID
}

// Offset. byte offset page di database file.
func (id PageID) Offset(pageSize int) int64 {
	return int64(id) * int64(pageSize)
}

func (id PageID) String() string {
	if !id.IsValid() {
		return "invalid"
	}
	return strconv.FormatUint(uint64(id), 10)
}
