package lib

const (
	PAGE_SIZE       = 4096
	INVALID_PAGE_ID = ^uint32(0)

	DEFAULT_POOL_SIZE             = 64
	DEFAULT_REPLACER_K            = 2
	DEFAULT_INITIAL_PAGE_CAPACITY = 16
	DEFAULT_LOG_LEVEL             = "info"

	DB_DIR         = "bufpool_db"
	PAGE_FILE_NAME = "bufpool.db"
)
