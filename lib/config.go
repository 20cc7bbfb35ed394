package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Options. konfigurasi buffer pool: lokasi database file, jumlah frame, dan parameter K dari LRU-K replacer.
type Options struct {
	DBDir               string `json:"db_dir"`
	FileName            string `json:"file_name"`
	PoolSize            int    `json:"pool_size"`             // jumlah frame di buffer pool
	ReplacerK           int    `json:"replacer_k"`            // history size K dari LRU-K
	InitialPageCapacity int    `json:"initial_page_capacity"` // jumlah page slot yang dipreallocate di file baru
	LogLevel            string `json:"log_level"`
}

var (
	ErrInvalidPoolSize  = errors.New("pool size must be greater than zero")
	ErrInvalidReplacerK = errors.New("replacer k must be greater than zero")
	ErrInvalidCapacity  = errors.New("initial page capacity must not be negative")
	ErrEmptyFileName    = errors.New("file name must not be empty")
)

func DefaultOptions() *Options {
	return &Options{
		DBDir:               DB_DIR,
		FileName:            PAGE_FILE_NAME,
		PoolSize:            DEFAULT_POOL_SIZE,
		ReplacerK:           DEFAULT_REPLACER_K,
		InitialPageCapacity: DEFAULT_INITIAL_PAGE_CAPACITY,
		LogLevel:            DEFAULT_LOG_LEVEL,
	}
}

// LoadOptions. read json config file. field yang tidak ada di file tetap pakai default.
func LoadOptions(path string) (*Options, error) {
	opts := DefaultOptions()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(b, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	opts.normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) Validate() error {
	if o.PoolSize <= 0 {
		return ErrInvalidPoolSize
	}
	if o.ReplacerK <= 0 {
		return ErrInvalidReplacerK
	}
	if o.InitialPageCapacity < 0 {
		return ErrInvalidCapacity
	}
	if o.FileName == "" {
		return ErrEmptyFileName
	}
	return nil
}

// normalize. field kosong di config file ("file_name": "", "db_dir": "") kembali ke default.
func (o *Options) normalize() {
	if o.FileName == "" {
		o.FileName = PAGE_FILE_NAME
	}
	if o.DBDir == "" {
		o.DBDir = DB_DIR
	}
}

// NewLogger. buat slog logger dengan level dari string config, ditag dengan nama component.
func NewLogger(logLevel string, component string) *slog.Logger {
	var level slog.Level

	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With("component", component)
}
