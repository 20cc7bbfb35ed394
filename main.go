package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/dustin/go-humanize"
	"github.com/lintang-b-s/bufpool/lib"
	"github.com/lintang-b-s/bufpool/lib/buffer"
	"github.com/lintang-b-s/bufpool/lib/disk"
)

// workload. tulis kalimat random ke numPages page lewat write guard, lalu read ulang dari beberapa goroutine.
func workload(bpm *buffer.BufferPoolManager, numPages, readers, reads int) error {
	faker := gofakeit.New(0)

	pageIDs := make([]disk.PageID, numPages)
	sentences := make([]string, numPages)
	for i := 0; i < numPages; i++ {
		pageID, err := bpm.NewPage()
		if err != nil {
			return err
		}
		pageIDs[i] = pageID
		sentences[i] = faker.Sentence(20)

		guard, err := bpm.WaitWritePage(pageID)
		if err != nil {
			return err
		}
		_, err = guard.Page().PutString(0, sentences[i])
		guard.Drop()
		if err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rf := gofakeit.New(seed)
			for i := 0; i < reads; i++ {
				idx := rf.IntRange(0, numPages-1)
				guard, err := bpm.WaitReadPage(pageIDs[idx])
				if err != nil {
					errs <- err
					return
				}
				got := guard.Page().GetString(0)
				guard.Drop()
				if got != sentences[idx] {
					errs <- fmt.Errorf("page %d: got %q, want %q", pageIDs[idx], got, sentences[idx])
					return
				}
			}
		}(uint64(r + 1))
	}
	wg.Wait()
	close(errs)

	return <-errs
}

func main() {
	configPath := flag.String("config", "", "path to json config file")
	numPages := flag.Int("pages", 1000, "number of pages to create")
	readers := flag.Int("readers", 8, "number of reader goroutines")
	reads := flag.Int("reads", 10000, "reads per reader goroutine")
	flag.Parse()

	opts := lib.DefaultOptions()
	if *configPath != "" {
		var err error
		opts, err = lib.LoadOptions(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	} else {
		dir, err := os.MkdirTemp("", "bufpool")
		if err != nil {
			panic(err)
		}
		defer os.RemoveAll(dir)
		opts.DBDir = dir
	}

	bpm, err := buffer.Open(opts)
	if err != nil {
		panic(err)
	}

	startTimer := time.Now()
	if err := workload(bpm, *numPages, *readers, *reads); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	elapsed := time.Since(startTimer)

	stats := bpm.Stats()
	if err := bpm.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	totalOps := *numPages + *readers * *reads
	fmt.Printf("%v seconds for %s page accesses (%s ops/s)\n", elapsed.Seconds(), humanize.Comma(int64(totalOps)),
		humanize.Comma(int64(float64(totalOps)/elapsed.Seconds())))
	fmt.Printf("pool: %d frames, hits %s, misses %s, evictions %s, flushes %s\n", stats.PoolSize,
		humanize.Comma(int64(stats.Hits)), humanize.Comma(int64(stats.Misses)),
		humanize.Comma(int64(stats.Evictions)), humanize.Comma(int64(stats.Flushes)))
}
