package buffer

import (
	"fmt"
	"sync"
)

// https://15445.courses.cs.cmu.edu/fall2023/project1/

// lrukNode. access history satu frame. history berisi maksimal k timestamp terakhir, yang paling lama di depan.
type lrukNode struct {
	frameID     int
	history     []uint64
	isEvictable bool

	// posisi di coldList selama history < k
	inCold     bool
	prev, next *lrukNode
}

// kthAccess. timestamp akses ke-k dari yang terakhir.
func (n *lrukNode) kthAccess() uint64 {
	return n.history[0]
}

// coldList. circular list frame dengan history < k, diurutkan berdasarkan akses terakhir.
// root.next = akses paling baru, root.prev = akses paling lama.
type coldList struct {
	root lrukNode
	len  int
}

func newColdList() *coldList {
	l := &coldList{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

func (l *coldList) pushFront(n *lrukNode) {
	n.prev = &l.root
	n.next = l.root.next
	l.root.next.prev = n
	l.root.next = n
	n.inCold = true
	l.len++
}

func (l *coldList) remove(n *lrukNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
	n.inCold = false
	l.len--
}

// oldestEvictable. frame evictable dengan akses terakhir paling lama, nil kalau tidak ada.
func (l *coldList) oldestEvictable() *lrukNode {
	for n := l.root.prev; n != &l.root; n = n.prev {
		if n.isEvictable {
			return n
		}
	}
	return nil
}

/*
LRUKReplacer. pilih frame yang dievict berdasarkan backward k-distance: selisih timestamp sekarang dengan timestamp
akses ke-k terakhir. frame dengan akses < k punya k-distance +inf dan selalu dievict duluan, di antara frame +inf
dipilih yang akses terakhirnya paling lama (LRU biasa).
*/
type LRUKReplacer struct {
	mu               sync.Mutex
	k                int
	numFrames        int
	currentTimestamp uint64
	currSize         int // jumlah frame evictable
	nodes            map[int]*lrukNode
	cold             *coldList
}

func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	if k <= 0 {
		panic(fmt.Sprintf("lru-k replacer: invalid k %d", k))
	}
	return &LRUKReplacer{
		k:         k,
		numFrames: numFrames,
		nodes:     make(map[int]*lrukNode, numFrames),
		cold:      newColdList(),
	}
}

func (lru *LRUKReplacer) checkFrameID(frameID int) {
	if frameID < 0 || frameID >= lru.numFrames {
		panic(fmt.Sprintf("lru-k replacer: invalid frame id %d", frameID))
	}
}

// RecordAccess. catat akses ke frame di timestamp sekarang. frame baru otomatis non-evictable.
func (lru *LRUKReplacer) RecordAccess(frameID int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.checkFrameID(frameID)
	lru.currentTimestamp++

	node, ok := lru.nodes[frameID]
	if !ok {
		node = &lrukNode{frameID: frameID, history: make([]uint64, 0, lru.k)}
		lru.nodes[frameID] = node
	}

	if len(node.history) == lru.k {
		// buang akses paling lama, history tetap k entry
		copy(node.history, node.history[1:])
		node.history = node.history[:lru.k-1]
	}
	node.history = append(node.history, lru.currentTimestamp)

	if node.inCold {
		lru.cold.remove(node)
	}
	// frame dengan k akses keluar dari cold list
	if len(node.history) < lru.k {
		lru.cold.pushFront(node)
	}
}

// SetEvictable. tandai frame boleh/tidak dievict. frame yang belum pernah diakses diabaikan.
func (lru *LRUKReplacer) SetEvictable(frameID int, evictable bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.checkFrameID(frameID)

	node, ok := lru.nodes[frameID]
	if !ok || node.isEvictable == evictable {
		return
	}

	node.isEvictable = evictable
	if evictable {
		lru.currSize++
	} else {
		lru.currSize--
	}
}

// Evict. return frame evictable dengan backward k-distance terbesar & hapus history nya.
// return false kalau tidak ada frame evictable.
func (lru *LRUKReplacer) Evict() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if lru.currSize == 0 {
		return -1, false
	}

	victim := -1
	if node := lru.cold.oldestEvictable(); node != nil {
		victim = node.frameID
	} else {
		// semua kandidat punya k akses, pilih akses ke-k terakhir paling lama
		var oldest uint64
		for frameID, node := range lru.nodes {
			if !node.isEvictable || node.inCold {
				continue
			}
			if victim == -1 || node.kthAccess() < oldest {
				victim = frameID
				oldest = node.kthAccess()
			}
		}
	}

	if victim == -1 {
		return -1, false
	}

	lru.removeNode(lru.nodes[victim])
	return victim, true
}

// Remove. hapus semua access history frame, dipakai saat page di frame didelete.
func (lru *LRUKReplacer) Remove(frameID int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.checkFrameID(frameID)
	if node, ok := lru.nodes[frameID]; ok {
		lru.removeNode(node)
	}
}

func (lru *LRUKReplacer) removeNode(node *lrukNode) {
	if node.inCold {
		lru.cold.remove(node)
	}
	if node.isEvictable {
		lru.currSize--
	}
	delete(lru.nodes, node.frameID)
}

// Size. return jumlah frame evictable.
func (lru *LRUKReplacer) Size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	return lru.currSize
}
