package disk

// Freelist. menyimpan page id yang sudah didelete dan bisa dipakai ulang sebelum file di-grow.
// page yang dirilis paling akhir dipakai duluan.
type Freelist struct {
	maxPage       PageID // page id berikutnya kalau releasedPages kosong
	releasedPages []PageID
	released      map[PageID]struct{}
}

func NewFreelist(maxPage PageID) *Freelist {
	return &Freelist{
		maxPage:       maxPage,
		releasedPages: []PageID{},
		released:      make(map[PageID]struct{}),
	}
}

// GetNextPage. return page id yang direuse dari releasedPages, kalau kosong return maxPage lalu increment maxPage.
// reused = true kalau page id berasal dari releasedPages.
func (fr *Freelist) GetNextPage() (pageID PageID, reused bool) {
	if len(fr.releasedPages) != 0 {
		pageID = fr.releasedPages[len(fr.releasedPages)-1]
		fr.releasedPages = fr.releasedPages[:len(fr.releasedPages)-1]
		delete(fr.released, pageID)
		return pageID, true
	}

	pageID = fr.maxPage
	fr.maxPage++
	return pageID, false
}

// ReleasePage. tambahkan page ke releasedPages. release page yang belum pernah dialokasi atau sudah dirilis diabaikan.
func (fr *Freelist) ReleasePage(page PageID) bool {
	if page >= fr.maxPage {
		return false
	}
	if _, ok := fr.released[page]; ok {
		return false
	}
	fr.releasedPages = append(fr.releasedPages, page)
	fr.released[page] = struct{}{}
	return true
}

func (fr *Freelist) IsReleased(page PageID) bool {
	_, ok := fr.released[page]
	return ok
}

func (fr *Freelist) MaxPage() PageID {
	return fr.maxPage
}

func (fr *Freelist) ReleasedPages() []PageID {
	return fr.releasedPages
}

// serialize. format: maxPage (4 byte), jumlah released page (4 byte), lalu tiap released page (4 byte).
func (fr *Freelist) serialize() []byte {
	page := NewPage(8 + 4*len(fr.releasedPages))
	page.PutUint32(0, uint32(fr.maxPage))
	page.PutUint32(4, uint32(len(fr.releasedPages)))

	pos := int32(8)
	for _, p := range fr.releasedPages {
		page.PutUint32(pos, uint32(p))
		pos += 4
	}
	return page.Contents()
}

func deserializeFreelist(buf []byte) (*Freelist, error) {
	if len(buf) < 8 {
		return nil, ErrCorruptMeta
	}
	page := NewPageFromByteSlice(buf)
	fr := NewFreelist(PageID(page.GetUint32(0)))

	count := int(page.GetUint32(4))
	if len(buf) != 8+4*count {
		return nil, ErrCorruptMeta
	}

	pos := int32(8)
	for i := 0; i < count; i++ {
		if !fr.ReleasePage(PageID(page.GetUint32(pos))) {
			return nil, ErrCorruptMeta
		}
		pos += 4
	}
	return fr, nil
}
