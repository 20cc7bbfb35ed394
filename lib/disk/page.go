package disk

import (
	"encoding/binary"
	"errors"
)

// Page . view di atas byte array satu page (ukuran PAGE_SIZE). tidak copy data, jadi perubahan lewat Page langsung
// kelihatan di frame buffer pool.
type Page struct {
	data []byte
}

var ErrPageOverflow = errors.New("put bytes out of bound")

func NewPage(blockSize int) *Page {
	return &Page{data: make([]byte, blockSize)}
}

func NewPageFromByteSlice(b []byte) *Page {
	return &Page{data: b}
}

func (p *Page) GetInt(offset int32) int32 {
	return int32(p.GetUint32(offset))
}

func (p *Page) PutInt(offset int32, val int32) {
	p.PutUint32(offset, uint32(val))
}

func (p *Page) PutUint32(offset int32, val uint32) {
	binary.LittleEndian.PutUint32(p.data[offset:], val)
}

func (p *Page) GetUint32(offset int32) uint32 {
	return binary.LittleEndian.Uint32(p.data[offset:])
}

func (p *Page) PutUint64(offset int32, val uint64) {
	binary.LittleEndian.PutUint64(p.data[offset:], val)
}

func (p *Page) GetUint64(offset int32) uint64 {
	return binary.LittleEndian.Uint64(p.data[offset:])
}

// GetBytes. return copy byte array di posisi = offset. 4 byte pertama adalah panjang bytes nya.
func (p *Page) GetBytes(offset int32) []byte {
	length := p.GetInt(offset)
	b := make([]byte, length)
	copy(b, p.data[offset+4:offset+4+length])
	return b
}

// PutBytes. set byte array (length-prefixed) ke page di posisi = offset.
func (p *Page) PutBytes(offset int32, b []byte) (int, error) {
	if int(offset)+4+len(b) > len(p.data) {
		return 0, ErrPageOverflow
	}
	p.PutInt(offset, int32(len(b)))
	copy(p.data[offset+4:], b)
	return len(b) + 4, nil
}

func (p *Page) GetString(offset int32) string {
	return string(p.GetBytes(offset))
}

func (p *Page) PutString(offset int32, s string) (int, error) {
	return p.PutBytes(offset, []byte(s))
}

func (p *Page) Contents() []byte {
	return p.data
}

func (p *Page) Size() int {
	return len(p.data)
}
