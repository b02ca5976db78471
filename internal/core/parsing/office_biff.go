package parsing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/extrame/xls"
)

// oleMagic opens every compound-document file, legacy .xls included.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// BIFF8 rows never hold more than 256 columns.
const biffMaxColumns = 256

const (
	oleSectorSize = 512
	oleEndOfChain = 0xFFFFFFFE
)

func isOLE(data []byte) bool {
	return bytes.HasPrefix(data, oleMagic)
}

// readBIFFSheets reads a legacy binary workbook directly. The xls reader
// panics on malformed streams; those panics come back as errors.
func readBIFFSheets(data []byte) (sheets []sheet, err error) {
	defer func() {
		if r := recover(); r != nil {
			sheets, err = nil, fmt.Errorf("read xls workbook: %v", r)
		}
	}()

	if err := checkCompoundHeader(data); err != nil {
		return nil, fmt.Errorf("open xls workbook: %w", err)
	}
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls workbook: %w", err)
	}
	if wb == nil {
		return nil, errors.New("open xls workbook: no Workbook stream")
	}

	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		sh := sheet{name: ws.Name}
		for r := 0; r <= int(ws.MaxRow); r++ {
			sh.rows = append(sh.rows, biffRow(ws, r))
		}
		sheets = append(sheets, sh)
	}
	return sheets, nil
}

// checkCompoundHeader rejects headers the xls reader would loop or allocate
// on without bound: only 512-byte sectors, allocation table counts that fit
// the file, and a DIFAT chain that ends within its declared length.
func checkCompoundHeader(data []byte) error {
	if len(data) < oleSectorSize {
		return errors.New("truncated compound file header")
	}
	le := binary.LittleEndian
	if le.Uint16(data[28:]) != 0xFFFE || le.Uint16(data[30:]) != 9 {
		return errors.New("unsupported compound file layout")
	}

	sectors := uint32(len(data)/oleSectorSize - 1)
	fatCount := le.Uint32(data[44:])
	miniFatCount := le.Uint32(data[64:])
	difCount := le.Uint32(data[72:])
	if fatCount > sectors || miniFatCount > sectors || difCount > sectors {
		return errors.New("allocation table larger than file")
	}

	sid := le.Uint32(data[68:])
	for i := uint32(0); sid != oleEndOfChain; i++ {
		if i >= difCount || sid >= sectors {
			return errors.New("malformed sector allocation chain")
		}
		off := oleSectorSize + int(sid)*oleSectorSize
		sid = le.Uint32(data[off+oleSectorSize-4:])
	}
	return nil
}

// biffRow returns the cells of row i, or nil when the sheet has no such row.
func biffRow(ws *xls.WorkSheet, i int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := ws.Row(i)
	last := row.LastCol()
	if last <= 0 || last > biffMaxColumns {
		last = biffMaxColumns
	}
	for c := 0; c < last; c++ {
		v := row.Col(c)
		if v == "" {
			continue
		}
		for len(cells) < c {
			cells = append(cells, "")
		}
		cells = append(cells, v)
	}
	return cells
}
