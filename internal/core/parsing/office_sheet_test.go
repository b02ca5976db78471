package parsing

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRendersHeaderAndRows(t *testing.T) {
	e := NewOfficeSheetExtractor(Toolchain{})
	res := e.Extract(context.Background(), []byte("name,age\nAnn,30\n"), "people.csv", 1000, 200)
	require.True(t, res.Success, res.Error)

	require.Len(t, res.Content.Chunks, 1)
	chunk := res.Content.Chunks[0]
	assert.Equal(t, "csv_chunk_0", chunk.Source)
	assert.Contains(t, chunk.Content, "Headers: name | age")
	assert.Contains(t, chunk.Content, "name: Ann")
	assert.Contains(t, chunk.Content, "age: 30")
	assert.Contains(t, chunk.Content, "Row 1: name: Ann, age: 30")

	require.Len(t, res.Content.Tables, 1)
	assert.Equal(t, "data", res.Content.Tables[0].Source)
	assert.Equal(t, []string{"name", "age"}, res.Content.Tables[0].Headers())
	assert.Equal(t, 2, res.Metadata.Custom["row_count"])
	assert.Equal(t, 2, res.Metadata.Custom["column_count"])
	assert.Equal(t, TagCSV, res.Metadata.FileType)
}

func TestCSVSkipsBlankCellsAndNamesMissingHeaders(t *testing.T) {
	res := NewOfficeSheetExtractor(Toolchain{}).Extract(context.Background(),
		[]byte("a,b\n1,,extra\n"), "odd.csv", 1000, 0)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Content.FullText, "Row 1: a: 1, col_2: extra")
	assert.NotContains(t, res.Content.FullText, "b: ,")
}

func TestCSVLatin1(t *testing.T) {
	res := NewOfficeSheetExtractor(Toolchain{}).Extract(context.Background(),
		[]byte{'c', 'i', 't', 'y', '\n', 'M', 'a', 'l', 'm', 0xF6}, "cities.csv", 1000, 0)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Content.FullText, "city: Malmö")
}

func TestCSVEmpty(t *testing.T) {
	res := NewOfficeSheetExtractor(Toolchain{}).Extract(context.Background(), nil, "empty.csv", 1000, 0)
	assert.False(t, res.Success)
	assert.Equal(t, "Empty CSV file", res.Error)
	assert.True(t, errors.Is(res.Err(), ErrEmptyResult))
}

func workbookFixture(t *testing.T) []byte {
	return buildZip(t, map[string]string{
		"xl/workbook.xml": `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
			`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
			`<sheets><sheet name="Sales" sheetId="1" r:id="rId1"/><sheet name="Blank" sheetId="2" r:id="rId2"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Target="worksheets/sheet1.xml"/>` +
			`<Relationship Id="rId2" Target="worksheets/sheet2.xml"/></Relationships>`,
		"xl/sharedStrings.xml": `<sst><si><t>Region</t></si><si><t>Total</t></si><si><r><t>No</t></r><r><t>rth</t></r></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>` +
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>` +
			`<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>42</v></c></row>` +
			`<row r="3"></row>` +
			`<row r="4"><c r="B4" t="inlineStr"><is><t>n/a</t></is></c></row>` +
			`</sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<worksheet><sheetData/></worksheet>`,
		"docProps/core.xml": `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
			`xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Quarterly</dc:title></cp:coreProperties>`,
	})
}

func TestXLSXPerSheetChunks(t *testing.T) {
	res := NewOfficeSheetExtractor(Toolchain{}).Extract(context.Background(), workbookFixture(t), "book.xlsx", 1000, 200)
	require.True(t, res.Success, res.Error)

	require.Len(t, res.Content.Chunks, 1)
	chunk := res.Content.Chunks[0]
	assert.Equal(t, "sheet_Sales", chunk.Source)
	assert.Equal(t, "Sales", chunk.Heading)
	assert.Equal(t, "[Sheet: Sales]\nHeaders: Region | Total\nRegion: North, Total: 42\nTotal: n/a", chunk.Content)

	require.Len(t, res.Content.Tables, 1)
	assert.Equal(t, [][]string{{"Region", "Total"}, {"North", "42"}, {"", "n/a"}}, res.Content.Tables[0].Rows)
	require.NotNil(t, res.Metadata.SheetCount)
	assert.Equal(t, 2, *res.Metadata.SheetCount)
	assert.Equal(t, "Quarterly", res.Metadata.Title)
}

func TestXLSFallsBackWhenConversionUnavailable(t *testing.T) {
	res := NewOfficeSheetExtractor(Toolchain{}).Extract(context.Background(), workbookFixture(t), "legacy.xls", 1000, 200)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Warnings, "Could not convert .xls to .xlsx")
	assert.Equal(t, TagXls, res.Metadata.FileType)
}

func TestXLSUsesConverter(t *testing.T) {
	conv := &fakeConverter{out: workbookFixture(t)}
	res := NewOfficeSheetExtractor(Toolchain{Legacy: conv}).Extract(context.Background(), []byte("binary xls"), "legacy.xls", 1000, 200)
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, TagXls, conv.from)
	assert.Equal(t, TagXlsx, conv.to)
	// hash is of the original bytes, not the converted workbook
	assert.Equal(t, FileHash([]byte("binary xls")), res.Metadata.FileHash)
}

func TestXLSUnreadable(t *testing.T) {
	res := NewOfficeSheetExtractor(Toolchain{}).Extract(context.Background(), []byte("not a workbook"), "legacy.xls", 1000, 200)
	assert.False(t, res.Success)
	assert.Contains(t, res.Warnings, "Could not convert .xls to .xlsx")
}

func TestColumnIndex(t *testing.T) {
	for ref, want := range map[string]int{"A1": 0, "Z9": 25, "AA10": 26, "ab3": 27} {
		got, ok := columnIndex(ref)
		require.True(t, ok, ref)
		assert.Equal(t, want, got, ref)
	}
	for _, ref := range []string{"12", "XFE1", "AAAA1", "XFDZZZ1", "ZZZZZZZZZZZZZZZ1"} {
		_, ok := columnIndex(ref)
		assert.False(t, ok, ref)
	}
	got, ok := columnIndex("XFD1048576")
	require.True(t, ok)
	assert.Equal(t, 16383, got)
}

func TestSheetRowsIgnoreOutOfRangeRefs(t *testing.T) {
	sheetXML := []byte(`<worksheet><sheetData><row r="1">` +
		`<c r="A1" t="inlineStr"><is><t>first</t></is></c>` +
		`<c r="ZZZZZZZZZZZZZZZ1" t="inlineStr"><is><t>wrapped</t></is></c>` +
		`<c r="XFDZZZ1" t="inlineStr"><is><t>wide</t></is></c>` +
		`</row></sheetData></worksheet>`)

	var rows [][]string
	require.NotPanics(t, func() {
		var err error
		rows, err = parseSheetRows(sheetXML, nil)
		require.NoError(t, err)
	})
	assert.Equal(t, [][]string{{"first", "wrapped", "wide"}}, rows)
}

func TestBinaryXLSReadWithoutConverter(t *testing.T) {
	data, err := os.ReadFile("testdata/codes.xls")
	require.NoError(t, err)

	conv := &fakeConverter{err: errors.New("soffice not found")}
	res := NewOfficeSheetExtractor(Toolchain{Legacy: conv}).Extract(context.Background(), data, "codes.xls", 100000, 0)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, conv.calls)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, TagXls, res.Metadata.FileType)
	require.NotNil(t, res.Metadata.SheetCount)
	assert.Equal(t, 1, *res.Metadata.SheetCount)

	require.Len(t, res.Content.Tables, 1)
	table := res.Content.Tables[0]
	assert.Equal(t, "sheet_Table", table.Source)
	require.Len(t, table.Rows, 12)
	assert.Equal(t, []string{"Code", "Name", "Description"}, table.Rows[0])
	assert.Equal(t, []string{"code11", "name11", "description11"}, table.Rows[11])

	require.Len(t, res.Content.Chunks, 1)
	assert.Contains(t, res.Content.Chunks[0].Content, "[Sheet: Table]\nHeaders: Code | Name | Description\nCode: code1, Name: name1, Description: description1")
}

func TestBinaryXLSRejectsMalformedHeaders(t *testing.T) {
	header := func(difStart, difCount uint32) []byte {
		data := make([]byte, 4*512)
		copy(data, oleMagic)
		binary.LittleEndian.PutUint16(data[28:], 0xFFFE)
		binary.LittleEndian.PutUint16(data[30:], 9)
		binary.LittleEndian.PutUint32(data[68:], difStart)
		binary.LittleEndian.PutUint32(data[72:], difCount)
		return data
	}

	for name, data := range map[string][]byte{
		"zeroed":               append(append([]byte{}, oleMagic...), make([]byte, 600)...),
		"dif chain never ends": header(0, 0),
		"dif chain cycles":     header(1, 2),
	} {
		t.Run(name, func(t *testing.T) {
			res := NewOfficeSheetExtractor(Toolchain{}).Extract(context.Background(), data, "broken.xls", 1000, 0)
			assert.False(t, res.Success)
			assert.True(t, errors.Is(res.Err(), ErrExtraction))
		})
	}
}

func TestCheckCompoundHeaderAcceptsFixture(t *testing.T) {
	data, err := os.ReadFile("testdata/codes.xls")
	require.NoError(t, err)
	assert.NoError(t, checkCompoundHeader(data))
}
