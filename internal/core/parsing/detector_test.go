package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	cases := map[string]FormatTag{
		"Report.DOCX":      TagDocx,
		"notes.txt":        TagTxt,
		"archive.tar.gz":   TagUnknown,
		"README":           TagUnknown,
		"photo.JPEG":       TagJpeg,
		"mail.eml":         TagEML,
		"dir.v2/sheet.csv": TagCSV,
		"trailing.":        TagUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, Detect(name), name)
	}
}

func TestFileHash(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", FileHash([]byte("abc")))
	assert.Equal(t, FileHash([]byte("same")), FileHash([]byte("same")))
	assert.NotEqual(t, FileHash([]byte("a")), FileHash([]byte("b")))
}
