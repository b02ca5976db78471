package parsing

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

var knownTags = map[string]FormatTag{
	"docx": TagDocx, "doc": TagDoc,
	"pptx": TagPptx, "ppt": TagPpt,
	"xlsx": TagXlsx, "xls": TagXls, "csv": TagCSV,
	"pdf": TagPDF,
	"txt": TagTxt, "md": TagMd, "html": TagHTML, "json": TagJSON, "xml": TagXML, "rtf": TagRTF,
	"eml": TagEML,
	"msg": TagMsg, "pst": TagPst,
	"png": TagPng, "jpg": TagJpg, "jpeg": TagJpeg, "tiff": TagTiff,
	"odt": TagOdt, "ods": TagOds, "odp": TagOdp,
}

// Detect maps a filename to its format tag using the lower-cased text after
// the last dot. It never fails; anything unrecognized is TagUnknown.
func Detect(filename string) FormatTag {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 {
		return TagUnknown
	}
	if tag, ok := knownTags[ext[1:]]; ok {
		return tag
	}
	return TagUnknown
}

// FileHash is the hex SHA-256 of the unmodified bytes.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newMetadata(data []byte, filename string, tag FormatTag) *DocumentMetadata {
	return &DocumentMetadata{
		Filename: filename,
		FileType: tag,
		FileSize: int64(len(data)),
		FileHash: FileHash(data),
		Custom:   map[string]any{},
	}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
