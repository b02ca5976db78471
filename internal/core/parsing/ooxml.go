package parsing

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var errZipEntryMissing = errors.New("zip entry not found")

type ooxmlPackage struct {
	zr *zip.Reader
}

func openOOXML(data []byte) (*ooxmlPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open office container: %w", err)
	}
	return &ooxmlPackage{zr: zr}, nil
}

func (p *ooxmlPackage) read(name string) ([]byte, error) {
	name = strings.TrimPrefix(name, "/")
	for _, f := range p.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", errZipEntryMissing, name)
}

func (p *ooxmlPackage) names() []string {
	out := make([]string, 0, len(p.zr.File))
	for _, f := range p.zr.File {
		out = append(out, f.Name)
	}
	return out
}

// coreProperties mirrors docProps/core.xml; element names match any namespace.
type coreProperties struct {
	Title    string `xml:"title"`
	Subject  string `xml:"subject"`
	Creator  string `xml:"creator"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

// applyCoreProperties copies docProps/core.xml values into meta when present.
func (p *ooxmlPackage) applyCoreProperties(meta *DocumentMetadata) {
	b, err := p.read("docProps/core.xml")
	if err != nil {
		return
	}
	var props coreProperties
	if err := xml.Unmarshal(b, &props); err != nil {
		return
	}
	meta.Title = strings.TrimSpace(props.Title)
	meta.Subject = strings.TrimSpace(props.Subject)
	meta.Author = strings.TrimSpace(props.Creator)
	meta.CreatedAt = parseW3CDate(props.Created)
	meta.ModifiedAt = parseW3CDate(props.Modified)
}

func parseW3CDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
