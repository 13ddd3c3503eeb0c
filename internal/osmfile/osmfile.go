// Package osmfile reads and writes OSM XML files and applies geocoding
// results to elements tagged with ADDRESS and GEOCODE.
package osmfile

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Tag keys read and written on geocoded elements.
const (
	KeyAddress = "ADDRESS"
	KeyGeocode = "GEOCODE"
	KeyMethod  = "GEOCODE_METHOD"
	KeyResult  = "GEOCODE_RESULT"
)

// NotFound is the GEOCODE_RESULT value of an element that could not be placed.
const NotFound = "not found"

// File is a parsed OSM document. Unknown attributes and child elements are
// kept so that writing it back only changes what was geocoded.
type File struct {
	XMLName  xml.Name   `xml:"osm"`
	Attrs    []xml.Attr `xml:",any,attr"`
	Elements []*Element `xml:",any"`
}

// Generator is written to the generator attribute of new files.
const Generator = "geocode2osm"

// New returns an empty OSM 0.6 document that must not be uploaded as is.
func New() *File {
	return &File{Attrs: []xml.Attr{
		{Name: xml.Name{Local: "version"}, Value: "0.6"},
		{Name: xml.Name{Local: "generator"}, Value: Generator},
		{Name: xml.Name{Local: "upload"}, Value: "false"},
	}}
}

// AddNode appends a new node with the given id and position.
func (f *File) AddNode(id int64, lat, lon string) *Element {
	n := &Element{
		XMLName: xml.Name{Local: "node"},
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "id"}, Value: strconv.FormatInt(id, 10)},
			{Name: xml.Name{Local: "action"}, Value: "modify"},
			{Name: xml.Name{Local: "lat"}, Value: lat},
			{Name: xml.Name{Local: "lon"}, Value: lon},
		},
	}
	f.Elements = append(f.Elements, n)
	return n
}

// Element is a node, way, relation or any other child of <osm>.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []*Element `xml:",any"`
}

// Decode parses an OSM document from r.
func Decode(r io.Reader) (*File, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "osmfile: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "osmfile: decode")
	}
	return &f, nil
}

// Read parses the OSM file at path.
func Read(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "osmfile: open %s", path)
	}
	defer fh.Close() //nolint:errcheck
	return Decode(fh)
}

// Encode writes f as indented UTF-8 XML with a declaration.
func (f *File) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return eris.Wrap(err, "osmfile: write header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(f); err != nil {
		return eris.Wrap(err, "osmfile: encode")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "osmfile: encode")
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Write saves f to path.
func (f *File) Write(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "osmfile: create %s", path)
	}
	if err := f.Encode(fh); err != nil {
		_ = fh.Close()
		return err
	}
	if err := fh.Close(); err != nil {
		return eris.Wrapf(err, "osmfile: close %s", path)
	}
	return nil
}

// Pending returns the elements that carry an ADDRESS tag and a GEOCODE tag
// other than "no" or "done", in document order.
func (f *File) Pending() []*Element {
	var out []*Element
	for _, e := range f.Elements {
		if e.Pending() {
			out = append(out, e)
		}
	}
	return out
}

// Pending reports whether the element should be geocoded.
func (e *Element) Pending() bool {
	if _, ok := e.Tag(KeyAddress); !ok {
		return false
	}
	v, ok := e.Tag(KeyGeocode)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "no", "done":
		return false
	}
	return true
}

// Attr returns the value of attribute name.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or adds attribute name.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.Attrs {
		if a.Name.Local == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

func (e *Element) findTag(key string) *Element {
	for _, c := range e.Children {
		if c.XMLName.Local != "tag" {
			continue
		}
		if k, _ := c.Attr("k"); k == key {
			return c
		}
	}
	return nil
}

// Tag returns the value of tag key.
func (e *Element) Tag(key string) (string, bool) {
	t := e.findTag(key)
	if t == nil {
		return "", false
	}
	return t.Attr("v")
}

// SetTag sets or appends tag key.
func (e *Element) SetTag(key, value string) {
	if t := e.findTag(key); t != nil {
		t.SetAttr("v", value)
		return
	}
	e.Children = append(e.Children, NewTag(key, value))
}

// RemoveTag deletes tag key if present.
func (e *Element) RemoveTag(key string) {
	for i, c := range e.Children {
		if c.XMLName.Local != "tag" {
			continue
		}
		if k, _ := c.Attr("k"); k == key {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			return
		}
	}
}

// NewTag creates a <tag k=".." v=".."/> element.
func NewTag(key, value string) *Element {
	return &Element{
		XMLName: xml.Name{Local: "tag"},
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "k"}, Value: key},
			{Name: xml.Name{Local: "v"}, Value: value},
		},
	}
}

// FormatCoord formats a latitude or longitude with at most 7 decimals.
func FormatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 7, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// MarkFound moves the element to lat/lon and records how it was placed.
// GEOCODE becomes "done" so the element is skipped on the next run.
func (e *Element) MarkFound(lat, lon float64, method, result string) {
	e.SetAttr("lat", FormatCoord(lat))
	e.SetAttr("lon", FormatCoord(lon))
	e.SetAttr("action", "modify")
	e.SetTag(KeyMethod, method)
	e.SetTag(KeyResult, result)
	e.SetTag(KeyGeocode, "done")
}

// MarkNotFound records a failed attempt and leaves GEOCODE untouched so the
// element is retried after the address has been corrected.
func (e *Element) MarkNotFound() {
	e.SetTag(KeyResult, NotFound)
	e.RemoveTag(KeyMethod)
}
