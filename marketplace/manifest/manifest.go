// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package manifest decodes and parses web app manifests, hosted or
// inside packaged app archives.
package manifest

import (
	"bytes"
	"encoding/json"
	"io"
	"unicode/utf8"

	"github.com/zeebo/errs"
)

var (
	// Error is the default manifest errs class.
	Error = errs.Class("manifest")
	// ErrInvalid is returned for manifests that cannot be accepted. The
	// message is meant for developers.
	ErrInvalid = errs.Class("invalid manifest")
)

const (
	// ContentType is the required content type of hosted manifests.
	ContentType = "application/x-web-app-manifest+json"
	// FileName is the manifest location inside packaged apps.
	FileName = "manifest.webapp"
)

var boms = [][]byte{
	{0xEF, 0xBB, 0xBF},
	{0x00, 0x00, 0xFE, 0xFF},
	{0xFF, 0xFE, 0x00, 0x00},
	{0xFE, 0xFF},
	{0xFF, 0xFE},
}

// StripBOM removes a leading byte order mark.
func StripBOM(data []byte) []byte {
	for _, bom := range boms {
		if bytes.HasPrefix(data, bom) {
			return data[len(bom):]
		}
	}
	return data
}

// Manifest is a decoded manifest document.
type Manifest map[string]interface{}

// Decode strips the BOM, checks the encoding and decodes the JSON object.
func Decode(raw []byte) (Manifest, error) {
	data := StripBOM(raw)
	if !utf8.Valid(data) {
		return nil, ErrInvalid.New("Could not decode the webapp manifest file. Check your manifest file for special non-utf-8 characters.")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, ErrInvalid.New("The webapp manifest is not valid JSON.")
	}
	return m, nil
}

// Load reads the manifest from a hosted manifest or a packaged app.
func Load(r io.ReaderAt, size int64, limit int64) (_ Manifest, packaged bool, err error) {
	if IsZip(r, size) {
		z, err := OpenZip(r, size, limit)
		if err != nil {
			return nil, true, err
		}
		raw, err := z.Extract(FileName)
		if err != nil {
			if ErrNotInArchive.Has(err) {
				return nil, true, ErrInvalid.New(`The file "manifest.webapp" was not found at the root of the packaged app archive.`)
			}
			return nil, true, err
		}
		m, err := Decode(raw)
		return m, true, err
	}

	raw, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, false, Error.Wrap(err)
	}
	m, err := Decode(raw)
	return m, false, err
}

// String returns the string value of key or "".
func (m Manifest) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Object returns the object value of key or nil.
func (m Manifest) Object(key string) map[string]interface{} {
	obj, _ := m[key].(map[string]interface{})
	return obj
}

// Locales returns the "locales" object.
func (m Manifest) Locales() (map[string]map[string]interface{}, error) {
	raw, ok := m["locales"]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, ErrInvalid.New("Your specified app locales are not in the correct format.")
	}

	locales := make(map[string]map[string]interface{}, len(obj))
	for locale, value := range obj {
		props, _ := value.(map[string]interface{})
		if props == nil {
			props = map[string]interface{}{}
		}
		locales[locale] = props
	}
	return locales, nil
}

// JSON encodes the manifest.
func (m Manifest) JSON() string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Message returns the developer facing text of an ErrInvalid error.
func Message(err error) string {
	if ErrInvalid.Has(err) {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			if inner := unwrapper.Unwrap(); inner != nil {
				return inner.Error()
			}
		}
	}
	return err.Error()
}
