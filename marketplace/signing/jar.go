// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package signing

import (
	"archive/zip"
	"bytes"
	"crypto/sha1" //nolint:gosec // JAR signatures require SHA1 digests
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/errs"
)

// Paths of the signature files inside a signed package.
const (
	ManifestPath  = "META-INF/manifest.mf"
	SignaturePath = "META-INF/zigbert.sf"
	PKCS7Path     = "META-INF/zigbert.rsa"
	IDsPath       = "META-INF/ids.json"
)

// entry is a file of a package and its digests.
type entry struct {
	name   string
	sha1   string
	sha256 string
}

// Jar is the signature data of a package before the PKCS7 signature is
// added.
type Jar struct {
	entries  []entry
	ids      []byte
	omit     bool
	manifest []byte
	sections map[string][]byte
}

func isSignatureFile(name string) bool {
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "META-INF/") {
		return false
	}
	switch {
	case upper == strings.ToUpper(IDsPath),
		strings.HasSuffix(upper, ".MF"),
		strings.HasSuffix(upper, ".SF"),
		strings.HasSuffix(upper, ".RSA"),
		strings.HasSuffix(upper, ".DSA"):
		return true
	}
	return false
}

func digests(data []byte) (string, string) {
	s1 := sha1.Sum(data) //nolint:gosec
	s256 := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(s1[:]), base64.StdEncoding.EncodeToString(s256[:])
}

// NewJar computes the manifest and signature of a package. ids is stored
// as META-INF/ids.json. When omitSections is set the signature only
// contains the digest of the whole manifest.
func NewJar(archive *zip.Reader, ids []byte, omitSections bool) (_ *Jar, err error) {
	jar := &Jar{ids: ids, omit: omitSections, sections: map[string][]byte{}}

	for _, file := range archive.File {
		if file.FileInfo().IsDir() || isSignatureFile(file.Name) {
			continue
		}
		e, err := fileEntry(file)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		jar.entries = append(jar.entries, e)
	}
	idsSHA1, idsSHA256 := digests(ids)
	jar.entries = append(jar.entries, entry{name: IDsPath, sha1: idsSHA1, sha256: idsSHA256})

	var manifest bytes.Buffer
	manifest.WriteString("Manifest-Version: 1.0\n\n")
	for _, e := range jar.entries {
		section := fmt.Sprintf("Name: %s\nDigest-Algorithms: SHA1 SHA256\nSHA1-Digest: %s\nSHA256-Digest: %s\n\n",
			e.name, e.sha1, e.sha256)
		jar.sections[e.name] = []byte(section)
		manifest.WriteString(section)
	}
	jar.manifest = manifest.Bytes()
	return jar, nil
}

func fileEntry(file *zip.File) (_ entry, err error) {
	rc, err := file.Open()
	if err != nil {
		return entry{}, err
	}
	defer func() { err = errs.Combine(err, rc.Close()) }()

	h1, h256 := sha1.New(), sha256.New() //nolint:gosec
	if _, err := io.Copy(io.MultiWriter(h1, h256), rc); err != nil {
		return entry{}, err
	}
	return entry{
		name:   file.Name,
		sha1:   base64.StdEncoding.EncodeToString(h1.Sum(nil)),
		sha256: base64.StdEncoding.EncodeToString(h256.Sum(nil)),
	}, nil
}

// Manifest returns the contents of META-INF/manifest.mf.
func (jar *Jar) Manifest() []byte { return jar.manifest }

// Signature returns the contents of META-INF/zigbert.sf, the data sent to
// the signing server.
func (jar *Jar) Signature() []byte {
	var sf bytes.Buffer
	manifestSHA1, manifestSHA256 := digests(jar.manifest)
	sf.WriteString("Signature-Version: 1.0\n")
	sf.WriteString("SHA1-Digest-Manifest: " + manifestSHA1 + "\n")
	sf.WriteString("SHA256-Digest-Manifest: " + manifestSHA256 + "\n\n")
	if jar.omit {
		return sf.Bytes()
	}
	for _, e := range jar.entries {
		sectionSHA1, sectionSHA256 := digests(jar.sections[e.name])
		fmt.Fprintf(&sf, "Name: %s\nDigest-Algorithms: SHA1 SHA256\nSHA1-Digest: %s\nSHA256-Digest: %s\n\n",
			e.name, sectionSHA1, sectionSHA256)
	}
	return sf.Bytes()
}

// WriteSigned writes the signed package to w. The PKCS7 signature is the
// first entry, followed by the original files and the signature files.
func (jar *Jar) WriteSigned(w io.Writer, archive *zip.Reader, pkcs7 []byte) (err error) {
	zw := zip.NewWriter(w)

	add := func(name string, data []byte) error {
		fw, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = fw.Write(data)
		return err
	}

	if err := add(PKCS7Path, pkcs7); err != nil {
		return Error.Wrap(errs.Combine(err, zw.Close()))
	}
	for _, file := range archive.File {
		if file.FileInfo().IsDir() || isSignatureFile(file.Name) {
			continue
		}
		if err := copyEntry(zw, file); err != nil {
			return Error.Wrap(errs.Combine(err, zw.Close()))
		}
	}
	for _, f := range []struct {
		name string
		data []byte
	}{
		{IDsPath, jar.ids},
		{ManifestPath, jar.manifest},
		{SignaturePath, jar.Signature()},
	} {
		if err := add(f.name, f.data); err != nil {
			return Error.Wrap(errs.Combine(err, zw.Close()))
		}
	}
	return Error.Wrap(zw.Close())
}

func copyEntry(zw *zip.Writer, file *zip.File) (err error) {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, rc.Close()) }()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     file.Name,
		Method:   file.Method,
		Modified: file.Modified,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, rc)
	return err
}
