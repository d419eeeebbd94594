package dcp

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const assetMapNamespace = "http://www.smpte-ra.org/schemas/429-9/2007/AM"

// AssetMapFile is the name of the regenerated index in a title directory.
const AssetMapFile = "ASSETMAP.xml"

type outChunk struct {
	Path        string `xml:"Path"`
	VolumeIndex int    `xml:"VolumeIndex"`
	Offset      int64  `xml:"Offset"`
	Length      int64  `xml:"Length"`
}

type outAsset struct {
	ID          string     `xml:"Id"`
	PackingList *bool      `xml:"PackingList,omitempty"`
	Chunks      []outChunk `xml:"ChunkList>Chunk"`
}

type outAssetMap struct {
	XMLName        xml.Name   `xml:"AssetMap"`
	Xmlns          string     `xml:"xmlns,attr"`
	ID             string     `xml:"Id"`
	AnnotationText string     `xml:"AnnotationText,omitempty"`
	Creator        string     `xml:"Creator"`
	VolumeCount    int        `xml:"VolumeCount"`
	IssueDate      string     `xml:"IssueDate"`
	Issuer         string     `xml:"Issuer"`
	Assets         []outAsset `xml:"AssetList>Asset"`
}

// WriteAssetMap writes am as an ASSETMAP document at path. The file is
// written to a temporary name first and renamed into place.
func WriteAssetMap(path string, am *AssetMap) error {
	doc := outAssetMap{
		Xmlns:          assetMapNamespace,
		ID:             "urn:uuid:" + am.ID,
		AnnotationText: am.AnnotationText,
		Creator:        am.Creator,
		VolumeCount:    1,
		IssueDate:      am.IssueDate,
		Issuer:         am.Issuer,
	}
	if doc.IssueDate == "" {
		doc.IssueDate = time.Now().UTC().Format(time.RFC3339)
	}
	for _, entry := range am.Entries {
		asset := outAsset{
			ID:     "urn:uuid:" + entry.ID,
			Chunks: []outChunk{{Path: entry.Path, VolumeIndex: 1, Length: entry.Length}},
		}
		if entry.PackingList {
			flag := true
			asset.PackingList = &flag
		}
		doc.Assets = append(doc.Assets, asset)
	}

	payload, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode assetmap: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append([]byte(xml.Header), payload...), 0o644); err != nil {
		return fmt.Errorf("write assetmap: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write assetmap: %w", err)
	}
	return nil
}

// Digest returns the base64 SHA-1 digest of the file at path, the form
// packing lists carry.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the digest of every indexed asset that the packing list
// carries a hash for.
func Verify(pkg *Package) error {
	for _, entry := range pkg.AssetMap.Entries {
		asset := pkg.Assets[entry.ID]
		if asset == nil || asset.Hash == "" {
			continue
		}
		path, err := asset.AbsPath(pkg.Dir)
		if err != nil {
			return err
		}
		digest, err := Digest(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMissingAsset, asset.ID, err)
		}
		if digest != asset.Hash {
			return fmt.Errorf("%w: %s", ErrHashMismatch, asset.ID)
		}
	}
	return nil
}

// Parser parses packages for the ingest pipeline.
type Parser struct {
	VerifyHashes bool
}

// Parse reads dir and optionally verifies asset digests.
func (p Parser) Parse(dir string) (*Package, error) {
	pkg, err := Parse(dir)
	if err != nil {
		return nil, err
	}
	if p.VerifyHashes {
		if err := Verify(pkg); err != nil {
			return nil, err
		}
	}
	return pkg, nil
}
