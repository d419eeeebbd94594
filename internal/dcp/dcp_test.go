package dcp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey-austin/screener/internal/dcp/dcptest"
)

func TestParseMultiTitlePackage(t *testing.T) {
	dir := t.TempDir()
	fixture := dcptest.Simple("Feature", "Trailer")
	dcptest.MustWrite(t, dir, fixture)

	pkg, err := Parse(dir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pkg.CPLs) != 2 {
		t.Fatalf("expected 2 cpls, got %d", len(pkg.CPLs))
	}
	if pkg.PackingList.ID != fixture.PKLID {
		t.Fatalf("expected pkl %s, got %s", fixture.PKLID, pkg.PackingList.ID)
	}
	if pkg.Assets[fixture.PKLID].Kind != KindPKL {
		t.Fatalf("expected pkl kind")
	}

	byID := map[string]*CPL{}
	for _, cpl := range pkg.CPLs {
		byID[cpl.ID] = cpl
	}
	for _, title := range fixture.Titles {
		cpl, ok := byID[title.ID]
		if !ok {
			t.Fatalf("expected cpl %s", title.ID)
		}
		if cpl.ContentTitleText != title.Text {
			t.Fatalf("expected title %q, got %q", title.Text, cpl.ContentTitleText)
		}
		if cpl.ContentVersion != title.Text+" v1" {
			t.Fatalf("unexpected version %q", cpl.ContentVersion)
		}
		if len(cpl.AssetIDs()) != 2 {
			t.Fatalf("expected 2 assets, got %v", cpl.AssetIDs())
		}
		if cpl.DurationFrames() != 240 || cpl.DurationSeconds() != 10 {
			t.Fatalf("unexpected duration %d/%d", cpl.DurationFrames(), cpl.DurationSeconds())
		}
		if pkg.Assets[title.ID].Kind != KindCPL {
			t.Fatalf("expected cpl kind for %s", title.ID)
		}
		picture := pkg.Assets[title.Tracks[0].ID]
		if picture.Kind != KindPicture || picture.Ext() != ".mxf" || picture.Hash == "" {
			t.Fatalf("unexpected picture asset %+v", picture)
		}
	}
	if err := CheckFiles(pkg); err != nil {
		t.Fatalf("check files: %v", err)
	}
	if err := Verify(pkg); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestParseMissingAssetMap(t *testing.T) {
	if _, err := Parse(t.TempDir()); !errors.Is(err, ErrNoAssetMap) {
		t.Fatalf("expected no assetmap error, got %v", err)
	}
}

func TestParseMissingPackingList(t *testing.T) {
	dir := t.TempDir()
	fixture := dcptest.Simple("Feature")
	dcptest.MustWrite(t, dir, fixture)
	if err := os.Remove(filepath.Join(dir, fixture.PKLFile())); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := Parse(dir); !errors.Is(err, ErrNoPackingList) {
		t.Fatalf("expected packing list error, got %v", err)
	}
}

func TestParseRejectsNonUUIDComposition(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	fixture := dcptest.Simple("Feature")
	fixture.Titles[0].ID = "../victim"
	dcptest.MustWrite(t, dir, fixture)

	if _, err := Parse(dir); !errors.Is(err, ErrInvalidPackage) {
		t.Fatalf("expected invalid package, got %v", err)
	}
}

func TestParseRejectsChunkPathOutsidePackage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	fixture := dcptest.Simple("Feature")
	fixture.Titles[0].Tracks[1].Name = "../sound.mxf"
	dcptest.MustWrite(t, dir, fixture)

	if _, err := Parse(dir); !errors.Is(err, ErrInvalidPackage) {
		t.Fatalf("expected invalid package, got %v", err)
	}
}

func TestJoinPath(t *testing.T) {
	got, err := JoinPath("/pkg", `reel1\picture.mxf`)
	if err != nil || got != filepath.Join("/pkg", "reel1", "picture.mxf") {
		t.Fatalf("expected nested path, got %q %v", got, err)
	}
	for _, rel := range []string{"", "/etc/passwd", "../x.mxf", "a/../../x.mxf", "a/.."} {
		if _, err := JoinPath("/pkg", rel); !errors.Is(err, ErrInvalidPackage) {
			t.Fatalf("expected %q to be rejected, got %v", rel, err)
		}
	}
}

func TestCheckID(t *testing.T) {
	if err := CheckID("0b5a3c3e-6d4e-4f1a-9c53-2f1e6a7b8c9d"); err != nil {
		t.Fatalf("expected canonical uuid accepted, got %v", err)
	}
	for _, id := range []string{"", "../victim", "urn:uuid:0b5a3c3e-6d4e-4f1a-9c53-2f1e6a7b8c9d", "0B5A3C3E-6D4E-4F1A-9C53-2F1E6A7B8C9D"} {
		if err := CheckID(id); !errors.Is(err, ErrInvalidPackage) {
			t.Fatalf("expected %q to be rejected, got %v", id, err)
		}
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	fixture := dcptest.Simple("Feature")
	dcptest.MustWrite(t, dir, fixture)
	track := fixture.Titles[0].Tracks[0]
	if err := os.WriteFile(filepath.Join(dir, track.Name), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := (Parser{}).Parse(dir); err != nil {
		t.Fatalf("expected parse without verification to pass, got %v", err)
	}
	if _, err := (Parser{VerifyHashes: true}).Parse(dir); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestCheckFilesReportsMissingAsset(t *testing.T) {
	dir := t.TempDir()
	fixture := dcptest.Simple("Feature")
	dcptest.MustWrite(t, dir, fixture)
	pkg, err := Parse(dir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, fixture.Titles[0].Tracks[1].Name)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := CheckFiles(pkg); !errors.Is(err, ErrMissingAsset) {
		t.Fatalf("expected missing asset, got %v", err)
	}
}

func TestWriteAssetMapRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fixture := dcptest.Simple("Feature")
	dcptest.MustWrite(t, dir, fixture)
	pkg, err := Parse(dir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "ASSETMAP")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := WriteAssetMap(filepath.Join(dir, AssetMapFile), pkg.AssetMap); err != nil {
		t.Fatalf("write assetmap: %v", err)
	}
	again, err := Parse(dir)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if again.AssetMap.ID != pkg.AssetMap.ID || len(again.AssetMap.Entries) != len(pkg.AssetMap.Entries) {
		t.Fatalf("expected regenerated assetmap to match")
	}
	if len(again.CPLs) != 1 || again.CPLs[0].ID != fixture.Titles[0].ID {
		t.Fatalf("expected cpl after regeneration")
	}
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	fixture := dcptest.Simple("Feature")
	dcptest.MustWrite(t, dir, fixture)
	pkg, err := Parse(dir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	info := pkg.CPLs[0].Info()
	if info.UUID != fixture.Titles[0].ID || info.ContentTitleText != "Feature" {
		t.Fatalf("unexpected info %+v", info)
	}
	if len(info.Reels) != 1 || len(info.Reels[0].Assets) != 2 {
		t.Fatalf("expected one reel with two assets")
	}
	if info.EditRate[0] != 24 || info.EditRate[1] != 1 {
		t.Fatalf("unexpected edit rate %v", info.EditRate)
	}
}

func TestStripURN(t *testing.T) {
	if stripURN(" urn:uuid:ABC ") != "abc" {
		t.Fatalf("expected urn prefix stripped and lowered")
	}
	if _, err := parseEditRate("24"); err == nil {
		t.Fatalf("expected edit rate error")
	}
}
