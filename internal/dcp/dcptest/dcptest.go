// Package dcptest writes small DCP fixtures for tests.
package dcptest

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// Track is a track file referenced by a title.
type Track struct {
	ID      string
	Kind    string
	Name    string
	Content []byte
	Frames  int64
}

// Title is a composition in the fixture.
type Title struct {
	ID     string
	Text   string
	Tracks []Track
}

// Package describes a fixture package.
type Package struct {
	AssetMapID string
	PKLID      string
	Titles     []Title
}

// Simple builds a package with one title per text. Each title has its own
// picture and sound track.
func Simple(texts ...string) Package {
	pkg := Package{AssetMapID: uuid.NewString(), PKLID: uuid.NewString()}
	for i, text := range texts {
		title := Title{ID: uuid.NewString(), Text: text}
		for _, kind := range []string{"picture", "sound"} {
			id := uuid.NewString()
			title.Tracks = append(title.Tracks, Track{
				ID:      id,
				Kind:    kind,
				Name:    fmt.Sprintf("%s_%d_%s.mxf", kind, i, id[:8]),
				Content: []byte(fmt.Sprintf("%s essence for %s", kind, text)),
				Frames:  240,
			})
		}
		pkg.Titles = append(pkg.Titles, title)
	}
	return pkg
}

// CPLFile returns the file name used for a title's composition.
func CPLFile(title Title) string {
	return title.ID + "_cpl.xml"
}

// PKLFile returns the packing list file name.
func (p Package) PKLFile() string {
	return "pkl_" + p.PKLID + ".xml"
}

// Write creates the package files in dir.
func Write(dir string, pkg Package) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	type file struct {
		id   string
		name string
		body []byte
		pkl  bool
		typ  string
	}
	var files []file
	written := map[string]bool{}
	for _, title := range pkg.Titles {
		for _, track := range title.Tracks {
			if written[track.ID] {
				continue
			}
			written[track.ID] = true
			files = append(files, file{id: track.ID, name: track.Name, body: track.Content, typ: "application/mxf"})
		}
		files = append(files, file{id: title.ID, name: CPLFile(title), body: []byte(cplXML(title)), typ: "text/xml;asdcpKind=CPL"})
	}

	var pkl strings.Builder
	fmt.Fprintf(&pkl, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<PackingList xmlns=\"http://www.smpte-ra.org/schemas/429-8/2007/PKL\">\n")
	fmt.Fprintf(&pkl, "  <Id>urn:uuid:%s</Id>\n  <AnnotationText>fixture</AnnotationText>\n  <Issuer>dcptest</Issuer>\n  <AssetList>\n", pkg.PKLID)
	for _, f := range files {
		sum := sha1.Sum(f.body)
		fmt.Fprintf(&pkl, "    <Asset>\n      <Id>urn:uuid:%s</Id>\n      <Hash>%s</Hash>\n      <Size>%d</Size>\n      <Type>%s</Type>\n      <OriginalFileName>%s</OriginalFileName>\n    </Asset>\n",
			f.id, base64.StdEncoding.EncodeToString(sum[:]), len(f.body), f.typ, f.name)
	}
	pkl.WriteString("  </AssetList>\n</PackingList>\n")
	files = append(files, file{id: pkg.PKLID, name: pkg.PKLFile(), body: []byte(pkl.String()), pkl: true})

	var am strings.Builder
	fmt.Fprintf(&am, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<AssetMap xmlns=\"http://www.smpte-ra.org/schemas/429-9/2007/AM\">\n")
	fmt.Fprintf(&am, "  <Id>urn:uuid:%s</Id>\n  <Creator>dcptest</Creator>\n  <VolumeCount>1</VolumeCount>\n  <IssueDate>2026-01-01T00:00:00Z</IssueDate>\n  <Issuer>dcptest</Issuer>\n  <AssetList>\n", pkg.AssetMapID)
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f.name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, f.body, 0o644); err != nil {
			return err
		}
		am.WriteString("    <Asset>\n")
		fmt.Fprintf(&am, "      <Id>urn:uuid:%s</Id>\n", f.id)
		if f.pkl {
			am.WriteString("      <PackingList>true</PackingList>\n")
		}
		fmt.Fprintf(&am, "      <ChunkList>\n        <Chunk>\n          <Path>%s</Path>\n          <VolumeIndex>1</VolumeIndex>\n          <Offset>0</Offset>\n          <Length>%d</Length>\n        </Chunk>\n      </ChunkList>\n", f.name, len(f.body))
		am.WriteString("    </Asset>\n")
	}
	am.WriteString("  </AssetList>\n</AssetMap>\n")
	return os.WriteFile(filepath.Join(dir, "ASSETMAP"), []byte(am.String()), 0o644)
}

// MustWrite writes the package or fails the test.
func MustWrite(t testing.TB, dir string, pkg Package) {
	t.Helper()
	if err := Write(dir, pkg); err != nil {
		t.Fatalf("write dcp fixture: %v", err)
	}
}

// Files lists the relative paths Write creates for pkg, ASSETMAP included.
func Files(pkg Package) []string {
	seen := map[string]bool{}
	var out []string
	for _, title := range pkg.Titles {
		for _, track := range title.Tracks {
			if !seen[track.ID] {
				seen[track.ID] = true
				out = append(out, track.Name)
			}
		}
		out = append(out, CPLFile(title))
	}
	return append(out, pkg.PKLFile(), "ASSETMAP")
}

func cplXML(title Title) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<CompositionPlaylist xmlns=\"http://www.smpte-ra.org/schemas/429-7/2006/CPL\">\n")
	fmt.Fprintf(&b, "  <Id>urn:uuid:%s</Id>\n  <ContentTitleText>%s</ContentTitleText>\n  <Issuer>dcptest</Issuer>\n  <ContentKind>feature</ContentKind>\n", title.ID, title.Text)
	fmt.Fprintf(&b, "  <ContentVersion>\n    <Id>urn:uuid:%s</Id>\n    <LabelText>%s v1</LabelText>\n  </ContentVersion>\n", title.ID, title.Text)
	b.WriteString("  <ReelList>\n    <Reel>\n")
	fmt.Fprintf(&b, "      <Id>urn:uuid:%s</Id>\n      <AssetList>\n", uuid.NewSHA1(uuid.NameSpaceOID, []byte(title.ID)).String())
	for _, track := range title.Tracks {
		element := "MainPicture"
		switch track.Kind {
		case "sound":
			element = "MainSound"
		case "subtitle":
			element = "MainSubtitle"
		}
		fmt.Fprintf(&b, "        <%s>\n          <Id>urn:uuid:%s</Id>\n          <EditRate>24 1</EditRate>\n          <IntrinsicDuration>%d</IntrinsicDuration>\n          <EntryPoint>0</EntryPoint>\n          <Duration>%d</Duration>\n        </%s>\n",
			element, track.ID, track.Frames, track.Frames, element)
	}
	b.WriteString("      </AssetList>\n    </Reel>\n  </ReelList>\n</CompositionPlaylist>\n")
	return b.String()
}
