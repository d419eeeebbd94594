// Package dcp reads Digital Cinema Packages: the ASSETMAP index, the packing
// list and the composition playlists it names.
package dcp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mikey-austin/screener/pkg/screener"
)

var (
	// ErrNoAssetMap reports a directory without an ASSETMAP.
	ErrNoAssetMap = errors.New("dcp: assetmap not found")
	// ErrNoPackingList reports an ASSETMAP that names no packing list.
	ErrNoPackingList = errors.New("dcp: packing list not found")
	// ErrNoCPL reports a package without compositions.
	ErrNoCPL = errors.New("dcp: no composition playlists")
	// ErrMissingAsset reports an asset named by a composition that is absent.
	ErrMissingAsset = errors.New("dcp: missing asset")
	// ErrHashMismatch reports an asset whose digest differs from the packing list.
	ErrHashMismatch = errors.New("dcp: hash mismatch")
	// ErrInvalidPackage reports an id that is not a uuid or a chunk path
	// that leaves the package directory.
	ErrInvalidPackage = errors.New("dcp: invalid package")
)

// Asset kinds.
const (
	KindPicture  = "picture"
	KindSound    = "sound"
	KindSubtitle = "subtitle"
	KindCPL      = "cpl"
	KindPKL      = "pkl"
	KindOther    = "other"
)

// Package is a parsed DCP directory.
type Package struct {
	Dir         string
	AssetMap    *AssetMap
	PackingList *PackingList
	CPLs        []*CPL
	Assets      map[string]*Asset
}

// Asset is a file of the package.
type Asset struct {
	ID     string
	Path   string
	Length int64
	Hash   string
	Type   string
	Kind   string
}

// Ext returns the file extension of the asset including the dot.
func (a *Asset) Ext() string {
	return filepath.Ext(a.Path)
}

// AbsPath returns the asset path within dir.
func (a *Asset) AbsPath(dir string) (string, error) {
	return JoinPath(dir, a.Path)
}

// JoinPath joins a package-relative chunk path onto dir. Absolute paths and
// paths with a parent element are rejected.
func JoinPath(dir, rel string) (string, error) {
	clean, err := chunkPath(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

// CheckID reports an error unless id is a canonical lowercase uuid, the
// form Parse produces. Ids name files, so nothing else is accepted.
func CheckID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return fmt.Errorf("%w: id %q is not a uuid", ErrInvalidPackage, id)
	}
	return nil
}

// AssetMap is the package index.
type AssetMap struct {
	ID             string
	AnnotationText string
	Creator        string
	Issuer         string
	IssueDate      string
	Entries        []AssetMapEntry
}

// AssetMapEntry maps an asset id to its file.
type AssetMapEntry struct {
	ID          string
	PackingList bool
	Path        string
	Length      int64
}

// PackingList lists every asset with its digest.
type PackingList struct {
	ID             string
	AnnotationText string
	Issuer         string
	Path           string
	Assets         []PackingAsset
}

// PackingAsset is a packing list entry.
type PackingAsset struct {
	ID               string
	Hash             string
	Size             int64
	Type             string
	OriginalFileName string
}

// CPL is a composition playlist.
type CPL struct {
	ID               string
	ContentTitleText string
	Issuer           string
	ContentKind      string
	ContentVersion   string
	Path             string
	Reels            []Reel
}

// Reel is a segment of a composition.
type Reel struct {
	ID       string
	Picture  *TrackRef
	Sound    *TrackRef
	Subtitle *TrackRef
}

// TrackRef references a track file from a reel.
type TrackRef struct {
	ID                string
	EditRate          [2]int
	IntrinsicDuration int64
	EntryPoint        int64
	Duration          int64
}

// Frames returns the played duration of the track.
func (t *TrackRef) Frames() int64 {
	if t.Duration > 0 {
		return t.Duration
	}
	if t.IntrinsicDuration > t.EntryPoint {
		return t.IntrinsicDuration - t.EntryPoint
	}
	return 0
}

// Tracks returns the reel tracks in picture, sound, subtitle order.
func (r Reel) Tracks() []*TrackRef {
	out := make([]*TrackRef, 0, 3)
	for _, ref := range []*TrackRef{r.Picture, r.Sound, r.Subtitle} {
		if ref != nil {
			out = append(out, ref)
		}
	}
	return out
}

// AssetIDs returns the distinct track file ids the composition references.
func (c *CPL) AssetIDs() []string {
	seen := map[string]bool{}
	var ids []string
	for _, reel := range c.Reels {
		for _, ref := range reel.Tracks() {
			if !seen[ref.ID] {
				seen[ref.ID] = true
				ids = append(ids, ref.ID)
			}
		}
	}
	return ids
}

// EditRate returns the picture edit rate of the first reel.
func (c *CPL) EditRate() [2]int {
	for _, reel := range c.Reels {
		if reel.Picture != nil && reel.Picture.EditRate[1] != 0 {
			return reel.Picture.EditRate
		}
	}
	return [2]int{24, 1}
}

// DurationFrames sums the picture durations of every reel.
func (c *CPL) DurationFrames() int64 {
	var total int64
	for _, reel := range c.Reels {
		switch {
		case reel.Picture != nil:
			total += reel.Picture.Frames()
		case reel.Sound != nil:
			total += reel.Sound.Frames()
		}
	}
	return total
}

// DurationSeconds converts DurationFrames using the edit rate.
func (c *CPL) DurationSeconds() int64 {
	rate := c.EditRate()
	if rate[0] == 0 {
		return 0
	}
	return c.DurationFrames() * int64(rate[1]) / int64(rate[0])
}

// Info converts the composition into its wire description.
func (c *CPL) Info() screener.CPL {
	rate := c.EditRate()
	info := screener.CPL{
		UUID:              c.ID,
		ContentTitleText:  c.ContentTitleText,
		Issuer:            c.Issuer,
		ContentKind:       c.ContentKind,
		ContentVersion:    c.ContentVersion,
		EditRate:          []int{rate[0], rate[1]},
		DurationInFrames:  c.DurationFrames(),
		DurationInSeconds: c.DurationSeconds(),
		Reels:             make([]screener.Reel, 0, len(c.Reels)),
	}
	for _, reel := range c.Reels {
		out := screener.Reel{UUID: reel.ID}
		add := func(kind string, ref *TrackRef) {
			if ref == nil {
				return
			}
			out.Assets = append(out.Assets, screener.AssetRef{
				UUID:              ref.ID,
				Kind:              kind,
				EditRate:          []int{ref.EditRate[0], ref.EditRate[1]},
				IntrinsicDuration: ref.IntrinsicDuration,
				EntryPoint:        ref.EntryPoint,
				Duration:          ref.Frames(),
			})
		}
		add(KindPicture, reel.Picture)
		add(KindSound, reel.Sound)
		add(KindSubtitle, reel.Subtitle)
		info.Reels = append(info.Reels, out)
	}
	return info
}

// Parse reads the package in dir.
func Parse(dir string) (*Package, error) {
	amPath, err := findAssetMap(dir)
	if err != nil {
		return nil, err
	}
	am, err := readAssetMap(amPath)
	if err != nil {
		return nil, err
	}

	pkg := &Package{Dir: dir, AssetMap: am, Assets: map[string]*Asset{}}
	for _, entry := range am.Entries {
		pkg.Assets[entry.ID] = &Asset{ID: entry.ID, Path: entry.Path, Length: entry.Length, Kind: KindOther}
	}

	var pklAsset *Asset
	for _, entry := range am.Entries {
		if entry.PackingList {
			pklAsset = pkg.Assets[entry.ID]
			break
		}
	}
	if pklAsset == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoPackingList, amPath)
	}
	pklPath, err := pklAsset.AbsPath(dir)
	if err != nil {
		return nil, err
	}
	pkl, err := readPackingList(pklPath)
	if err != nil {
		return nil, err
	}
	pkl.Path = pklAsset.Path
	pklAsset.Kind = KindPKL
	pkg.PackingList = pkl
	for _, pa := range pkl.Assets {
		if asset, ok := pkg.Assets[pa.ID]; ok {
			asset.Hash = pa.Hash
			asset.Type = pa.Type
			if asset.Length == 0 {
				asset.Length = pa.Size
			}
		}
	}

	for _, entry := range am.Entries {
		asset := pkg.Assets[entry.ID]
		if asset.Kind == KindPKL || !strings.EqualFold(asset.Ext(), ".xml") {
			continue
		}
		path, err := asset.AbsPath(dir)
		if err != nil {
			return nil, err
		}
		root, err := rootElement(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if root != "CompositionPlaylist" {
			continue
		}
		cpl, err := readCPL(path)
		if err != nil {
			return nil, err
		}
		cpl.Path = asset.Path
		asset.Kind = KindCPL
		pkg.CPLs = append(pkg.CPLs, cpl)
	}
	if len(pkg.CPLs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCPL, dir)
	}
	sort.SliceStable(pkg.CPLs, func(i, j int) bool { return pkg.CPLs[i].ID < pkg.CPLs[j].ID })

	for _, cpl := range pkg.CPLs {
		for _, reel := range cpl.Reels {
			for kind, ref := range map[string]*TrackRef{KindPicture: reel.Picture, KindSound: reel.Sound, KindSubtitle: reel.Subtitle} {
				if ref == nil {
					continue
				}
				if asset, ok := pkg.Assets[ref.ID]; ok {
					asset.Kind = kind
				}
			}
		}
	}
	return pkg, nil
}

// CheckFiles verifies that every asset referenced by the package's
// compositions is indexed and present on disk.
func CheckFiles(pkg *Package) error {
	for _, cpl := range pkg.CPLs {
		for _, id := range cpl.AssetIDs() {
			asset, ok := pkg.Assets[id]
			if !ok {
				return fmt.Errorf("%w: %s not in assetmap", ErrMissingAsset, id)
			}
			path, err := asset.AbsPath(pkg.Dir)
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMissingAsset, id, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%w: %s is a directory", ErrMissingAsset, id)
			}
		}
	}
	return nil
}

func findAssetMap(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read package dir: %w", err)
	}
	for _, name := range []string{"assetmap", "assetmap.xml"} {
		for _, entry := range entries {
			if !entry.IsDir() && strings.EqualFold(entry.Name(), name) {
				return filepath.Join(dir, entry.Name()), nil
			}
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoAssetMap, dir)
}

func rootElement(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := xml.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

type xmlAssetMap struct {
	ID             string `xml:"Id"`
	AnnotationText string `xml:"AnnotationText"`
	Creator        string `xml:"Creator"`
	Issuer         string `xml:"Issuer"`
	IssueDate      string `xml:"IssueDate"`
	Assets         []struct {
		ID          string  `xml:"Id"`
		PackingList *string `xml:"PackingList"`
		Chunks      []struct {
			Path   string `xml:"Path"`
			Length int64  `xml:"Length"`
		} `xml:"ChunkList>Chunk"`
	} `xml:"AssetList>Asset"`
}

func readAssetMap(path string) (*AssetMap, error) {
	var doc xmlAssetMap
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	amID, err := parseID(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	am := &AssetMap{
		ID:             amID,
		AnnotationText: doc.AnnotationText,
		Creator:        doc.Creator,
		Issuer:         doc.Issuer,
		IssueDate:      doc.IssueDate,
	}
	for _, asset := range doc.Assets {
		if len(asset.Chunks) == 0 {
			return nil, fmt.Errorf("parse %s: asset %s has no chunk", name, asset.ID)
		}
		id, err := parseID(asset.ID)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		chunk, err := chunkPath(asset.Chunks[0].Path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: asset %s: %w", name, id, err)
		}
		entry := AssetMapEntry{
			ID:     id,
			Path:   chunk,
			Length: asset.Chunks[0].Length,
		}
		if asset.PackingList != nil {
			flag := strings.TrimSpace(*asset.PackingList)
			entry.PackingList = flag == "" || strings.EqualFold(flag, "true") || flag == "1"
		}
		am.Entries = append(am.Entries, entry)
	}
	return am, nil
}

type xmlPackingList struct {
	ID             string `xml:"Id"`
	AnnotationText string `xml:"AnnotationText"`
	Issuer         string `xml:"Issuer"`
	Assets         []struct {
		ID               string `xml:"Id"`
		Hash             string `xml:"Hash"`
		Size             int64  `xml:"Size"`
		Type             string `xml:"Type"`
		OriginalFileName string `xml:"OriginalFileName"`
	} `xml:"AssetList>Asset"`
}

func readPackingList(path string) (*PackingList, error) {
	var doc xmlPackingList
	if err := decodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPackingList, err)
	}
	pklID, err := parseID(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	pkl := &PackingList{
		ID:             pklID,
		AnnotationText: doc.AnnotationText,
		Issuer:         doc.Issuer,
	}
	for _, asset := range doc.Assets {
		id, err := parseID(asset.ID)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		pkl.Assets = append(pkl.Assets, PackingAsset{
			ID:               id,
			Hash:             strings.TrimSpace(asset.Hash),
			Size:             asset.Size,
			Type:             strings.TrimSpace(asset.Type),
			OriginalFileName: strings.TrimSpace(asset.OriginalFileName),
		})
	}
	return pkl, nil
}

type xmlTrack struct {
	ID                string `xml:"Id"`
	EditRate          string `xml:"EditRate"`
	IntrinsicDuration int64  `xml:"IntrinsicDuration"`
	EntryPoint        int64  `xml:"EntryPoint"`
	Duration          int64  `xml:"Duration"`
}

type xmlCPL struct {
	ID               string `xml:"Id"`
	ContentTitleText string `xml:"ContentTitleText"`
	Issuer           string `xml:"Issuer"`
	ContentKind      string `xml:"ContentKind"`
	ContentVersion   struct {
		ID        string `xml:"Id"`
		LabelText string `xml:"LabelText"`
	} `xml:"ContentVersion"`
	Reels []struct {
		ID       string    `xml:"Id"`
		Picture  *xmlTrack `xml:"AssetList>MainPicture"`
		Stereo   *xmlTrack `xml:"AssetList>MainStereoscopicPicture"`
		Sound    *xmlTrack `xml:"AssetList>MainSound"`
		Subtitle *xmlTrack `xml:"AssetList>MainSubtitle"`
	} `xml:"ReelList>Reel"`
}

func readCPL(path string) (*CPL, error) {
	var doc xmlCPL
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	cplID, err := parseID(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse %s: composition: %w", name, err)
	}
	cpl := &CPL{
		ID:               cplID,
		ContentTitleText: strings.TrimSpace(doc.ContentTitleText),
		Issuer:           strings.TrimSpace(doc.Issuer),
		ContentKind:      strings.TrimSpace(doc.ContentKind),
		ContentVersion:   strings.TrimSpace(doc.ContentVersion.LabelText),
	}
	for _, reel := range doc.Reels {
		picture := reel.Picture
		if picture == nil {
			picture = reel.Stereo
		}
		reelID, err := parseID(reel.ID)
		if err != nil {
			return nil, fmt.Errorf("parse %s: reel: %w", name, err)
		}
		out := Reel{ID: reelID}
		if out.Picture, err = convertTrack(picture); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		if out.Sound, err = convertTrack(reel.Sound); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		if out.Subtitle, err = convertTrack(reel.Subtitle); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		cpl.Reels = append(cpl.Reels, out)
	}
	return cpl, nil
}

func convertTrack(track *xmlTrack) (*TrackRef, error) {
	if track == nil {
		return nil, nil
	}
	id, err := parseID(track.ID)
	if err != nil {
		return nil, fmt.Errorf("track: %w", err)
	}
	ref := &TrackRef{
		ID:                id,
		IntrinsicDuration: track.IntrinsicDuration,
		EntryPoint:        track.EntryPoint,
		Duration:          track.Duration,
	}
	if strings.TrimSpace(track.EditRate) != "" {
		rate, err := parseEditRate(track.EditRate)
		if err != nil {
			return nil, err
		}
		ref.EditRate = rate
	}
	return ref, nil
}

func parseEditRate(value string) ([2]int, error) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return [2]int{}, fmt.Errorf("edit rate %q", value)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return [2]int{}, fmt.Errorf("edit rate %q: %w", value, err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil || den == 0 {
		return [2]int{}, fmt.Errorf("edit rate %q: bad denominator", value)
	}
	return [2]int{num, den}, nil
}

// parseID strips the urn prefix from a document id and returns it in
// canonical uuid form.
func parseID(raw string) (string, error) {
	id := stripURN(raw)
	u, err := uuid.Parse(id)
	if err != nil || len(id) != 36 {
		return "", fmt.Errorf("%w: id %q is not a uuid", ErrInvalidPackage, strings.TrimSpace(raw))
	}
	return u.String(), nil
}

// chunkPath validates a path from the ASSETMAP. It must be relative and
// stay inside the package directory.
func chunkPath(raw string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty chunk path", ErrInvalidPackage)
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: chunk path %q is absolute", ErrInvalidPackage, raw)
	}
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return "", fmt.Errorf("%w: chunk path %q leaves the package", ErrInvalidPackage, raw)
		}
	}
	return p, nil
}

func stripURN(id string) string {
	id = strings.TrimSpace(id)
	if len(id) >= 9 && strings.EqualFold(id[:9], "urn:uuid:") {
		id = id[9:]
	}
	return strings.ToLower(id)
}
