package content

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mikey-austin/screener/internal/dcp"
)

// Title directory layout.
const (
	titleCPLFile = "cpl.xml"
	titlePKLFile = "pkl.xml"
)

type repackager struct {
	assetsPath string
	ingestPath string
	exists     func(id string) bool
	now        func() time.Time
}

// repackage splits pkg into one directory per composition under ingestPath.
// Every asset is moved once into the shared asset store, named by its id,
// and hard-linked into each title directory that uses it. Compositions for
// which exists reports true are skipped. On failure the title directories
// created so far are removed.
func (r repackager) repackage(pkg *dcp.Package) ([]*Title, error) {
	if err := os.MkdirAll(r.assetsPath, 0o755); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}
	if err := os.MkdirAll(r.ingestPath, 0o755); err != nil {
		return nil, fmt.Errorf("create ingest dir: %w", err)
	}

	var created []string
	var titles []*Title
	for _, cpl := range pkg.CPLs {
		if err := dcp.CheckID(cpl.ID); err != nil {
			return nil, r.rollback(created, err)
		}
		if r.exists != nil && r.exists(cpl.ID) {
			continue
		}
		dir := filepath.Join(r.ingestPath, cpl.ID)
		if err := os.RemoveAll(dir); err != nil {
			return nil, r.rollback(created, fmt.Errorf("clear stale title dir: %w", err))
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, r.rollback(created, fmt.Errorf("create title dir: %w", err))
		}
		created = append(created, dir)

		title, err := r.repackageTitle(pkg, cpl, dir)
		if err != nil {
			return nil, r.rollback(created, fmt.Errorf("repackage %s: %w", cpl.ID, err))
		}
		titles = append(titles, title)
	}
	return titles, nil
}

func (r repackager) repackageTitle(pkg *dcp.Package, cpl *dcp.CPL, dir string) (*Title, error) {
	am := &dcp.AssetMap{
		ID:             uuid.NewString(),
		AnnotationText: cpl.ContentTitleText,
		Creator:        "screener",
		Issuer:         pkg.AssetMap.Issuer,
		IssueDate:      r.now().UTC().Format(time.RFC3339),
	}

	for _, id := range cpl.AssetIDs() {
		if err := dcp.CheckID(id); err != nil {
			return nil, err
		}
		asset, ok := pkg.Assets[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s not in assetmap", dcp.ErrMissingAsset, id)
		}
		src, err := asset.AbsPath(pkg.Dir)
		if err != nil {
			return nil, err
		}
		name := id + asset.Ext()
		stored := filepath.Join(r.assetsPath, name)
		if err := storeAsset(src, stored); err != nil {
			return nil, err
		}
		link := filepath.Join(dir, name)
		if _, err := os.Lstat(link); errors.Is(err, os.ErrNotExist) {
			if err := os.Link(stored, link); err != nil {
				return nil, fmt.Errorf("link asset %s: %w", id, err)
			}
		}
		info, err := os.Stat(link)
		if err != nil {
			return nil, err
		}
		am.Entries = append(am.Entries, dcp.AssetMapEntry{ID: id, Path: name, Length: info.Size()})
	}

	cplAsset, ok := pkg.Assets[cpl.ID]
	if !ok {
		return nil, fmt.Errorf("%w: composition %s not in assetmap", dcp.ErrMissingAsset, cpl.ID)
	}
	cplSrc, err := cplAsset.AbsPath(pkg.Dir)
	if err != nil {
		return nil, err
	}
	pklSrc, err := dcp.JoinPath(pkg.Dir, pkg.PackingList.Path)
	if err != nil {
		return nil, err
	}
	cplPath := filepath.Join(dir, titleCPLFile)
	if err := os.Rename(cplSrc, cplPath); err != nil {
		return nil, fmt.Errorf("move composition: %w", err)
	}
	pklPath := filepath.Join(dir, titlePKLFile)
	if err := copyFile(pklSrc, pklPath); err != nil {
		return nil, fmt.Errorf("copy packing list: %w", err)
	}
	for _, meta := range []struct {
		id   string
		path string
		pkl  bool
	}{{cpl.ID, cplPath, false}, {pkg.PackingList.ID, pklPath, true}} {
		info, err := os.Stat(meta.path)
		if err != nil {
			return nil, err
		}
		am.Entries = append(am.Entries, dcp.AssetMapEntry{
			ID:          meta.id,
			PackingList: meta.pkl,
			Path:        filepath.Base(meta.path),
			Length:      info.Size(),
		})
	}
	if err := dcp.WriteAssetMap(filepath.Join(dir, dcp.AssetMapFile), am); err != nil {
		return nil, err
	}

	relinked := *cpl
	relinked.Path = titleCPLFile
	return &Title{ID: cpl.ID, CPL: &relinked, Dir: dir, IngestedAt: r.now()}, nil
}

func (r repackager) rollback(dirs []string, cause error) error {
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return errors.Join(cause, fmt.Errorf("rollback %s: %w", dir, err))
		}
	}
	return cause
}

// storeAsset moves src into the asset store at stored. When stored already
// exists the incoming copy is discarded.
func storeAsset(src, stored string) error {
	if _, err := os.Stat(stored); err == nil {
		if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("discard duplicate asset: %w", err)
		}
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, stored); err != nil {
		return fmt.Errorf("store asset: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
