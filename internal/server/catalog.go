package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/internal/modules/playback"
	"github.com/mikey-austin/screener/internal/modules/playlist"
	"github.com/mikey-austin/screener/pkg/screener"
)

// Catalog checks titles and playlists against the content store before the
// player loads them.
type Catalog struct {
	content   *content.Service
	playlists *playlist.Store
}

// NewCatalog builds a playback validator over the content and playlist stores.
func NewCatalog(content *content.Service, playlists *playlist.Store) *Catalog {
	return &Catalog{content: content, playlists: playlists}
}

// ValidateTitle confirms the title is published and complete on disk.
func (c *Catalog) ValidateTitle(id string) (playback.LoadedTitle, error) {
	title, err := c.content.CheckTitle(id)
	switch {
	case errors.Is(err, content.ErrTitleNotFound):
		return playback.LoadedTitle{}, playback.ErrTitleNotFound
	case err != nil:
		return playback.LoadedTitle{}, fmt.Errorf("%w: %v", playback.ErrInvalidTitle, err)
	}
	return playback.LoadedTitle{ID: title.ID, Title: title.CPL.ContentTitleText}, nil
}

// ValidatePlaylist re-validates the stored document and requires every
// composition to reference an ingested title.
func (c *Catalog) ValidatePlaylist(id string) (screener.Playlist, error) {
	pl, err := c.playlists.Get(id)
	if errors.Is(err, playlist.ErrNotFound) {
		return screener.Playlist{}, playback.ErrPlaylistNotFound
	}
	if err != nil {
		return screener.Playlist{}, err
	}

	doc, err := json.Marshal(pl)
	if err != nil {
		return screener.Playlist{}, fmt.Errorf("%w: %v", playback.ErrInvalidPlaylist, err)
	}
	if _, err := playlist.Parse(doc); err != nil {
		return screener.Playlist{}, fmt.Errorf("%w: %v", playback.ErrInvalidPlaylist, err)
	}

	var missing []string
	for _, cplID := range playlist.CPLIDs(pl) {
		if !c.content.HasTitle(cplID) {
			missing = append(missing, cplID)
		}
	}
	if len(missing) > 0 {
		return screener.Playlist{}, fmt.Errorf("%w: cpl not ingested: %s", playback.ErrInvalidPlaylist, strings.Join(missing, ", "))
	}
	return pl, nil
}
