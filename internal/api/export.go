package api

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/music"
)

// utf8BOM makes spreadsheet tools read the Persian columns as UTF-8.
const utf8BOM = "\ufeff"

var exportHeader = []string{
	"id", "title", "song_name_fa", "song_name_en", "artist_name_fa", "artist_name_en", "post_type",
}

// exportTracks handles GET /v1/tracks/export and streams every track as CSV.
func (s *Server) exportTracks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracks, err := s.deps.Catalog.ListTracks(ctx)
	if err != nil {
		s.logger.Error("list tracks failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tracks")
		return
	}
	artists := make(map[int64]music.Artist)
	for _, t := range tracks {
		if _, ok := artists[t.ArtistID]; ok {
			continue
		}
		a, err := s.deps.Catalog.GetArtist(ctx, t.ArtistID)
		if err != nil {
			s.logger.Error("load artist failed", zap.Int64("artist_id", t.ArtistID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load artists")
			return
		}
		artists[t.ArtistID] = a
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tracks.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(utf8BOM))
	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)
	for _, t := range tracks {
		a := artists[t.ArtistID]
		_ = cw.Write([]string{
			strconv.FormatInt(t.ID, 10), t.Title, t.SongNameFA, t.SongNameEN, a.NameFA, a.NameEN, string(t.PostType),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn("csv export interrupted", zap.Error(err))
	}
}
