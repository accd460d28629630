package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/tokenstore"
)

// maxUploadBytes bounds the direct-upload body size spec §6 caps at 4 MiB.
const maxUploadBytes = 4 * 1024 * 1024

// handleUpload implements POST /misc/upload: buffers the raw request body
// under a freshly minted one-shot token (spec §4.D), returned for the
// client to redeem via POST /snapshot's upload_token field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)

	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(w, s.logger, apierr.New(apierr.SnapshotIsEmpty, "request body too large or unreadable"))
		return
	}

	token, err := s.uploadedItems.Put(raw)
	if err != nil {
		writeError(w, s.logger, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"upload_token": token})
}

// handleDownload implements GET /misc/download: peeks the token (without
// consuming it) to decide whether it resolves to an archive or a single
// snapshot, then dispatches accordingly. Archive artifacts are memoized
// and reusable within the token's TTL (spec §4.H); snapshot artifacts are
// single-use and consumed by snapshot.Service.ExportZIP (spec §4.D). The
// caller's bearer identity scopes the snapshot lookup so a leaked token
// can't be redeemed against a different user's snapshot.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	token := r.URL.Query().Get("token")

	intent, ok := s.downloadItems.Get(token)
	if !ok {
		writeError(w, s.logger, apierr.New(apierr.InvalidDownloadToken, "download token unknown or expired"))
		return
	}

	if intent.IsArchive() {
		s.serveArchiveDownload(w, r, token, intent)
		return
	}

	data, err := s.snapshots.ExportZIP(r.Context(), user.ID, token)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeAttachment(w, "application/zip", fmt.Sprintf("snapshot-%d.zip", intent.SnapshotID), data)
}

func (s *Server) serveArchiveDownload(w http.ResponseWriter, r *http.Request, token string, intent tokenstore.DownloadIntent) {
	var (
		artifact []byte
		genErr   error
	)

	found := s.downloadItems.WithLock(token, func(current tokenstore.DownloadIntent, set func(tokenstore.DownloadIntent)) {
		if current.Artifact != nil {
			artifact = current.Artifact
			return
		}

		tz, err := time.LoadLocation(current.Timezone)
		if err != nil {
			tz = time.UTC
		}

		artifact, genErr = s.archiver.Export(r.Context(), current.ArchiveForUser, tz)
		if genErr != nil {
			return
		}

		current.Artifact = artifact
		set(current)
	})

	if !found {
		writeError(w, s.logger, apierr.New(apierr.InvalidDownloadToken, "download token unknown or expired"))
		return
	}

	if genErr != nil {
		writeError(w, s.logger, apierr.Internal(genErr))
		return
	}

	writeAttachment(w, "application/octet-stream", "export.mldx", artifact)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleArchiveDownloadToken implements GET /memolanes_archive/download_token:
// mints a download token whose intent resolves to the caller's full
// consolidated archive in the requested timezone (spec §4.H), defaulting
// to UTC when timezone is absent and rejecting unparseable IANA names.
func (s *Server) handleArchiveDownloadToken(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	tz := r.URL.Query().Get("timezone")
	if tz == "" {
		tz = "UTC"
	}

	if _, err := time.LoadLocation(tz); err != nil {
		writeError(w, s.logger, apierr.New(apierr.InvalidTimezone, "unknown timezone"))
		return
	}

	token, err := s.downloadItems.Put(tokenstore.DownloadIntent{ArchiveForUser: user.ID, Timezone: tz})
	if err != nil {
		writeError(w, s.logger, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"download_token": token})
}
