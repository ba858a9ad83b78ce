package web

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/vbonduro/adpost/internal/draft"
	"github.com/vbonduro/adpost/internal/form"
	"github.com/vbonduro/adpost/internal/photos"
	"github.com/vbonduro/adpost/internal/photostore"
)

const (
	// maxUploadSize bounds a whole selection, leaving room for files that
	// will be rejected for size.
	maxUploadSize = 2 * photos.MaxPhotos * photos.MaxFileSize
	maxMemory     = 32 << 20
	sniffLen      = 512
)

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// sniffImageMIME returns the content type of data judged by its leading
// bytes, never by the name or the declared header. net/http.DetectContentType
// has no WebP signature, so WebP is checked separately.
func sniffImageMIME(data []byte) string {
	if isWebP(data) {
		return "image/webp"
	}
	return http.DetectContentType(data)
}

// readUpload loads one selected file. Files over the size limit are only
// sniffed; the photo manager rejects them without needing their content.
func readUpload(fh *multipart.FileHeader) (photos.File, error) {
	f, err := fh.Open()
	if err != nil {
		return photos.File{}, err
	}
	defer f.Close()

	limit := int64(photos.MaxFileSize)
	if fh.Size > limit {
		limit = sniffLen
	}
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return photos.File{}, err
	}

	file := photos.File{
		Name:     path.Base(fh.Filename),
		Size:     fh.Size,
		MIMEType: sniffImageMIME(data),
	}
	if fh.Size <= photos.MaxFileSize {
		file.Data = data
	}
	return file, nil
}

func (s *Server) handleUploadPhotos(w http.ResponseWriter, r *http.Request) {
	d, ok := s.requireDraft(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "selection too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Error("failed to remove multipart temp files", "error", err)
		}
	}()

	headers := r.MultipartForm.File["photos"]
	files := make([]photos.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			s.logger.Error("read upload failed", "draft_id", d.ID, "name", fh.Filename, "error", err)
			return
		}
		files = append(files, f)
	}

	var resp photosResponse
	err := d.Do(func(c *form.Controller) error {
		err := c.AddPhotos(r.Context(), files)
		resp = s.photosResponse(c)
		return err
	})
	if errors.Is(err, draft.ErrNotFound) {
		expireDraft(w)
		return
	}
	if err != nil {
		s.logger.Error("add photos failed", "draft_id", d.ID, "error", err)
		http.Error(w, "failed to store photos", http.StatusInternalServerError)
		return
	}

	if err := s.renderPartial(w, "photos_response", resp, partialFiles...); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

func (s *Server) handleRemovePhoto(w http.ResponseWriter, r *http.Request) {
	d, ok := s.requireDraft(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid photo index", http.StatusBadRequest)
		return
	}

	var resp photosResponse
	err = d.Do(func(c *form.Controller) error {
		err := c.RemovePhoto(r.Context(), index)
		resp = s.photosResponse(c)
		return err
	})
	if errors.Is(err, draft.ErrNotFound) {
		expireDraft(w)
		return
	}
	if errors.Is(err, photos.ErrIndexOutOfRange) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		// The entry is gone; only releasing its preview failed.
		s.logger.Error("remove photo failed", "draft_id", d.ID, "index", index, "error", err)
	}

	if err := s.renderPartial(w, "photos_response", resp, partialFiles...); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

func (s *Server) photosResponse(c *form.Controller) photosResponse {
	return photosResponse{
		Photos: newPhotosView(c, c.Registry().FileField()),
		Submit: newSubmitView(c, true),
	}
}

// handlePhotoPreview streams a preview. The v query parameter, when given,
// must name the blob currently at that index, so a stale URL never shows a
// different photo.
func (s *Server) handlePhotoPreview(w http.ResponseWriter, r *http.Request) {
	d, ok := s.requireDraft(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid photo index", http.StatusBadRequest)
		return
	}

	var entry photos.Entry
	err = d.Do(func(c *form.Controller) error {
		entry, err = c.Photos().Entry(index)
		return err
	})
	if errors.Is(err, draft.ErrNotFound) {
		expireDraft(w)
		return
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if v := r.URL.Query().Get("v"); v != "" && v != previewVersion(entry.Preview) {
		http.NotFound(w, r)
		return
	}

	reader, mimeType, err := s.previews.Get(r.Context(), entry.Preview)
	if errors.Is(err, photostore.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to open preview", http.StatusInternalServerError)
		s.logger.Error("open preview failed", "draft_id", d.ID, "index", index, "error", err)
		return
	}
	defer closeWithLog(reader, "preview reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write preview failed", "draft_id", d.ID, "index", index, "error", err)
	}
}
