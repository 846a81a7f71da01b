package handle

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"parent-bridge/api/internal/blob"
	"parent-bridge/api/internal/util"
)

// UploadImage stores a captured photo under a fresh assignment-<timestamp> name.
func (h *Handle) UploadImage(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "upload_image")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad multipart form: "+err.Error())
		return
	}
	data, mime, err := readFormFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `Image file ("file") is required in form data.`)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	name := blob.NewImageName(h.now(), mime)
	img, err := h.store.Upload(ctx, data, name, mime, h.bucket)
	if err != nil {
		if errors.Is(err, blob.ErrExists) {
			writeError(w, http.StatusConflict, "An image named "+strconv.Quote(name)+" already exists; retry in a second.")
			return
		}
		writeUpstream(log, w, "Failed to upload image.", err)
		return
	}
	log.Info("image uploaded", zap.String("name", img.Name), zap.Int("bytes", len(data)))
	writeJSON(w, http.StatusCreated, img)
}

// ListImages returns the visible images with their public URLs.
func (h *Handle) ListImages(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "list_images")
	ctx, cancel := requestContext(r)
	defer cancel()

	objs, err := h.store.List(ctx, h.bucket)
	if err != nil {
		writeUpstream(log, w, "Failed to list images.", err)
		return
	}
	images := make([]blob.StoredImage, 0, len(objs))
	for _, o := range objs {
		images = append(images, blob.StoredImage{Name: o.Name, PublicURL: h.store.PublicURL(o.Name, h.bucket)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (h *Handle) GetImage(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "get_image")
	name := r.PathValue("name")
	if err := blob.ValidName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	data, ct, err := h.store.Download(ctx, name, h.bucket)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Image "+strconv.Quote(name)+" not found.")
			return
		}
		writeUpstream(log, w, "Failed to download image.", err)
		return
	}
	if ct == "" {
		ct = util.MIMEForName(name)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handle) DeleteImage(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "delete_image")
	name := r.PathValue("name")
	if err := blob.ValidName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	ok, err := h.store.Delete(ctx, name, h.bucket)
	if err != nil {
		writeUpstream(log, w, "Failed to delete image.", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": ok})
}
