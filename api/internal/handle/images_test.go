package handle

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parent-bridge/api/internal/blob"
)

func TestImages_Lifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	body, ct := multipartBody(t, nil, "file", "capture.png", pngBytes)
	rr := f.do(http.MethodPost, "/images", body, ct)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	m := decodeBody(t, rr)
	assert.Equal(t, "assignment-2025-06-01-03-26-16.png", m["name"])
	assert.Equal(t, publicBase+"/reports/assignment-2025-06-01-03-26-16.png", m["publicUrl"])

	rr = f.do(http.MethodGet, "/images/assignment-2025-06-01-03-26-16.png", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rr.Body.Bytes())

	// same second, same name
	rr = f.do(http.MethodPost, "/images", body, ct)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(http.MethodDelete, "/images/assignment-2025-06-01-03-26-16.png", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeBody(t, rr)["deleted"])

	rr = f.do(http.MethodDelete, "/images/assignment-2025-06-01-03-26-16.png", nil, "")
	assert.Equal(t, false, decodeBody(t, rr)["deleted"])

	rr = f.do(http.MethodGet, "/images/assignment-2025-06-01-03-26-16.png", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestImages_UploadRequiresFile(t *testing.T) {
	f := newFixture(t, Options{})
	body, ct := multipartBody(t, map[string]string{"note": "x"}, "", "", nil)
	rr := f.do(http.MethodPost, "/images", body, ct)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, `Image file ("file") is required in form data.`, decodeBody(t, rr)["error"])
}

func TestImages_ListFilters(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	for _, n := range []string{"b.jpg", "assignment-2025-06-01-03-26-16.jpg"} {
		_, err := f.store.Upload(ctx, []byte{1}, n, "image/jpeg", "")
		require.NoError(t, err)
	}
	f.store.Put(".DS_Store", blob.DefaultBucket, []byte{1})
	f.store.Put("notes.txt", blob.DefaultBucket, []byte{1})

	rr := f.do(http.MethodGet, "/images", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	images := decodeBody(t, rr)["images"].([]any)
	require.Len(t, images, 2)
	assert.Equal(t, "assignment-2025-06-01-03-26-16.jpg", images[0].(map[string]any)["name"])
	assert.Equal(t, "b.jpg", images[1].(map[string]any)["name"])
}

func TestImages_EmptyList(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(http.MethodGet, "/images", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"images":[]}`, rr.Body.String())
}
