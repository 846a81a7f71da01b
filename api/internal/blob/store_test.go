package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterImages(t *testing.T) {
	got := FilterImages([]string{
		"notes.txt",
		"b.PNG",
		".DS_Store",
		"assignment-2025-06-01-03-26-16.jpg",
		".hidden.jpg",
		"a.webp",
		"scan.jpeg",
		"anim.gif",
		"noext",
	})
	var names []string
	for _, o := range got {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"a.webp", "anim.gif", "assignment-2025-06-01-03-26-16.jpg", "b.PNG", "scan.jpeg"}, names)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://x.supabase.co/storage/v1/object/public/reports/photo.jpg",
		PublicURL("https://x.supabase.co/storage/v1/object/public/", "", "photo.jpg"))
	assert.Equal(t, "https://cdn.example.com/homework/my%20scan.png",
		PublicURL("https://cdn.example.com", "homework", "my scan.png"))
}

func TestNewImageName(t *testing.T) {
	ts := time.Date(2025, 6, 1, 3, 26, 16, 500, time.UTC)
	assert.Equal(t, "assignment-2025-06-01-03-26-16.jpg", NewImageName(ts, "image/jpeg"))
	assert.Equal(t, "assignment-2025-06-01-03-26-16.png", NewImageName(ts, "image/png"))
	assert.Equal(t, "assignment-2025-06-01-03-26-16.jpg", NewImageName(ts, ""))
}

func TestValidName(t *testing.T) {
	assert.NoError(t, ValidName("photo.jpg"))
	assert.Error(t, ValidName(""))
	assert.Error(t, ValidName(".env"))
	assert.Error(t, ValidName("../x.jpg"))
	assert.Error(t, ValidName("dir/x.jpg"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("https://cdn.example.com")

	img, err := s.Upload(ctx, []byte{1, 2, 3}, "photo.jpg", "image/jpeg", "")
	require.NoError(t, err)
	assert.Equal(t, StoredImage{Name: "photo.jpg", PublicURL: "https://cdn.example.com/reports/photo.jpg"}, img)

	_, err = s.Upload(ctx, []byte{1}, "photo.jpg", "image/jpeg", "")
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrExists)
	assert.Equal(t, "upload", se.Op)

	s.Put(".DS_Store", "", []byte("x"))
	s.Put("notes.txt", "", []byte("x"))

	list, err := s.List(ctx, "reports")
	require.NoError(t, err)
	assert.Equal(t, []Object{{Name: "photo.jpg"}}, list)

	data, ct, err := s.Download(ctx, "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, "image/jpeg", ct)

	_, _, err = s.Download(ctx, "missing.jpg", "")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Delete(ctx, "photo.jpg", "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "photo.jpg", "")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStore_PutCopiesData(t *testing.T) {
	s := NewMemoryStore("https://cdn.example.com")
	buf := []byte("abc")
	s.Put("page.jpg", "", buf)
	buf[0] = 'X'

	data, _, err := s.Download(context.Background(), "page.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}
