package storage

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoStoreSaveAndOpen(t *testing.T) {
	store, err := NewPhotoStore(t.TempDir(), "http://localhost:8080/photos", nil)
	require.NoError(t, err)

	url, err := store.Save("STU-25001.jpg", []byte("jpegdata"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/photos/STU-25001.jpg", url)

	file, err := store.Open("STU-25001.jpg")
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegdata"), data)
}

func TestPhotoStoreSignedURL(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	store, err := NewPhotoStore(t.TempDir(), "http://localhost:8080/photos", signer)
	require.NoError(t, err)

	url, err := store.Save("STU-25002.png", []byte("pngdata"))
	require.NoError(t, err)
	assert.Contains(t, url, "STU-25002.png?token=")

	token := url[len("http://localhost:8080/photos/STU-25002.png?token="):]
	filename, err := store.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "STU-25002.png", filename)
}

func TestPhotoStoreVerifyRejectsForgedToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	store, err := NewPhotoStore(t.TempDir(), "http://localhost:8080/photos", signer)
	require.NoError(t, err)

	forged, _, err := NewSignedURLSigner("other-secret", time.Hour).Generate("STU-25003.jpg", "STU-25003.jpg")
	require.NoError(t, err)
	_, err = store.Verify(forged)
	require.Error(t, err)
}

func TestPhotoStoreResolveEscapesTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPhotoStore(dir, "http://localhost:8080/photos", nil)
	require.NoError(t, err)

	_, err = store.Save("../outside.jpg", []byte("x"))
	require.NoError(t, err)

	// The cleaned path stays under the base directory.
	file, err := store.Open("outside.jpg")
	require.NoError(t, err)
	file.Close()
}

func TestPhotoStoreDeleteMissingIsNoop(t *testing.T) {
	store, err := NewPhotoStore(t.TempDir(), "http://localhost:8080/photos", nil)
	require.NoError(t, err)
	require.NoError(t, store.Delete("never-existed.jpg"))
}

func TestSignedURLSignerRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	token, expiresAt, err := signer.Generate("STU-25004.jpg", "STU-25004.jpg")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	subject, relPath, _, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "STU-25004.jpg", subject)
	assert.Equal(t, "STU-25004.jpg", relPath)
}

func TestSignedURLSignerRejectsExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Nanosecond)

	token, _, err := signer.Generate("STU-25005.jpg", "STU-25005.jpg")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	_, relPath, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "STU-25005.jpg", relPath)
}
