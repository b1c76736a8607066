package mediasvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsite/core"
)

func TestNewKey(t *testing.T) {
	tests := []struct {
		prefix, filename string
		wantPrefix       string
		wantExt          string
	}{
		{prefix: "news", filename: "Photo.JPG", wantPrefix: "news/", wantExt: ".jpg"},
		{prefix: "../../etc", filename: "x.png", wantPrefix: "etc/", wantExt: ".png"},
		{prefix: "", filename: "noext", wantPrefix: "misc/", wantExt: ""},
		{prefix: "gallery", filename: "a.verylongextension", wantPrefix: "gallery/", wantExt: ""},
	}
	for _, tt := range tests {
		t.Run(tt.prefix+"/"+tt.filename, func(t *testing.T) {
			key := newKey(tt.prefix, tt.filename)
			assert.True(t, strings.HasPrefix(key, tt.wantPrefix), key)
			assert.Equal(t, tt.wantExt, filepath.Ext(key))
			assert.NoError(t, checkKey(key))
		})
	}
}

func TestCheckKey(t *testing.T) {
	for _, key := range []string{"", "/etc/passwd", "../x.jpg", "news/../../x", `news\x.jpg`} {
		assert.Error(t, checkKey(key), key)
	}
	assert.NoError(t, checkKey("news/a.jpg"))
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir(), "/uploads/")
	require.NoError(t, err)

	key, err := store.Save(ctx, "gallery", "kelas.png", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/"+key, store.URL(key))

	data, err := os.ReadFile(filepath.Join(store.Dir(), filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	entries, err := os.ReadDir(filepath.Join(store.Dir(), "gallery"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is fine")
	assert.Error(t, store.Delete(ctx, "../outside.png"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Save(cancelled, "gallery", "x.png", strings.NewReader("data"))
	assert.Error(t, err)
}

type fakeS3 struct {
	puts    map[string][]byte
	types   map[string]string
	deletes []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Storage(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{puts: map[string][]byte{}, types: map[string]string{}}
	conf := &core.Config{Media: core.MediaConfig{Backend: "s3", S3Bucket: "sekolah", S3Region: "ap-southeast-1", BaseURL: "/uploads"}}
	store := newS3Storage(fake, conf)

	key, err := store.Save(ctx, "slider", "banner.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), fake.puts[key])
	assert.Equal(t, "image/png", fake.types[key])
	assert.Equal(t, "https://sekolah.s3.ap-southeast-1.amazonaws.com/"+key, store.URL(key))

	require.NoError(t, store.Delete(ctx, key))
	assert.Equal(t, []string{key}, fake.deletes)

	conf.Media.S3Endpoint = "http://minio:9000"
	assert.Equal(t, "http://minio:9000/sekolah/a.png", newS3Storage(fake, conf).URL("a.png"))

	conf.Media.BaseURL = "https://cdn.sekolah.sch.id"
	assert.Equal(t, "https://cdn.sekolah.sch.id/a.png", newS3Storage(fake, conf).URL("a.png"))
}
