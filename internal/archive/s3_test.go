package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePut struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePut) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func fixed(a *S3Archiver) *S3Archiver {
	a.now = func() time.Time { return time.Date(2026, 3, 7, 22, 0, 0, 0, time.UTC) }
	a.newID = func() string { return "abc" }
	return a
}

func TestArchiveKeyAndBody(t *testing.T) {
	f := &fakePut{}
	a := fixed(NewS3Archiver(f, "bucket", "/uploads/"))

	key, err := a.Archive(context.Background(), "C:\\exports\\march.csv", []byte("date,campaign_name\n"))
	require.NoError(t, err)
	assert.Equal(t, "uploads/2026/03/07/abc-march.csv", key)
	assert.Equal(t, "bucket", aws.ToString(f.in.Bucket))
	assert.Equal(t, key, aws.ToString(f.in.Key))
	assert.Equal(t, "text/csv", aws.ToString(f.in.ContentType))
	assert.Equal(t, "C:\\exports\\march.csv", f.in.Metadata["original-filename"])
	assert.Equal(t, "date,campaign_name\n", string(f.body))
}

func TestArchiveNoPrefix(t *testing.T) {
	a := fixed(NewS3Archiver(&fakePut{}, "bucket", ""))
	key, err := a.Archive(context.Background(), "data.csv", nil)
	require.NoError(t, err)
	assert.Equal(t, "2026/03/07/abc-data.csv", key)
}

func TestArchiveError(t *testing.T) {
	a := fixed(NewS3Archiver(&fakePut{err: errors.New("denied")}, "bucket", "p"))
	_, err := a.Archive(context.Background(), "data.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestArchiveAgainstS3Endpoint(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	a := fixed(NewS3Archiver(client, "bucket", "uploads"))

	key, err := a.Archive(context.Background(), "data.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/bucket/"+key, gotPath)
}
