package s3

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncc/internal/blobstore"
)

func TestPreviewURL_PresignsLocally(t *testing.T) {
	client := s3.New(s3.Options{
		Region:       "ap-southeast-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	store := NewWithClient(client)

	raw, err := store.PreviewURL(context.Background(), "ncc-student-ids", "file-1.pdf", blobstore.PreviewOptions{
		Expiry: 5 * time.Minute,
		Inline: true,
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/ncc-student-ids/file-1.pdf", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, "inline", u.Query().Get("response-content-disposition"))
	assert.True(t, strings.HasPrefix(u.Query().Get("X-Amz-Credential"), "AKID/"))
}
