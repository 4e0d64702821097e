package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeline/internal/domain"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func summary() domain.MatchSummary {
	return domain.MatchSummary{
		MatchID:    "3f2a.nakama1",
		Map:        "Haven",
		Mode:       "spikerush",
		WinnerTeam: domain.TeamBravo,
		EndedAt:    time.Date(2026, 5, 17, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600)),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "matches/2026/05/18/spikerush-haven-3f2a-nakama1.json", Key(summary()))
}

func TestArchiveUploadsJSON(t *testing.T) {
	client := &fakePutter{}
	u := newUploader(client, "results")

	key, err := u.Archive(context.Background(), summary())
	require.NoError(t, err)
	assert.Equal(t, Key(summary()), key)

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "results", aws.ToString(in.Bucket))
	assert.Equal(t, key, aws.ToString(in.Key))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))

	var got domain.MatchSummary
	require.NoError(t, json.Unmarshal(client.bodies[0], &got))
	assert.Equal(t, domain.TeamBravo, got.WinnerTeam)
}

func TestArchiveUploadFailure(t *testing.T) {
	u := newUploader(&fakePutter{err: errors.New("access denied")}, "results")
	_, err := u.Archive(context.Background(), summary())
	assert.ErrorContains(t, err, "access denied")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}
