package debugstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type record struct {
	EthAddr     string `json:"eth_addr"`
	NeutronAddr string `json:"neutron_addr"`
}

func TestFileStore(t *testing.T) {
	root := t.TempDir()
	s := &FileStore{Root: root}

	in := record{EthAddr: "0x8d41bb082C6050893d1eC113A104cc4C087F2a2a", NeutronAddr: "neutron1abc"}
	require.NoError(t, s.Put(context.Background(), "cycles/one/request.json", in))

	raw, err := os.ReadFile(filepath.Join(root, "cycles", "one", "request.json"))
	require.NoError(t, err)
	var out record
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestFileStoreStaysBelowRoot(t *testing.T) {
	root := t.TempDir()
	s := &FileStore{Root: filepath.Join(root, "store")}

	require.NoError(t, s.Put(context.Background(), "../../escape.json", record{}))
	_, err := os.Stat(filepath.Join(root, "store", "escape.json"))
	require.NoError(t, err)

	require.Error(t, s.Put(context.Background(), "", record{}))
	require.Error(t, s.Put(context.Background(), "dir/", record{}))
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
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

func TestS3Store(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, "zkmint-debug", "/mainnet/")

	require.NoError(t, s.Put(context.Background(), "cycle/response.json", map[string]string{"a": "b"}))
	require.Len(t, fake.inputs, 1)
	require.Equal(t, "zkmint-debug", aws.ToString(fake.inputs[0].Bucket))
	require.Equal(t, "mainnet/cycle/response.json", aws.ToString(fake.inputs[0].Key))
	require.JSONEq(t, `{"a":"b"}`, string(fake.bodies[0]))

	fake.err = errors.New("access denied")
	require.Error(t, s.Put(context.Background(), "x", 1))
}
