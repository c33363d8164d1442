package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neicnordic/ingest-worker/internal/ingesterr"
)

type fakeDB struct {
	insertedFilepath string
	insertedUser     string
	fileID           int64
	insertErr        error

	markedInProgress int64
	markErr          error

	setInfoFileID    int64
	setInfoVault     string
	setInfoSize      int64
	setInfoHeaderHex string
	setInfoErr       error
}

func (f *fakeDB) InsertFile(ctx context.Context, filepath, userID string) (int64, error) {
	f.insertedFilepath = filepath
	f.insertedUser = userID
	return f.fileID, f.insertErr
}

func (f *fakeDB) MarkInProgress(ctx context.Context, fileID int64) error {
	f.markedInProgress = fileID
	return f.markErr
}

func (f *fakeDB) SetInfo(ctx context.Context, fileID int64, vaultPath string, vaultSize int64, headerHex string) error {
	f.setInfoFileID = fileID
	f.setInfoVault = vaultPath
	f.setInfoSize = vaultSize
	f.setInfoHeaderHex = headerHex
	return f.setInfoErr
}

type fakeVault struct {
	location    string
	locationErr error
	copied      []byte
	copyErr     error
}

func (f *fakeVault) Location(fileID int64) (string, error) {
	return f.location, f.locationErr
}

func (f *fakeVault) Copy(r io.Reader, target string) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.copied = b
	return int64(len(b)), nil
}

type fakeHeaderParser struct {
	beginning []byte
	header    []byte
	err       error
}

func (f *fakeHeaderParser) ReadHeader(r io.Reader) ([]byte, []byte, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.beginning, f.header, nil
}

type fakePublisher struct {
	calls []publishedCall
	err   error
}

type publishedCall struct {
	content       any
	exchange      string
	routingKey    string
	correlationID string
}

func (f *fakePublisher) Publish(content any, exchange, routingKey, correlationID string) error {
	f.calls = append(f.calls, publishedCall{content, exchange, routingKey, correlationID})
	return f.err
}

func writeInboxFile(t *testing.T, root, relPath string, data []byte) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o600))
}

func testConfig(inboxRoot string) Config {
	return Config{
		InboxLocationTemplate: inboxRoot + "/%s",
		ProgressExchange:      "cega",
		ProgressRoutingKey:    "files.processing",
	}
}

func TestProcess_HappyPath(t *testing.T) {
	tmp := t.TempDir()
	writeInboxFile(t, tmp, "alice/a.c4gh", []byte("headerbytesplaintextpayload"))

	dbFake := &fakeDB{fileID: 42}
	vaultFake := &fakeVault{location: "/vault/42"}
	headerFake := &fakeHeaderParser{beginning: []byte{}, header: []byte("HDR")}
	pub := &fakePublisher{}

	w := New(dbFake, vaultFake, headerFake, pub, testConfig(tmp))

	content := map[string]any{
		"filepath": "/a.c4gh",
		"user":     "elixir:alice@example.org",
	}

	result, err := w.Process(context.Background(), "corr-1", content)
	require.NoError(t, err)

	assert.Equal(t, "/a.c4gh", dbFake.insertedFilepath)
	assert.Equal(t, "alice", dbFake.insertedUser)
	assert.Equal(t, int64(42), dbFake.markedInProgress)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, "cega", pub.calls[0].exchange)
	assert.Equal(t, "files.processing", pub.calls[0].routingKey)
	progress := pub.calls[0].content.(map[string]any)
	assert.Equal(t, "PROCESSING", progress["status"])

	assert.Equal(t, int64(42), dbFake.setInfoFileID)
	assert.Equal(t, "/vault/42", dbFake.setInfoVault)
	assert.Equal(t, int64(len("headerbytesplaintextpayload")), dbFake.setInfoSize)
	assert.NotEmpty(t, dbFake.setInfoHeaderHex)

	assert.Equal(t, "/vault/42", result["vault_path"])
	assert.Equal(t, dbFake.setInfoHeaderHex, result["header"])
	assert.Equal(t, int64(42), result["file_id"])
	orgMsg, ok := result["org_msg"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/a.c4gh", orgMsg["filepath"])
}

func TestProcess_FileNotInInboxReturnsFromUser(t *testing.T) {
	tmp := t.TempDir()

	dbFake := &fakeDB{fileID: 1}
	vaultFake := &fakeVault{}
	headerFake := &fakeHeaderParser{}
	pub := &fakePublisher{}

	w := New(dbFake, vaultFake, headerFake, pub, testConfig(tmp))

	content := map[string]any{"filepath": "/missing.c4gh", "user": "bob"}
	_, err := w.Process(context.Background(), "corr-1", content)

	var fromUser *ingesterr.FromUser
	require.ErrorAs(t, err, &fromUser)
	assert.Empty(t, pub.calls, "no progress message should be sent before the inbox check succeeds")
}

func TestProcess_HeaderRejectedReturnsFromUser(t *testing.T) {
	tmp := t.TempDir()
	writeInboxFile(t, tmp, "bob/b.c4gh", []byte("payload"))

	dbFake := &fakeDB{fileID: 5}
	vaultFake := &fakeVault{}
	headerFake := &fakeHeaderParser{err: errors.New("bad magic number")}
	pub := &fakePublisher{}

	w := New(dbFake, vaultFake, headerFake, pub, testConfig(tmp))

	content := map[string]any{"filepath": "/b.c4gh", "user": "bob"}
	_, err := w.Process(context.Background(), "corr-1", content)

	var fromUser *ingesterr.FromUser
	require.ErrorAs(t, err, &fromUser)
	assert.Len(t, pub.calls, 1, "progress message should already be published before header parsing")
}

func TestProcess_HeaderReadIOFaultIsSystemError(t *testing.T) {
	tmp := t.TempDir()
	writeInboxFile(t, tmp, "bob/b.c4gh", []byte("payload"))

	dbFake := &fakeDB{fileID: 5}
	vaultFake := &fakeVault{}
	headerFake := &fakeHeaderParser{err: errors.New("disk read failed")}
	pub := &fakePublisher{}

	w := New(dbFake, vaultFake, headerFake, pub, testConfig(tmp))

	content := map[string]any{"filepath": "/b.c4gh", "user": "bob"}
	_, err := w.Process(context.Background(), "corr-1", content)

	var fromUser *ingesterr.FromUser
	assert.False(t, errors.As(err, &fromUser), "an unrelated I/O fault is a system error, not a user error")
}

func TestProcess_InsertFileErrorPropagates(t *testing.T) {
	tmp := t.TempDir()
	dbFake := &fakeDB{insertErr: errors.New("db down")}
	w := New(dbFake, &fakeVault{}, &fakeHeaderParser{}, &fakePublisher{}, testConfig(tmp))

	_, err := w.Process(context.Background(), "corr-1", map[string]any{"filepath": "/x", "user": "u"})
	require.Error(t, err)

	var fromUser *ingesterr.FromUser
	assert.False(t, errors.As(err, &fromUser), "a db fault is a system error, not a user error")
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"elixir:alice@example.org": "alice",
		"alice@example.org":        "alice",
		"alice":                    "alice",
		"elixir:alice":             "alice",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitize(in), in)
	}
}
