package debuginfo

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/profilestore/internal/debuginfod"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/objectstore"
)

func newTestMachine(t *testing.T, servers []string) (*Machine, *metastore.Store, objectstore.Store) {
	t.Helper()
	meta := metastore.New(100)
	bucket, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	client := debuginfod.New(servers, zerolog.Nop())
	return New(meta, client, bucket, 1<<20, 15*time.Minute, zerolog.Nop()), meta, bucket
}

func TestShouldInitiateFreshGNUBuildIDAbsentFromDebuginfod(t *testing.T) {
	m, _, _ := newTestMachine(t, nil)
	d, err := m.ShouldInitiateUpload(t.Context(), "abcdef0123456789", "", false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)
	require.Equal(t, ShouldInitiateDecision{Should: true, Reason: ReasonFirstTime}, d)
}

func TestShouldInitiateFoundInDebuginfod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("elf"))
	}))
	defer srv.Close()

	m, meta, _ := newTestMachine(t, []string{srv.URL})
	d, err := m.ShouldInitiateUpload(t.Context(), "abc", "", false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)
	require.Equal(t, ReasonInDebuginfod, d.Reason)
	require.False(t, d.Should)

	rec, ok := meta.Fetch("abc", metastore.KindExecutable)
	require.True(t, ok)
	require.Equal(t, metastore.SourceDebuginfod, rec.Source)
}

func TestHashEqualRejectsReupload(t *testing.T) {
	m, meta, _ := newTestMachine(t, nil)

	res, err := m.InitiateUpload(t.Context(), "abc", "H", 10, false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)
	require.NoError(t, m.MarkUploadFinished("abc", metastore.KindExecutable, res.UploadID))

	_, err = m.InitiateUpload(t.Context(), "abc", "H", 10, false, metastore.KindExecutable, BuildIDGNU)
	require.Error(t, err)

	res2, err := m.InitiateUpload(t.Context(), "abc", "H2", 10, false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)
	require.NotEqual(t, res.UploadID, res2.UploadID)

	rec, ok := meta.Fetch("abc", metastore.KindExecutable)
	require.True(t, ok)
	require.Equal(t, metastore.UploadStateUploading, rec.Upload.State)
}

func TestStaleUploadReclaim(t *testing.T) {
	m, _, _ := newTestMachine(t, nil)
	start := time.Now()
	m.SetClock(func() time.Time { return start })

	_, err := m.InitiateUpload(t.Context(), "abc", "H", 10, false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)

	m.SetClock(func() time.Time { return start.Add(18 * time.Minute) })
	d, err := m.ShouldInitiateUpload(t.Context(), "abc", "H", false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)
	require.Equal(t, ShouldInitiateDecision{Should: true, Reason: ReasonUploadStale}, d)

	res, err := m.InitiateUpload(t.Context(), "abc", "H2", 10, false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)
	require.NotEmpty(t, res.UploadID)
}

func TestFullUploadSequenceEndsUploaded(t *testing.T) {
	m, meta, bucket := newTestMachine(t, nil)

	res, err := m.InitiateUpload(t.Context(), "abc", "H", 10, false, metastore.KindExecutable, BuildIDGNU)
	require.NoError(t, err)

	uploadRes, err := m.Upload(t.Context(), UploadHeader{BuildID: "abc", UploadID: res.UploadID, Kind: metastore.KindExecutable}, bytes.NewReader([]byte("elfbytes!!")))
	require.NoError(t, err)
	require.Equal(t, len("elfbytes!!"), uploadRes.Size)

	require.NoError(t, m.MarkUploadFinished("abc", metastore.KindExecutable, res.UploadID))

	rec, ok := meta.Fetch("abc", metastore.KindExecutable)
	require.True(t, ok)
	require.Equal(t, metastore.UploadStateUploaded, rec.Upload.State)

	stored, err := bucket.Get(t.Context(), res.UploadID)
	require.NoError(t, err)
	require.Equal(t, []byte("elfbytes!!"), stored)
}

func TestInitiateUploadRejectsOversize(t *testing.T) {
	m, _, _ := newTestMachine(t, nil)
	_, err := m.InitiateUpload(t.Context(), "abc", "H", 1<<21, false, metastore.KindExecutable, BuildIDGNU)
	require.Error(t, err)
}
