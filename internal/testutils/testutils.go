//go:build integration

// Package testutils provides the archive server and object store used by the
// dars integration tests.
package testutils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

// Archive is a document archive served by ArchiveServer under Name.
type Archive struct {
	Name string
	Data []byte
}

// NewArchive returns an archive of size pseudo-random bytes. The same name
// and size always produce the same content.
func NewArchive(name string, size int) Archive {
	seed := uint64(len(name))<<32 | uint64(size)
	r := rand.New(rand.NewPCG(seed, 0x64617273))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(r.UintN(256))
	}
	return Archive{Name: name, Data: data}
}

// ArchiveServer serves archives under /download/<index> and a catalog at
// /search whose response lists every archive link.
type ArchiveServer struct {
	*httptest.Server
	archives []Archive
}

// Links returns the download link of every archive in order.
func (s *ArchiveServer) Links() []string {
	links := make([]string, len(s.archives))
	for i := range s.archives {
		links[i] = fmt.Sprintf("%s/download/%d", s.URL, i)
	}
	return links
}

// CatalogURL returns the URL of the catalog search endpoint.
func (s *ArchiveServer) CatalogURL() string {
	return s.URL + "/search"
}

// StartArchiveServer starts a server that answers catalog POSTs and serves
// each archive with a Content-Disposition filename.
func StartArchiveServer(t *testing.T, archives []Archive) *ArchiveServer {
	t.Helper()

	s := &ArchiveServer{archives: archives}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			io.Copy(io.Discard, r.Body)
			w.Header().Set("Content-Type", "application/xml")
			var b strings.Builder
			b.WriteString("<response>")
			for _, link := range s.Links() {
				fmt.Fprintf(&b, "<document><downloadLink>%s</downloadLink></document>", link)
			}
			b.WriteString("</response>")
			io.WriteString(w, b.String())
			return
		}

		idx, ok := strings.CutPrefix(r.URL.Path, "/download/")
		if !ok {
			http.NotFound(w, r)
			return
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 || i >= len(s.archives) {
			http.NotFound(w, r)
			return
		}
		a := s.archives[i]

		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, a.Name))
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(a.Data)
	}))
	return s
}

const (
	minioImage = "minio/minio:latest"
	mcImage    = "minio/mc:latest"
	minioUser  = "dars"
	minioPass  = "dars-secret"
)

// ArchiveStore is a MinIO server holding one bucket for archive uploads.
type ArchiveStore struct {
	bucket   string
	endpoint string
}

// BucketURL returns the gocloud s3:// URL of the archive bucket.
func (s *ArchiveStore) BucketURL() string {
	return fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
		s.bucket, s.endpoint)
}

// Open opens the archive bucket. The caller closes it.
func (s *ArchiveStore) Open(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, s.BucketURL())
}

// Object returns the content stored at key.
func (s *ArchiveStore) Object(t *testing.T, ctx context.Context, key string) []byte {
	t.Helper()

	bucket, err := s.Open(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

// RequireObject fails the test unless key holds exactly want.
func (s *ArchiveStore) RequireObject(t *testing.T, ctx context.Context, key string, want []byte) {
	t.Helper()

	got := s.Object(t, ctx, key)
	if len(got) != len(want) {
		t.Fatalf("%s: got %d bytes, want %d", key, len(got), len(want))
	}
	if !bytes.Equal(got, want) {
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("%s: content differs at offset %d", key, i)
			}
		}
	}
}

// StartArchiveStore starts MinIO with an empty bucket and points the AWS
// credential variables at it. The container is removed when the test ends.
func StartArchiveStore(t *testing.T, ctx context.Context, bucket string) *ArchiveStore {
	t.Helper()

	netName := "dars-minio-" + uuid.NewString()[:8]
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{Name: netName},
	})
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	t.Cleanup(func() { network.Remove(context.Background()) })

	minio, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          minioImage,
			ExposedPorts:   []string{"9000/tcp"},
			Networks:       []string{netName},
			NetworkAliases: map[string][]string{netName: {"minio"}},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPass,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}
	t.Cleanup(func() {
		if err := minio.Terminate(context.Background()); err != nil {
			t.Logf("terminate minio: %v", err)
		}
	})

	makeBucket(t, ctx, netName, bucket)

	host, err := minio.Host(ctx)
	if err != nil {
		t.Fatalf("minio host: %v", err)
	}
	port, err := minio.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("minio port: %v", err)
	}

	// s3blob reads credentials from the environment.
	t.Setenv("AWS_ACCESS_KEY_ID", minioUser)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioPass)

	return &ArchiveStore{
		bucket:   bucket,
		endpoint: host + ":" + port.Port(),
	}
}

// makeBucket runs mc once on the MinIO network to create bucket.
func makeBucket(t *testing.T, ctx context.Context, netName, bucket string) {
	t.Helper()

	script := fmt.Sprintf("mc alias set dars http://minio:9000 %s %s && mc mb --ignore-existing dars/%s",
		minioUser, minioPass, bucket)

	mc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      mcImage,
			Networks:   []string{netName},
			Entrypoint: []string{"/bin/sh", "-c"},
			Cmd:        []string{script},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("run mc: %v", err)
	}
	defer mc.Terminate(context.Background())

	state, err := mc.State(ctx)
	if err != nil {
		t.Fatalf("mc state: %v", err)
	}
	if state.ExitCode != 0 {
		t.Fatalf("mc exited with %d while creating bucket %s", state.ExitCode, bucket)
	}
}
