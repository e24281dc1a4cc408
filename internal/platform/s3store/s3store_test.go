package s3store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

func fakeMinio(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/sources/exports/courses.csv":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = io.WriteString(w, "course_id,course_name\n1,Algebra\n")
		case r.Method == http.MethodGet && r.URL.Path == "/sources" && r.URL.Query().Get("list-type") == "2":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>sources</Name><Prefix>exports/</Prefix><KeyCount>1</KeyCount><IsTruncated>false</IsTruncated>
  <Contents><Key>exports/courses.csv</Key><Size>31</Size></Contents>
</ListBucketResult>`)
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
		}
	}))
}

func newReader(t *testing.T, endpoint string) *Reader {
	t.Helper()
	r, err := New(context.Background(), logger.NewNop(), Config{
		Endpoint:  endpoint,
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "sources",
		Prefix:    "/exports/",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestReaderOpen(t *testing.T) {
	srv := fakeMinio(t)
	defer srv.Close()
	r := newReader(t, srv.URL)

	rc, err := r.Open(context.Background(), "courses.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "Algebra") {
		t.Fatalf("body: got %q", body)
	}
}

func TestReaderOpenMissing(t *testing.T) {
	srv := fakeMinio(t)
	defer srv.Close()
	r := newReader(t, srv.URL)
	_, err := r.Open(context.Background(), "teaches.csv")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("want ErrObjectNotFound got %v", err)
	}
}

func TestReaderList(t *testing.T) {
	srv := fakeMinio(t)
	defer srv.Close()
	r := newReader(t, srv.URL)
	names, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "courses.csv" {
		t.Fatalf("List: got %v", names)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []Config{
		{Bucket: "b"},
		{Endpoint: "http://minio:9000"},
		{Endpoint: "http://minio:9000", Bucket: "b", AccessKey: "only-key"},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if err := (Config{Endpoint: "http://minio:9000", Bucket: "b"}).Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}
