package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linkedin/goavro/v2"

	"github.com/yungbote/studygraph-ingest/internal/catalog"
	"github.com/yungbote/studygraph-ingest/internal/domain"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

const courseSchema = `{
  "type": "record",
  "name": "Course",
  "fields": [
    {"name": "course_id", "type": "int"},
    {"name": "course_name", "type": ["null", "string"]},
    {"name": "credits", "type": ["null", "double"]}
  ]
}`

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func avroFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Schema: courseSchema})
	if err != nil {
		t.Fatalf("NewOCFWriter: %v", err)
	}
	err = w.Append([]any{
		map[string]any{"course_id": int32(10), "course_name": goavro.Union("string", "Algebra"), "credits": goavro.Union("double", 6.0)},
		map[string]any{"course_id": int32(11), "course_name": goavro.Union("null", nil), "credits": goavro.Union("null", nil)},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeCSVInfersTypes(t *testing.T) {
	in := "course_id,course_name,credits,code\n10,Algebra,6.5,007\n11,,3,A1\n"
	got, err := DecodeCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeCSV: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(got))
	}
	if got[0]["course_id"] != int64(10) {
		t.Fatalf("course_id: want=int64(10) got=%#v", got[0]["course_id"])
	}
	if got[0]["credits"] != 6.5 {
		t.Fatalf("credits: want=6.5 got=%#v", got[0]["credits"])
	}
	if got[0]["code"] != "007" {
		t.Fatalf("code: want=\"007\" got=%#v", got[0]["code"])
	}
	if v, ok := got[1]["course_name"]; !ok || v != nil {
		t.Fatalf("empty cell: want=nil got=%#v (present=%v)", v, ok)
	}
	if got[1]["code"] != "A1" {
		t.Fatalf("code: want=A1 got=%#v", got[1]["code"])
	}
}

func TestDecodeCSVKeepsNumberLikeWords(t *testing.T) {
	in := "professor_id,professor_surname\n1,Nan\n2,Inf\n3,-Infinity\n-4,.5\n"
	got, err := DecodeCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeCSV: %v", err)
	}
	for i, want := range []string{"Nan", "Inf", "-Infinity"} {
		if got[i]["professor_surname"] != want {
			t.Fatalf("row %d surname: want=%q got=%#v", i, want, got[i]["professor_surname"])
		}
	}
	if got[3]["professor_id"] != int64(-4) {
		t.Fatalf("signed id: want=int64(-4) got=%#v", got[3]["professor_id"])
	}
	if got[3]["professor_surname"] != 0.5 {
		t.Fatalf("leading dot: want=0.5 got=%#v", got[3]["professor_surname"])
	}
}

func TestDecodeCSVEmptyAndRagged(t *testing.T) {
	got, err := DecodeCSV(strings.NewReader(""))
	if err != nil || len(got) != 0 {
		t.Fatalf("empty file: want no rows got=%v err=%v", got, err)
	}
	if _, err := DecodeCSV(strings.NewReader("a,b\n1\n")); err == nil {
		t.Fatalf("ragged row: expected error")
	}
}

func TestDecodeAvroUnwrapsUnions(t *testing.T) {
	got, err := DecodeAvro(bytes.NewReader(avroFile(t)))
	if err != nil {
		t.Fatalf("DecodeAvro: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(got))
	}
	if got[0]["course_id"] != int64(10) {
		t.Fatalf("course_id: want=int64(10) got=%#v", got[0]["course_id"])
	}
	if got[0]["course_name"] != "Algebra" {
		t.Fatalf("course_name: want=Algebra got=%#v", got[0]["course_name"])
	}
	if got[0]["credits"] != 6.0 {
		t.Fatalf("credits: want=6 got=%#v", got[0]["credits"])
	}
	if got[1]["course_name"] != nil {
		t.Fatalf("null union: want=nil got=%#v", got[1]["course_name"])
	}
}

func TestLoaderDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "courses.csv", []byte("course_id,course_name\n1,Algebra\n2,Logic\n"))
	writeFile(t, dir, "courses.avro", avroFile(t))
	l, err := NewLoader(NewDirOpener(dir), logger.NewNop())
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	ctx := context.Background()

	rows, err := l.Load(ctx, domain.Dataset{Name: "courses", Source: "courses.csv"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("csv: want 2 rows got=%d err=%v", len(rows), err)
	}
	rows, err = l.Load(ctx, domain.Dataset{Name: "courses", Source: "courses.avro"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("avro: want 2 rows got=%d err=%v", len(rows), err)
	}

	_, err = l.Load(ctx, domain.Dataset{Name: "courses", Source: "courses.parquet"})
	var cfgErr *catalog.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != catalog.ConfigErrorUnsupportedSource {
		t.Fatalf("parquet: want unsupported_source got %v", err)
	}

	_, err = l.Load(ctx, domain.Dataset{Name: "teaches", Source: "teaches.csv"})
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("missing: want ErrSourceNotFound got %v", err)
	}
}

type blindOpener struct{}

func (blindOpener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "courses.csv", []byte("course_id\n1\n"))
	datasets := []domain.Dataset{
		{Name: "courses", Source: "courses.csv"},
		{Name: "teaches", Source: "teaches.csv"},
	}
	err := Preflight(context.Background(), NewDirOpener(dir), datasets)
	if !errors.Is(err, ErrSourceNotFound) || !strings.Contains(err.Error(), "teaches") {
		t.Fatalf("Preflight: want missing teaches got %v", err)
	}
	if err := Preflight(context.Background(), NewDirOpener(dir), datasets[:1]); err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if err := Preflight(context.Background(), blindOpener{}, datasets); err != nil {
		t.Fatalf("non-listing opener: %v", err)
	}
}
