package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldanca/unicorn-api/encoder"
	"github.com/baldanca/unicorn-api/ingestor"
	"github.com/baldanca/unicorn-api/keys"
	"github.com/baldanca/unicorn-api/lookup"
	"github.com/baldanca/unicorn-api/payload"
	"github.com/baldanca/unicorn-api/s3test"
	"github.com/baldanca/unicorn-api/sink"
)

type testEnv struct {
	store *s3test.Memory
	ts    *httptest.Server
}

func newTestEnv(t *testing.T, kf keys.KeyFunc, finder lookup.Finder) *testEnv {
	t.Helper()

	store := s3test.New(sink.DefaultBucket)
	ig, err := ingestor.NewIngestor(
		encoder.JSONEncoder[payload.Unicorn]{},
		sink.New(store, "", ""),
		kf,
		ingestor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	opts := DefaultHandlerOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.MaxBodyBytes = 256

	ts := httptest.NewServer(NewHandler(ig, finder, opts))
	t.Cleanup(ts.Close)
	return &testEnv{store: store, ts: ts}
}

func (e *testEnv) post(t *testing.T, body string) (*http.Response, []byte) {
	t.Helper()
	res, err := e.ts.Client().Post(e.ts.URL+"/unicorn", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, b
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	res, err := e.ts.Client().Get(e.ts.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, b
}

func TestHello(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)
	env.store.FailPuts(errors.New("store is down"))

	res, body := env.get(t, "/")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"Hello":"World"}`, string(body))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)
	res, body := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestCreate_ValidStoresAndEchoes(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	res, body := env.post(t, `{"name":"honey","rainbow":true}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"name":"honey","rainbow":true}`, string(body))
	assert.Equal(t, "unicorn", res.Header.Get(HeaderObjectBucket))
	assert.Equal(t, "test", res.Header.Get(HeaderObjectKey))
	assert.NotEmpty(t, res.Header.Get("ETag"))

	out, err := env.store.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String("unicorn"),
		Key:    aws.String("test"),
	})
	require.NoError(t, err)
	stored, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"honey","rainbow":true}`, string(stored))
	assert.Equal(t, "application/json", aws.ToString(out.ContentType))
}

func TestCreate_FixedKeyOverwrites(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	env.post(t, `{"name":"honey","rainbow":true}`)
	env.post(t, `{"name":"sugar","rainbow":false}`)

	assert.Equal(t, 2, env.store.Puts())
	assert.Equal(t, 1, env.store.Keys("unicorn"))
	obj, ok := env.store.Object("unicorn", "test")
	require.True(t, ok)
	assert.Equal(t, `{"name":"sugar","rainbow":false}`, string(obj.Body))
}

func TestCreate_UUIDKeysKeepEveryRecord(t *testing.T) {
	env := newTestEnv(t, keys.UUID(".json"), nil)

	res1, _ := env.post(t, `{"name":"honey","rainbow":true}`)
	res2, _ := env.post(t, `{"name":"honey","rainbow":true}`)

	assert.NotEqual(t, res1.Header.Get(HeaderObjectKey), res2.Header.Get(HeaderObjectKey))
	assert.Equal(t, 2, env.store.Keys("unicorn"))
}

func TestCreate_EmptyObjectListsMissingFields(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	res, body := env.post(t, `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.JSONEq(t, `{"detail":[
		{"loc":["body","name"],"msg":"field required","type":"missing"},
		{"loc":["body","rainbow"],"msg":"field required","type":"missing"}
	]}`, string(body))
	assert.Equal(t, 0, env.store.Puts())
}

func TestCreate_RainbowTypeError(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	res, body := env.post(t, `{"name":"honey","rainbow":10}`)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	var got struct {
		Detail []payload.FieldError `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Detail, 1)
	assert.Equal(t, []string{"body", "rainbow"}, got.Detail[0].Loc)
	assert.Equal(t, payload.KindTypeError, got.Detail[0].Type)
	assert.Equal(t, "value could not be parsed to a boolean", got.Detail[0].Msg)
	assert.Equal(t, 0, env.store.Puts())
}

func TestCreate_MalformedJSON(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	res, body := env.post(t, `{"name":`)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Contains(t, string(body), payload.KindInvalidJSON)
	assert.Equal(t, 0, env.store.Puts())
}

func TestCreate_TrailingGarbageRejected(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	for _, body := range []string{
		`{"name":"honey","rainbow":true}}`,
		`{"name":"honey","rainbow":true}]`,
	} {
		res, out := env.post(t, body)
		require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, body)
		assert.Contains(t, string(out), payload.KindInvalidJSON)
	}
	assert.Equal(t, 0, env.store.Puts())
}

func TestCreate_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	big := `{"name":"` + strings.Repeat("x", 512) + `","rainbow":true}`
	res, _ := env.post(t, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
	assert.Equal(t, 0, env.store.Puts())
}

func TestCreate_StorageFailureIsOpaque(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)
	env.store.FailPuts(errors.New("dial tcp 10.0.0.1:443: connect: connection refused"))

	res, body := env.post(t, `{"name":"honey","rainbow":true}`)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.JSONEq(t, `{"detail":"Internal Server Error"}`, string(body))
	assert.NotContains(t, string(body), "10.0.0.1")
	assert.Empty(t, res.Header.Get(HeaderObjectKey))
	assert.Equal(t, 1, env.store.Puts())
}

func TestCreate_MissingBucketIsServerError(t *testing.T) {
	store := s3test.New()
	ig, err := ingestor.NewIngestor(encoder.JSONEncoder[payload.Unicorn]{}, sink.New(store, "absent", ""), keys.Fixed("test"))
	require.NoError(t, err)

	opts := DefaultHandlerOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(ig, nil, opts)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/unicorn", bytes.NewBufferString(`{"name":"honey","rainbow":true}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "NoSuchBucket")
}

func TestGet_Unimplemented(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	res, body := env.get(t, "/unicorn/42")
	assert.Equal(t, http.StatusNotImplemented, res.StatusCode)
	assert.JSONEq(t, `{"detail":"Not Implemented"}`, string(body))
}

func TestGet_WithFinder(t *testing.T) {
	finder := lookup.FinderFunc(func(ctx context.Context, id string) (payload.UnicornResponse, error) {
		switch id {
		case "1":
			return payload.UnicornResponse{Unicorn: payload.Unicorn{Name: "honey", Rainbow: true}, ID: 1}, nil
		case "boom":
			return payload.UnicornResponse{}, errors.New("athena exploded")
		default:
			return payload.UnicornResponse{}, lookup.ErrNotFound
		}
	})
	env := newTestEnv(t, keys.Fixed("test"), finder)

	res, body := env.get(t, "/unicorn/1")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"name":"honey","rainbow":true,"id":1}`, string(body))

	res, body = env.get(t, "/unicorn/2")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.JSONEq(t, `{"detail":"Not Found"}`, string(body))

	res, body = env.get(t, "/unicorn/boom")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.NotContains(t, string(body), "athena")
}

func TestRouting_NotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)

	res, body := env.get(t, "/horses")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.JSONEq(t, `{"detail":"Not Found"}`, string(body))

	res, body = env.get(t, "/unicorn")
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	assert.JSONEq(t, `{"detail":"Method Not Allowed"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, keys.Fixed("test"), nil)
	env.post(t, `{"name":"honey","rainbow":true}`)

	res, body := env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `unicorn_ingests_total{result="stored"}`)
}

type panicIngester struct{}

func (panicIngester) Ingest(ctx context.Context, body []byte) (ingestor.Result, error) {
	panic("unexpected")
}

func TestRecoverer(t *testing.T) {
	opts := DefaultHandlerOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(panicIngester{}, nil, opts)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/unicorn", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal Server Error"}`, rec.Body.String())
}
