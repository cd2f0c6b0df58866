package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/fleet"
	"github.com/everythingsuckz/streamgate/internal/propcache"
)

func TestParsePathHashSlashID(t *testing.T) {
	p, err := parsePath("/abc123/42", "")
	require.NoError(t, err)
	assert.Equal(t, "abc123", p.Hash)
	assert.Equal(t, 42, p.MsgID)
}

func TestParsePathIDWithQueryHash(t *testing.T) {
	p, err := parsePath("/42", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", p.Hash)
	assert.Equal(t, 42, p.MsgID)
}

func TestParsePathRejectsNonNumericID(t *testing.T) {
	_, err := parsePath("/abc123/notanumber", "")
	assert.Error(t, err)
}

func TestValidHashMatchesFirstSixChars(t *testing.T) {
	assert.True(t, validHash("abcdef1234", "abcdef"))
	assert.False(t, validHash("abcdef1234", "abcdeg"))
}

func TestValidHashRejectsEmpty(t *testing.T) {
	assert.False(t, validHash("abcdef1234", ""))
}

func TestValidHashRejectsShortUniqueID(t *testing.T) {
	assert.False(t, validHash("abc", "abc"))
}

type fakeStreamBackend struct {
	media tg.MessageMediaClass
	dcID  int
}

func (f *fakeStreamBackend) ResolveMessage(ctx context.Context, msgID int) (tg.MessageMediaClass, int, error) {
	if msgID != 7 {
		return nil, 0, errMalformedPath
	}
	return f.media, f.dcID, nil
}

func newTestEngine(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := &fakeStreamBackend{
		media: &tg.MessageMediaDocument{
			Document: &tg.Document{
				ID:         42,
				AccessHash: 99,
				Size:       1024,
				MimeType:   "video/mp4",
			},
		},
		dcID: 2,
	}
	cache := propcache.New(backend, 1<<20, zap.NewNop())
	fd, err := cache.Get(context.Background(), 7)
	require.NoError(t, err)
	hash := fd.UniqueIDPrefix[:6]

	engine := gin.New()
	Load(zap.NewNop(), engine, &Gateway{
		PropCache: cache,
		Fleet:     &fleet.Fleet{},
		ChunkSize: 512 * 1024,
		StartTime: time.Now(),
		Version:   "test",
		BotHandle: "test",
	})
	return engine, hash
}

func TestStreamRouteNotFoundForUnknownMessage(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/abcdef/999", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamRouteForbiddenOnWrongHash(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/wrongh/7", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStreamRouteRangeNotSatisfiable(t *testing.T) {
	engine, hash := newTestEngine(t)

	req := httptest.NewRequest(http.MethodHead, "/"+hash+"/7", nil)
	req.Header.Set("Range", "bytes=99999999-")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
}

func TestStreamRouteHeadOkWithHeaders(t *testing.T) {
	engine, hash := newTestEngine(t)

	req := httptest.NewRequest(http.MethodHead, "/"+hash+"/7", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "1024", rec.Header().Get("Content-Length"))
}

func TestStreamRouteHeadPartialContent(t *testing.T) {
	engine, hash := newTestEngine(t)

	req := httptest.NewRequest(http.MethodHead, "/"+hash+"/7", nil)
	req.Header.Set("Range", "bytes=0-99")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1024", rec.Header().Get("Content-Range"))
}

func TestStreamRouteIDWithQueryHash(t *testing.T) {
	engine, hash := newTestEngine(t)

	req := httptest.NewRequest(http.MethodHead, "/7?hash="+hash, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
