package routes

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/chunkfetcher"
	"github.com/everythingsuckz/streamgate/internal/rangeplan"
	"github.com/everythingsuckz/streamgate/internal/streamdriver"
)

// LoadWatch registers GET|HEAD /watch/:path — an HTML player page around
// the same (hash, msg_id) resolution stream uses.
func (e *allRoutes) LoadWatch(r *Route) {
	log := e.log.Named("watch")
	defer log.Info("loaded watch route")
	r.Engine.GET("/watch/*path", e.getWatch)
	r.Engine.HEAD("/watch/*path", e.getWatch)
}

// LoadStream registers GET|HEAD /{path} — the byte-streaming route.
// {hash}/{msg_id} is two path segments, so a single-segment `:path` param
// can never match it (as LoadWatch's `/watch/*path` does for its own
// prefix). A root-level `/*path` can't be used here either: it would
// share the same tree node as the literal `/` status route and gin's
// router panics on that exact collision ("catch-all conflicts with
// existing handle for the path segment root"). Gin's NoRoute hook sidesteps
// the tree entirely — it only fires once `/` and `/watch/*path` have both
// failed to match, which is exactly the fallback this route needs.
func (e *allRoutes) LoadStream(r *Route) {
	log := e.log.Named("stream")
	defer log.Info("loaded stream route")
	r.Engine.NoRoute(func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead {
			ctx.String(http.StatusNotFound, "not found")
			return
		}
		e.getStream(ctx)
	})
}

// parsedPath is {hash6}/{msg_id} or {msg_id}?hash={hash6} (spec.md §4.8).
type parsedPath struct {
	Hash  string
	MsgID int
}

func parsePath(raw, queryHash string) (parsedPath, error) {
	raw = strings.Trim(raw, "/")
	parts := strings.SplitN(raw, "/", 2)

	if len(parts) == 2 {
		msgID, err := strconv.Atoi(parts[1])
		if err != nil {
			return parsedPath{}, errMalformedPath
		}
		return parsedPath{Hash: parts[0], MsgID: msgID}, nil
	}

	msgID, err := strconv.Atoi(parts[0])
	if err != nil {
		return parsedPath{}, errMalformedPath
	}
	return parsedPath{Hash: queryHash, MsgID: msgID}, nil
}

var errMalformedPath = errors.New("routes: malformed path")

func (e *allRoutes) getWatch(ctx *gin.Context) {
	p, err := parsePath(ctx.Param("path"), ctx.Query("hash"))
	if err != nil {
		ctx.String(http.StatusNotFound, "not found")
		return
	}

	fd, err := e.gw.PropCache.Get(ctx.Request.Context(), p.MsgID)
	if err != nil {
		ctx.String(http.StatusNotFound, "not found")
		return
	}
	if !validHash(fd.UniqueIDPrefix, p.Hash) {
		ctx.String(http.StatusForbidden, "Invalid hash")
		return
	}

	ctx.Data(http.StatusOK, "text/html; charset=utf-8", []byte(watchPageHTML(fd.FileName, p.Hash, p.MsgID)))
}

func (e *allRoutes) getStream(ctx *gin.Context) {
	log := e.log.Named("stream")
	// Reached via NoRoute (see LoadStream), so there's no registered
	// `:path`/`*path` param to read — the path comes straight off the
	// request URL instead.
	p, err := parsePath(ctx.Request.URL.Path, ctx.Query("hash"))
	if err != nil {
		ctx.String(http.StatusNotFound, "not found")
		return
	}

	fd, err := e.gw.PropCache.Get(ctx.Request.Context(), p.MsgID)
	if err != nil {
		ctx.String(http.StatusNotFound, "not found")
		return
	}
	if !validHash(fd.UniqueIDPrefix, p.Hash) {
		ctx.String(http.StatusForbidden, "Invalid hash")
		return
	}

	chunkSize := e.gw.ChunkSize
	if fd.ThumbSize != "" {
		// spec.md §4.3: initial limit is 256 KiB for thumbs rather than the
		// full 512 KiB used for documents/photos.
		chunkSize = chunkfetcher.ThumbChunk
	}
	plan, err := rangeplan.Compute(fd.FileSize, ctx.GetHeader("Range"), chunkSize)
	if err != nil {
		ctx.Header("Content-Range", fmt.Sprintf("bytes */%d", fd.FileSize))
		ctx.String(http.StatusRequestedRangeNotSatisfiable, "")
		return
	}

	contentType := fd.MimeType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fd.FileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	filename := fd.FileName
	if filename == "" {
		filename = fmt.Sprintf("%d.bin", p.MsgID)
	}

	ctx.Header("Accept-Ranges", "bytes")
	ctx.Header("Content-Type", contentType)
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Header("Content-Length", strconv.FormatInt(plan.End-plan.Start+1, 10))

	status := http.StatusOK
	if plan.HasRange {
		ctx.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", plan.Start, plan.End, fd.FileSize))
		status = http.StatusPartialContent
	}
	ctx.Status(status)

	if ctx.Request.Method == http.MethodHead {
		return
	}

	identity := e.gw.Fleet.Pick()
	if identity == nil {
		log.Error("no client identities available")
		return
	}

	driver := e.gw.NewDriver()
	if err := driver.Run(ctx.Request.Context(), plan, fd, identity, p.MsgID, ctx.Writer); err != nil {
		if isClientDisconnect(err) {
			return
		}
		log.Warn("stream ended with error", zap.Int("msg_id", p.MsgID), zap.Error(err))
	}
}

func validHash(uniqueIDPrefix, supplied string) bool {
	return supplied != "" && len(uniqueIDPrefix) >= 6 && supplied == uniqueIDPrefix[:6]
}

// isClientDisconnect reports whether err is the client simply going away
// mid-stream rather than a server fault (spec.md §4.8): these are
// swallowed silently.
func isClientDisconnect(err error) bool {
	return errors.Is(err, streamdriver.ErrAborted) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset")
}

func watchPageHTML(fileName, hash string, msgID int) string {
	if fileName == "" {
		fileName = "file"
	}
	src := fmt.Sprintf("/%s/%d", hash, msgID)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>%s</title>
</head>
<body style="margin:0;background:#000;">
<video src="%s" controls autoplay style="width:100%%;height:100vh;"></video>
</body>
</html>`, fileName, src)
}
