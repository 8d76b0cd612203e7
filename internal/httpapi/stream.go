package httpapi

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reelnn/streamvault/internal/apierr"
	"github.com/reelnn/streamvault/internal/streamer"
	"github.com/reelnn/streamvault/internal/tokens"
)

// rangeWindow is the result of parsing a Range header against a known file
// size, per spec.md §4.4.
type rangeWindow struct {
	from, until int64
	status      int
}

// parseRange implements the spec's Range algorithm exactly: absent header
// means the whole file at 200; a present header means 206 and validates
// 0 <= from <= until < fileSize.
func parseRange(header string, fileSize int64) (rangeWindow, error) {
	if header == "" {
		return rangeWindow{from: 0, until: fileSize - 1, status: http.StatusOK}, nil
	}

	spec := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return rangeWindow{}, fmt.Errorf("%w: malformed range header", apierr.ErrRangeNotSatisfiable)
	}

	from, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return rangeWindow{}, fmt.Errorf("%w: malformed range start", apierr.ErrRangeNotSatisfiable)
	}

	until := fileSize - 1
	if parts[1] != "" {
		until, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return rangeWindow{}, fmt.Errorf("%w: malformed range end", apierr.ErrRangeNotSatisfiable)
		}
	}

	if from < 0 || until < from || until >= fileSize {
		return rangeWindow{}, fmt.Errorf("%w", apierr.ErrRangeNotSatisfiable)
	}

	return rangeWindow{from: from, until: until, status: http.StatusPartialContent}, nil
}

// filenameFallback synthesizes "HEX.EXT" when the locator has no file name,
// EXT derived from the mime subtype (or "unknown").
func filenameFallback(id string, mimeType string) string {
	hex := id
	if len(hex) > 4 {
		hex = hex[len(hex)-4:]
	}
	for len(hex) < 4 {
		hex = "0" + hex
	}

	ext := "unknown"
	if mimeType != "" {
		if slash := strings.Index(mimeType, "/"); slash >= 0 {
			ext = mimeType[slash+1:]
		}
	}
	return hex + "." + ext
}

func guessMimeType(fileName string) string {
	if ext := mimeExt(fileName); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

func mimeExt(fileName string) string {
	if i := strings.LastIndex(fileName, "."); i >= 0 {
		return fileName[i:]
	}
	return ""
}

func (s *Server) handleStream(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	tok := tokens.ExtractToken(c.GetHeader("Authorization"), c.Query("token"))

	claims, err := s.tokens.VerifyStreamToken(tok, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	quality, err := s.store.ResolveQuality(c.Request.Context(), string(claims.MediaType), id, claims.QualityIndex, claims.SeasonNumber, claims.EpisodeNumber)
	if err != nil {
		s.fail(c, err)
		return
	}

	loc := streamer.FileLocator{ChatID: quality.ChatID, MessageID: quality.MsgID}
	props, err := s.streamer.GetFileProperties(c.Request.Context(), loc)
	if err != nil {
		s.fail(c, err)
		return
	}

	// spec.md §3's hard invariant: the stored file_hash must be a 6-character
	// prefix of the live locator's unique_id. A mismatch is rejected before a
	// single byte is streamed.
	if quality.FileHash == "" || !strings.HasPrefix(props.UniqueID, quality.FileHash) {
		err := fmt.Errorf("%w: stored hash does not match live locator", apierr.ErrHashMismatch)
		s.fail(c, err)
		s.logStream(c, id, 0, 0, props.Size, apierr.StatusCode(err), start)
		return
	}

	window, err := parseRange(c.GetHeader("Range"), props.Size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", props.Size))
		s.fail(c, err)
		s.logStream(c, id, 0, 0, props.Size, apierr.StatusCode(err), start)
		return
	}

	fileName := props.FileName
	if fileName == "" {
		fileName = filenameFallback(id, props.MimeType)
	}
	mimeType := props.MimeType
	if mimeType == "" {
		mimeType = guessMimeType(fileName)
	}

	reqLength := window.until - window.from + 1

	c.Header("Content-Type", mimeType)
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", window.from, window.until, props.Size))
	c.Header("Content-Length", strconv.FormatInt(reqLength, 10))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Header("Accept-Ranges", "bytes")
	c.Status(window.status)

	err = s.streamer.Yield(c.Request.Context(), props, window.from, window.until, c.Writer)
	status := window.status
	if err != nil {
		status = apierr.StatusCode(err)
		if s.logger != nil {
			s.logger.Warn("stream interrupted", zap.String("id", id), zap.Error(err))
		}
	}

	s.logStream(c, id, window.from, window.until, props.Size, status, start)
}

func (s *Server) logStream(c *gin.Context, id string, from, until, size int64, status int, start time.Time) {
	s.addRequestLog(RequestLog{
		Timestamp:  start,
		ID:         id,
		ClientIP:   c.ClientIP(),
		RangeStart: from,
		RangeEnd:   until,
		FileSize:   size,
		StatusCode: status,
		DurationMs: time.Since(start).Milliseconds(),
	})
}
