package muxserve

import (
	"bytes"
	"net"
	"strings"

	"github.com/antlabs/httparser"
	"github.com/panjf2000/ants/v2"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

// requestLogger writes one diagnostic line per request. The event-loop only copies the
// request into a pooled buffer; decoding and logging happen on the worker pool.
type requestLogger struct {
	logger *zap.Logger
	pool   *ants.Pool
}

func newRequestLogger(logger *zap.Logger, workers int) (*requestLogger, error) {
	rl := &requestLogger{logger: logger}
	if workers <= 0 {
		return rl, nil
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true), ants.WithPanicHandler(func(p interface{}) {
		logger.Error("request logger panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, err
	}
	rl.pool = pool
	return rl, nil
}

// log records req, which the caller may reuse as soon as log returns.
func (rl *requestLogger) log(fd int, remote net.Addr, req []byte) {
	buf := bytebufferpool.Get()
	_, _ = buf.Write(req)
	task := func() {
		rl.emit(fd, remote, buf.B)
		bytebufferpool.Put(buf)
	}
	if rl.pool == nil {
		task()
		return
	}
	// Overloaded or released pool: log on the caller rather than drop the line.
	if err := rl.pool.Submit(task); err != nil {
		task()
	}
}

func (rl *requestLogger) emit(fd int, remote net.Addr, raw []byte) {
	fields := make([]zap.Field, 0, 6)
	fields = append(fields,
		zap.Int("fd", fd),
		zap.Int("bytes", len(raw)),
		zap.String("raw", strings.ToValidUTF8(string(raw), "�")))
	if remote != nil {
		fields = append(fields, zap.Stringer("remote", remote))
	}
	if method, target, ok := inspectRequest(raw); ok {
		fields = append(fields, zap.String("method", method), zap.String("target", target))
	}
	rl.logger.Info("request", fields...)
}

// Close stops the worker pool.
func (rl *requestLogger) Close() {
	if rl.pool != nil {
		rl.pool.Release()
	}
}

// inspectRequest pulls the method and request target out of raw for the log line only.
// Anything httparser rejects is reported as not ok.
func inspectRequest(raw []byte) (method, target string, ok bool) {
	defer func() {
		if recover() != nil {
			method, target, ok = "", "", false
		}
	}()

	var url []byte
	setting := httparser.Setting{
		URL: func(_ *httparser.Parser, buf []byte) {
			url = append(url, buf...)
		},
	}
	p := httparser.New(httparser.REQUEST)
	if _, err := p.Execute(&setting, raw); err != nil || len(url) == 0 {
		return "", "", false
	}
	sp := bytes.IndexByte(raw, ' ')
	if sp <= 0 {
		return "", "", false
	}
	return string(raw[:sp]), string(url), true
}
