package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/hlt-mt/smarterp/internal/glossary"
	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/translate"
	"github.com/hlt-mt/smarterp/internal/window"
	"github.com/hlt-mt/smarterp/internal/worker"
)

// writeTimeout bounds sending one message to the client.
const writeTimeout = 10 * time.Second

// errShutdown is returned by [Session.handle] after a shutdown action.
var errShutdown = errors.New("server: shutdown requested")

// Session is the state of one client connection. Its buffer is only touched
// by the connection's read loop; mu guards the fields reported by
// [Server.Sessions].
type Session struct {
	id        string
	remote    string
	startedAt time.Time
	srv       *Server
	conn      *websocket.Conn

	buf      *window.Buffer
	dictPath string

	mu      sync.Mutex
	srcLang string
	tgtLang string
}

func newSession(srv *Server, conn *websocket.Conn, remote string) *Session {
	return &Session{
		id:        uuid.NewString(),
		remote:    remote,
		startedAt: time.Now(),
		srv:       srv,
		conn:      conn,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:        s.id,
		Remote:    s.remote,
		StartedAt: s.startedAt,
		SrcLang:   s.srcLang,
		TgtLang:   s.tgtLang,
	}
}

func (s *Session) languages() (src, tgt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srcLang, s.tgtLang
}

// run reads client messages until the connection ends.
func (s *Session) run(ctx context.Context) {
	ctx = observe.WithSession(ctx, s.id)
	log := observe.Logger(ctx)
	log.Info("server: session opened", "remote", s.remote)
	defer func() {
		s.teardown(ctx)
		log.Info("server: session finished", "duration", time.Since(s.startedAt))
	}()

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("server: connection closed")
			default:
				log.Debug("server: read failed", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			log.Debug("server: dropping binary message", "bytes", len(data))
			continue
		}

		err = s.handle(ctx, data)
		switch {
		case err == nil:
		case errors.Is(err, errShutdown):
			log.Info("server: shutdown requested by client")
			_ = s.conn.Close(websocket.StatusNormalClosure, "shutdown")
			s.srv.shutdown(context.WithoutCancel(ctx))
			return
		case errors.Is(err, worker.ErrWorkerUnavailable):
			log.Error("server: worker unavailable, closing session", "err", err)
			_ = s.conn.Close(websocket.StatusInternalError, "worker unavailable")
			return
		default:
			log.Warn("server: closing session", "err", err)
			_ = s.conn.CloseNow()
			return
		}
	}
}

// handle dispatches one client message. Malformed messages are logged and
// dropped. The returned error ends the session.
func (s *Session) handle(ctx context.Context, raw []byte) error {
	log := observe.Logger(ctx)

	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug("server: dropping malformed message", "err", err, "bytes", len(raw))
		return nil
	}
	if msg.Action == nil {
		log.Debug("server: dropping message without action")
		return nil
	}

	switch action := *msg.Action; action {
	case actionStart:
		return s.start(ctx, msg.Data)
	case actionChunk:
		return s.chunk(ctx, msg.Data)
	case actionEnd:
		return s.end(ctx)
	case actionShutdown:
		s.teardown(ctx)
		return errShutdown
	default:
		log.Debug("server: unknown action", "action", action)
		return s.send(ctx, errorResponse("unknown action "+action))
	}
}

// start resets the session, stores the languages and writes the glossary
// payload to the session's dictionary file.
func (s *Session) start(ctx context.Context, raw json.RawMessage) error {
	log := observe.Logger(ctx)

	var data startData
	if len(raw) == 0 {
		log.Debug("server: dropping start without data")
		return nil
	}
	if err := json.Unmarshal(raw, &data); err != nil || !data.valid() {
		log.Debug("server: dropping start with missing data", "err", err)
		return nil
	}
	if !s.srv.supported(*data.Src) || !s.srv.supported(*data.Tgt) {
		log.Info("server: rejecting start", "src", *data.Src, "tgt", *data.Tgt)
		return s.send(ctx, errorResponse(fmt.Sprintf("unsupported language pair %s-%s", *data.Src, *data.Tgt)))
	}

	buf, err := window.New(s.srv.Params())
	if err != nil {
		return err
	}

	// The path is reused across starts, so the previous snapshot must go
	// before the file is rewritten.
	path := filepath.Join(s.srv.artifactDir, s.id+".dict.tsv")
	s.releaseGlossary(path)
	if err := glossary.WriteFile(path, data.entries()); err != nil {
		log.Warn("server: cannot write session glossary", "err", err)
		return s.send(ctx, errorResponse(err.Error()))
	}

	s.buf = buf
	s.dictPath = path
	s.mu.Lock()
	s.srcLang = *data.Src
	s.tgtLang = *data.Tgt
	s.mu.Unlock()

	log.Info("server: session started",
		"src", *data.Src, "tgt", *data.Tgt, "glossary_entries", len(*data.BilingualGloss),
		"step", buf.Params().StepSeconds, "window", buf.Params().WindowSeconds)
	return s.send(ctx, okResponse())
}

// chunk appends decoded audio and processes the window it completes, if any.
func (s *Session) chunk(ctx context.Context, raw json.RawMessage) error {
	log := observe.Logger(ctx)

	if s.buf == nil {
		return s.send(ctx, errorResponse("no active session"))
	}
	var data chunkData
	if err := json.Unmarshal(raw, &data); err != nil || data.Audio == nil {
		log.Debug("server: dropping chunk without audio", "err", err)
		return nil
	}
	pcm, err := base64.StdEncoding.DecodeString(*data.Audio)
	if err != nil {
		log.Debug("server: dropping chunk with bad encoding", "err", err)
		return nil
	}

	slice, ok := s.buf.Append(pcm)
	log.Debug("server: chunk buffered",
		"bytes", len(pcm), "total_seconds", s.buf.TotalSeconds(), "emit", ok)
	if !ok {
		return nil
	}
	return s.process(ctx, slice)
}

// end flushes trailing audio, tears the session down and acknowledges.
func (s *Session) end(ctx context.Context) error {
	if s.buf != nil {
		if slice, ok := s.buf.Flush(); ok {
			if err := s.process(ctx, slice); err != nil {
				return err
			}
		}
	}
	s.teardown(ctx)
	return s.send(ctx, okResponse())
}

// process runs one window through the processor and sends the result. Worker
// unavailability is returned to end the session; other failures are reported
// to the client.
func (s *Session) process(ctx context.Context, slice window.Slice) error {
	s.srv.metrics.SlicesEmitted.Add(ctx, 1)

	src, tgt := s.languages()
	out, err := s.srv.proc.Process(ctx, translate.Request{
		SessionID:  s.id,
		Slice:      slice,
		SrcLang:    src,
		TgtLang:    tgt,
		Dictionary: s.dictPath,
	})
	if errors.Is(err, worker.ErrWorkerUnavailable) {
		return err
	}
	if err != nil {
		observe.Logger(ctx).Warn("server: window failed", "start", slice.Start, "end", slice.End, "err", err)
		return s.send(ctx, errorResponse(err.Error()))
	}
	return s.send(ctx, newResult(time.Now(), out.Entities, out.Terms))
}

// teardown removes the transport artifact and the session glossary. It is
// idempotent.
func (s *Session) teardown(ctx context.Context) {
	log := observe.Logger(ctx)
	if err := s.srv.worker.RemoveArtifact(); err != nil {
		log.Warn("server: cannot remove artifact", "err", err)
	}
	if s.dictPath == "" {
		return
	}
	s.releaseGlossary(s.dictPath)
	if err := os.Remove(s.dictPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("server: cannot remove session glossary", "path", s.dictPath, "err", err)
	}
	s.dictPath = ""
}

func (s *Session) releaseGlossary(path string) {
	if s.srv.glossaries != nil {
		s.srv.glossaries.Release(path)
	}
}

func (s *Session) send(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, s.conn, v); err != nil {
		return fmt.Errorf("server: send: %w", err)
	}
	return nil
}
