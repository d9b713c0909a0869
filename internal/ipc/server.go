package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"github.com/google/uuid"

	"binky/internal/daemon"
	"binky/internal/language"
	"binky/internal/logging"
	"binky/internal/services"
	"binky/internal/store"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "Binky"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// Close stops the server, drops open client connections, and removes the
// socket file. Cancelling the server context releases long-polling Events
// calls before their connections close.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun binky stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

// requestContext tags a mutating call so its log lines can be correlated.
func (s *service) requestContext(method string, episodeID int64) (context.Context, *slog.Logger) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	if episodeID > 0 {
		ctx = services.WithEpisodeID(ctx, episodeID)
	}
	return ctx, logging.WithContext(ctx, s.log()).With(logging.String("method", method))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.ModelsDir = status.ModelsDir
	resp.Language = status.Language
	resp.Transcription = status.Transcription
	resp.Diarization = status.Diarization
	resp.Models = status.Models
	resp.Counts = make(map[string]int, len(status.Counts.Transcription)+len(status.Counts.Diarization))
	for k, v := range status.Counts.Transcription {
		resp.Counts["transcription."+string(k)] = v
	}
	for k, v := range status.Counts.Diarization {
		resp.Counts["diarization."+string(k)] = v
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.daemon.RequestStop()
	resp.Stopping = true
	return nil
}

func (s *service) Transcribe(req EpisodeRequest, resp *EnqueueResponse) error {
	if err := validID(req.EpisodeID); err != nil {
		return err
	}
	ctx, logger := s.requestContext("Transcribe", req.EpisodeID)
	if err := s.daemon.Transcribe(ctx, req.EpisodeID); err != nil {
		logger.Debug("enqueue rejected", logging.Error(err))
		return err
	}
	logger.Debug("enqueue accepted")
	transcription, _ := s.daemon.QueueStatus()
	resp.Queued = true
	resp.EpisodeID = req.EpisodeID
	resp.QueueStatus = transcription
	return nil
}

func (s *service) TranscribeAll(_ BatchRequest, resp *BatchResponse) error {
	ctx, logger := s.requestContext("TranscribeAll", 0)
	result, err := s.daemon.TranscribeAll(ctx)
	if err != nil {
		logger.Debug("batch rejected", logging.Error(err), logging.Int("queued", len(result.Queued)))
		return err
	}
	logger.Debug("batch accepted", logging.Int("queued", len(result.Queued)))
	transcription, _ := s.daemon.QueueStatus()
	resp.Queued = result.Queued
	resp.Skipped = result.Skipped
	resp.QueueStatus = transcription
	return nil
}

func (s *service) CancelTranscription(_ CancelRequest, resp *CancelResponse) error {
	resp.Cancelled = s.daemon.CancelTranscription()
	return nil
}

func (s *service) Diarize(req EpisodeRequest, resp *EnqueueResponse) error {
	if err := validID(req.EpisodeID); err != nil {
		return err
	}
	ctx, logger := s.requestContext("Diarize", req.EpisodeID)
	if err := s.daemon.Diarize(ctx, req.EpisodeID); err != nil {
		logger.Debug("enqueue rejected", logging.Error(err))
		return err
	}
	logger.Debug("enqueue accepted")
	_, diarization := s.daemon.QueueStatus()
	resp.Queued = true
	resp.EpisodeID = req.EpisodeID
	resp.QueueStatus = diarization
	return nil
}

func (s *service) DiarizeAll(_ BatchRequest, resp *BatchResponse) error {
	ctx, logger := s.requestContext("DiarizeAll", 0)
	result, err := s.daemon.DiarizeAll(ctx)
	if err != nil {
		logger.Debug("batch rejected", logging.Error(err), logging.Int("queued", len(result.Queued)))
		return err
	}
	logger.Debug("batch accepted", logging.Int("queued", len(result.Queued)))
	_, diarization := s.daemon.QueueStatus()
	resp.Queued = result.Queued
	resp.Skipped = result.Skipped
	resp.QueueStatus = diarization
	return nil
}

func (s *service) CancelDiarization(_ CancelRequest, resp *CancelResponse) error {
	resp.Cancelled = s.daemon.CancelDiarization()
	return nil
}

func (s *service) QueueStatus(_ QueueStatusRequest, resp *QueueStatusResponse) error {
	resp.Transcription, resp.Diarization = s.daemon.QueueStatus()
	return nil
}

func (s *service) Episodes(req EpisodesRequest, resp *EpisodesResponse) error {
	episodes, err := s.daemon.Episodes(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Episodes = make([]Episode, 0, len(episodes))
	for _, episode := range episodes {
		if episode == nil {
			continue
		}
		resp.Episodes = append(resp.Episodes, FromEpisode(episode))
	}
	return nil
}

func (s *service) AddEpisode(req AddEpisodeRequest, resp *AddEpisodeResponse) error {
	episode, err := s.daemon.AddEpisode(s.ctx, store.NewEpisode{
		PodcastID:  req.PodcastID,
		Title:      req.Title,
		AudioURL:   req.AudioURL,
		DurationMS: req.DurationMS,
	})
	if err != nil {
		return err
	}
	resp.Episode = FromEpisode(episode)
	return nil
}

func (s *service) Transcript(req EpisodeRequest, resp *TranscriptResponse) error {
	if err := validID(req.EpisodeID); err != nil {
		return err
	}
	transcript, err := s.daemon.Transcript(s.ctx, req.EpisodeID)
	if err != nil {
		return err
	}
	resp.EpisodeID = transcript.EpisodeID
	resp.Language = transcript.Language
	resp.Model = transcript.Model
	resp.FullText = transcript.FullText
	resp.Segments = transcript.Segments
	resp.CreatedAt = transcript.CreatedAt
	return nil
}

func (s *service) Segments(req EpisodeRequest, resp *SegmentsResponse) error {
	if err := validID(req.EpisodeID); err != nil {
		return err
	}
	episode, err := s.daemon.Episode(s.ctx, req.EpisodeID)
	if err != nil {
		return err
	}
	segments, err := s.daemon.Segments(s.ctx, req.EpisodeID)
	if err != nil {
		return err
	}
	resp.EpisodeID = req.EpisodeID
	resp.DiarizationStatus = string(episode.DiarizationStatus)
	resp.Segments = make([]SpeakerSegment, 0, len(segments))
	for _, seg := range segments {
		resp.Segments = append(resp.Segments, SpeakerSegment{
			StartMS:      seg.StartMS,
			EndMS:        seg.EndMS,
			SpeakerLabel: seg.SpeakerLabel,
			Confidence:   seg.Confidence,
		})
	}
	return nil
}

func (s *service) Models(_ ModelsRequest, resp *ModelsResponse) error {
	resp.Models = s.daemon.Models()
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	events, next, err := s.daemon.Events(s.ctx, req.Since, req.Limit, req.Wait)
	if err != nil {
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) Language(req LanguageRequest, resp *LanguageResponse) error {
	var (
		code string
		err  error
	)
	if req.Value != "" {
		code, err = s.daemon.SetLanguage(s.ctx, req.Value)
	} else {
		code, err = s.daemon.Language(s.ctx)
	}
	if err != nil {
		return err
	}
	resp.Language = code
	resp.DisplayName = language.DisplayName(code)
	return nil
}

func validID(id int64) error {
	if id <= 0 {
		return services.Wrap(services.ErrValidation, "ipc", "episode id", fmt.Sprintf("invalid episode id %d", id), nil)
	}
	return nil
}
