package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/stafflens/interviewd/internal/store"
	"github.com/stafflens/interviewd/pkg/core/analysis"
	"github.com/stafflens/interviewd/pkg/core/dialogue"
	"github.com/stafflens/interviewd/pkg/core/interview"
	"github.com/stafflens/interviewd/pkg/core/stt"
	"github.com/stafflens/interviewd/pkg/core/tts"
	"github.com/stafflens/interviewd/pkg/gateway/config"
	"github.com/stafflens/interviewd/pkg/gateway/handlers"
	"github.com/stafflens/interviewd/pkg/gateway/live"
	"github.com/stafflens/interviewd/pkg/gateway/metrics"
	"github.com/stafflens/interviewd/pkg/gateway/mw"
	"github.com/stafflens/interviewd/pkg/gateway/ratelimit"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *interview.Registry
	metrics  *metrics.Metrics
	store    *store.Store
	clients  interview.Clients
	limiter  *ratelimit.Limiter
}

// New assembles the interview gateway. The store may be nil; history
// endpoints and persistence are then disabled.
func New(cfg config.Config, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: interview.NewRegistry(cfg.MaxSessions, logger),
		metrics:  metrics.New("interviewd"),
		store:    st,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                     cfg.LimitRPS,
			Burst:                   cfg.LimitBurst,
			MaxConcurrentInterviews: cfg.LimitMaxConcurrentInterviews,
		}),
	}
	s.clients = s.buildClients()
	s.routes()
	return s
}

func (s *Server) buildClients() interview.Clients {
	transcriber := stt.NewDeepgram(s.cfg.DeepgramAPIKey)
	speaker := tts.NewElevenLabs(s.cfg.ElevenLabsAPIKey)
	if s.cfg.ElevenLabsVoiceID != "" {
		speaker = speaker.WithVoice(s.cfg.ElevenLabsVoiceID)
	}
	interviewer := dialogue.NewOpenRouter(s.cfg.OpenRouterAPIKey)
	if s.cfg.DialogueModel != "" {
		interviewer = interviewer.WithModel(s.cfg.DialogueModel)
	}

	// Analysis runs the cheap local scorer first when configured, then the
	// remote fallback.
	var providers []analysis.Provider
	if s.cfg.LocalAnalysisURL != "" {
		providers = append(providers, analysis.NewLocal(s.cfg.LocalAnalysisURL))
	}
	remote := analysis.NewOpenRouter(s.cfg.OpenRouterAPIKey)
	if s.cfg.AnalysisModel != "" {
		remote = remote.WithModel(s.cfg.AnalysisModel)
	}
	providers = append(providers, remote)

	var sink analysis.Sink
	if s.store != nil {
		sink = s.store
	}

	return interview.Clients{
		Transcription: transcriber,
		Dialogue:      interviewer,
		Synthesis:     speaker,
		Analysis:      analysis.NewHandoff(providers, sink, s.logger),
	}
}

func (s *Server) sessionConfig() interview.SessionConfig {
	base := interview.DefaultSessionConfig()
	base.Endpointing.SilenceThresholdMs = int(s.cfg.SilenceThreshold.Milliseconds())
	base.Endpointing.MaxUtteranceMs = int(s.cfg.MaxUtterance.Milliseconds())
	base.Endpointing.NoSpeechTimeoutMs = int(s.cfg.NoSpeechTimeout.Milliseconds())
	base.RetryBudget = s.cfg.RetryBudget
	base.MinExchanges = s.cfg.MinExchanges
	base.MaxExchanges = s.cfg.MaxExchanges

	instructions, err := interview.LoadInstructions(s.cfg.InstructionsPath)
	if err != nil {
		s.logger.Warn("instructions load failed, using default", "path", s.cfg.InstructionsPath, "error", err)
	} else {
		base.Instructions = instructions
	}
	return base
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.NotFoundHandler{})
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("GET /v1/sessions", handlers.SessionsListHandler{Registry: s.registry})
	s.mux.Handle("GET /v1/sessions/{channel}", handlers.SessionGetHandler{Registry: s.registry})
	s.mux.Handle("POST /v1/sessions/{channel}/abort", handlers.SessionAbortHandler{Registry: s.registry})

	if s.store != nil {
		s.mux.Handle("GET /v1/interviews", handlers.InterviewsListHandler{Store: s.store})
		s.mux.Handle("GET /v1/interviews/{id}", handlers.InterviewGetHandler{Store: s.store})
	}

	var saver live.SessionSaver
	if s.store != nil {
		saver = s.store
	}
	s.mux.Handle("GET /v1/channels/{channel}/audio", live.NewHandler(live.HandlerConfig{
		Base:                s.sessionConfig(),
		MaxAudioFrameBytes:  s.cfg.LiveMaxAudioFrameBytes,
		MaxJSONMessageBytes: s.cfg.LiveMaxJSONMessageBytes,
		PingInterval:        s.cfg.LiveWSPingInterval,
		WriteTimeout:        s.cfg.LiveWSWriteTimeout,
		MaxSessionDuration:  s.cfg.MaxSessionDuration,
	}, s.registry, s.clients, s.metrics, saver, s.logger))
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Registry exposes the live session set for shutdown draining.
func (s *Server) Registry() *interview.Registry {
	return s.registry
}

// Drain cancels every live session and waits for the turn loops to resolve,
// bounded by ctx.
func (s *Server) Drain(ctx context.Context) bool {
	cancelled := s.registry.CancelAll()
	if cancelled > 0 {
		s.logger.Info("draining live sessions", "count", cancelled)
	}
	return s.registry.Wait(ctx)
}
