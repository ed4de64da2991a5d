package interview

import (
	"context"
	"sync"
	"testing"
	"time"
)

func fastEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SilenceThresholdMs: 60,
		MaxUtteranceMs:     5000,
		NoSpeechTimeoutMs:  200,
		EnergyThreshold:    0.02,
		TickMs:             10,
	}
}

// endpointRecorder collects endpointer callbacks for assertions.
type endpointRecorder struct {
	mu         sync.Mutex
	utterances [][]byte
	forced     []bool
	noSpeech   int
}

func (r *endpointRecorder) onUtterance(audio []byte, forced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.utterances = append(r.utterances, audio)
	r.forced = append(r.forced, forced)
}

func (r *endpointRecorder) onNoSpeech(waitedMs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noSpeech++
}

func (r *endpointRecorder) counts() (utterances, noSpeech int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.utterances), r.noSpeech
}

func TestEndpointerSilenceCommit(t *testing.T) {
	e := NewEndpointer(fastEndpointConfig(), DefaultAudioConfig())
	rec := &endpointRecorder{}
	e.SetCallbacks(rec.onUtterance, rec.onNoSpeech, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()
	e.Arm()

	// 50ms of voiced audio, then stop feeding.
	voiced := pcmFrame(160, 8000)
	for i := 0; i < 5; i++ {
		e.PushFrame(voiced)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	utterances, noSpeech := rec.counts()
	if utterances != 1 {
		t.Fatalf("Expected exactly one utterance, got %d", utterances)
	}
	if noSpeech != 0 {
		t.Errorf("Did not expect a no-speech signal, got %d", noSpeech)
	}
	if rec.forced[0] {
		t.Error("Silence commit should not be marked forced")
	}
	if len(rec.utterances[0]) == 0 {
		t.Error("Expected buffered audio in the utterance")
	}
}

func TestEndpointerBelowThresholdNoCommit(t *testing.T) {
	config := fastEndpointConfig()
	config.NoSpeechTimeoutMs = 10000 // keep the no-speech path out of the way
	e := NewEndpointer(config, DefaultAudioConfig())
	rec := &endpointRecorder{}
	e.SetCallbacks(rec.onUtterance, rec.onNoSpeech, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()
	e.Arm()

	// Quiet frames only: never voiced, never committed.
	quiet := pcmFrame(160, 50)
	for i := 0; i < 5; i++ {
		e.PushFrame(quiet)
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	utterances, noSpeech := rec.counts()
	if utterances != 0 || noSpeech != 0 {
		t.Errorf("Expected no signals for sub-threshold audio, got %d utterances, %d no-speech", utterances, noSpeech)
	}
}

func TestEndpointerNoSpeechTimeout(t *testing.T) {
	e := NewEndpointer(fastEndpointConfig(), DefaultAudioConfig())
	rec := &endpointRecorder{}
	e.SetCallbacks(rec.onUtterance, rec.onNoSpeech, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()
	e.Arm()

	time.Sleep(300 * time.Millisecond)

	utterances, noSpeech := rec.counts()
	if noSpeech != 1 {
		t.Fatalf("Expected one no-speech signal, got %d", noSpeech)
	}
	if utterances != 0 {
		t.Errorf("Expected no utterance, got %d", utterances)
	}
}

func TestEndpointerMaxUtteranceForcesFlush(t *testing.T) {
	config := fastEndpointConfig()
	config.MaxUtteranceMs = 50
	config.SilenceThresholdMs = 5000
	e := NewEndpointer(config, DefaultAudioConfig())
	rec := &endpointRecorder{}
	e.SetCallbacks(rec.onUtterance, rec.onNoSpeech, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()
	e.Arm()

	// Keep talking well past the cap.
	voiced := pcmFrame(160, 8000)
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		e.PushFrame(voiced)
		time.Sleep(5 * time.Millisecond)
	}

	utterances, _ := rec.counts()
	if utterances != 1 {
		t.Fatalf("Expected one forced utterance, got %d", utterances)
	}
	if !rec.forced[0] {
		t.Error("Expected the flush to be marked forced")
	}
}

func TestEndpointerDisarmDiscards(t *testing.T) {
	e := NewEndpointer(fastEndpointConfig(), DefaultAudioConfig())
	rec := &endpointRecorder{}
	e.SetCallbacks(rec.onUtterance, rec.onNoSpeech, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()
	e.Arm()

	e.PushFrame(pcmFrame(160, 8000))
	e.Disarm()

	time.Sleep(300 * time.Millisecond)

	utterances, noSpeech := rec.counts()
	if utterances != 0 || noSpeech != 0 {
		t.Errorf("Expected nothing after disarm, got %d utterances, %d no-speech", utterances, noSpeech)
	}
}

func TestEndpointerStopDiscards(t *testing.T) {
	e := NewEndpointer(fastEndpointConfig(), DefaultAudioConfig())
	rec := &endpointRecorder{}
	e.SetCallbacks(rec.onUtterance, rec.onNoSpeech, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	e.Arm()

	e.PushFrame(pcmFrame(160, 8000))
	e.Stop()

	time.Sleep(200 * time.Millisecond)

	utterances, noSpeech := rec.counts()
	if utterances != 0 || noSpeech != 0 {
		t.Errorf("Expected nothing after stop, got %d utterances, %d no-speech", utterances, noSpeech)
	}
}
