package interview

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Endpointer turns a continuous per-speaker PCM frame stream into discrete
// end-of-utterance decisions using silence timing:
//  1. Voiced frames (RMS energy above threshold) start and extend an utterance.
//  2. Continuous silence past SilenceThresholdMs after voiced audio commits it.
//  3. MaxUtteranceMs forces a flush regardless of trailing silence.
//  4. NoSpeechTimeoutMs without any voiced frame reports no speech instead of
//     committing an empty utterance.
//
// The endpointer only observes frames while armed. Disarm or Stop discards
// the buffer immediately; nothing is emitted afterwards.
type Endpointer struct {
	config      EndpointConfig
	audioConfig AudioConfig

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	buffer       *AudioBuffer
	armed        bool
	committed    bool
	armedAt      time.Time
	lastVoicedAt time.Time
	heardSpeech  bool

	// Callbacks for events
	onUtterance func(audio []byte, forced bool)
	onNoSpeech  func(waitedMs int)
	onDebug     func(category, message string)
}

// NewEndpointer creates an endpointer with the given configuration.
func NewEndpointer(config EndpointConfig, audioConfig AudioConfig) *Endpointer {
	return &Endpointer{
		config:      config,
		audioConfig: audioConfig,
		buffer:      NewAudioBuffer(audioConfig, config.MaxUtteranceMs),
	}
}

// SetCallbacks sets the event callbacks for the endpointer.
func (e *Endpointer) SetCallbacks(
	onUtterance func(audio []byte, forced bool),
	onNoSpeech func(waitedMs int),
	onDebug func(category, message string),
) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUtterance = onUtterance
	e.onNoSpeech = onNoSpeech
	e.onDebug = onDebug
}

// Start begins the endpointer clock goroutine.
// Must be called before arming.
func (e *Endpointer) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	go e.tickLoop()
}

// Stop halts the clock and discards any buffered audio.
func (e *Endpointer) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.armed = false
	e.mu.Unlock()
	e.buffer.Clear()
}

// Arm resets utterance state and begins observing frames.
func (e *Endpointer) Arm() {
	e.mu.Lock()
	e.armed = true
	e.committed = false
	e.heardSpeech = false
	e.armedAt = time.Now()
	e.lastVoicedAt = time.Time{}
	e.mu.Unlock()
	e.buffer.Clear()
	e.debug("ENDPOINT", "Armed")
}

// Disarm stops observing frames and discards the buffer.
func (e *Endpointer) Disarm() {
	e.mu.Lock()
	e.armed = false
	e.mu.Unlock()
	e.buffer.Clear()
}

// PushFrame feeds one PCM frame from the transport.
// Frames arriving while disarmed or after a commit are dropped.
func (e *Endpointer) PushFrame(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	e.mu.Lock()
	if !e.armed || e.committed {
		e.mu.Unlock()
		return
	}

	voiced := RMSEnergy(pcm) >= e.config.EnergyThreshold
	if voiced {
		e.lastVoicedAt = time.Now()
		e.heardSpeech = true
	}
	// Leading silence is dropped; once speech has started, gaps are kept so
	// the transcription service sees natural pauses.
	keep := e.heardSpeech
	e.mu.Unlock()

	if keep {
		e.buffer.Write(pcm)
	}
}

// tickLoop polls the silence and timeout clocks.
func (e *Endpointer) tickLoop() {
	tick := time.Duration(e.config.TickMs) * time.Millisecond
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.check()
		}
	}
}

func (e *Endpointer) check() {
	e.mu.Lock()

	if !e.armed || e.committed {
		e.mu.Unlock()
		return
	}

	now := time.Now()

	if !e.heardSpeech {
		waited := now.Sub(e.armedAt)
		if waited < time.Duration(e.config.NoSpeechTimeoutMs)*time.Millisecond {
			e.mu.Unlock()
			return
		}
		e.committed = true
		callback := e.onNoSpeech
		e.mu.Unlock()

		e.debug("ENDPOINT", fmt.Sprintf("No voiced audio after %dms", waited.Milliseconds()))
		e.buffer.Clear()
		if callback != nil {
			go callback(int(waited.Milliseconds()))
		}
		return
	}

	forced := e.buffer.DurationMs() >= e.config.MaxUtteranceMs
	silence := now.Sub(e.lastVoicedAt)
	if !forced && silence < time.Duration(e.config.SilenceThresholdMs)*time.Millisecond {
		e.mu.Unlock()
		return
	}

	e.committed = true
	callback := e.onUtterance
	e.mu.Unlock()

	audio := e.buffer.Flush()
	if forced {
		e.debug("ENDPOINT", fmt.Sprintf("Max utterance reached, forcing flush of %d bytes", len(audio)))
	} else {
		e.debug("ENDPOINT", fmt.Sprintf("Silence %dms, committing %d bytes", silence.Milliseconds(), len(audio)))
	}
	if callback != nil {
		go callback(audio, forced)
	}
}

func (e *Endpointer) debug(category, message string) {
	e.mu.Lock()
	callback := e.onDebug
	e.mu.Unlock()
	if callback != nil {
		go callback(category, message)
	}
}
