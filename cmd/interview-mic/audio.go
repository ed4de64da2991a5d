package main

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// audioIO owns the microphone capture and speaker playback devices for one
// interview. Capture format matches what the server pinned in the joined
// frame: 16-bit little-endian PCM.
type audioIO struct {
	malgoCtx *malgo.AllocatedContext
	mic      *micCapture
	speaker  *speakerSink
}

func initAudio(sampleRate, channels int) (*audioIO, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	mic, err := newMicCapture(malgoCtx.Context, sampleRate, channels)
	if err != nil {
		_ = malgoCtx.Uninit()
		return nil, err
	}

	// 100ms output buffer keeps interviewer lines snappy without glitching.
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   sampleRate * channels * 2 / 10,
	})
	if err != nil {
		mic.Close()
		_ = malgoCtx.Uninit()
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	return &audioIO{
		malgoCtx: malgoCtx,
		mic:      mic,
		speaker:  newSpeakerSink(otoCtx),
	}, nil
}

func (a *audioIO) Close() {
	a.mic.Close()
	a.speaker.Close()
	_ = a.malgoCtx.Uninit()
}

// micCapture buffers microphone PCM between the malgo callback and the
// frame-sender goroutine.
type micCapture struct {
	device *malgo.Device
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newMicCapture(ctx malgo.Context, sampleRate, channels int) (*micCapture, error) {
	m := &micCapture{buf: make([]byte, 0, sampleRate*2)}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.mu.Lock()
			if !m.closed {
				m.buf = append(m.buf, input...)
			}
			m.mu.Unlock()
			m.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return m, nil
}

// Read blocks until captured PCM is available or the device is closed.
// Returns 0 after Close.
func (m *micCapture) Read(p []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return 0
	}

	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n
}

func (m *micCapture) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
}

// speakerSink feeds interviewer audio to oto. The player pulls from the
// buffer through Read; silence is served when the buffer runs dry so short
// gaps between lines do not kill playback.
type speakerSink struct {
	otoCtx *oto.Context
	player *oto.Player
	mu     sync.Mutex
	buf    []byte
	closed bool
}

func newSpeakerSink(ctx *oto.Context) *speakerSink {
	return &speakerSink{otoCtx: ctx}
}

func (s *speakerSink) Write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)
	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
}

// Read implements io.Reader for oto.Player.
func (s *speakerSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerSink) Close() {
	s.mu.Lock()
	s.closed = true
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
}
