package logger

import (
	"bytes"
	"io"
	"sync"
)

// GateState is the state of a GatedWriter.
type GateState int

const (
	// GateClosed buffers writes.
	GateClosed GateState = iota
	// GateOpen passes writes straight through.
	GateOpen
)

// GatedWriter buffers log output until the gate is opened. The server keeps
// the gate closed while it loads config and wires components so the startup
// banner is printed before any log line.
type GatedWriter struct {
	mu         sync.Mutex
	underlying io.Writer
	buffer     bytes.Buffer
	state      GateState
	maxBuffer  int
}

// GatedWriterConfig configures a GatedWriter.
type GatedWriterConfig struct {
	Underlying   io.Writer
	InitialState GateState
	// MaxBufferSize caps buffered bytes; 0 means unlimited. Oldest bytes
	// are discarded first.
	MaxBufferSize int
}

func NewGatedWriter(config GatedWriterConfig) *GatedWriter {
	if config.Underlying == nil {
		config.Underlying = io.Discard
	}
	return &GatedWriter{
		underlying: config.Underlying,
		state:      config.InitialState,
		maxBuffer:  config.MaxBufferSize,
	}
}

func (gw *GatedWriter) Write(p []byte) (int, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.state == GateOpen {
		return gw.underlying.Write(p)
	}

	if gw.maxBuffer > 0 && gw.buffer.Len()+len(p) > gw.maxBuffer {
		excess := gw.buffer.Len() + len(p) - gw.maxBuffer
		gw.buffer.Next(excess)
	}
	return gw.buffer.Write(p)
}

// OpenGate flushes the buffer and switches to pass-through.
func (gw *GatedWriter) OpenGate() error {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.state == GateOpen {
		return nil
	}
	gw.state = GateOpen
	if gw.buffer.Len() == 0 {
		return nil
	}
	_, err := gw.underlying.Write(gw.buffer.Bytes())
	gw.buffer.Reset()
	return err
}

func (gw *GatedWriter) IsOpen() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.state == GateOpen
}

func (gw *GatedWriter) BufferedSize() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.buffer.Len()
}

// GatedLogger is a Logger whose output passes through a GatedWriter.
type GatedLogger struct {
	Logger
	gate *GatedWriter
}

// NewGatedLogger wraps the first configured output (stdout by default) in a
// gate and builds the logger on top of it. File outputs are not gated.
func NewGatedLogger(config *Config, gateConfig GatedWriterConfig) *GatedLogger {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if gateConfig.Underlying == nil && len(cfg.Outputs) > 0 {
		gateConfig.Underlying = cfg.Outputs[0]
	}
	gate := NewGatedWriter(gateConfig)
	cfg.Outputs = []io.Writer{gate}

	return &GatedLogger{
		Logger: NewZerologLogger(&cfg),
		gate:   gate,
	}
}

func (gl *GatedLogger) OpenGate() error {
	return gl.gate.OpenGate()
}

func (gl *GatedLogger) IsGateOpen() bool {
	return gl.gate.IsOpen()
}
