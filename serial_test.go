package ecg

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"
)

// MockSerialPort 模拟串口
type MockSerialPort struct {
	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer
	Closed      bool
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{
		ReadBuffer:  new(bytes.Buffer),
		WriteBuffer: new(bytes.Buffer),
	}
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	return m.ReadBuffer.Read(p)
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	return m.WriteBuffer.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.Closed = true
	return nil
}

func TestAcquireParsesLines(t *testing.T) {
	mockPort := NewMockSerialPort()
	mockPort.ReadBuffer.WriteString("512\r\n530\n!\nabc\n\n498\n")
	src := &SerialSource{Port: "mock", conn: mockPort}

	samples, err := src.Acquire(context.Background(), 10)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	expected := []float64{512, 530, 0, 498}
	if len(samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d (%v)", len(expected), len(samples), samples)
	}
	for i := range expected {
		if samples[i] != expected[i] {
			t.Errorf("sample %d: expected %v, got %v", i, expected[i], samples[i])
		}
	}
	if src.LeadOff != 1 {
		t.Errorf("Expected 1 lead-off line, got %d", src.LeadOff)
	}
	if src.Invalid != 1 {
		t.Errorf("Expected 1 invalid line, got %d", src.Invalid)
	}
}

func TestAcquireStopsAtCount(t *testing.T) {
	mockPort := NewMockSerialPort()
	mockPort.ReadBuffer.WriteString("1\n2\n3\n4\n5\n")
	src := &SerialSource{Port: "mock", conn: mockPort}

	samples, err := src.Acquire(context.Background(), 3)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if len(samples) != 3 || samples[2] != 3 {
		t.Errorf("Expected first 3 samples, got %v", samples)
	}
}

func TestAcquireCancelled(t *testing.T) {
	mockPort := NewMockSerialPort()
	mockPort.ReadBuffer.WriteString("1\n2\n")
	src := &SerialSource{Port: "mock", conn: mockPort}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	samples, err := src.Acquire(ctx, 100)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("Expected no samples after cancel, got %v", samples)
	}
}

func TestSerialLoadKeepsOpenConnection(t *testing.T) {
	mockPort := NewMockSerialPort()
	mockPort.ReadBuffer.WriteString("10\n!\n12\n")
	src := &SerialSource{Port: "mock", conn: mockPort, SampleRate: 2, Duration: 2e9}

	header, series, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if series.Rate != 2 || series.Len() != 3 {
		t.Errorf("unexpected series: rate %v, len %d", series.Rate, series.Len())
	}
	if header["lead_off"] != "1" {
		t.Errorf("Expected lead_off=1, got %q", header["lead_off"])
	}
	if mockPort.Closed {
		t.Error("Load closed a connection it did not open")
	}
}

func TestAcquireWithoutConnection(t *testing.T) {
	src := &SerialSource{Port: "mock"}
	if _, err := src.Acquire(context.Background(), 1); err == nil {
		t.Error("Expected error when connection not open")
	}
}

func TestSerialIDStableAcrossBatch(t *testing.T) {
	series, _ := Synthesize(SynthConfig{Rate: testRate, Duration: 4, BPM: 72, Seed: 2})
	mockPort := NewMockSerialPort()
	for _, v := range series.Samples {
		fmt.Fprintf(mockPort.ReadBuffer, "%g\n", v)
	}
	src := &SerialSource{Port: "mock", conn: mockPort, SampleRate: testRate, Duration: 4 * time.Second}

	first := src.ID()
	// 跨过秒边界后 ID 仍不变
	time.Sleep(1100 * time.Millisecond)
	if id := src.ID(); id != first {
		t.Fatalf("ID changed from %q to %q", first, id)
	}

	a, err := NewAnalyzer(nil)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	results := a.AnalyzeBatch(context.Background(), []Source{src})
	if results[0].Err != nil {
		t.Fatalf("batch failed: %v", results[0].Err)
	}
	if results[0].ID != first || results[0].Record.ID != first {
		t.Errorf("batch ID %q, record ID %q, want %q", results[0].ID, results[0].Record.ID, first)
	}
}
