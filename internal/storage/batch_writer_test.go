package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"iris-triage/internal/schema"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Mock implementations of driver.Conn and driver.Batch for unit testing
// without a real ClickHouse connection.
// ---------------------------------------------------------------------------

type mockConn struct {
	prepareBatchFunc func(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

func (m *mockConn) Contributors() []string                                           { return nil }
func (m *mockConn) ServerVersion() (*driver.ServerVersion, error)                    { return nil, nil }
func (m *mockConn) Select(_ context.Context, _ any, _ string, _ ...any) error        { return nil }
func (m *mockConn) Query(_ context.Context, _ string, _ ...any) (driver.Rows, error) { return nil, nil }
func (m *mockConn) QueryRow(_ context.Context, _ string, _ ...any) driver.Row        { return nil }
func (m *mockConn) Exec(_ context.Context, _ string, _ ...any) error                 { return nil }
func (m *mockConn) AsyncInsert(_ context.Context, _ string, _ bool, _ ...any) error  { return nil }
func (m *mockConn) Ping(_ context.Context) error                                     { return nil }
func (m *mockConn) Stats() driver.Stats                                              { return driver.Stats{} }
func (m *mockConn) Close() error                                                     { return nil }

func (m *mockConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.prepareBatchFunc != nil {
		return m.prepareBatchFunc(ctx, query, opts...)
	}
	return &mockBatch{}, nil
}

type mockBatch struct {
	mu          sync.Mutex
	appendCount int
	sendFunc    func() error
}

func (m *mockBatch) Abort() error { return nil }
func (m *mockBatch) Append(_ ...any) error {
	m.mu.Lock()
	m.appendCount++
	m.mu.Unlock()
	return nil
}
func (m *mockBatch) AppendStruct(_ any) error        { return nil }
func (m *mockBatch) Column(_ int) driver.BatchColumn { return nil }
func (m *mockBatch) Flush() error                    { return nil }
func (m *mockBatch) Send() error {
	if m.sendFunc != nil {
		return m.sendFunc()
	}
	return nil
}
func (m *mockBatch) IsSent() bool                { return false }
func (m *mockBatch) Rows() int                   { return m.appendCount }
func (m *mockBatch) Columns() []column.Interface { return nil }
func (m *mockBatch) Close() error                { return nil }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestFinding() schema.Finding {
	return schema.Finding{
		ID:         uuid.New(),
		ScanID:     uuid.New(),
		ArtifactID: uuid.New(),
		RuleID:     "lockbit_ransomware",
		RuleName:   "LockBit_Ransomware",
		Severity:   5,
		Tags:       []string{"ransomware", "lockbit"},
		MatchedAt:  time.Now(),
	}
}

func newMockClient(conn driver.Conn) *ClickHouseClient {
	return &ClickHouseClient{
		conn:   conn,
		config: DefaultClickHouseConfig(),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDefaultBatchWriterConfig(t *testing.T) {
	cfg := DefaultBatchWriterConfig()

	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
}

func TestNewBatchWriter(t *testing.T) {
	cfg := DefaultBatchWriterConfig()
	client := newMockClient(&mockConn{})
	bw := NewBatchWriter(client, cfg)
	defer bw.Close()

	if bw.client != client {
		t.Error("client not set correctly")
	}
	if len(bw.buffer) != 0 {
		t.Errorf("initial buffer length = %d, want 0", len(bw.buffer))
	}
	if cap(bw.buffer) != cfg.BatchSize {
		t.Errorf("initial buffer capacity = %d, want %d", cap(bw.buffer), cfg.BatchSize)
	}

	metrics := bw.Metrics()
	if metrics.Written != 0 || metrics.Failed != 0 || metrics.Batches != 0 || metrics.Pending != 0 {
		t.Errorf("initial metrics should all be zero, got %+v", metrics)
	}
}

func TestBatchWriterWriteBuffersFindings(t *testing.T) {
	cfg := BatchWriterConfig{
		BatchSize:     100, // large enough so writes do not trigger a flush
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(&mockConn{}), cfg)
	defer bw.Close()

	for i := 0; i < 5; i++ {
		if err := bw.Write(newTestFinding()); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if got := bw.Metrics().Pending; got != 5 {
		t.Errorf("Pending = %d, want 5", got)
	}
	if got := bw.Metrics().Written; got != 0 {
		t.Errorf("Written = %d, want 0 before any flush", got)
	}
}

func TestBatchWriterWriteWhenClosed(t *testing.T) {
	bw := NewBatchWriter(newMockClient(&mockConn{}), DefaultBatchWriterConfig())
	if err := bw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := bw.Write(newTestFinding()); err == nil {
		t.Error("Write() after Close() should fail")
	}
}

func TestBatchWriterFlushOnBatchSize(t *testing.T) {
	var sent atomic.Int64
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return &mockBatch{sendFunc: func() error {
				sent.Add(1)
				return nil
			}}, nil
		},
	}
	cfg := BatchWriterConfig{
		BatchSize:     3,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(conn), cfg)
	defer bw.Close()

	for i := 0; i < 3; i++ {
		if err := bw.Write(newTestFinding()); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if got := sent.Load(); got != 1 {
		t.Errorf("sent batches = %d, want 1 after hitting batch size", got)
	}
	m := bw.Metrics()
	if m.Written != 3 || m.Batches != 1 || m.Pending != 0 {
		t.Errorf("metrics after flush = %+v", m)
	}
}

func TestBatchWriterWriteAll(t *testing.T) {
	cfg := BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(&mockConn{}), cfg)
	defer bw.Close()

	findings := []schema.Finding{newTestFinding(), newTestFinding(), newTestFinding()}
	if err := bw.WriteAll(findings); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if got := bw.Metrics().Pending; got != 3 {
		t.Errorf("Pending = %d, want 3", got)
	}
}

func TestBatchWriterCloseFlushesBuffer(t *testing.T) {
	var appended atomic.Int64
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			b := &mockBatch{}
			b.sendFunc = func() error {
				appended.Add(int64(b.appendCount))
				return nil
			}
			return b, nil
		},
	}
	cfg := BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(conn), cfg)

	for i := 0; i < 7; i++ {
		if err := bw.Write(newTestFinding()); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := appended.Load(); got != 7 {
		t.Errorf("appended rows at close = %d, want 7", got)
	}
}

func TestBatchWriterFlushFailureUpdatesMetrics(t *testing.T) {
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return &mockBatch{sendFunc: func() error {
				return fmt.Errorf("clickhouse unavailable")
			}}, nil
		},
	}
	cfg := BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxRetries:    1,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(conn), cfg)
	defer bw.Close()

	if err := bw.Write(newTestFinding()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := bw.Flush(); err == nil {
		t.Error("Flush() should report the insert failure")
	}

	m := bw.Metrics()
	if m.Failed != 1 {
		t.Errorf("Failed = %d, want 1", m.Failed)
	}
	if m.Written != 0 {
		t.Errorf("Written = %d, want 0", m.Written)
	}
}

func TestBatchWriterConcurrentWrite(t *testing.T) {
	cfg := BatchWriterConfig{
		BatchSize:     10,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(&mockConn{}), cfg)
	defer bw.Close()

	var wg sync.WaitGroup
	const writers = 8
	const perWriter = 25
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := bw.Write(newTestFinding()); err != nil {
					t.Errorf("Write() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	m := bw.Metrics()
	if total := m.Written + uint64(m.Pending); total != writers*perWriter {
		t.Errorf("written+pending = %d, want %d", total, writers*perWriter)
	}
}
