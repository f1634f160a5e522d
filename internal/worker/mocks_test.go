package worker

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/provider"
)

// MockPublisher implements Publisher for testing
type MockPublisher struct {
	mu                sync.Mutex
	PublishedMessages []PublishedMessage
	Err               error
}

type PublishedMessage struct {
	Channel string
	Message interface{}
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.PublishedMessages = append(m.PublishedMessages, PublishedMessage{
		Channel: channel,
		Message: message,
	})
	return nil
}

func (m *MockPublisher) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedMessage, len(m.PublishedMessages))
	copy(out, m.PublishedMessages)
	return out
}

// MockFetcher implements provider.Fetcher with canned results per user.
type MockFetcher struct {
	mu           sync.Mutex
	Daily        map[string]models.FetchResult
	Weekly       map[string]models.FetchResult
	DailyCalls   []string
	WeeklyCalls  int
	BeforeReturn func()
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Daily:  make(map[string]models.FetchResult),
		Weekly: make(map[string]models.FetchResult),
	}
}

func (m *MockFetcher) FetchDaily(ctx context.Context, cred provider.Credential, dateKey, timeZone string) models.FetchResult {
	if m.BeforeReturn != nil {
		m.BeforeReturn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DailyCalls = append(m.DailyCalls, cred.Username+"@"+dateKey)
	if res, ok := m.Daily[cred.Username]; ok {
		return res
	}
	return models.FetchResult{Status: models.StatusNotFound}
}

func (m *MockFetcher) FetchWeekly(ctx context.Context, cred provider.Credential, rangeKey string) models.FetchResult {
	if m.BeforeReturn != nil {
		m.BeforeReturn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WeeklyCalls++
	if res, ok := m.Weekly[cred.Username]; ok {
		return res
	}
	return models.FetchResult{Status: models.StatusNotFound}
}

func (m *MockFetcher) dailyCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.DailyCalls))
	copy(out, m.DailyCalls)
	return out
}

// MockArchiver records enqueued fetch records.
type MockArchiver struct {
	mu      sync.Mutex
	Records []FetchRecord
}

func (m *MockArchiver) Enqueue(rec FetchRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return true
}

// MockClickHouseConn implements driver.Conn for testing
type MockClickHouseConn struct {
	driver.Conn

	mu       sync.Mutex
	Rows     [][]interface{}
	Sends    int
	SendErr  error
	Prepared []string

	// QueryResult is served row by row from Query.
	QueryResult [][]interface{}
	QueryArgs   []interface{}
	Queries     []string
}

func (m *MockClickHouseConn) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	m.QueryArgs = args
	return &MockRows{rows: m.QueryResult}, nil
}

// MockRows replays fixed rows through Scan.
type MockRows struct {
	driver.Rows
	rows [][]interface{}
	idx  int
}

func (m *MockRows) Next() bool {
	m.idx++
	return m.idx <= len(m.rows)
}

func (m *MockRows) Scan(dest ...interface{}) error {
	row := m.rows[m.idx-1]
	for i := range dest {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (m *MockRows) Close() error { return nil }
func (m *MockRows) Err() error   { return nil }

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	m.mu.Lock()
	m.Prepared = append(m.Prepared, query)
	m.mu.Unlock()
	return &MockBatch{conn: m}, nil
}

func (m *MockClickHouseConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prepared = append(m.Prepared, query)
	return nil
}

func (m *MockClickHouseConn) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Rows)
}

// MockBatch implements driver.Batch
type MockBatch struct {
	driver.Batch
	conn *MockClickHouseConn
	rows [][]interface{}
	sent bool
}

func (m *MockBatch) IsSent() bool {
	return m.sent
}

func (m *MockBatch) Rows() int {
	return len(m.rows)
}

func (m *MockBatch) Append(v ...interface{}) error {
	m.rows = append(m.rows, v)
	return nil
}

func (m *MockBatch) Send() error {
	m.conn.mu.Lock()
	defer m.conn.mu.Unlock()
	if m.conn.SendErr != nil {
		return m.conn.SendErr
	}
	m.sent = true
	m.conn.Sends++
	m.conn.Rows = append(m.conn.Rows, m.rows...)
	return nil
}

func (m *MockBatch) Abort() error {
	return errors.New("aborted")
}

func (m *MockFetcher) WeeklyCallsSafe() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WeeklyCalls
}
