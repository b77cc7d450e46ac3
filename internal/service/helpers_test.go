package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"rentline-api/internal/model"
	"rentline-api/pkg/config"
	"rentline-api/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// newTestDB opens a private in-memory database with the full schema. Each
// test gets its own database; cache=shared keeps it alive across the pool's
// connections within the test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		AllowBroadcast:  false,
		DefaultPageSize: 10,
		MaxPageSize:     100,
	}
}

func seedUser(t *testing.T, db *gorm.DB, email string) uuid.UUID {
	t.Helper()
	user := model.User{ID: uuid.New(), Email: email}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

// testClock is a hand-advanced clock for services that take a nowFn.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Set(t time.Time)         { c.t = t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// recordingDispatcher captures dispatch calls instead of delivering.
type recordingDispatcher struct {
	calls []dispatchCall
	err   error
}

type dispatchCall struct {
	payload PushPayload
	targets []uuid.UUID
}

func (d *recordingDispatcher) Dispatch(_ context.Context, payload PushPayload, targets []uuid.UUID) error {
	d.calls = append(d.calls, dispatchCall{payload: payload, targets: targets})
	return d.err
}

func noopLogger() *zap.Logger { return zap.NewNop() }
