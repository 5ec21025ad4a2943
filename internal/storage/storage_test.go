package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "adminpanel/pkg/logx"
)

type stepClock struct {
	mu  sync.Mutex
	t   time.Time
	inc time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.inc)
	return c.t
}

func openTest(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.db")
	s, err := Open(context.Background(), Config{Path: path}, logx.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func initTest(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, _ := openTest(t, opts...)
	require.NoError(t, s.Initialize(context.Background(), Admin{UserID: 1, Username: "root", FirstName: "Admin"}))
	return s
}

func strp(s string) *string { return &s }

func TestInitializeSeedsAdminAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, path := openTest(t)
	admin := Admin{UserID: 1, Username: "root", FirstName: "Admin"}
	require.NoError(t, s.Initialize(ctx, admin))

	require.NoError(t, s.AddUser(ctx, User{UserID: 42, Username: "alice", FirstName: "Alice"}))
	_, err := s.LogActivity(ctx, 42, "command", strp("/start"), nil)
	require.NoError(t, err)
	_, err = s.CreateAlert(ctx, "RESOURCE", "High Memory Usage: 91.0%", SeverityHigh)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(ctx, Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.Initialize(ctx, admin))
	require.NoError(t, s2.Initialize(ctx, admin))

	st, err := s2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Users: 2, Activities: 1, Alerts: 1, UnresolvedOpen: 1}, st)

	u, err := s2.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.Equal(t, "root", u.Username)
}

func TestInitializePromotesExistingUserAndKeepsSingleAdmin(t *testing.T) {
	ctx := context.Background()
	s, _ := openTest(t)
	require.NoError(t, s.Initialize(ctx, Admin{UserID: 1}))
	require.NoError(t, s.AddUser(ctx, User{UserID: 7, Username: "bob"}))

	require.NoError(t, s.Initialize(ctx, Admin{UserID: 7}))

	bob, err := s.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.True(t, bob.IsAdmin)
	assert.Equal(t, "bob", bob.Username, "existing profile is kept")

	old, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.False(t, old.IsAdmin)
}

func TestMigrateCreatesGooseVersionTable(t *testing.T) {
	s := initTest(t)
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='goose_db_version'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrateFailureIsStorageError(t *testing.T) {
	old := gooseUpContext
	t.Cleanup(func() { gooseUpContext = old })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	s, _ := openTest(t)
	err := s.Initialize(context.Background(), Admin{UserID: 1})
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "migrate", se.Op)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, logx.Nop())
	var se *Error
	require.ErrorAs(t, err, &se)
}

func TestAddUserDuplicate(t *testing.T) {
	ctx := context.Background()
	s := initTest(t)
	require.NoError(t, s.AddUser(ctx, User{UserID: 42, Username: "alice", FirstName: "Alice"}))

	err := s.AddUser(ctx, User{UserID: 42, Username: "mallory"})
	require.ErrorIs(t, err, ErrDuplicateKey)

	u, err := s.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.False(t, u.IsAdmin)
	assert.Nil(t, u.LastActive)

	require.ErrorIs(t, s.AddUser(ctx, User{UserID: 1}), ErrDuplicateKey, "admin row already exists")
}

func TestGetUserNotFound(t *testing.T) {
	s := initTest(t)
	_, err := s.GetUser(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLogActivityUpdatesLastActive(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{t: time.Unix(1_700_000_000, 0), inc: time.Second}
	s := initTest(t, WithClock(clk.Now))
	require.NoError(t, s.AddUser(ctx, User{UserID: 42, Username: "alice", FirstName: "Alice"}))

	rec, err := s.LogActivity(ctx, 42, "command", strp("/start"), strp("10.0.0.1"))
	require.NoError(t, err)
	assert.NotZero(t, rec.LogID)

	u, err := s.GetUser(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, u.LastActive)
	assert.True(t, u.LastActive.Equal(rec.Timestamp))
	assert.False(t, u.LastActive.Before(u.JoinDate))

	recent, err := s.GetRecentActivities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "command", recent[0].ActivityType)
	require.NotNil(t, recent[0].Details)
	assert.Equal(t, "/start", *recent[0].Details)
	require.NotNil(t, recent[0].IPAddress)
	assert.Equal(t, "10.0.0.1", *recent[0].IPAddress)
}

func TestLogActivitySequenceTracksNewestRecord(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{t: time.Unix(1_700_000_000, 0), inc: time.Millisecond}
	s := initTest(t, WithClock(clk.Now))
	require.NoError(t, s.AddUser(ctx, User{UserID: 42}))

	for i := 1; i <= 10; i++ {
		rec, err := s.LogActivity(ctx, 42, "command", nil, nil)
		require.NoError(t, err)

		u, err := s.GetUser(ctx, 42)
		require.NoError(t, err)
		require.NotNil(t, u.LastActive)
		assert.True(t, u.LastActive.Equal(rec.Timestamp), "call %d", i)

		n, err := s.CountActivities(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
}

func TestLogActivityUnknownUser(t *testing.T) {
	ctx := context.Background()
	s := initTest(t)
	_, err := s.LogActivity(ctx, 0, "system", strp("service started"), nil)
	require.NoError(t, err)

	n, err := s.CountActivities(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetUser(ctx, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetRecentActivitiesOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{t: time.Unix(1_700_000_000, 0), inc: time.Second}
	s := initTest(t, WithClock(clk.Now))

	for i := 0; i < 7; i++ {
		_, err := s.LogActivity(ctx, 42, "command", strp(string(rune('a'+i))), nil)
		require.NoError(t, err)
	}

	got, err := s.GetRecentActivities(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "g", *got[0].Details)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}

	all, err := s.GetRecentActivities(ctx, DefaultRecentLimit)
	require.NoError(t, err)
	assert.Len(t, all, 7)

	_, err = s.GetRecentActivities(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidLimit)
	_, err = s.GetRecentActivities(ctx, -1)
	require.ErrorIs(t, err, ErrInvalidLimit)
}

func TestGetRecentActivitiesTieBreaksOnLogID(t *testing.T) {
	ctx := context.Background()
	fixed := time.Unix(1_700_000_000, 0)
	s := initTest(t, WithClock(func() time.Time { return fixed }))

	first, err := s.LogActivity(ctx, 1, "a", nil, nil)
	require.NoError(t, err)
	second, err := s.LogActivity(ctx, 1, "b", nil, nil)
	require.NoError(t, err)

	got, err := s.GetRecentActivities(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.LogID, got[0].LogID)
	assert.Equal(t, first.LogID, got[1].LogID)
	assert.Nil(t, got[0].Details)
}

func TestAlertsLifecycle(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{t: time.Unix(1_700_000_000, 0), inc: time.Second}
	s := initTest(t, WithClock(clk.Now))

	id1, err := s.CreateAlert(ctx, "RESOURCE", "High Memory Usage: 91.0%", SeverityHigh)
	require.NoError(t, err)
	id2, err := s.CreateAlert(ctx, "DISK", "disk nearly full", "")
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	open, err := s.GetUnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, id2, open[0].AlertID, "newest first")
	assert.Equal(t, SeverityMedium, open[0].Severity)
	assert.Equal(t, SeverityHigh, open[1].Severity)
	assert.Nil(t, open[0].ResolvedAt)

	has, err := s.HasUnresolvedAlert(ctx, "RESOURCE")
	require.NoError(t, err)
	assert.True(t, has)

	a, err := s.ResolveAlert(ctx, id1)
	require.NoError(t, err)
	assert.True(t, a.Resolved)
	require.NotNil(t, a.ResolvedAt)
	assert.True(t, a.ResolvedAt.After(a.CreatedAt))

	_, err = s.ResolveAlert(ctx, id1)
	require.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = s.ResolveAlert(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)

	open, err = s.GetUnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id2, open[0].AlertID)

	has, err = s.HasUnresolvedAlert(ctx, "RESOURCE")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCreateAlertRejectsInvalidSeverity(t *testing.T) {
	ctx := context.Background()
	s := initTest(t)
	_, err := s.CreateAlert(ctx, "X", "y", Severity("critical"))
	require.ErrorIs(t, err, ErrInvalidSeverity)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Alerts)
}

func TestGetUnresolvedAlertsEmpty(t *testing.T) {
	s := initTest(t)
	open, err := s.GetUnresolvedAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{"": SeverityMedium, "LOW": SeverityLow, " high ": SeverityHigh, "medium": SeverityMedium} {
		got, err := ParseSeverity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSeverity("urgent")
	require.ErrorIs(t, err, ErrInvalidSeverity)
}

func TestConcurrentLogActivity(t *testing.T) {
	ctx := context.Background()
	s := initTest(t)
	require.NoError(t, s.AddUser(ctx, User{UserID: 42}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.LogActivity(ctx, 42, "command", nil, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.CountActivities(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
}

func TestLastActiveNeverTrailsLoggedActivity(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{t: time.Unix(1_700_000_000, 0), inc: time.Millisecond}
	s := initTest(t, WithClock(clk.Now))
	require.NoError(t, s.AddUser(ctx, User{UserID: 42}))

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.LogActivity(ctx, 42, "command", nil, nil)
				assert.NoError(t, err)
			}
		}()
	}

	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 2; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				recent, err := s.GetRecentActivities(ctx, 1)
				if !assert.NoError(t, err) || len(recent) == 0 || recent[0].UserID != 42 {
					continue
				}
				u, err := s.GetUser(ctx, 42)
				if !assert.NoError(t, err) {
					continue
				}
				if assert.NotNil(t, u.LastActive) {
					assert.False(t, u.LastActive.Before(recent[0].Timestamp))
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	readers.Wait()

	n, err := s.CountActivities(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), n)

	recent, err := s.GetRecentActivities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	u, err := s.GetUser(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, u.LastActive)
	assert.True(t, u.LastActive.Equal(recent[0].Timestamp))
}
