package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-finance/tuition-hub/config"
	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

func TestPoolConfig(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{URL: "postgres://u:p@db:5432/ledger", MaxConns: 7})
	require.NoError(t, err)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, "ledger", pc.ConnConfig.Database)
	assert.Equal(t, int32(7), pc.MaxConns)

	_, err = PoolConfig(config.DatabaseConfig{URL: "://bad"})
	assert.ErrorContains(t, err, "parse DATABASE_URL")
}

func TestMigrations_Ordered(t *testing.T) {
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestMigrations_ClientKeysUnbounded(t *testing.T) {
	// Student numbers, terms and endpoints are free text; a length cap would
	// surface as a store error instead of a validation one.
	for _, m := range migrations {
		assert.NotContains(t, m.SQL, "student_no VARCHAR", m.Name)
		assert.NotContains(t, m.SQL, "term VARCHAR", m.Name)
		assert.NotContains(t, m.SQL, "endpoint VARCHAR", m.Name)
	}
}

// openTestDB connects to TEST_DATABASE_URL and migrates it.
func openTestDB(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := Connect(ctx, config.DatabaseConfig{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, Migrate(ctx, conn))
	// A second run finds nothing to do.
	require.NoError(t, Migrate(ctx, conn))
	return conn
}

// uniqueNo keeps runs against a shared database apart.
func uniqueNo(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestTuitionRepository_Integration(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewTuitionRepository(conn)
	students := NewStudentRepository(conn)

	no := uniqueNo("S")
	key := tuition.Key{StudentNo: no, Term: "2024-Fall"}
	now := time.Now().UTC()
	st, err := student.NewPlaceholder(no, now)
	require.NoError(t, err)

	require.NoError(t, repo.Mutate(ctx, key, func(current *tuition.Entry) (*tuition.Change, error) {
		e, err := tuition.NewEntry(key, shared.MustParseMoney("100"), now)
		if err != nil {
			return nil, err
		}
		return &tuition.Change{Entry: e, Created: true, Student: st}, nil
	}))

	ok, err := students.Exists(ctx, no)
	require.NoError(t, err)
	assert.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Mutate(ctx, key, func(current *tuition.Entry) (*tuition.Change, error) {
				p, err := current.ApplyPayment(shared.MustParseMoney("10"), fmt.Sprintf("%s-%d", no, i), now)
				if err != nil {
					return nil, err
				}
				return &tuition.Change{Entry: current, Payment: p}, nil
			})
		}(i)
	}
	wg.Wait()

	e, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "100.00", e.Paid.String())
	assert.Equal(t, tuition.StatusPaid, e.Status())

	payments, err := repo.ListPayments(ctx, key)
	require.NoError(t, err)
	assert.Len(t, payments, 10)

	entries, err := repo.ListByStudent(ctx, no)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTuitionRepository_LongKey(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewTuitionRepository(conn)

	no := uniqueNo(strings.Repeat("S", 120))
	key := tuition.Key{StudentNo: no, Term: strings.Repeat("2024-Fall-", 12)}
	now := time.Now().UTC()
	st, err := student.NewPlaceholder(no, now)
	require.NoError(t, err)

	require.NoError(t, repo.Mutate(ctx, key, func(current *tuition.Entry) (*tuition.Change, error) {
		e, err := tuition.NewEntry(key, shared.MustParseMoney("75"), now)
		if err != nil {
			return nil, err
		}
		return &tuition.Change{Entry: e, Created: true, Student: st}, nil
	}))

	e, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key.Term, e.Term)
	assert.Equal(t, "75.00", e.Total.String())
}

func TestRateLimitRepository_Integration(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewRateLimitRepository(conn)
	now := time.Now().UTC()
	key := ratelimit.NewKey(uniqueNo("S"), "/q", now)

	for want := 1; want <= 3; want++ {
		count, ok, err := repo.Increment(ctx, key, 3, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, count)
	}
	count, ok, err := repo.Increment(ctx, key, 3, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, count)

	_, err = repo.PurgeBefore(ctx, "1970-01-02")
	assert.NoError(t, err)
}
