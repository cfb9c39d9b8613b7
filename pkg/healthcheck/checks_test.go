package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestCheckMySQL(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, CheckMySQL(db)(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = CheckMySQL(db)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql ping")
}

func TestCheckRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	assert.NoError(t, CheckRedis(rdb)(context.Background()))

	mr.Close()
	assert.Error(t, CheckRedis(rdb)(context.Background()))
}

func TestCheckKafka_NoBrokers(t *testing.T) {
	assert.Error(t, CheckKafka(nil)(context.Background()))
}

func TestComposite_StopsOnFirstError(t *testing.T) {
	second := false
	check := Composite(
		func(context.Context) error { return errors.New("redis ping: refused") },
		func(context.Context) error { second = true; return nil },
	)

	err := check(context.Background())
	assert.EqualError(t, err, "redis ping: refused")
	assert.False(t, second)
}
