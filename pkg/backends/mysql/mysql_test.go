package mysql

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/connector/registry"
)

func TestDriverConfig(t *testing.T) {
	d := &Dialer{Timeout: 5 * time.Second}
	cfg := d.DriverConfig(akeraapi.ConnectInfo{Host: "db", Port: 3307, User: "u", Password: "p", UseSSL: true})

	assert.Equal(t, "db:3307", cfg.Addr)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "true", cfg.TLSConfig)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Contains(t, cfg.FormatDSN(), "u:p@tcp(db:3307)/")
}

func TestConvert(t *testing.T) {
	tests := []struct {
		dbType string
		in     interface{}
		want   interface{}
	}{
		{"INT", []byte("42"), int64(42)},
		{"BIGINT", []byte("-7"), int64(-7)},
		{"DECIMAL", []byte("9.50"), 9.5},
		{"VARCHAR", []byte("Boston"), "Boston"},
		{"BLOB", []byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{"VARBINARY", []byte("ab"), []byte("ab")},
		{"INT", int64(3), int64(3)},
		{"VARCHAR", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			assert.Equal(t, tt.want, convert(tt.dbType, tt.in))
		})
	}
}

func TestRegistered(t *testing.T) {
	info, err := registry.Info(BackendName)
	require.NoError(t, err)
	assert.Equal(t, "github.com/go-sql-driver/mysql", info.Library)
}

// TestIntegration runs against a live server named by AKERA_TEST_MYSQL_HOST
func TestIntegration(t *testing.T) {
	host := os.Getenv("AKERA_TEST_MYSQL_HOST")
	if host == "" || testing.Short() {
		t.Skip("AKERA_TEST_MYSQL_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("AKERA_TEST_MYSQL_PORT"))
	if port == 0 {
		port = 3306
	}
	info := akeraapi.ConnectInfo{
		Host:     host,
		Port:     port,
		User:     os.Getenv("AKERA_TEST_MYSQL_USER"),
		Password: os.Getenv("AKERA_TEST_MYSQL_PASSWORD"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := (&Dialer{Timeout: 10 * time.Second}).Dial(ctx, info)
	require.NoError(t, err)
	defer func() { _ = c.Disconnect(ctx) }()

	mc := c.(*conn)
	for _, stmt := range []string{
		"DROP DATABASE IF EXISTS akera_it",
		"CREATE DATABASE akera_it",
		"CREATE TABLE akera_it.Item (ItemNum int AUTO_INCREMENT PRIMARY KEY, ItemName varchar(40), Price decimal(10,2), InStock tinyint(1))",
	} {
		_, err := mc.session.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	assert.Error(t, c.SelectDatabase(ctx, "akera_missing"))
	require.NoError(t, c.SelectDatabase(ctx, "akera_it"))
	assert.Equal(t, akeraapi.StateIdle, c.State())

	row, err := c.Insert(ctx, &akeraapi.Insert{
		Table:  "Item",
		Values: []akeraapi.SetField{{Name: "ItemName", Value: "Ball"}, {Name: "Price", Value: 9.5}},
		Keys:   []string{"ItemNum"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["ItemNum"])
	assert.Equal(t, 9.5, row["Price"])

	row, err = c.Upsert(ctx, &akeraapi.Upsert{
		Table:  "Item",
		Values: []akeraapi.SetField{{Name: "ItemNum", Value: 1}, {Name: "ItemName", Value: "Ball XL"}},
		Keys:   []string{"ItemNum"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ball XL", row["ItemName"])
	assert.Equal(t, 9.5, row["Price"])

	n, err := c.Count(ctx, akeraapi.NewSelect("Item").Where(akeraapi.Matches("ItemName", "Ball*")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	fields, err := c.Meta().Fields(ctx, "akera_it", "Item")
	require.NoError(t, err)
	require.Len(t, fields, 4)
	assert.Equal(t, akeraapi.TypeDecimal, fields[2].Type)
	assert.Equal(t, akeraapi.TypeLogical, fields[3].Type)

	pk, err := c.Meta().PrimaryKey(ctx, "akera_it", "Item")
	require.NoError(t, err)
	assert.Equal(t, []string{"ItemNum"}, pk.Fields)

	deleted, err := c.Delete(ctx, &akeraapi.Delete{Table: "Item"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
