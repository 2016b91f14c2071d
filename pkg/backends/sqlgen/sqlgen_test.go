package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
)

func TestSelect(t *testing.T) {
	q := &akeraapi.Select{
		Table:  "sports2000.Warehouse",
		Fields: []akeraapi.Field{{Name: "WarehouseNum", Alias: "warehouseNum"}, {Name: "City"}},
		Filter: akeraapi.And(akeraapi.Ge("WarehouseNum", 2), akeraapi.Matches("City", "B*")),
		Sort:   []akeraapi.SortField{{Field: "City", Descending: true}},
		Limit:  5,
		Offset: 10,
	}

	pg := Postgres.Select(q)
	assert.Equal(t, `SELECT "WarehouseNum" AS "warehouseNum", "City" FROM "sports2000"."Warehouse"`+
		` WHERE ("WarehouseNum" >= $1 AND "City" LIKE $2) ORDER BY "City" DESC LIMIT 5 OFFSET 10`, pg.SQL)
	assert.Equal(t, []interface{}{2, "B%"}, pg.Args)

	my := MySQL.Select(q)
	assert.Equal(t, "SELECT `WarehouseNum` AS `warehouseNum`, `City` FROM `sports2000`.`Warehouse`"+
		" WHERE (`WarehouseNum` >= ? AND `City` LIKE ?) ORDER BY `City` DESC LIMIT 5 OFFSET 10", my.SQL)
	assert.Equal(t, pg.Args, my.Args)
}

func TestSelectOffsetOnly(t *testing.T) {
	q := &akeraapi.Select{Table: "t", Offset: 3}
	assert.Equal(t, `SELECT * FROM "t" OFFSET 3`, Postgres.Select(q).SQL)
	assert.Equal(t, "SELECT * FROM `t` LIMIT 18446744073709551615 OFFSET 3", MySQL.Select(q).SQL)
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name string
		f    *akeraapi.Filter
		sql  string
		args []interface{}
	}{
		{name: "nil", f: nil, sql: "1=1"},
		{name: "empty and", f: akeraapi.And(), sql: "1=1"},
		{name: "empty or", f: akeraapi.Or(), sql: "1=0"},
		{name: "eq null", f: akeraapi.Eq("a", nil), sql: `"a" IS NULL`},
		{name: "ne null", f: akeraapi.Ne("a", nil), sql: `"a" IS NOT NULL`},
		{name: "ne", f: akeraapi.Ne("a", 1), sql: `("a" <> $1 OR "a" IS NULL)`, args: []interface{}{1}},
		{name: "not", f: akeraapi.Not(akeraapi.Lt("a", 1)), sql: `NOT ("a" < $1)`, args: []interface{}{1}},
		{
			name: "or of and",
			f:    akeraapi.Or(akeraapi.Eq("a", 1), akeraapi.And(akeraapi.Gt("b", 2), akeraapi.Le("b", 3))),
			sql:  `("a" = $1 OR ("b" > $2 AND "b" <= $3))`,
			args: []interface{}{1, 2, 3},
		},
		{name: "matches", f: akeraapi.Matches("c", "a.b%_*"), sql: `"c" LIKE $1`, args: []interface{}{"a_b%_%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Postgres.Where(tt.f)
			assert.Equal(t, tt.sql, st.SQL)
			assert.Equal(t, tt.args, st.Args)
		})
	}
}

func TestWrites(t *testing.T) {
	values := []akeraapi.SetField{{Name: "id", Value: 1}, {Name: "name", Value: "x"}}

	assert.Equal(t, `INSERT INTO "s"."t" ("id", "name") VALUES ($1, $2) RETURNING *`,
		Postgres.Insert(&akeraapi.Insert{Table: "s.t", Values: values}).SQL)
	assert.Equal(t, "INSERT INTO `t` (`id`, `name`) VALUES (?, ?)",
		MySQL.Insert(&akeraapi.Insert{Table: "t", Values: values}).SQL)
	assert.Equal(t, `INSERT INTO "t" DEFAULT VALUES RETURNING *`,
		Postgres.Insert(&akeraapi.Insert{Table: "t"}).SQL)

	assert.Equal(t, `INSERT INTO "t" ("id", "name") VALUES ($1, $2) ON CONFLICT ("id") DO UPDATE SET "id" = EXCLUDED."id", "name" = EXCLUDED."name" RETURNING *`,
		Postgres.Upsert(&akeraapi.Upsert{Table: "t", Values: values, Keys: []string{"id"}}).SQL)
	assert.Equal(t, "INSERT INTO `t` (`id`, `name`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `id` = VALUES(`id`), `name` = VALUES(`name`)",
		MySQL.Upsert(&akeraapi.Upsert{Table: "t", Values: values, Keys: []string{"id"}}).SQL)

	up := Postgres.Update(&akeraapi.Update{
		Table:  "t",
		Values: []akeraapi.SetField{{Name: "name", Value: "y"}},
		Filter: akeraapi.Eq("id", 7),
	})
	assert.Equal(t, `UPDATE "t" SET "name" = $1 WHERE "id" = $2`, up.SQL)
	assert.Equal(t, []interface{}{"y", 7}, up.Args)

	del := MySQL.Delete(&akeraapi.Delete{Table: "t", Filter: akeraapi.Gt("id", 1)})
	assert.Equal(t, "DELETE FROM `t` WHERE `id` > ?", del.SQL)

	assert.Equal(t, `SELECT COUNT(*) FROM "t"`, Postgres.Count(&akeraapi.Select{Table: "t"}).SQL)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"we""ird"`, Postgres.QuoteIdent(`we"ird`))
	assert.Equal(t, "`a`.`b`", MySQL.QuoteIdent("a.b"))
}

func TestFieldType(t *testing.T) {
	tests := map[[2]string]akeraapi.FieldDataType{
		{"integer", ""}:                     akeraapi.TypeInteger,
		{"smallint", ""}:                    akeraapi.TypeInteger,
		{"bigint", ""}:                      akeraapi.TypeInt64,
		{"numeric", ""}:                     akeraapi.TypeDecimal,
		{"double precision", ""}:            akeraapi.TypeDecimal,
		{"boolean", ""}:                     akeraapi.TypeLogical,
		{"tinyint", "tinyint(1)"}:           akeraapi.TypeLogical,
		{"tinyint", "tinyint(4)"}:           akeraapi.TypeInteger,
		{"date", ""}:                        akeraapi.TypeDate,
		{"timestamp without time zone", ""}: akeraapi.TypeDatetime,
		{"timestamp with time zone", ""}:    akeraapi.TypeDatetimeTZ,
		{"datetime", ""}:                    akeraapi.TypeDatetime,
		{"text", ""}:                        akeraapi.TypeClob,
		{"bytea", ""}:                       akeraapi.TypeBlob,
		{"longblob", ""}:                    akeraapi.TypeBlob,
		{"character varying", ""}:           akeraapi.TypeCharacter,
	}
	for in, want := range tests {
		assert.Equal(t, want, FieldType(in[0], in[1]), "%v", in)
	}
}
