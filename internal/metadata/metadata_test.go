package metadata

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"varchar(50)":                 KindString,
		"character varying(20)":       KindString,
		"INT(11) UNSIGNED":            KindInt,
		"int4":                        KindInt,
		"bigint":                      KindInt,
		"decimal(10,2)":               KindDecimal,
		"double precision":            KindFloat,
		"timestamp without time zone": KindDateTime,
		"date":                        KindDate,
		"enum('a','b')":               KindEnum,
		"jsonb":                       KindJSON,
		"point":                       KindSpatial,
		"interval":                    KindOther,
		"longtext":                    KindText,
	}
	for dataType, want := range cases {
		assert.Equal(t, want, KindOf(dataType), dataType)
	}
}

func TestLimitFor(t *testing.T) {
	t.Run("varchar length", func(t *testing.T) {
		l := LimitFor(&ColumnMetadata{DataType: "varchar(5)"})
		assert.Equal(t, int64(5), l.MaxLength)
	})

	t.Run("length reported separately", func(t *testing.T) {
		l := LimitFor(&ColumnMetadata{DataType: "character varying", MaxLength: "40"})
		assert.Equal(t, int64(40), l.MaxLength)
	})

	t.Run("varchar default", func(t *testing.T) {
		l := LimitFor(&ColumnMetadata{DataType: "varchar"})
		assert.Equal(t, int64(255), l.MaxLength)
	})

	t.Run("decimal range", func(t *testing.T) {
		l := LimitFor(&ColumnMetadata{DataType: "decimal(5,2)"})
		assert.Equal(t, 5, l.Precision)
		assert.Equal(t, 2, l.Scale)
		assert.InDelta(t, 999.99, l.MaxValue, 1e-9)
		assert.InDelta(t, -999.99, l.MinValue, 1e-9)
	})

	t.Run("decimal default precision", func(t *testing.T) {
		l := LimitFor(&ColumnMetadata{DataType: "decimal"})
		assert.Equal(t, 10, l.Precision)
		assert.Equal(t, 2, l.Scale)
	})

	t.Run("integer ranges", func(t *testing.T) {
		assert.Equal(t, int64(127), LimitFor(&ColumnMetadata{DataType: "tinyint"}).MaxInt)
		assert.Equal(t, int64(255), LimitFor(&ColumnMetadata{DataType: "tinyint unsigned"}).MaxInt)
		assert.Equal(t, int64(0), LimitFor(&ColumnMetadata{DataType: "tinyint unsigned"}).MinInt)
		assert.Equal(t, int64(32767), LimitFor(&ColumnMetadata{DataType: "smallint"}).MaxInt)
		assert.Equal(t, int64(8388607), LimitFor(&ColumnMetadata{DataType: "mediumint"}).MaxInt)
		assert.Equal(t, int64(math.MaxInt32), LimitFor(&ColumnMetadata{DataType: "int(11)"}).MaxInt)
		assert.Equal(t, int64(4294967295), LimitFor(&ColumnMetadata{DataType: "int unsigned"}).MaxInt)
		assert.Equal(t, int64(math.MaxInt64), LimitFor(&ColumnMetadata{DataType: "bigint"}).MaxInt)
	})
}

func TestEnumValues(t *testing.T) {
	col := &ColumnMetadata{DataType: "enum('active','inactive','banned')"}
	assert.Equal(t, []string{"active", "inactive", "banned"}, EnumValues(col))

	col = &ColumnMetadata{DataType: "varchar(10)", Comment: "status [NEW, PAID , SHIPPED]"}
	assert.Equal(t, []string{"NEW", "PAID", "SHIPPED"}, EnumValues(col))

	assert.Nil(t, EnumValues(&ColumnMetadata{DataType: "varchar(10)"}))
}

func TestNormalizeEnum(t *testing.T) {
	permitted := []string{"NEW", "PAID"}
	assert.Equal(t, "PAID", NormalizeEnum("paid", permitted))
	assert.Equal(t, "NEW", NormalizeEnum("unknown", permitted))
	assert.Equal(t, "x", NormalizeEnum("x", nil))
}

func TestTableMetadata(t *testing.T) {
	orders := NewTable("orders")
	orders.AddColumn(&ColumnMetadata{Name: "id", DataType: "int", Extra: "auto_increment"})
	orders.AddColumn(&ColumnMetadata{Name: "customer_id", DataType: "int"})
	orders.AddColumn(&ColumnMetadata{Name: "parent_id", DataType: "int", Nullable: true})
	orders.AddColumn(&ColumnMetadata{Name: "code", DataType: "varchar(12)", Key: "UNI"})
	orders.SetPrimaryKey("id")
	orders.AddForeignKey(NewForeignKey("customer_id", "customers", "id"))
	orders.AddForeignKey(NewForeignKey("customer_id", "customers", "id"))
	orders.AddForeignKey(NewForeignKey("parent_id", "orders", "id"))

	assert.Equal(t, []string{"id", "customer_id", "parent_id", "code"}, orders.ColumnNames())
	assert.True(t, orders.PKAutoIncrement)
	assert.True(t, orders.IsStoreAssigned("id"))
	assert.True(t, orders.IsUnique("code"))
	assert.Len(t, orders.ForeignKeys, 2)
	assert.Equal(t, []string{"customers"}, orders.Dependencies())

	fk := orders.ForeignKeyFor("parent_id")
	require.NotNil(t, fk)
	assert.True(t, fk.SelfReference("orders"))

	deps := DependencyMap(map[string]*TableMetadata{"orders": orders, "customers": NewTable("customers")})
	assert.Equal(t, []string{"customers"}, deps["orders"])
	assert.Empty(t, deps["customers"])
}

func TestValuePool(t *testing.T) {
	pool := NewValuePool(int64(1), "2", []byte("3"), nil, int64(1))
	assert.Equal(t, 3, pool.Len())
	assert.True(t, pool.Contains(float64(1)))
	assert.True(t, pool.Contains(3))
	assert.False(t, pool.Contains(4))

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		v := pool.Pick(r)
		assert.True(t, pool.Contains(v))
	}

	pool.Replace([]interface{}{int64(9)})
	assert.Equal(t, []interface{}{int64(9)}, pool.Values())
	assert.Nil(t, NewValuePool().Pick(r))
}
