package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRowArityCheck(t *testing.T) {
	frame := NewFrame("A", "B")

	require.NoError(t, frame.AppendRow(1.0, 2.0))
	assert.Error(t, frame.AppendRow(1.0))
	assert.Equal(t, 1, frame.NumRows())
}

func TestCopyIsDeep(t *testing.T) {
	frame := NewFrame("A")
	require.NoError(t, frame.AppendRow(1.0))

	clone := frame.Copy()
	clone.Rows[0][0] = 99.0
	clone.Columns[0] = "Z"

	assert.Equal(t, 1.0, frame.Rows[0][0])
	assert.Equal(t, "A", frame.Columns[0])
}

func TestFloat64ColumnWidensIntegers(t *testing.T) {
	frame := NewFrame("N")
	require.NoError(t, frame.AppendRow(1))
	require.NoError(t, frame.AppendRow(int64(2)))
	require.NoError(t, frame.AppendRow(3.5))

	values, err := frame.Float64Column("N")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3.5}, values)
}

func TestFloat64ColumnRejectsText(t *testing.T) {
	frame := NewFrame("S")
	require.NoError(t, frame.AppendRow("abc"))

	_, err := frame.Float64Column("S")
	assert.Error(t, err)

	_, err = frame.Float64Column("Missing")
	assert.Error(t, err)
}

func TestEqualComparesTimesByInstant(t *testing.T) {
	utc := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("X", 3600))

	a := NewFrame(ColDate)
	require.NoError(t, a.AppendRow(utc))
	b := NewFrame(ColDate)
	require.NoError(t, b.AppendRow(offset))

	assert.True(t, a.Equal(b))

	c := NewFrame(ColDate)
	require.NoError(t, c.AppendRow(utc.Add(time.Hour)))
	assert.False(t, a.Equal(c))
}

func TestColumnIndex(t *testing.T) {
	frame := NewFrame(PriceColumns...)
	assert.Equal(t, 0, frame.ColumnIndex(ColDate))
	assert.Equal(t, 4, frame.ColumnIndex(ColClose))
	assert.Equal(t, -1, frame.ColumnIndex("Nope"))
}
