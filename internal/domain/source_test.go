package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSource(t *testing.T) {
	source, err := ParseSource("yahoo")
	assert.NoError(t, err)
	assert.Equal(t, SourceYahoo, source)

	_, err = ParseSource("bloomberg")
	var unknown *UnknownSourceError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "bloomberg", unknown.Name)
}

func TestFetchRangeContains(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
	}

	closed := FetchRange{Start: day(10), End: day(20)}
	assert.True(t, closed.Contains(day(10)))
	assert.True(t, closed.Contains(day(20)))
	assert.False(t, closed.Contains(day(9)))
	assert.False(t, closed.Contains(day(21)))

	startOnly := FetchRange{Start: day(10)}
	assert.True(t, startOnly.Contains(day(10)))
	assert.True(t, startOnly.Contains(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, startOnly.Contains(day(9)))

	endOnly := FetchRange{End: day(20)}
	assert.True(t, endOnly.Contains(day(20)))
	assert.True(t, endOnly.Contains(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, endOnly.Contains(day(21)))

	open := FetchRange{}
	assert.True(t, open.IsZero())
	assert.True(t, open.Contains(day(1)))
}
