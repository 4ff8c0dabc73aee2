package progress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReportsEveryInterval(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 1000)

	var reports []int64

	pr := NewReader(bytes.NewReader(data), int64(len(data)), 300, func(read, total int64) {
		assert.Equal(t, int64(1000), total)

		reports = append(reports, read)
	})

	buf := make([]byte, 100)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}

		require.NoError(t, err)
	}

	assert.Equal(t, []int64{300, 600, 900, 1000}, reports)
	assert.Equal(t, int64(1000), pr.BytesRead())
}

func TestReader_FinalReportOnce(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 10)

	calls := 0
	pr := NewReader(bytes.NewReader(data), 10, 100, func(read, total int64) {
		calls++

		assert.Equal(t, int64(10), read)
	})

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestReader_UnknownTotal(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 250)

	var reports []int64

	pr := NewReader(bytes.NewReader(data), 0, 100, func(read, _ int64) {
		reports = append(reports, read)
	})

	buf := make([]byte, 50)
	for {
		if _, err := pr.Read(buf); err == io.EOF {
			break
		}
	}

	assert.Equal(t, []int64{100, 200}, reports)
}

func TestReader_NilCallback(t *testing.T) {
	pr := NewReader(bytes.NewReader([]byte("hello")), 5, 1, nil)

	got, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}
