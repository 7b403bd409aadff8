package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	configs := map[string]Config{
		"sequential": Sequential(),
		"default":    DefaultConfig(),
		"wide":       {Enabled: true, NumWorkers: 8, MinChunkSize: 1},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			const n = 1000
			var hits [n]atomic.Int32
			For(n, func(i int) { hits[i].Add(1) }, cfg)
			for i := range hits {
				assert.Equal(t, int32(1), hits[i].Load(), "index %d", i)
			}
		})
	}
}

func TestForBatch(t *testing.T) {
	var sum atomic.Int64
	ForBatch(3, 5, func(b, c int) {
		sum.Add(int64(b*10 + c))
	}, Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})

	// sum over b in 0..2, c in 0..4 of 10b + c = 10*(0+1+2)*5 + (0+1+2+3+4)*3
	assert.Equal(t, int64(180), sum.Load())
}

func TestForZero(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}
