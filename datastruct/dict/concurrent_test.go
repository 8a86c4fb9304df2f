package dict

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutAndGet(t *testing.T) {
	d := MakeConcurrent(0)
	count := 100
	for i := 0; i < count; i++ {
		key := "k" + strconv.Itoa(i)
		ret := d.Put(key, i)
		assert.Equal(t, 1, ret) // insert
		val, ok := d.Get(key)
		assert.True(t, ok)
		assert.Equal(t, i, val)
	}
	assert.Equal(t, count, d.Len())

	// update
	ret := d.Put("k0", "new")
	assert.Equal(t, 0, ret)
	val, _ := d.Get("k0")
	assert.Equal(t, "new", val)
	assert.Equal(t, count, d.Len())
}

func TestPutIfAbsentAndPutIfExists(t *testing.T) {
	d := MakeConcurrent(16)
	assert.Equal(t, 0, d.PutIfExists("k", 1))
	assert.Equal(t, 1, d.PutIfAbsent("k", 1))
	assert.Equal(t, 0, d.PutIfAbsent("k", 2))
	val, _ := d.Get("k")
	assert.Equal(t, 1, val)
	assert.Equal(t, 1, d.PutIfExists("k", 3))
	val, _ = d.Get("k")
	assert.Equal(t, 3, val)
}

func TestRemove(t *testing.T) {
	d := MakeConcurrent(16)
	d.Put("k", 1)
	val, ret := d.Remove("k")
	assert.Equal(t, 1, ret)
	assert.Equal(t, 1, val)
	_, ok := d.Get("k")
	assert.False(t, ok)
	_, ret = d.Remove("k")
	assert.Equal(t, 0, ret)
	assert.Equal(t, 0, d.Len())
}

func TestConcurrentPut(t *testing.T) {
	d := MakeConcurrent(0)
	var wg sync.WaitGroup
	workers := 10
	perWorker := 100
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(base int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				key := "k" + strconv.Itoa(base*perWorker+j)
				d.Put(key, j)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, workers*perWorker, d.Len())
}

func TestForEachAndKeys(t *testing.T) {
	d := MakeConcurrent(16)
	for i := 0; i < 10; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	visited := 0
	d.ForEach(func(key string, val interface{}) bool {
		visited++
		return true
	})
	assert.Equal(t, 10, visited)
	assert.Len(t, d.Keys(), 10)

	// early stop
	visited = 0
	d.ForEach(func(key string, val interface{}) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestClear(t *testing.T) {
	d := MakeConcurrent(16)
	d.Put("k", 1)
	d.Clear()
	assert.Equal(t, 0, d.Len())
	_, ok := d.Get("k")
	assert.False(t, ok)
}

func TestRandomKeys(t *testing.T) {
	d := MakeConcurrent(16)
	for i := 0; i < 10; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	assert.Len(t, d.RandomKeys(5), 5)
	distinct := d.RandomDistinctKeys(5)
	assert.Len(t, distinct, 5)
	seen := make(map[string]struct{})
	for _, k := range distinct {
		seen[k] = struct{}{}
	}
	assert.Len(t, seen, 5)
}
