package sync_

import (
	"errors"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func read[T any](rw *RWMutexed[T]) (v T) {
	_ = rw.RLocked(func(p *T) error {
		v = *p
		return nil
	})
	return v
}

// Writers through Locked and readers through RLocked racing on a map, the way the job registry uses it.
func TestRWMutexed_Race(t *testing.T) {
	assert := assert_.New(t)
	rw := NewRWMutexed(make(map[string]int))
	var start Event
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 50; j++ {
				_ = rw.Locked(func(m *map[string]int) error {
					(*m)["count"]++
					return nil
				})
			}
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 50; j++ {
				_ = rw.RLocked(func(m *map[string]int) error {
					_ = len(*m)
					return nil
				})
			}
		}()
	}

	start.Set()
	wg.Wait()
	assert.Equal(2500, read(rw)["count"])
}

func TestMutexed_LockedError(t *testing.T) {
	assert := assert_.New(t)
	m := NewMutexed(map[string]int{})
	sentinel := errors.New("stop")

	err := m.Locked(func(v *map[string]int) error {
		(*v)["a"] = 1
		return sentinel
	})
	assert.ErrorIs(err, sentinel)
	// Mutation before the error is kept; Locked is not transactional
	_ = m.Locked(func(v *map[string]int) error {
		assert.Equal(1, (*v)["a"])
		return nil
	})
}

func TestRWMutexed_ConcurrentReaders(t *testing.T) {
	rw := NewRWMutexed(42)
	inside := make(chan struct{})
	release := make(chan struct{})

	// A reader holding the read lock must not block a second reader
	go func() {
		_ = rw.RLocked(func(v *int) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside
	done := make(chan int)
	go func() { done <- read(rw) }()
	select {
	case v := <-done:
		assert_.Equal(t, 42, v)
	case <-time.After(5 * time.Second):
		t.Fatal("second reader blocked by first reader")
	}
	close(release)
}
