package models

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeIDPoolExhausted = "id-pool-exhausted"
)

// IDPool is a sequential id generator. Released ids are handed out again
// before new ones, smallest first. A pool with a non zero Max never returns an
// id greater than Max.
type IDPool struct {
	Max uint32

	mutex    sync.Mutex
	current  uint32
	released []uint32
}

// New returns an unused id. Ids start at 1.
func (p *IDPool) New() (uint32, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.released) != 0 {
		smallest := 0
		for i, id := range p.released {
			if id < p.released[smallest] {
				smallest = i
			}
		}

		id := p.released[smallest]
		last := len(p.released) - 1
		p.released[smallest] = p.released[last]
		p.released = p.released[:last]
		return id, nil
	}

	if p.Max != 0 && p.current >= p.Max {
		return 0, errors.New("id pool exhausted").
			WithType(ErrTypeIDPoolExhausted).
			WithTag("max", p.Max)
	}

	p.current++
	return p.current, nil
}

// Release marks the given id as reusable.
func (p *IDPool) Release(id uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if id == 0 || id > p.current {
		return
	}
	for _, released := range p.released {
		if released == id {
			return
		}
	}
	p.released = append(p.released, id)
}

// InUse returns the number of ids handed out and not released.
func (p *IDPool) InUse() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return int(p.current) - len(p.released)
}
