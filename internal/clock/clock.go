// Package clock — инъецируемый источник текущего времени.
//
// Вся зависимость движка от "сейчас" (окна расписаний, retry-таймеры,
// скользящие окна rate limit) идёт через Clock, чтобы тесты могли
// путешествовать во времени вместо sleep.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real — системные часы.
type Real struct{}

// Now возвращает time.Now().
func (Real) Now() time.Time { return time.Now() }

// Fake — управляемые часы для тестов.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake создаёт Fake, стоящий на указанном моменте.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now возвращает текущий момент Fake.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance сдвигает часы вперёд на d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set устанавливает часы на конкретный момент.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}
