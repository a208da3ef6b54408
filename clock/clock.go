package clock

import (
	"sync"
	"time"
)

// Clock 可替换的时间源，额度按月结算和定时任务依赖它
type Clock interface {
	Now() time.Time
}

// Real 系统时间
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// FakeClock 测试用时钟，只在Advance/Set时前进
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
