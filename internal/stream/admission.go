package stream

import (
	"sync"

	"github.com/sasha-s/go-deadlock"
)

// admission caps concurrent streams per client IP and overall.
type admission struct {
	mu       deadlock.Mutex
	perIP    map[string]int
	open     int
	maxPerIP int
	maxOpen  int
}

func newAdmission(maxPerIP, maxOpen int) *admission {
	if maxPerIP <= 0 {
		maxPerIP = 10
	}
	if maxOpen <= 0 {
		maxOpen = 1000
	}
	return &admission{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxOpen:  maxOpen,
	}
}

// admit reserves a slot for ip. The returned func frees it and may be
// called more than once.
func (a *admission) admit(ip string) (func(), bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open >= a.maxOpen || a.perIP[ip] >= a.maxPerIP {
		return nil, false
	}
	a.perIP[ip]++
	a.open++

	var once sync.Once
	return func() { once.Do(func() { a.leave(ip) }) }, true
}

func (a *admission) leave(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.open--
	if a.perIP[ip]--; a.perIP[ip] <= 0 {
		delete(a.perIP, ip)
	}
}

// count returns the open streams of ip.
func (a *admission) count(ip string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perIP[ip]
}

func (a *admission) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}
