// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Cron runs the node's background jobs, the TTL sweeper and the cache
// evictor among them. Every job owns a goroutine and runs once right
// after registration, so a node that was powered off catches up on the
// expiry and eviction backlog at boot instead of waiting out the first
// interval. Ticks carry a jitter of up to a tenth of the interval, so
// nodes sharing an island do not sweep in lockstep.
type Cron struct {
	mutex sync.Mutex
	jobs  map[string]chan struct{}
	wg    sync.WaitGroup
}

// NewCron creates an empty Cron instance.
func NewCron() *Cron {
	return &Cron{
		jobs: make(map[string]chan struct{}),
	}
}

// Register a new job by its name, function and interval. The interval
// must be positive; sub-second intervals are allowed for tests and for
// constrained nodes that evict under pressure. The function runs on the
// job's own goroutine: a slow run delays the next tick but a job never
// overlaps itself.
func (cron *Cron) Register(name string, task func(), interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval %v is not positive", interval)
	}

	cron.mutex.Lock()
	defer cron.mutex.Unlock()

	if _, exists := cron.jobs[name]; exists {
		return fmt.Errorf("a job named %s is already registered", name)
	}

	stop := make(chan struct{})
	cron.jobs[name] = stop

	cron.wg.Add(1)
	go cron.runJob(name, task, interval, stop)

	return nil
}

func (cron *Cron) runJob(name string, task func(), interval time.Duration, stop chan struct{}) {
	defer cron.wg.Done()

	// Catch-up run.
	task()

	timer := time.NewTimer(withJitter(interval))
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return

		case <-timer.C:
			task()
			timer.Reset(withJitter(interval))

			log.WithField("job", name).Debug("Cron executed job")
		}
	}
}

// withJitter spreads an interval by up to a tenth in either direction.
func withJitter(interval time.Duration) time.Duration {
	tenth := int64(interval) / 10
	if tenth == 0 {
		return interval
	}
	return interval + time.Duration(rand.Int63n(2*tenth+1)-tenth)
}

// Unregister a job by its name.
func (cron *Cron) Unregister(name string) {
	cron.mutex.Lock()
	defer cron.mutex.Unlock()

	if stop, ok := cron.jobs[name]; ok {
		close(stop)
		delete(cron.jobs, name)
	}
}

// Stop this Cron and wait for the running jobs to finish their current
// work. This method is only allowed to be called once.
func (cron *Cron) Stop() {
	cron.mutex.Lock()
	for _, stop := range cron.jobs {
		close(stop)
	}
	cron.jobs = make(map[string]chan struct{})
	cron.mutex.Unlock()

	cron.wg.Wait()
}
