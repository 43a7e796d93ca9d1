package arq

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Progress periodically logs a sender's counters from its own goroutine.
type Progress struct {
	stats    *SenderStats
	total    int64
	interval time.Duration
	log      logrus.FieldLogger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// StartProgress reports every interval until Stop. total is the stream
// length including the sentinel.
func StartProgress(stats *SenderStats, total int64, interval time.Duration, log logrus.FieldLogger) *Progress {
	p := &Progress{
		stats:    stats,
		total:    total,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Progress) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lastBytes := int64(0)
	lastTime := time.Now()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			sent := p.stats.TotalBytesSent.Load()
			rate := float64(sent-lastBytes) / now.Sub(lastTime).Seconds()
			lastBytes, lastTime = sent, now

			p.log.Infof("Progress: %.2f%%, State: %s, Sent: %d, Packets: %d, Resends: %d, Rate: %.2f B/s",
				p.Percent(), p.stats.State(), sent, p.stats.PacketsSent.Load(),
				p.stats.Retransmissions.Load(), rate)
		case <-p.done:
			return
		}
	}
}

// Percent is the share of the stream confirmed delivered.
func (p *Progress) Percent() float64 {
	if p.total <= 0 {
		return 0
	}
	return float64(p.stats.Cursor.Load()) * 100 / float64(p.total)
}

func (p *Progress) Stop() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}
