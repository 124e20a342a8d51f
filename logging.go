package executor

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// log categories, used as rate limiter keys
const (
	logCategoryDroppedPacket = "dropped-packet"
)

// newLogLimiter limits debug logs for expected, benign races, which can
// otherwise be arbitrarily frequent.
func newLogLimiter() *catrate.Limiter {
	return catrate.NewLimiter(map[time.Duration]int{
		time.Second: 5,
		time.Minute: 60,
	})
}

func (ex *Executor) logTaskPanic(id TaskID, value any) {
	if b := ex.logger.Err(); b.Enabled() {
		b.Uint64(`task`, uint64(id)).
			Interface(`panic`, value).
			Log(`task panicked`)
	}
}

func (ex *Executor) logDroppedPacket(pkt Packet) {
	b := ex.logger.Debug()
	if !b.Enabled() {
		return
	}
	if _, ok := ex.logLimiter.Allow(logCategoryDroppedPacket); !ok {
		b.Release()
		return
	}
	b.Uint64(`key`, pkt.Key).
		Uint64(`data`, pkt.Data).
		Log(`dropped packet for unregistered receiver`)
}

func (ex *Executor) logPortFailure(err error) {
	ex.logger.Crit().
		Err(err).
		Log(`port wait failed`)
}

func (ex *Executor) logPollerFailure(err error) {
	ex.logger.Crit().
		Err(err).
		Log(`fd poller stopped`)
}

func (ex *Executor) logAffinityFailure(worker, cpu int, err error) {
	ex.logger.Warning().
		Int(`worker`, worker).
		Int(`cpu`, cpu).
		Err(err).
		Log(`failed to set worker thread affinity`)
}

func (ex *Executor) logTeardown(receivers, tasks int) {
	if receivers != 0 {
		ex.logger.Warning().
			Int(`receivers`, receivers).
			Log(`receivers still registered at executor teardown`)
	}
	ex.logger.Debug().
		Int(`tasks`, tasks).
		Log(`executor closed`)
}
