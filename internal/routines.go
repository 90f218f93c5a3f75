package internal

import (
	"github.com/robfig/cron/v3"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
)

// Routines registers the periodic background tasks: a minutely dispatcher
// kick so batches whose window opened while the queue was idle start
// draining, and a five-minutely queue depth log.
func Routines(c *cron.Cron) {
	log.Print(nil).Info("Running Routine Tasks")

	_, err := c.AddFunc("0 * * * * *", func() {
		appDispatcher.Kick()
	})
	if err != nil {
		log.Print(nil).Warn("register dispatcher kick: " + err.Error())
	}

	_, err = c.AddFunc("0 */5 * * * *", func() {
		batches, jobs := appDispatcher.QueueDepth()
		if jobs == 0 {
			return
		}
		log.Print(nil).
			WithField("batches", batches).
			WithField("jobs", jobs).
			Info("Dispatch queue depth")
	})
	if err != nil {
		log.Print(nil).Warn("register queue depth log: " + err.Error())
	}

	c.Start()
}
