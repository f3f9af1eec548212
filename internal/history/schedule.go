package history

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// SchedulePurge starts a cron scheduler that runs PurgeOlderThan with the
// configured retention on spec (standard five-field syntax or descriptors
// such as "@daily"). Stop the returned scheduler on shutdown.
func SchedulePurge(r *Recorder, spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.PurgeOlderThan(0); err != nil {
			log.Printf("[history] scheduled purge: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}
	c.Start()
	log.Printf("[history] purge scheduled %q, retention %d days", spec, r.RetentionDays())
	return c, nil
}
