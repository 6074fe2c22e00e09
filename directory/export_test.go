package directory

import "time"

func (c *Cached) SetClock(now func() time.Time) { c.now = now }
