package pwm

import (
	"sync/atomic"

	"github.com/temoto/lightd/log2"
)

// LogChannel has no hardware, for development and tests.
type LogChannel struct {
	log  *log2.Log
	duty uint32
}

func NewLog(log *log2.Log) *LogChannel { return &LogChannel{log: log} }

func (self *LogChannel) SetDuty(percent uint8) error {
	atomic.StoreUint32(&self.duty, uint32(percent))
	self.log.Infof("pwm: duty=%d%%", percent)
	return nil
}

func (self *LogChannel) Duty() uint8  { return uint8(atomic.LoadUint32(&self.duty)) }
func (self *LogChannel) Close() error { return nil }
