package dom

import "time"

// debounceConfig controls how Run batches records.
type debounceConfig struct {
	// Window is the debounce time. Default: 25ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many records are queued. Default: 1000.
	MaxBuffer int
	// SettleAfter is the quiet time after a flush before Settle runs. Default: 4x Window.
	SettleAfter time.Duration
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 25 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
	if dc.SettleAfter <= 0 {
		dc.SettleAfter = 4 * dc.Window
	}
}

// debouncer decides when queued records are flushed. Records stay queued on
// their observers; the debouncer only tracks how many there are.
type debouncer struct {
	cfg     debounceConfig
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func()
}

func newDebouncer(cfg debounceConfig, flushFn func()) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, flushFn: flushFn}
}

// note reports the current number of queued records. Returns true if an
// immediate flush was triggered (buffer full).
func (d *debouncer) note(pending int) bool {
	if pending <= 0 {
		return false
	}
	if pending >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	// (Re)start the window timer.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC returns the channel that fires when the debounce window expires.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	d.flushFn()
}

// compress merges runs of records that only restate the same change:
// - consecutive attribute records on the same (target, name) keep the first old value
// - consecutive characterData records on the same target likewise
// - childList records are never merged
func compress(records []Record) []Record {
	if len(records) <= 1 {
		return records
	}

	result := make([]Record, 0, len(records))
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec.Type == ChildList {
			result = append(result, rec)
			continue
		}
		j := i + 1
		for j < len(records) &&
			records[j].Type == rec.Type &&
			records[j].Target == rec.Target &&
			records[j].AttributeName == rec.AttributeName {
			j++
		}
		result = append(result, rec)
		i = j - 1
	}
	return result
}
