package timex

import "time"

// NowMs returns Unix milliseconds as int64, the timestamp format of all
// bus payloads.
func NowMs() int64 { return time.Now().UnixMilli() }
