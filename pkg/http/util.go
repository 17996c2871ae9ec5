package http

import (
	"time"

	xutil "ConfluenceCal/pkg/util"
)

// ParseTime accepts RFC3339, a plain date and unix seconds or milliseconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
