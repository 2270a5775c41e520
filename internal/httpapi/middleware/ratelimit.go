package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown admits one request per interval across all callers of the
// wrapped handlers. Rejected requests get 429 with Retry-After in seconds.
// A non-positive interval disables it.
func Cooldown(every time.Duration) func(http.Handler) http.Handler {
	if every <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := rate.NewLimiter(rate.Every(every), 1)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Reserve()
			if wait := res.Delay(); wait > 0 {
				res.Cancel()
				secs := int(math.Ceil(wait.Seconds()))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprintf(w, `{"error":"rate limited, try again in %d seconds"}`, secs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
