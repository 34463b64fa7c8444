package hoard

import (
	"net/http"
	"time"

	"github.com/Keksclan/hoard/breaker"
	"github.com/Keksclan/hoard/cache"
	"github.com/Keksclan/hoard/ratelimit"
	"github.com/Keksclan/hoard/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	capacity   int
	store      cache.Store
	storeDir   string
	client     *http.Client
	timeout    time.Duration
	limiter    *ratelimit.Limiter
	breaker    *breaker.Breaker
	logger     zerolog.Logger
	tracing    *tracing.Config
	registerer prometheus.Registerer
}
