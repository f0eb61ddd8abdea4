package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
)

// Option customises shared collaborators of the dispatch and delivery services.
type Option func(*options)

type options struct {
	now       func() time.Time
	publisher realtime.Publisher
	timeline  timeline.Recorder
	log       *zap.Logger
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPublisher sets where emergency status changes are published.
func WithPublisher(publisher realtime.Publisher) Option {
	return func(o *options) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}

// WithTimeline sets the timeline recorder.
func WithTimeline(recorder timeline.Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.timeline = recorder
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func buildOptions(log *zap.Logger, opts []Option) options {
	o := options{
		now:       time.Now,
		publisher: realtime.NopPublisher{},
		log:       log,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) clock() time.Time {
	return o.now().UTC()
}
