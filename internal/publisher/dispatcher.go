package publisher

import (
	"fmt"
	"time"

	config "github.com/socialqueue/socialqueue/configs"
	"github.com/socialqueue/socialqueue/internal/models"
)

// Dispatcher routes a post to its platform's Publisher. The lookup table is
// built once at startup; an unrecognized platform is a configuration error,
// never a silent default.
type Dispatcher struct {
	publishers map[string]Publisher
}

func NewDispatcher(publishers map[string]Publisher) *Dispatcher {
	return &Dispatcher{publishers: publishers}
}

func NewPlatformDispatcher(cfg config.Config) *Dispatcher {
	timeout := time.Duration(cfg.PublishTimeout) * time.Second
	return NewDispatcher(map[string]Publisher{
		models.PlatformLinkedIn:  NewLinkedInPublisher(cfg.LinkedIn, timeout),
		models.PlatformTwitter:   NewTwitterPublisher(cfg.Twitter, timeout),
		models.PlatformInstagram: NewInstagramPublisher(cfg.Instagram, timeout),
	})
}

func (d *Dispatcher) ForPlatform(platform string) (Publisher, error) {
	p, ok := d.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("no publisher configured for platform %q", platform)
	}
	return p, nil
}
